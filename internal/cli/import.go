package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/rating-enricher/internal/catalog"
)

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <raw.json> <catalog.json>",
		Short: "Build a catalog from scraped product tiles",
		Long: `Parses the raw product-tile HTML captured by the shop scraper
({"beers":[...],"wines":[...]}) into structured products with
price, volume, origin and style fields.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := envFrom(cmd.Context())
			if err != nil {
				return err
			}
			logger := e.logger.Named("import")
			// #nosec G304 -- operator supplied path.
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read raw catalog: %w", err)
			}
			out, n, err := catalog.ImportTiles(raw, logger)
			if err != nil {
				return err
			}
			if n == 0 {
				return errors.New("no product tiles could be parsed")
			}
			uri, err := writeLocal(cmd.Context(), args[1], out)
			if err != nil {
				return err
			}
			logger.Info("catalog imported", zap.Int("products", n), zap.String("uri", uri))
			return nil
		},
	}
}
