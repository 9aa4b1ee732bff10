package enrich

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrLocaleUnconfirmed reports that the site kept a different locale.
var ErrLocaleUnconfirmed = errors.New("locale not confirmed")

// NegotiateLocale makes sure the session ships to want. It probes the current
// locale and, when it differs, sets it and re-probes. The set is retried once.
// Callers treat the returned error as best effort.
func NegotiateLocale(
	ctx context.Context,
	session Session,
	neg LocaleNegotiator,
	want Locale,
	retry Retry,
	logger *zap.Logger,
) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	page, err := session.NewPage(ctx)
	if err != nil {
		return fmt.Errorf("open locale page: %w", err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			logger.Debug("close locale page failed", zap.Error(cerr))
		}
	}()

	home := func(ctx context.Context, _ int) error {
		return page.Navigate(ctx, neg.HomeURL())
	}
	if _, err := retry.Do(ctx, "navigate home", home); err != nil {
		return err
	}
	ok, err := neg.ProbeLocale(ctx, page, want)
	if err == nil && ok {
		logger.Debug("locale already set", zap.String("country", want.Country), zap.String("state", want.State))
		return nil
	}

	var last error = ErrLocaleUnconfirmed
	for attempt := 1; attempt <= 2; attempt++ {
		if err := neg.SetLocale(ctx, page, want); err != nil {
			last = fmt.Errorf("set locale: %w", err)
			logger.Debug("set locale failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if err := page.Navigate(ctx, neg.HomeURL()); err != nil {
			last = fmt.Errorf("reload home: %w", err)
			continue
		}
		ok, err := neg.ProbeLocale(ctx, page, want)
		if err != nil {
			last = fmt.Errorf("probe locale: %w", err)
			continue
		}
		if ok {
			logger.Info("locale set", zap.String("country", want.Country), zap.String("state", want.State))
			return nil
		}
		last = ErrLocaleUnconfirmed
	}
	return fmt.Errorf("locale %s/%s: %w", want.Country, want.State, last)
}
