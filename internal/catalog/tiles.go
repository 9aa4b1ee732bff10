package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

var numberPattern = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

// Product is the structured form of a scraped retail product tile.
type Product struct {
	TileID        string   `json:"tile_id"`
	Href          string   `json:"href,omitempty"`
	Category      []string `json:"category,omitempty"`
	Brand         string   `json:"brand,omitempty"`
	Name          string   `json:"name,omitempty"`
	ProductNumber *float64 `json:"product_number,omitempty"`
	Country       string   `json:"country,omitempty"`
	Volume        *float64 `json:"volume,omitempty"`
	Alcohol       *float64 `json:"alcohol,omitempty"`
	Price         string   `json:"price,omitempty"`
	ImageURL      string   `json:"image_url,omitempty"`
	ImageAlt      string   `json:"image_alt,omitempty"`
	BeerName      string   `json:"beer_name,omitempty"`
	WineName      string   `json:"wine_name,omitempty"`
	Type          string   `json:"type"`
	Data          string   `json:"data"`
}

// ParseTile extracts product fields from one tile's outer HTML. It reports
// false when the markup holds no product tile.
func ParseTile(html string) (Product, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Product{}, false
	}
	tile := doc.Find(`a[id^="tile:"]`).First()
	if tile.Length() == 0 {
		return Product{}, false
	}
	p := Product{}
	p.TileID, _ = tile.Attr("id")
	p.Href, _ = tile.Attr("href")

	if cat := tile.Find("p.css-4oiqd8").First(); cat.Length() > 0 {
		for _, part := range strings.Split(strings.TrimSpace(cat.Text()), ",") {
			p.Category = append(p.Category, strings.TrimSpace(part))
		}
	}

	info := tile.Find("div.css-rqa69l").First().Find("p")
	if info.Length() >= 1 {
		p.Brand = strings.TrimSpace(info.Eq(0).Text())
	}
	if info.Length() >= 2 {
		p.Name = strings.TrimSpace(info.Eq(1).Text())
	}
	if info.Length() >= 3 {
		p.ProductNumber = parseNumber(info.Eq(2).Text())
	}

	stock := tile.Find("div#stock_scrollcontainer").First().Find("p.e1fb4th00")
	if stock.Length() >= 1 {
		p.Country = strings.TrimSpace(stock.Eq(0).Text())
	}
	if stock.Length() >= 2 {
		p.Volume = parseNumber(stock.Eq(1).Text())
	}
	if stock.Length() >= 3 {
		p.Alcohol = parseNumber(stock.Eq(2).Text())
	}

	if price := tile.Find("p.css-a2frwy").First(); price.Length() > 0 {
		p.Price = strings.TrimSpace(price.Text())
	}
	if img := tile.Find("img").First(); img.Length() > 0 {
		p.ImageURL, _ = img.Attr("src")
		p.ImageAlt, _ = img.Attr("alt")
	}
	return p, true
}

func parseNumber(text string) *float64 {
	match := numberPattern.FindString(text)
	if match == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.Replace(match, ",", ".", 1), 64)
	if err != nil {
		return nil
	}
	return &f
}

// ImportTiles converts a raw scrape ({"beers":[{"data":...,"beer_name":...}], "wines":[...]})
// into structured products. Entries without a parseable tile are skipped.
func ImportTiles(raw []byte, logger *zap.Logger) ([]byte, int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	top := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &top); err != nil {
		return nil, 0, fmt.Errorf("decode raw catalog: %w", err)
	}
	out := make(map[string][]Product)
	total := 0
	for _, key := range []string{"beers", "wines"} {
		var entries []map[string]any
		if err := json.Unmarshal(top[key], &entries); err != nil || entries == nil {
			logger.Warn("raw catalog has no list", zap.String("key", key))
			continue
		}
		products := make([]Product, 0, len(entries))
		for idx, entry := range entries {
			html, _ := entry["data"].(string)
			if html == "" {
				logger.Warn("entry missing data field; skipping", zap.String("key", key), zap.Int("index", idx))
				continue
			}
			product, ok := ParseTile(html)
			if !ok {
				logger.Warn("could not parse product tile; skipping", zap.String("key", key), zap.Int("index", idx))
				continue
			}
			switch key {
			case "beers":
				product.BeerName, _ = entry["beer_name"].(string)
				product.Type = "Beer"
			case "wines":
				product.WineName, _ = entry["wine_name"].(string)
				product.Type = "Wine"
			}
			product.Data = html
			products = append(products, product)
		}
		out[key] = products
		total += len(products)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(out); err != nil {
		return nil, 0, fmt.Errorf("encode products: %w", err)
	}
	return buf.Bytes(), total, nil
}
