// Package catalog loads and writes the item catalog that the enricher mutates.
//
// A catalog is a JSON document holding a named list of items (for example
// "wines" or "beers"). Every attribute of an item is kept as raw JSON so that
// writing the catalog back only changes the rating fields.
package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Field names written by the enricher.
const (
	RatingField     = "rating"
	RatingLinkField = "rating_link"
)

// Item is one catalog entry to enrich.
type Item struct {
	// SearchTerm is derived from the configured name field.
	SearchTerm string
	// Rating is nil until a lookup resolves a value in [0,5].
	Rating *float64
	// RatingLink is the canonical page for the resolved rating.
	RatingLink *string

	fields map[string]json.RawMessage
}

// NewItem builds an item with only a name field, mostly useful in tests.
func NewItem(nameField, term string) *Item {
	raw, _ := json.Marshal(term)
	return &Item{
		SearchTerm: term,
		fields:     map[string]json.RawMessage{nameField: raw},
	}
}

func decodeItem(raw json.RawMessage, nameField string) (*Item, error) {
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	item := &Item{fields: fields}
	if v, ok := fields[nameField]; ok {
		var name string
		if err := json.Unmarshal(v, &name); err == nil {
			item.SearchTerm = strings.TrimSpace(name)
		}
	}
	item.Rating = parseRating(fields[RatingField])
	if v, ok := fields[RatingLinkField]; ok {
		var link string
		if err := json.Unmarshal(v, &link); err == nil && link != "" {
			item.RatingLink = &link
		}
	}
	return item, nil
}

// parseRating accepts both numeric and string encoded ratings from older runs.
func parseRating(raw json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &parsed
}

// Field returns the raw JSON of an attribute.
func (i *Item) Field(name string) (json.RawMessage, bool) {
	v, ok := i.fields[name]
	return v, ok
}

// SetResult records a lookup result on the item. A nil rating clears both fields.
func (i *Item) SetResult(rating *float64, link string) {
	if rating == nil {
		i.Rating = nil
		i.RatingLink = nil
		return
	}
	r := *rating
	i.Rating = &r
	if link == "" {
		i.RatingLink = nil
		return
	}
	i.RatingLink = &link
}

// MarshalJSON writes the preserved attributes plus the rating fields.
func (i *Item) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(i.fields)+2)
	for k, v := range i.fields {
		out[k] = v
	}
	out[RatingField] = json.RawMessage("null")
	if i.Rating != nil {
		raw, err := json.Marshal(*i.Rating)
		if err != nil {
			return nil, fmt.Errorf("encode rating: %w", err)
		}
		out[RatingField] = raw
	}
	out[RatingLinkField] = json.RawMessage("null")
	if i.RatingLink != nil {
		raw, err := marshalNoEscape(*i.RatingLink)
		if err != nil {
			return nil, fmt.Errorf("encode rating link: %w", err)
		}
		out[RatingLinkField] = raw
	}
	return marshalNoEscape(out)
}

// marshalNoEscape keeps embedded HTML (tile markup) readable in the output.
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
