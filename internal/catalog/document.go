package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrMissingList indicates the catalog has no list under the configured key.
var ErrMissingList = errors.New("catalog list missing")

// PartitionKey is the top-level key that carries a worker artifact's range.
const PartitionKey = "_partition"

// PartitionInfo describes the slice of the global list held by a worker artifact.
type PartitionInfo struct {
	WorkerID     int `json:"worker_id"`
	TotalWorkers int `json:"total_workers"`
	Start        int `json:"start"`
	End          int `json:"end"`
}

// Document is a loaded catalog. Top-level keys other than the item list are
// carried through unchanged when the document is encoded again.
type Document struct {
	ListKey   string
	NameField string
	Items     []*Item

	top map[string]json.RawMessage
}

// Load reads and decodes the catalog at path.
func Load(path, listKey, nameField string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	doc, err := Decode(data, listKey, nameField)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return doc, nil
}

// Decode parses a catalog document. A missing or non-array list is an error.
func Decode(data []byte, listKey, nameField string) (*Document, error) {
	top := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	rawList, ok := top[listKey]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingList, listKey)
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(rawList, &entries); err != nil || entries == nil {
		return nil, fmt.Errorf("%w: %q is not an array", ErrMissingList, listKey)
	}
	items := make([]*Item, 0, len(entries))
	for idx, raw := range entries {
		item, err := decodeItem(raw, nameField)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", listKey, idx, err)
		}
		items = append(items, item)
	}
	delete(top, listKey)
	return &Document{
		ListKey:   listKey,
		NameField: nameField,
		Items:     items,
		top:       top,
	}, nil
}

// Encode renders the document with items as its list. When partition is
// non-nil it is written under PartitionKey.
func (d *Document) Encode(items []*Item, partition *PartitionInfo) ([]byte, error) {
	out := make(map[string]any, len(d.top)+2)
	for k, v := range d.top {
		out[k] = v
	}
	if items == nil {
		items = []*Item{}
	}
	out[d.ListKey] = items
	if partition != nil {
		out[PartitionKey] = partition
	} else {
		delete(out, PartitionKey)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("encode catalog: %w", err)
	}
	return buf.Bytes(), nil
}
