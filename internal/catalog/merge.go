package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

type workerArtifact struct {
	partition PartitionInfo
	top       map[string]json.RawMessage
	entries   []json.RawMessage
}

// Merge stitches worker artifacts back into one catalog. The artifacts may be
// given in any order; together they must tile the original list exactly once.
func Merge(artifacts [][]byte, listKey string) ([]byte, error) {
	if len(artifacts) == 0 {
		return nil, fmt.Errorf("merge: no artifacts")
	}
	parts := make([]workerArtifact, 0, len(artifacts))
	for idx, data := range artifacts {
		part, err := decodeArtifact(data, listKey)
		if err != nil {
			return nil, fmt.Errorf("merge artifact %d: %w", idx, err)
		}
		parts = append(parts, part)
	}
	sort.SliceStable(parts, func(i, j int) bool {
		if parts[i].partition.Start != parts[j].partition.Start {
			return parts[i].partition.Start < parts[j].partition.Start
		}
		return parts[i].partition.End < parts[j].partition.End
	})

	total := parts[0].partition.TotalWorkers
	if len(parts) != total {
		return nil, fmt.Errorf("merge: got %d artifacts for %d workers", len(parts), total)
	}
	seen := make(map[int]bool, total)
	next := 0
	var merged []json.RawMessage
	for _, part := range parts {
		p := part.partition
		if p.TotalWorkers != total {
			return nil, fmt.Errorf("merge: worker %d reports %d workers, expected %d", p.WorkerID, p.TotalWorkers, total)
		}
		if seen[p.WorkerID] {
			return nil, fmt.Errorf("merge: duplicate artifact for worker %d", p.WorkerID)
		}
		seen[p.WorkerID] = true
		if p.Start != next {
			return nil, fmt.Errorf("merge: worker %d starts at %d, expected %d", p.WorkerID, p.Start, next)
		}
		if len(part.entries) != p.End-p.Start {
			return nil, fmt.Errorf("merge: worker %d holds %d items for range [%d,%d)",
				p.WorkerID, len(part.entries), p.Start, p.End)
		}
		merged = append(merged, part.entries...)
		next = p.End
	}

	out := make(map[string]any, len(parts[0].top)+1)
	for k, v := range parts[0].top {
		out[k] = v
	}
	if merged == nil {
		merged = []json.RawMessage{}
	}
	out[listKey] = merged

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return nil, fmt.Errorf("encode merged catalog: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeArtifact(data []byte, listKey string) (workerArtifact, error) {
	top := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &top); err != nil {
		return workerArtifact{}, fmt.Errorf("decode: %w", err)
	}
	rawPart, ok := top[PartitionKey]
	if !ok {
		return workerArtifact{}, fmt.Errorf("missing %s", PartitionKey)
	}
	var part PartitionInfo
	if err := json.Unmarshal(rawPart, &part); err != nil {
		return workerArtifact{}, fmt.Errorf("decode %s: %w", PartitionKey, err)
	}
	var entries []json.RawMessage
	rawList, ok := top[listKey]
	if !ok {
		return workerArtifact{}, fmt.Errorf("%w: %q", ErrMissingList, listKey)
	}
	if err := json.Unmarshal(rawList, &entries); err != nil {
		return workerArtifact{}, fmt.Errorf("%w: %q is not an array", ErrMissingList, listKey)
	}
	delete(top, PartitionKey)
	delete(top, listKey)
	return workerArtifact{partition: part, top: top, entries: entries}, nil
}
