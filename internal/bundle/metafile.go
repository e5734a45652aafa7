package bundle

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
)

// Metafile is the subset of the bundler metafile the size checks read.
type Metafile struct {
	Outputs map[string]MetafileOutput `json:"outputs"`
}

type MetafileOutput struct {
	Bytes      int64  `json:"bytes"`
	EntryPoint string `json:"entryPoint,omitempty"`
}

// OversizeError lists the outputs that exceeded the size cap.
type OversizeError struct {
	Limit   int64
	Outputs map[string]int64
}

func (e *OversizeError) Error() string {
	names := make([]string, 0, len(e.Outputs))
	for name := range e.Outputs {
		names = append(names, name)
	}
	sort.Strings(names)
	msg := fmt.Sprintf("bundle exceeds the %d byte limit:", e.Limit)
	for _, name := range names {
		msg += fmt.Sprintf(" %s (%d bytes)", name, e.Outputs[name])
	}
	return msg
}

func parseMetafile(raw string) (*Metafile, error) {
	var meta Metafile
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return nil, fmt.Errorf("parse metafile: %w", err)
	}
	return &meta, nil
}

// CheckSize fails when any emitted file is larger than limit. Source maps
// are not shipped and are ignored.
func (m *Metafile) CheckSize(limit int64) error {
	if limit <= 0 {
		return nil
	}
	over := map[string]int64{}
	for name, output := range m.Outputs {
		if filepath.Ext(name) == ".map" {
			continue
		}
		if output.Bytes > limit {
			over[name] = output.Bytes
		}
	}
	if len(over) == 0 {
		return nil
	}
	return &OversizeError{Limit: limit, Outputs: over}
}

// TotalBytes sums every non-map output.
func (m *Metafile) TotalBytes() int64 {
	var total int64
	for name, output := range m.Outputs {
		if filepath.Ext(name) != ".map" {
			total += output.Bytes
		}
	}
	return total
}
