package source

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mnhsh/digital-capsule/internal/capsule"
)

// ParseExport reads a JSON object keyed by entry id, the shape a Realtime
// Database export of the data path has. Null and non-object children are
// skipped.
func ParseExport(data []byte) (map[string]capsule.Entry, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid entries export: %w", err)
	}
	entries := make(map[string]capsule.Entry, len(raw))
	for id, child := range raw {
		if isNull(child) {
			continue
		}
		e, err := capsule.DecodeEntry(child)
		if err != nil {
			continue
		}
		entries[id] = e
	}
	return entries, nil
}

// LoadStatic builds a Static source from an export file.
func LoadStatic(path string) (*Static, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: static store file is not set", ErrConfigurationMissing)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailure, err)
	}
	entries, err := ParseExport(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailure, err)
	}
	return &Static{Entries: entries}, nil
}
