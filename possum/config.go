package possum

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
)

// configFileName is the on-disk instance-limits marker a [Handle] reads at
// [New] and rewrites on every [Handle.SetInstanceLimits] call, so limits
// set by one process are visible to the next one to open the same
// directory. Comment-tolerant (JSONC via hujson) so operators can annotate
// the file in place.
const configFileName = "possum.json"

// loadLimits reads dir's config marker, defaulting to the zero [Limits]
// (unlimited, hole-punching enabled) when the file doesn't exist.
func loadLimits(dir string) (Limits, error) {
	path := filepath.Join(dir, configFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Limits{}, nil
		}

		return Limits{}, fmt.Errorf("possum: reading %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Limits{}, fmt.Errorf("possum: %s is not valid JSONC: %w", path, err)
	}

	var limits Limits

	if err := json.Unmarshal(standardized, &limits); err != nil {
		return Limits{}, fmt.Errorf("possum: %s: %w", path, err)
	}

	return limits, nil
}

// saveLimits atomically overwrites dir's config marker with limits.
func saveLimits(dir string, limits Limits) error {
	data, err := json.MarshalIndent(limits, "", "  ")
	if err != nil {
		return fmt.Errorf("possum: marshaling limits: %w", err)
	}

	path := filepath.Join(dir, configFileName)

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("possum: writing %s: %w", path, err)
	}

	return nil
}
