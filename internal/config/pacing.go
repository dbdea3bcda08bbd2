package config

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"time"

	"airfarm/internal/types"

	"gopkg.in/yaml.v3"
)

var (
	// ErrPacingNotFound indicates that the pacing file was not found.
	ErrPacingNotFound = errors.New("pacing file not found")
	// ErrPacingParseFailed indicates a YAML syntax or structure problem.
	ErrPacingParseFailed = errors.New("failed to parse pacing file")
)

// DelayRange represents a min/max delay with units.
type DelayRange struct {
	Min  int            `yaml:"min"`
	Max  int            `yaml:"max"`
	Unit types.TimeUnit `yaml:"unit"`
}

// Duration returns a random duration within the range. A zero range yields 0.
func (d DelayRange) Duration() (time.Duration, error) {
	if d.Min == 0 && d.Max == 0 {
		return 0, nil
	}
	lo, hi := d.Min, d.Max
	if lo > hi {
		lo, hi = hi, lo
	}
	val := lo
	if hi > lo {
		val = lo + rand.Intn(hi-lo+1)
	}
	switch d.Unit {
	case types.TimeUnitSeconds, "":
		return time.Duration(val) * time.Second, nil
	case types.TimeUnitMinutes:
		return time.Duration(val) * time.Minute, nil
	default:
		return 0, fmt.Errorf("unknown delay unit: %s", d.Unit)
	}
}

// Pacing controls the spacing of attempts inside one cycle and the fixed
// order the platforms are visited in.
type Pacing struct {
	BetweenWallets   DelayRange       `yaml:"between_wallets"`
	BetweenPlatforms DelayRange       `yaml:"between_platforms"`
	PlatformOrder    []types.Platform `yaml:"platform_order"`
}

// DefaultPacing returns the built-in pacing: no delays, all platforms in the
// canonical order.
func DefaultPacing() Pacing {
	return Pacing{
		PlatformOrder: []types.Platform{
			types.PlatformTestChain,
			types.PlatformDex,
			types.PlatformMarket,
		},
	}
}

// LoadPacing reads the optional pacing file and merges it over the defaults.
func LoadPacing(path string) (Pacing, error) {
	pacing := DefaultPacing()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return pacing, fmt.Errorf("pacing file %q: %w", path, ErrPacingNotFound)
		}
		return pacing, fmt.Errorf("failed to read pacing file %q: %w", path, err)
	}

	var loaded Pacing
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return pacing, fmt.Errorf("%w: %s: %w", ErrPacingParseFailed, path, err)
	}

	pacing.BetweenWallets = loaded.BetweenWallets
	pacing.BetweenPlatforms = loaded.BetweenPlatforms
	if len(loaded.PlatformOrder) > 0 {
		pacing.PlatformOrder = loaded.PlatformOrder
	}
	return pacing, nil
}
