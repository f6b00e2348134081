// Package config loads tracing session configuration: which channels
// to create and which enabler rules to apply to each.
package config

import (
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/sctrace/sctrace/filter"
)

// Config is a full session description.
type Config struct {
	// Output is where recorder CSV stats land after a run; empty
	// means stats are only logged.
	Output   string    `toml:"output"`
	Channels []Channel `toml:"channel"`
}

// Channel describes one tracing channel and its rules.
type Channel struct {
	Name  string `toml:"name"`
	Rules []Rule `toml:"rule"`
}

// Rule is the TOML surface of one enabler. Zero values mean
// exact-match with unrestricted scopes.
type Rule struct {
	Match   string `toml:"match"`
	Point   string `toml:"point"`
	ABI     string `toml:"abi"`
	Pattern string `toml:"pattern"`
}

// Load reads and validates a session config file.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse decodes and validates a session config.
func Parse(r io.Reader) (*Config, error) {
	var cfg Config

	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if len(cfg.Channels) == 0 {
		return nil, fmt.Errorf("%w: config declares no channels", filter.ErrInvalid)
	}

	for i, ch := range cfg.Channels {
		if ch.Name == "" {
			return nil, fmt.Errorf("%w: channel %d has no name", filter.ErrInvalid, i)
		}

		if _, err := ch.Enablers(); err != nil {
			return nil, fmt.Errorf("channel %q: %w", ch.Name, err)
		}
	}

	return &cfg, nil
}

// Enablers translates the channel's rules into filter enablers.
func (c *Channel) Enablers() ([]filter.Enabler, error) {
	enablers := make([]filter.Enabler, 0, len(c.Rules))

	for i, r := range c.Rules {
		e, err := r.enabler()
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}

		enablers = append(enablers, e)
	}

	return enablers, nil
}

func (r *Rule) enabler() (filter.Enabler, error) {
	e := filter.Enabler{Pattern: r.Pattern}

	if r.Pattern == "" {
		return e, fmt.Errorf("%w: empty pattern", filter.ErrInvalid)
	}

	switch r.Match {
	case "", "exact":
		e.Kind = filter.MatchExact
	case "glob":
		e.Kind = filter.MatchGlob
	case "number":
		e.Kind = filter.MatchNumber
	default:
		return e, fmt.Errorf("%w: match kind %q", filter.ErrInvalid, r.Match)
	}

	switch r.Point {
	case "", "any":
		e.Point = filter.PointAny
	case "entry":
		e.Point = filter.PointEntry
	case "exit":
		e.Point = filter.PointExit
	default:
		return e, fmt.Errorf("%w: point scope %q", filter.ErrInvalid, r.Point)
	}

	switch r.ABI {
	case "", "any":
		e.ABI = filter.ABIAny
	case "native":
		e.ABI = filter.ABINative
	case "compat":
		e.ABI = filter.ABICompat
	default:
		return e, fmt.Errorf("%w: abi scope %q", filter.ErrInvalid, r.ABI)
	}

	return e, nil
}
