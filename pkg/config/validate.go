package config

import "fmt"

// Validate checks the config for structural correctness.
func Validate(c *Config) []error {
	var errs []error

	if c.Version != 1 {
		errs = append(errs, fmt.Errorf("version must be 1, got %d", c.Version))
	}

	seen := make(map[string]bool, len(c.Sources))
	for i, src := range c.Sources {
		if src.ID == "" {
			errs = append(errs, fmt.Errorf("source %d: id is required", i))
			continue
		}
		if seen[src.ID] {
			errs = append(errs, fmt.Errorf("source %q: duplicate id", src.ID))
		}
		seen[src.ID] = true
		if src.PushURL == "" && src.SocketURL == "" {
			errs = append(errs, fmt.Errorf("source %q: push_url or socket_url is required", src.ID))
		}
	}

	if c.Metrics.Capacity < 0 {
		errs = append(errs, fmt.Errorf("metrics.capacity must be positive, got %d", c.Metrics.Capacity))
	}
	if c.Metrics.MaxPoints < 2 {
		errs = append(errs, fmt.Errorf("metrics.max_points must be at least 2, got %d", c.Metrics.MaxPoints))
	}

	return errs
}
