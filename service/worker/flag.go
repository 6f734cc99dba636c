package worker

import (
	"fmt"
	"strings"

	"github.com/docker/go-units"
)

// ParseFlag parses the worker cache flag: off|false|no|0, on|true|yes|1 or
// on:<size> / true:<size>, where size is e.g. 512MB, 2GiB or 1048576.
// A zero maxBytes means no explicit limit.
func ParseFlag(flag string) (enabled bool, maxBytes int64, err error) {
	flag = strings.ToLower(strings.TrimSpace(flag))
	if flag == "" {
		return false, 0, nil
	}
	switch flag {
	case "off", "false", "no", "0":
		return false, 0, nil
	case "on", "true", "yes", "1":
		return true, 0, nil
	}
	head, size, ok := strings.Cut(flag, ":")
	if !ok || (head != "on" && head != "true") {
		return false, 0, fmt.Errorf("invalid cache flag: %q", flag)
	}
	if maxBytes, err = units.RAMInBytes(strings.TrimSpace(size)); err != nil {
		return false, 0, fmt.Errorf("invalid cache size %q: %w", size, err)
	}
	if maxBytes <= 0 {
		return false, 0, fmt.Errorf("invalid cache size %q", size)
	}
	return true, maxBytes, nil
}

// IsEnabled returns true if flag enables the cache
func IsEnabled(flag string) bool {
	enabled, _, err := ParseFlag(flag)
	return err == nil && enabled
}
