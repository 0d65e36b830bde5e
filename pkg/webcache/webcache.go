// Package webcache stores static payloads of the remote application keyed by
// version, so a client can pin a known-good version instead of taking
// whatever the network serves.
package webcache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrVersionUnavailable is returned by strict caches when the requested
// version cannot be resolved.
var ErrVersionUnavailable = errors.New("requested web version not cached")

// Cache resolves and persists version payloads. Resolve returning an empty
// payload with a nil error means "not cached, use the network".
type Cache interface {
	Resolve(version string) (string, error)
	Persist(payload, version string) error
}

// Local is a directory-backed Cache storing one HTML file per version.
type Local struct {
	Path string
	// Strict makes Resolve fail instead of falling back to the network.
	Strict bool
}

func NewLocal(path string, strict bool) *Local {
	if path == "" {
		path = "./.wabridge_cache/"
	}
	return &Local{Path: path, Strict: strict}
}

func (c *Local) file(version string) string {
	// versions are dotted numerics; strip anything that is not
	sane := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' || r == '.' {
			return r
		}
		return -1
	}, version)
	return filepath.Join(c.Path, sane+".html")
}

func (c *Local) Resolve(version string) (string, error) {
	if version == "" {
		return "", nil
	}
	data, err := os.ReadFile(c.file(version))
	if err != nil {
		if c.Strict {
			return "", fmt.Errorf("%w: %s", ErrVersionUnavailable, version)
		}
		return "", nil
	}
	return string(data), nil
}

func (c *Local) Persist(payload, version string) error {
	if err := os.MkdirAll(c.Path, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.WriteFile(c.file(version), []byte(payload), 0644); err != nil {
		return fmt.Errorf("persist version %s: %w", version, err)
	}
	return nil
}

// Noop never resolves and never stores.
type Noop struct{}

func (Noop) Resolve(string) (string, error) { return "", nil }

func (Noop) Persist(string, string) error { return nil }

// FromType builds a cache from a config enum value.
func FromType(cacheType, path string) Cache {
	if cacheType == "local" {
		return NewLocal(path, false)
	}
	return Noop{}
}
