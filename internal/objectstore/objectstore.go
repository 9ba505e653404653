// Package objectstore uploads generated diagram images and returns public
// URLs for them.
package objectstore

import (
	"context"
	"fmt"

	"github.com/hyperjump/kokuban/internal/config"
)

// Store uploads a named blob and returns its publicly reachable URL.
type Store interface {
	Upload(ctx context.Context, filename string, data []byte, contentType string) (string, error)
}

// Open constructs the Store named by cfg.Provider.
func Open(cfg config.ObjectStoreConfig) (Store, error) {
	switch cfg.Provider {
	case "", "disk":
		return NewDiskStore(cfg.Dir)
	case "supabase":
		return NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey, cfg.Bucket)
	default:
		return nil, fmt.Errorf("unknown object store provider: %s", cfg.Provider)
	}
}
