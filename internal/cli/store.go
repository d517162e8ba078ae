package cli

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/lorekeeper/segmenter/internal/config"
	"github.com/lorekeeper/segmenter/internal/storage"
)

// openStore builds a Store for the configured URL, narrowed to bucket.
// http(s) URLs get an HTTPStore with the bucket joined onto the path;
// file URLs and bare paths get a DirStore rooted at path/bucket.
func openStore(cfg config.Config, bucket string) (storage.Store, error) {
	raw := cfg.StoreURL
	if raw == "" {
		return nil, fmt.Errorf("%w (set %s)", ErrStoreURLMissing, config.EnvStoreURL)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse store url %q: %w", raw, err)
	}

	switch u.Scheme {
	case "http", "https":
		base := raw
		if bucket != "" {
			base, err = url.JoinPath(raw, bucket)
			if err != nil {
				return nil, fmt.Errorf("join bucket onto store url: %w", err)
			}
		}
		return storage.NewHTTPStore(base, storage.WithRequestTimeout(cfg.HTTPTimeout))
	case "file":
		return openDirStore(u.Path, bucket)
	case "":
		return openDirStore(raw, bucket)
	default:
		return nil, fmt.Errorf("store url %q: unsupported scheme %q", raw, u.Scheme)
	}
}

func openDirStore(root, bucket string) (storage.Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("store url has an empty path")
	}
	if bucket != "" {
		root = filepath.Join(root, filepath.FromSlash(bucket))
	}
	return storage.NewDirStore(root)
}
