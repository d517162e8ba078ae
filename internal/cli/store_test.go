package cli

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lorekeeper/segmenter/internal/config"
	"github.com/lorekeeper/segmenter/internal/storage"
)

func TestOpenStoreRequiresURL(t *testing.T) {
	t.Parallel()

	_, err := openStore(config.Config{}, "")
	if !errors.Is(err, ErrStoreURLMissing) {
		t.Fatalf("error = %v, want ErrStoreURLMissing", err)
	}
}

func TestOpenStoreHTTP(t *testing.T) {
	t.Parallel()

	store, err := openStore(config.Config{StoreURL: "https://store.test/api"}, "campaign-audio")
	if err != nil {
		t.Fatalf("openStore() error = %v", err)
	}
	if _, ok := store.(*storage.HTTPStore); !ok {
		t.Fatalf("store = %T, want *storage.HTTPStore", store)
	}
}

func TestOpenStoreFileURL(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := openStore(config.Config{StoreURL: "file://" + root}, "campaign-audio")
	if err != nil {
		t.Fatalf("openStore() error = %v", err)
	}

	dir, ok := store.(*storage.DirStore)
	if !ok {
		t.Fatalf("store = %T, want *storage.DirStore", store)
	}
	if want := filepath.Join(root, "campaign-audio"); dir.Root() != want {
		t.Errorf("root = %q, want bucket joined: %q", dir.Root(), want)
	}
}

func TestOpenStoreBarePath(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	store, err := openStore(config.Config{StoreURL: root}, "")
	if err != nil {
		t.Fatalf("openStore() error = %v", err)
	}

	dir, ok := store.(*storage.DirStore)
	if !ok {
		t.Fatalf("store = %T, want *storage.DirStore", store)
	}
	if dir.Root() != root {
		t.Errorf("root = %q, want %q", dir.Root(), root)
	}
}

func TestOpenStoreUnsupportedScheme(t *testing.T) {
	t.Parallel()

	_, err := openStore(config.Config{StoreURL: "s3://bucket/prefix"}, "")
	if err == nil || !strings.Contains(err.Error(), `unsupported scheme "s3"`) {
		t.Fatalf("error = %v, want an unsupported scheme failure", err)
	}
}

func TestOpenStoreEmptyFilePath(t *testing.T) {
	t.Parallel()

	_, err := openStore(config.Config{StoreURL: "file://"}, "")
	if err == nil {
		t.Fatal("openStore(file://) expected an error, got nil")
	}
}
