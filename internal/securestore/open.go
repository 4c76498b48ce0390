package securestore

import (
	"context"
	"fmt"
	"io"

	"github.com/ebu/cpa-go/pkg/cpa"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Store is a SecureStore that can enumerate its keys and release its resources.
type Store interface {
	cpa.SecureStore
	io.Closer
	Keys(ctx context.Context) ([]string, error)
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*FileStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

// Options selects and configures a backend.
type Options struct {
	// Backend is one of BackendMemory, BackendFile or BackendSQLite.
	Backend string
	// Path is the directory (file) or database path (sqlite). Empty selects the default.
	Path string
	// KeyFile enables at-rest encryption with the key stored in this file.
	KeyFile string
	// OnChange, if set, is called after another process changed the file
	// backend's directory. Other backends never call it.
	OnChange func()
}

// Open creates the backend described by opts.
func Open(opts Options) (Store, error) {
	var sealer *Sealer
	if opts.KeyFile != "" && opts.Backend != BackendMemory {
		key, err := LoadOrCreateKey(opts.KeyFile)
		if err != nil {
			return nil, err
		}
		if sealer, err = NewSealer(key); err != nil {
			return nil, err
		}
	}

	switch opts.Backend {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendFile:
		store, err := NewFileStore(opts.Path, sealer)
		if err != nil {
			return nil, err
		}
		// Cached payloads must follow writes made by other processes.
		if err := store.Watch(context.Background(), opts.OnChange); err != nil {
			store.logger.Warn("Token directory is not watched, changes from other processes may be missed",
				"dir", store.Dir(),
				"error", err.Error(),
			)
		}
		return store, nil
	case BackendSQLite:
		return NewSQLiteStore(opts.Path, sealer)
	default:
		return nil, fmt.Errorf("unknown store backend %q", opts.Backend)
	}
}
