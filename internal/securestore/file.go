package securestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ebu/cpa-go/pkg/cpa"
	"github.com/ebu/cpa-go/pkg/logging"
)

// DefaultFileStoreDir is the default directory, relative to the home
// directory, for the file store.
const DefaultFileStoreDir = ".config/cpa/tokens"

const (
	fileExt = ".token"

	// watchDebounce delays change notifications until writes settle.
	watchDebounce = 500 * time.Millisecond
)

// FileStore is a SecureStore that writes one file per key.
//
// SECURITY: the directory is created with 0700 permissions and files with
// 0600. File names are derived from a hash of the key. Payloads are sealed
// when a Sealer is configured.
type FileStore struct {
	dir    string
	sealer *Sealer
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string][]byte // file id -> plaintext payload

	watchMu   sync.Mutex
	watcher   *fsnotify.Watcher
	watchDone chan struct{}
}

type fileRecord struct {
	Key     string `json:"key"`
	Sealed  bool   `json:"sealed"`
	Payload []byte `json:"payload"`
}

// NewFileStore creates a file store rooted at dir. A nil sealer stores
// payloads unencrypted.
func NewFileStore(dir string, sealer *Sealer) (*FileStore, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, DefaultFileStoreDir)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create token storage directory: %w", err)
	}

	return &FileStore{
		dir:    dir,
		sealer: sealer,
		logger: logging.Logger("SecureStore"),
		cache:  make(map[string][]byte),
	}, nil
}

// Dir returns the storage directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Load implements cpa.SecureStore.
func (s *FileStore) Load(_ context.Context, key string) ([]byte, error) {
	id := fileID(key)

	s.mu.RLock()
	if data, ok := s.cache[id]; ok {
		s.mu.RUnlock()
		return append([]byte(nil), data...), nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if data, ok := s.cache[id]; ok {
		return append([]byte(nil), data...), nil
	}

	record, err := s.readRecord(id)
	if err != nil {
		return nil, err
	}
	if record.Key != key {
		return nil, fmt.Errorf("token file %s belongs to key %q", id, record.Key)
	}
	data, err := s.unseal(record)
	if err != nil {
		return nil, err
	}

	s.cache[id] = data
	return append([]byte(nil), data...), nil
}

// Save implements cpa.SecureStore.
func (s *FileStore) Save(_ context.Context, key string, payload []byte) error {
	record := fileRecord{Key: key, Payload: payload}
	if s.sealer != nil {
		sealed, err := s.sealer.Seal(key, payload)
		if err != nil {
			return err
		}
		record.Sealed = true
		record.Payload = sealed
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal token file: %w", err)
	}

	id := fileID(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFileAtomic(s.dir, id+fileExt, data); err != nil {
		s.logger.Warn("SECURITY_AUDIT: token storage failed",
			"event", "token_store_failed",
			"key", key,
			"error", err.Error(),
		)
		return err
	}
	s.cache[id] = append([]byte(nil), payload...)

	s.logger.Info("SECURITY_AUDIT: token stored",
		"event", "token_stored",
		"key", key,
		"sealed", record.Sealed,
	)
	return nil
}

// Erase implements cpa.SecureStore.
func (s *FileStore) Erase(_ context.Context, key string) error {
	id := fileID(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cache, id)
	err := os.Remove(s.path(id))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove token file: %w", err)
	}
	if err == nil {
		s.logger.Info("SECURITY_AUDIT: token deleted",
			"event", "token_deleted",
			"key", key,
		)
	}
	return nil
}

// Keys returns the keys of every readable token file in the directory.
func (s *FileStore) Keys(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read token directory: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != fileExt {
			continue
		}
		record, err := s.readRecord(strings.TrimSuffix(entry.Name(), fileExt))
		if err != nil {
			continue
		}
		keys = append(keys, record.Key)
	}
	return keys, nil
}

// Watch invalidates cached payloads when token files change on disk, so
// tokens written or removed by another process are picked up. onChange,
// if not nil, is called once writes have settled. Watching stops when ctx
// is done or the store is closed.
func (s *FileStore) Watch(ctx context.Context, onChange func()) error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcher != nil {
		return errors.New("file store is already being watched")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", s.dir, err)
	}
	s.watcher = watcher

	changed := make(chan struct{}, 1)
	stopped := make(chan struct{})
	done := make(chan struct{})
	s.watchDone = done
	go func() {
		defer close(stopped)
		s.handleEvents(ctx, watcher, changed)
	}()
	go func() {
		defer close(done)
		scheduleNotify(stopped, changed, onChange)
	}()
	return nil
}

func (s *FileStore) handleEvents(ctx context.Context, watcher *fsnotify.Watcher, changed chan<- struct{}) {
	defer s.stopWatching(watcher)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			name := filepath.Base(event.Name)
			if filepath.Ext(name) != fileExt {
				continue
			}
			if !event.Has(fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename) {
				continue
			}

			s.mu.Lock()
			delete(s.cache, strings.TrimSuffix(name, fileExt))
			s.mu.Unlock()

			select {
			case changed <- struct{}{}:
			default:
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Warn("Token directory watcher error", "error", err.Error())
		}
	}
}

func (s *FileStore) stopWatching(watcher *fsnotify.Watcher) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	_ = watcher.Close()
	if s.watcher == watcher {
		s.watcher = nil
		s.watchDone = nil
	}
}

// scheduleNotify calls onChange once no change arrived for watchDebounce.
// It returns when stop is closed.
func scheduleNotify(stop <-chan struct{}, changed <-chan struct{}, onChange func()) {
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-stop:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-changed:
			if timer != nil {
				timer.Reset(watchDebounce)
			} else {
				timer = time.NewTimer(watchDebounce)
				fire = timer.C
			}
		case <-fire:
			timer, fire = nil, nil
			if onChange != nil {
				onChange()
			}
		}
	}
}

// Close stops watching the directory and waits for pending notifications
// to be dropped.
func (s *FileStore) Close() error {
	s.watchMu.Lock()
	watcher, done := s.watcher, s.watchDone
	s.watcher, s.watchDone = nil, nil
	s.watchMu.Unlock()
	if watcher == nil {
		return nil
	}
	err := watcher.Close()
	<-done
	return err
}

func (s *FileStore) readRecord(id string) (fileRecord, error) {
	// #nosec G304 -- the file name is derived from a hash, not user input
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileRecord{}, cpa.ErrNotFound
		}
		return fileRecord{}, fmt.Errorf("failed to read token file: %w", err)
	}

	var record fileRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return fileRecord{}, fmt.Errorf("failed to unmarshal token file: %w", err)
	}
	return record, nil
}

func (s *FileStore) unseal(record fileRecord) ([]byte, error) {
	if !record.Sealed {
		return record.Payload, nil
	}
	if s.sealer == nil {
		return nil, fmt.Errorf("token for %q is encrypted but no key is configured", record.Key)
	}
	return s.sealer.Open(record.Key, record.Payload)
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, id+fileExt)
}

// fileID derives a filesystem-safe identifier from a key.
func fileID(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:16])
}

// writeFileAtomic writes data to dir/name through a temporary file so
// readers never observe a partial write.
func writeFileAtomic(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to set token file permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	return nil
}
