package mirror

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/me/seqflow/pkg/model"
)

// Fetcher retrieves the content behind one locator scheme into destPath.
type Fetcher interface {
	Fetch(ctx context.Context, locator string, destPath string) error
}

// FetchError wraps a failed fetch. Transient fetches may be retried by the
// caller; permanent ones (bad locator, rejected request) may not.
type FetchError struct {
	Locator   string
	Transient bool
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Locator, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether the fetch may succeed on a later attempt.
func (e *FetchError) Retryable() bool { return e.Transient }

// IsTransient returns true if err is a retryable fetch failure.
func IsTransient(err error) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Transient
}

// Mirror ensures a locally-addressable copy exists for every remote file a
// submission references. Fetches are idempotent: a locator is fetched at
// most once, concurrent Ensure calls for the same locator serialize on a
// per-locator lock, and different locators proceed independently.
type Mirror struct {
	cacheDir string
	fetchers map[string]Fetcher
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Mirror caching into cacheDir. Fetchers are registered per
// locator scheme with RegisterFetcher.
func New(cacheDir string, logger *slog.Logger) *Mirror {
	return &Mirror{
		cacheDir: cacheDir,
		fetchers: make(map[string]Fetcher),
		logger:   logger.With("component", "mirror"),
		locks:    make(map[string]*sync.Mutex),
	}
}

// RegisterFetcher installs the fetcher for a locator scheme ("https", "s3", ...).
func (m *Mirror) RegisterFetcher(scheme string, f Fetcher) {
	m.fetchers[scheme] = f
}

// Ensure returns a local path holding the content of ref's locator. A ref
// whose recorded path is still present is a pure cache hit; otherwise the
// content is fetched and the path recorded on the ref.
func (m *Mirror) Ensure(ctx context.Context, ref *model.RemoteFileReference) (string, error) {
	if ref.LocalPath != "" {
		if _, err := os.Stat(ref.LocalPath); err == nil {
			return ref.LocalPath, nil
		}
		m.logger.Warn("recorded mirror path missing, re-fetching", "locator", ref.Locator, "path", ref.LocalPath)
	}

	lock := m.lockFor(ref.Locator)
	lock.Lock()
	defer lock.Unlock()

	dest := m.localPathFor(ref.Locator)

	// A concurrent Ensure for the same locator may have fetched while this
	// caller waited on the lock.
	if _, err := os.Stat(dest); err == nil {
		ref.LocalPath = dest
		m.logger.Debug("cache hit", "locator", ref.Locator, "path", dest)
		return dest, nil
	}

	scheme := locatorScheme(ref.Locator)
	fetcher, ok := m.fetchers[scheme]
	if !ok {
		return "", &FetchError{
			Locator: ref.Locator,
			Err:     fmt.Errorf("unsupported locator scheme %q", scheme),
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", &FetchError{Locator: ref.Locator, Transient: true, Err: err}
	}

	// Fetch to a temp name and rename so a crash mid-transfer never leaves
	// a truncated file that would satisfy a later cache check.
	part := dest + ".part"
	if err := fetcher.Fetch(ctx, ref.Locator, part); err != nil {
		os.Remove(part)
		return "", err
	}
	if err := os.Rename(part, dest); err != nil {
		os.Remove(part)
		return "", &FetchError{Locator: ref.Locator, Transient: true, Err: err}
	}

	ref.LocalPath = dest
	m.logger.Info("mirrored remote file", "locator", ref.Locator, "path", dest)
	return dest, nil
}

// lockFor returns the lock serializing fetches of one locator.
func (m *Mirror) lockFor(locator string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[locator]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[locator] = lock
	}
	return lock
}

// localPathFor derives a deterministic cache path from the locator so
// restarts and concurrent callers converge on the same file.
func (m *Mirror) localPathFor(locator string) string {
	sum := sha256.Sum256([]byte(locator))
	name := path.Base(strings.TrimRight(locator, "/"))
	if name == "" || name == "." || name == "/" {
		name = "content"
	}
	return filepath.Join(m.cacheDir, hex.EncodeToString(sum[:8])+"-"+name)
}

func locatorScheme(locator string) string {
	scheme, _, ok := strings.Cut(locator, "://")
	if !ok {
		return ""
	}
	return strings.ToLower(scheme)
}
