package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/oauth2"
)

// BearerToken is a swappable oauth2.TokenSource holding an app-only bearer
// token. It is safe for concurrent use.
type BearerToken struct {
	v atomic.Value // string

	mu      sync.Mutex
	changed chan struct{} // closed and replaced on every Set
}

var _ oauth2.TokenSource = (*BearerToken)(nil)

// NewBearerToken returns a holder initialised with tok.
func NewBearerToken(tok string) *BearerToken {
	b := &BearerToken{}
	b.Set(tok)
	return b
}

// Set replaces the token and wakes everyone waiting on Changed.
func (b *BearerToken) Set(tok string) {
	b.v.Store(strings.TrimSpace(tok))

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.changed != nil {
		close(b.changed)
	}
	b.changed = make(chan struct{})
}

// Changed returns a channel that is closed on the next Set.
func (b *BearerToken) Changed() <-chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.changed == nil {
		b.changed = make(chan struct{})
	}
	return b.changed
}

// Get returns the current token.
func (b *BearerToken) Get() string {
	s, _ := b.v.Load().(string)
	return s
}

// Token implements oauth2.TokenSource.
func (b *BearerToken) Token() (*oauth2.Token, error) {
	tok := b.Get()
	if tok == "" {
		return nil, errors.New("bearer token is empty")
	}
	return &oauth2.Token{AccessToken: tok, TokenType: "Bearer"}, nil
}

// NewBearerClient returns an HTTP client that authorises every request with
// the holder's current token. The source is consulted per request (no
// oauth2.ReuseTokenSource caching) so a reloaded token applies to the next
// reconnect.
func NewBearerClient(tok *BearerToken) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: tok,
			Base:   http.DefaultTransport,
		},
	}
}

// LoadBearerFile reads a token file and stores its trimmed contents.
func LoadBearerFile(path string, tok *BearerToken) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read bearer token file: %w", err)
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return fmt.Errorf("bearer token file %s is empty", path)
	}
	tok.Set(s)
	return nil
}

// WatchCredentials reloads tok whenever the file at path is written or
// replaced, until ctx is cancelled. The parent directory is watched rather
// than the file so that atomic rename-into-place updates are seen.
func WatchCredentials(ctx context.Context, path string, tok *BearerToken, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}

	logger.Info("credentials: watching", slog.String("path", abs))

	// Editors and secret mounts often emit a burst of events per update.
	var debounce *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			logger.Info("credentials: stopped")
			return nil

		case <-debounceCh:
			debounceCh = nil
			if err := LoadBearerFile(abs, tok); err != nil {
				logger.Warn("credentials: reload failed", slog.String("error", err.Error()))
				continue
			}
			logger.Info("credentials: bearer token reloaded")

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(100 * time.Millisecond)
			} else {
				debounce.Reset(100 * time.Millisecond)
			}
			debounceCh = debounce.C

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("credentials: watch error", slog.String("error", watchErr.Error()))
		}
	}
}
