// Package vibestore holds the single current Record shared by the stream
// ingester and request handlers.
//
// The store is a plain value guarded by a sync.RWMutex. Readers take the
// shared lock and copy the record out; writers take the exclusive lock and
// replace both fields in one assignment, so a reader can never pair one
// write's classification with another write's timestamp. sync.RWMutex blocks
// new readers once a writer is waiting, which keeps writers from starving
// under read pressure.
package vibestore

import (
	"fmt"
	"sync"
	"time"

	"github.com/starford/bones/internal/apperr"
	"github.com/starford/bones/internal/models"
)

// Reader is the read side of the store.
type Reader interface {
	Read() models.Record
}

// Writer is the write side of the store.
type Writer interface {
	Write(c models.Classification, observedAt time.Time) error
}

// Store is the process-wide single-slot cache. The zero value is not usable;
// construct with New.
type Store struct {
	mu  sync.RWMutex
	rec models.Record
}

var (
	_ Reader = (*Store)(nil)
	_ Writer = (*Store)(nil)
)

// New returns a Store holding the sentinel Indeterminate/epoch record.
func New() *Store {
	return &Store{rec: models.SentinelRecord()}
}

// Read returns a copy of the current record.
func (s *Store) Read() models.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec
}

// Write replaces the current record. Last writer wins; observedAt is not
// compared against the stored value. An invalid classification is rejected
// and the stored record is left untouched. Nothing but the assignment runs
// under the lock, so a write cannot be interrupted half way.
func (s *Store) Write(c models.Classification, observedAt time.Time) error {
	if !c.Valid() {
		return fmt.Errorf("vibestore: write %d: %w", int(c), apperr.ErrInvalidClassification)
	}
	next := models.Record{Classification: c, ObservedAt: observedAt}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = next
	return nil
}
