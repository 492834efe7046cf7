// Package testutil provides shared test helpers for wiring a service against
// an in-memory store and a fake clock.
package testutil

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/starford/bones/internal/classifier"
	"github.com/starford/bones/internal/vibeservice"
	"github.com/starford/bones/internal/vibestore"
)

// Zone loads an IANA zone or fails the test.
func Zone(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load zone %s: %v", name, err)
	}
	return loc
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestService creates a fresh store and a service reading it through a fake
// clock set to now. Extra options are applied after the clock.
func TestService(t *testing.T, now time.Time, zone *time.Location, opts ...vibeservice.Option) (*vibestore.Store, *vibeservice.Service, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(now)
	store := vibestore.New()
	opts = append([]vibeservice.Option{vibeservice.WithClock(clock)}, opts...)
	svc := vibeservice.NewService(store, classifier.Default(), zone, opts...)
	return store, svc, clock
}
