package vibeservice

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/bones/internal/apperr"
	"github.com/starford/bones/internal/classifier"
	"github.com/starford/bones/internal/models"
	"github.com/starford/bones/internal/queryview"
	"github.com/starford/bones/internal/vibestore"
)

func newTestService(t *testing.T, at time.Time) (*Service, *vibestore.Store, *clockwork.FakeClock, *[]queryview.Result) {
	t.Helper()
	zone, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	store := vibestore.New()
	clock := clockwork.NewFakeClockAt(at)
	var published []queryview.Result
	svc := NewService(store, classifier.Default(), zone,
		WithClock(clock),
		WithNotifier(func(v queryview.Result) { published = append(published, v) }))
	return svc, store, clock, &published
}

func TestGetCurrentView_SentinelIsStale(t *testing.T) {
	svc, _, _, _ := newTestService(t, time.Date(2022, 3, 14, 12, 0, 0, 0, time.UTC))
	view := svc.GetCurrentView(context.Background())
	assert.True(t, view.Stale)
	assert.Equal(t, "Superposition", view.Label)
}

func TestSetClassification(t *testing.T) {
	now := time.Date(2022, 3, 14, 12, 0, 0, 0, time.UTC)
	svc, store, _, published := newTestService(t, now)

	view, err := svc.SetClassification(context.Background(), models.Negative)
	require.NoError(t, err)
	assert.Equal(t, "No Bones Day", view.Label)
	assert.False(t, view.Stale)

	rec := store.Read()
	assert.Equal(t, models.Negative, rec.Classification)
	assert.True(t, rec.ObservedAt.Equal(now))

	require.Len(t, *published, 1)
	assert.Equal(t, view, (*published)[0])
}

func TestSetClassification_Invalid(t *testing.T) {
	svc, store, _, published := newTestService(t, time.Date(2022, 3, 14, 12, 0, 0, 0, time.UTC))
	_, err := svc.SetClassification(context.Background(), models.Classification(42))
	require.ErrorIs(t, err, apperr.ErrInvalidClassification)
	assert.Equal(t, models.SentinelRecord(), store.Read())
	assert.Empty(t, *published)
}

func TestSetClassification_CancelledContextSkipsWrite(t *testing.T) {
	svc, store, _, _ := newTestService(t, time.Date(2022, 3, 14, 12, 0, 0, 0, time.UTC))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.SetClassification(ctx, models.Positive)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.SentinelRecord(), store.Read())
}

func TestClassifyAndSet(t *testing.T) {
	now := time.Date(2022, 3, 14, 12, 0, 0, 0, time.UTC)
	svc, store, _, published := newTestService(t, now)

	res, err := svc.ClassifyAndSet(context.Background(), "it is a no bones day")
	require.NoError(t, err)
	assert.Equal(t, models.Negative, res.Classification)
	assert.Equal(t, "No Bones Day", res.Label)
	assert.Equal(t, models.Negative, store.Read().Classification)
	assert.Len(t, *published, 1)

	res, err = svc.ClassifyAndSet(context.Background(), "good morning everyone")
	require.NoError(t, err)
	assert.Equal(t, models.Indeterminate, res.Classification)
	assert.Equal(t, "Unknown", res.Label)
	assert.Equal(t, models.Indeterminate, store.Read().Classification)
}

func TestGetCurrentView_ExpiresAtMidnight(t *testing.T) {
	zone, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	svc, _, clock, _ := newTestService(t, time.Date(2022, 3, 14, 23, 59, 0, 0, zone))

	_, err = svc.SetClassification(context.Background(), models.Positive)
	require.NoError(t, err)
	assert.False(t, svc.GetCurrentView(context.Background()).Stale)

	clock.Advance(2 * time.Minute)
	assert.True(t, svc.GetCurrentView(context.Background()).Stale)
}

func TestRecordWritten_Publishes(t *testing.T) {
	now := time.Date(2022, 3, 14, 12, 0, 0, 0, time.UTC)
	svc, _, _, published := newTestService(t, now)

	svc.RecordWritten(models.Record{Classification: models.Skipped, ObservedAt: now.Add(-time.Hour)})
	require.Len(t, *published, 1)
	assert.Equal(t, "No Reading", (*published)[0].Label)
}
