// Package queryview derives the externally visible answer from a stored
// Record. A record is only good for the calendar day on which it was observed
// in the reference zone: it expires at local midnight, not after 24 hours.
package queryview

import (
	"time"

	"github.com/starford/bones/internal/models"
)

// TimeLayout renders observed_at for humans.
const TimeLayout = "Monday, January 2 at 3:04 PM MST"

// Result is what readers see.
type Result struct {
	Classification  models.Classification `json:"classification"`
	Label           string                `json:"label"`
	Detail          string                `json:"detail,omitempty"`
	ObservedAtLocal string                `json:"observed_at_local,omitempty"`
	Stale           bool                  `json:"stale"`
}

// StaleResult is returned for every expired record, whatever it held.
func StaleResult() Result {
	return Result{
		Classification: models.Indeterminate,
		Label:          models.StalePresentation.Label,
		Detail:         models.StalePresentation.Detail,
		Stale:          true,
	}
}

// SameLocalDay reports whether a and b fall on the same calendar date in zone.
func SameLocalDay(a, b time.Time, zone *time.Location) bool {
	ay, am, ad := a.In(zone).Date()
	by, bm, bd := b.In(zone).Date()
	return ay == by && am == bm && ad == bd
}

// CurrentView computes the view of rec at now. Every classification, Ended
// included, is stale once the local date of now differs from the local date
// of rec.ObservedAt.
func CurrentView(rec models.Record, now time.Time, zone *time.Location) Result {
	if zone == nil {
		zone = time.UTC
	}
	if !SameLocalDay(rec.ObservedAt, now, zone) {
		return StaleResult()
	}
	p := rec.Classification.Presentation()
	return Result{
		Classification:  rec.Classification,
		Label:           p.Label,
		Detail:          p.Detail,
		ObservedAtLocal: rec.ObservedAt.In(zone).Format(TimeLayout),
	}
}
