// Package models defines the domain types for the bones service.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/starford/bones/internal/apperr"
)

// Classification is the categorical reading of a day's post.
type Classification int

const (
	Indeterminate Classification = iota
	Positive
	Negative
	Skipped
	Ended
)

// Classifications lists every member of the enumeration in declaration order.
var Classifications = []Classification{Indeterminate, Positive, Negative, Skipped, Ended}

// Presentation is the static copy shown for a classification.
type Presentation struct {
	Label  string
	Detail string // empty when the label speaks for itself
}

var presentations = map[Classification]Presentation{
	Positive: {Label: "Bones Day"},
	Negative: {Label: "No Bones Day"},
	Skipped: {
		Label:  "No Reading",
		Detail: "Noodle is sitting this one out. There is no bones reading today.",
	},
	Indeterminate: {
		Label:  "Unknown",
		Detail: "Today's post could not be read as a bones day or a no bones day.",
	},
	Ended: {
		Label:  "Retired",
		Detail: "Noodle has hung up the bones. There will be no further readings.",
	},
}

// StalePresentation is shown once the stored reading belongs to a previous day.
var StalePresentation = Presentation{
	Label:  "Superposition",
	Detail: "Noodle has not been observed yet today. Until then it is both a bones day and a no bones day.",
}

var names = map[Classification]string{
	Indeterminate: "indeterminate",
	Positive:      "positive",
	Negative:      "negative",
	Skipped:       "skipped",
	Ended:         "ended",
}

// Valid reports whether c is a member of the enumeration.
func (c Classification) Valid() bool {
	_, ok := names[c]
	return ok
}

// String returns the stable machine name ("positive", "negative", ...).
func (c Classification) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("classification(%d)", int(c))
}

// Presentation returns the static label and detail for c.
// Unknown values fall back to the Indeterminate copy.
func (c Classification) Presentation() Presentation {
	if p, ok := presentations[c]; ok {
		return p
	}
	return presentations[Indeterminate]
}

// ParseClassification maps a machine name back to a Classification.
func ParseClassification(s string) (Classification, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for c, n := range names {
		if n == s {
			return c, nil
		}
	}
	return Indeterminate, fmt.Errorf("%w: %q", apperr.ErrInvalidClassification, s)
}

// MarshalText implements encoding.TextMarshaler.
func (c Classification) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d", apperr.ErrInvalidClassification, int(c))
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Classification) UnmarshalText(b []byte) error {
	v, err := ParseClassification(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Record is the single stored reading: a classification and when the source
// event that produced it happened.
type Record struct {
	Classification Classification `json:"classification"`
	ObservedAt     time.Time      `json:"observed_at"`
}

// SentinelRecord is the value the store holds before any write.
func SentinelRecord() Record {
	return Record{Classification: Indeterminate, ObservedAt: time.Unix(0, 0).UTC()}
}
