// Package classifier turns the text of a post into a Classification.
//
// Rules are evaluated in a fixed priority chain and the first rule with a
// keyword contained in the lower-cased text wins. Skip beats everything,
// then Ended, then Negative, then Positive. Negative has to be checked before
// Positive because negative phrasing routinely contains a positive keyword
// ("no bones day" contains "bones day"). This is not a weighted vote: a post
// mentioning both a skip and a negative keyword is Skipped, full stop.
package classifier

import (
	"fmt"
	"strings"

	"github.com/starford/bones/internal/models"
)

// Priority is the fixed evaluation order, highest first.
var Priority = []models.Classification{
	models.Skipped,
	models.Ended,
	models.Negative,
	models.Positive,
}

// Rule maps a keyword set to the classification it produces.
type Rule struct {
	Keywords []string
	Produces models.Classification
}

// Fires reports whether any keyword is a substring of normalized.
func (r Rule) Fires(normalized string) bool {
	for _, kw := range r.Keywords {
		if strings.Contains(normalized, kw) {
			return true
		}
	}
	return false
}

// DefaultKeywords is the keyword table used when no override is configured.
func DefaultKeywords() map[models.Classification][]string {
	return map[models.Classification][]string{
		models.Skipped: {
			"no reading",
			"no bones reading",
			"not doing a reading",
			"day off",
		},
		models.Ended: {
			"final reading",
			"last bones reading",
			"hanging up the bones",
		},
		models.Negative: {
			"no bones",
			"no-bones",
			"doesn't have bones",
			"does not have bones",
			"didn't have bones",
			"did not have bones",
		},
		models.Positive: {
			"bones day",
			"has bones",
			"had bones",
		},
	}
}

// Classifier holds an immutable, priority-ordered rule list.
type Classifier struct {
	rules []Rule
}

// New builds a Classifier. Keyword sets in overrides replace the defaults for
// their classification; classifications missing from overrides keep the
// default set. The priority order is never taken from the caller.
func New(overrides map[models.Classification][]string) (*Classifier, error) {
	keywords := DefaultKeywords()
	for c, kws := range overrides {
		if !ruleClassification(c) {
			return nil, fmt.Errorf("classifier: %s cannot be produced by a rule", c)
		}
		keywords[c] = kws
	}

	rules := make([]Rule, 0, len(Priority))
	for _, c := range Priority {
		var normalized []string
		for _, kw := range keywords[c] {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				return nil, fmt.Errorf("classifier: empty keyword for %s", c)
			}
			normalized = append(normalized, kw)
		}
		rules = append(rules, Rule{Keywords: normalized, Produces: c})
	}
	return &Classifier{rules: rules}, nil
}

// Default returns a Classifier over DefaultKeywords.
func Default() *Classifier {
	c, err := New(nil)
	if err != nil {
		panic(err) // static table
	}
	return c
}

// Classify returns the classification of text. It never fails: when no rule
// fires the result is Indeterminate.
func (c *Classifier) Classify(text string) models.Classification {
	normalized := strings.ToLower(text)
	for _, r := range c.rules {
		if r.Fires(normalized) {
			return r.Produces
		}
	}
	return models.Indeterminate
}

// Rules returns a copy of the rule list in evaluation order.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	for i, r := range c.rules {
		out[i] = Rule{Keywords: append([]string(nil), r.Keywords...), Produces: r.Produces}
	}
	return out
}

func ruleClassification(c models.Classification) bool {
	for _, p := range Priority {
		if p == c {
			return true
		}
	}
	return false
}
