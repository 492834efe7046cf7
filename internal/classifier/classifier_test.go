package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/bones/internal/models"
)

func TestClassify_Examples(t *testing.T) {
	c := Default()

	tests := []struct {
		name string
		text string
		want models.Classification
	}{
		{"negative beats positive", "it is a no bones day", models.Negative},
		{"positive only", "Noodles has bones today", models.Positive},
		{"nothing matched", "good morning everyone", models.Indeterminate},
		{"empty", "", models.Indeterminate},
		{"skip alone", "Noodle is taking a day off", models.Skipped},
		{"skip beats negative", "no bones reading today, it is not a no bones day", models.Skipped},
		{"skip beats positive", "no reading today but yesterday was a bones day", models.Skipped},
		{"ended", "This is the final reading. Thank you all.", models.Ended},
		{"skip beats ended", "final reading? no reading today", models.Skipped},
		{"ended beats negative", "hanging up the bones after a no bones day", models.Ended},
		{"hyphenated negative", "Today is a NO-BONES kind of day", models.Negative},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.text))
		})
	}
}

func TestClassify_CaseInsensitive(t *testing.T) {
	c := Default()
	assert.Equal(t, c.Classify("bones day"), c.Classify("BONES DAY"))
	assert.Equal(t, models.Positive, c.Classify("BONES DAY"))
	assert.Equal(t, models.Negative, c.Classify("No Bones Day"))
}

func TestClassify_EveryKeyword(t *testing.T) {
	c := Default()
	for class, kws := range DefaultKeywords() {
		for _, kw := range kws {
			assert.Equal(t, class, c.Classify("prefix "+kw+" suffix"), "keyword %q", kw)
		}
	}
}

func TestClassify_SkipAlwaysWins(t *testing.T) {
	c := Default()
	kws := DefaultKeywords()
	for _, skip := range kws[models.Skipped] {
		for _, other := range append(kws[models.Negative], kws[models.Positive]...) {
			text := other + " and " + skip
			assert.Equal(t, models.Skipped, c.Classify(text), "text %q", text)
		}
	}
}

func TestClassify_NegativeBeatsPositive(t *testing.T) {
	c := Default()
	kws := DefaultKeywords()
	for _, neg := range kws[models.Negative] {
		for _, pos := range kws[models.Positive] {
			text := pos + " or " + neg
			assert.Equal(t, models.Negative, c.Classify(text), "text %q", text)
		}
	}
}

func TestNew_Overrides(t *testing.T) {
	c, err := New(map[models.Classification][]string{
		models.Positive: {"  WOOF  "},
	})
	require.NoError(t, err)

	assert.Equal(t, models.Positive, c.Classify("woof woof"))
	// Positive defaults were replaced.
	assert.Equal(t, models.Indeterminate, c.Classify("bones day"))
	// Negative defaults survive.
	assert.Equal(t, models.Negative, c.Classify("no bones"))
}

func TestNew_RejectsIndeterminateRule(t *testing.T) {
	_, err := New(map[models.Classification][]string{
		models.Indeterminate: {"meh"},
	})
	require.Error(t, err)
}

func TestNew_RejectsEmptyKeyword(t *testing.T) {
	_, err := New(map[models.Classification][]string{
		models.Negative: {"   "},
	})
	require.Error(t, err)
}

func TestRules_FixedOrder(t *testing.T) {
	rules := Default().Rules()
	require.Len(t, rules, len(Priority))
	for i, r := range rules {
		assert.Equal(t, Priority[i], r.Produces)
	}

	// Mutating the copy must not affect the classifier.
	rules[0].Keywords[0] = "mutated"
	assert.Equal(t, models.Skipped, Default().Classify("no reading"))
}
