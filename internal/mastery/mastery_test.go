package mastery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yujiapingyu/kokoro/internal/model"
)

func TestAdvance_Transitions(t *testing.T) {
	t.Parallel()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		mastery     model.Mastery
		reviewCount int
		correct     bool
		wantMastery model.Mastery
		wantCount   int
	}{
		{"new stays below threshold", model.MasteryNew, 0, true, model.MasteryNew, 1},
		{"new promotes at 2", model.MasteryNew, 1, true, model.MasteryLearning, 2},
		{"learning stays below threshold", model.MasteryLearning, 2, true, model.MasteryLearning, 3},
		{"learning promotes at 5", model.MasteryLearning, 4, true, model.MasteryReview, 5},
		{"review stays below threshold", model.MasteryReview, 7, true, model.MasteryReview, 8},
		{"review promotes at 10", model.MasteryReview, 9, true, model.MasteryMastered, 10},
		{"mastered stays mastered on correct", model.MasteryMastered, 11, true, model.MasteryMastered, 12},
		{"mastered demotes to review", model.MasteryMastered, 12, false, model.MasteryReview, 13},
		{"review demotes to learning", model.MasteryReview, 6, false, model.MasteryLearning, 7},
		{"learning has no demotion target", model.MasteryLearning, 2, false, model.MasteryLearning, 3},
		{"new unaffected by incorrect", model.MasteryNew, 0, false, model.MasteryNew, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Advance(tt.mastery, tt.reviewCount, tt.correct, now)
			require.Equal(t, tt.wantMastery, got.Mastery)
			require.Equal(t, tt.wantCount, got.ReviewCount)
			require.Equal(t, now, got.LastReviewedAt)
		})
	}
}

// A correct review at a threshold boundary must be deterministic, and the
// inverse outcome applied right after must not undo it (no demotion path
// from learning).
func TestAdvance_ThresholdThenIncorrect(t *testing.T) {
	t.Parallel()
	now := time.Now()

	first := Advance(model.MasteryNew, 1, true, now)
	require.Equal(t, model.MasteryLearning, first.Mastery)
	require.Equal(t, 2, first.ReviewCount)

	second := Advance(first.Mastery, first.ReviewCount, false, now)
	require.Equal(t, model.MasteryLearning, second.Mastery)
	require.Equal(t, 3, second.ReviewCount)
}

// Skipping a promotion is impossible: a single correct answer moves at most
// one level even when the count already satisfies a later threshold.
func TestAdvance_OneLevelPerReview(t *testing.T) {
	t.Parallel()
	got := Advance(model.MasteryNew, 11, true, time.Now())
	require.Equal(t, model.MasteryLearning, got.Mastery)
	require.Equal(t, 12, got.ReviewCount)
}
