// Package mastery implements the spaced-repetition progression for favorites.
//
// The transition function is pure so the client-side store and the
// server-side favorites service compute identical results from the same
// inputs.
package mastery

import (
	"time"

	"github.com/yujiapingyu/kokoro/internal/model"
)

// Promotion thresholds are cumulative review counts, not consecutive-correct
// streaks: a wrong answer never resets the counter, it can only demote the
// level.
const (
	learningThreshold = 2
	reviewThreshold   = 5
	masteredThreshold = 10
)

// Result is the outcome of evaluating one review.
type Result struct {
	Mastery        model.Mastery
	ReviewCount    int
	LastReviewedAt time.Time
}

// Advance evaluates one review of a favorite currently at level m with the
// given cumulative review count. ReviewCount always increments by exactly 1.
//
// On a correct answer: new→learning at count>=2, learning→review at
// count>=5, review→mastered at count>=10. On an incorrect answer:
// mastered→review, review→learning; learning has no demotion target and
// new stays new.
func Advance(m model.Mastery, reviewCount int, correct bool, now time.Time) Result {
	count := reviewCount + 1
	next := m
	if correct {
		switch {
		case m == model.MasteryNew && count >= learningThreshold:
			next = model.MasteryLearning
		case m == model.MasteryLearning && count >= reviewThreshold:
			next = model.MasteryReview
		case m == model.MasteryReview && count >= masteredThreshold:
			next = model.MasteryMastered
		}
	} else {
		switch m {
		case model.MasteryMastered:
			next = model.MasteryReview
		case model.MasteryReview:
			next = model.MasteryLearning
		}
	}
	return Result{Mastery: next, ReviewCount: count, LastReviewedAt: now}
}
