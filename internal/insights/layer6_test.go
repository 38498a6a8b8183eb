package insights

import (
	"math"
	"testing"
)

func TestLearningScore(t *testing.T) {
	// Perfect alignment: L is the plain product.
	if got := learningScore(0.8, 0.5, 0.5, 0); math.Abs(got-0.2) > 1e-9 {
		t.Errorf("learningScore = %f, want 0.2", got)
	}

	// Full misalignment (|φ| = 1): cos(π/2) zeroes the product.
	if got := learningScore(1, 1, 1, 1); math.Abs(got) > 1e-9 {
		t.Errorf("misaligned score = %f, want 0", got)
	}
	if got := learningScore(1, 1, 1, -1); math.Abs(got) > 1e-9 {
		t.Errorf("negative misaligned score = %f, want 0", got)
	}

	// Bounded to [0, 1].
	if got := learningScore(1, 1, 1, 0); got != 1 {
		t.Errorf("max score = %f, want 1", got)
	}
	if got := learningScore(0, 0.5, 0.5, 0); got != 0 {
		t.Errorf("zero entropy score = %f, want 0", got)
	}
}

func TestDefaultLayerObjects(t *testing.T) {
	l2 := defaultLayer2()
	if sum := l2.SentimentPositive + l2.SentimentNegative + l2.SentimentNeutral; math.Abs(sum-1) > 1e-9 {
		t.Errorf("default sentiment triad sums to %f, want 1", sum)
	}
	if l2.NPSScore != 5 {
		t.Errorf("default NPS = %d, want 5", l2.NPSScore)
	}

	l6 := defaultLayer6()
	if l6.LearningState != "building" {
		t.Errorf("default learning state = %q", l6.LearningState)
	}

	l1 := defaultLayer1()
	if l1.MeetingType != "other" {
		t.Errorf("default meeting type = %q, want other", l1.MeetingType)
	}
}
