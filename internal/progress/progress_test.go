package progress

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/agriprep/agriprep/internal/model"
	"github.com/agriprep/agriprep/internal/store"
)

func newTestAggregator(t *testing.T, identity string) *Aggregator {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	err = s.CreateUser(context.Background(), model.UserAccount{
		Identity:    identity,
		DisplayName: "Test User",
		SecretHash:  "$2a$10$notarealhash",
		Progress:    model.NewProgressRecord(),
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return New(s)
}

func TestRecordExamResult(t *testing.T) {
	agg := newTestAggregator(t, "alice@x.com")
	ctx := context.Background()

	updated, err := agg.RecordExamResult(ctx, "alice@x.com", model.SubjectCropScience, 85)
	if err != nil {
		t.Fatalf("RecordExamResult: %v", err)
	}
	if updated.CompletedExams != 1 {
		t.Errorf("expected 1 completed exam, got %d", updated.CompletedExams)
	}
	if updated.AverageScore != 85 {
		t.Errorf("expected average 85, got %d", updated.AverageScore)
	}
	if updated.StudyHours != HoursPerExam {
		t.Errorf("expected %d study hours, got %d", HoursPerExam, updated.StudyHours)
	}
	if updated.SubjectMastery[model.SubjectCropScience] != MasteryIncrement {
		t.Errorf("expected mastery %d, got %d",
			MasteryIncrement, updated.SubjectMastery[model.SubjectCropScience])
	}
	if updated.SubjectMastery[model.SubjectSoilScience] != 0 {
		t.Errorf("other subjects must be untouched, got %d",
			updated.SubjectMastery[model.SubjectSoilScience])
	}
}

func TestRunningMeanSequential(t *testing.T) {
	agg := newTestAggregator(t, "bob@x.com")
	ctx := context.Background()

	// Two sequential exams scoring 80 and 60 average to 70.
	if _, err := agg.RecordExamResult(ctx, "bob@x.com", model.SubjectSoilScience, 80); err != nil {
		t.Fatalf("first exam: %v", err)
	}
	updated, err := agg.RecordExamResult(ctx, "bob@x.com", model.SubjectSoilScience, 60)
	if err != nil {
		t.Fatalf("second exam: %v", err)
	}
	if updated.AverageScore != 70 {
		t.Errorf("expected average 70, got %d", updated.AverageScore)
	}
	if updated.CompletedExams != 2 {
		t.Errorf("expected 2 completed exams, got %d", updated.CompletedExams)
	}
}

// The stored average follows round(mean(s1..sn)) within rounding drift of the
// incremental update for any score sequence.
func TestRunningMeanInduction(t *testing.T) {
	agg := newTestAggregator(t, "carol@x.com")
	ctx := context.Background()

	scores := []int{100, 0, 50, 75, 33, 67, 90, 10}
	sum := 0
	for n, score := range scores {
		updated, err := agg.RecordExamResult(ctx, "carol@x.com", model.SubjectAnimalScience, score)
		if err != nil {
			t.Fatalf("exam %d: %v", n+1, err)
		}
		sum += score
		exact := int(math.Round(float64(sum) / float64(n+1)))
		// The incremental rule re-rounds each step, so allow one point of drift.
		if diff := updated.AverageScore - exact; diff < -1 || diff > 1 {
			t.Errorf("after %d exams: average %d, exact mean %d", n+1, updated.AverageScore, exact)
		}
	}
}

func TestMasteryClampedAt100(t *testing.T) {
	agg := newTestAggregator(t, "dave@x.com")
	ctx := context.Background()

	var last *model.ProgressRecord
	for i := 0; i < 8; i++ {
		var err error
		last, err = agg.RecordExamResult(ctx, "dave@x.com", model.SubjectCropProtection, 90)
		if err != nil {
			t.Fatalf("exam %d: %v", i+1, err)
		}
		if m := last.SubjectMastery[model.SubjectCropProtection]; m > 100 {
			t.Fatalf("mastery exceeded 100: %d", m)
		}
	}
	if last.SubjectMastery[model.SubjectCropProtection] != 100 {
		t.Errorf("expected mastery pinned at 100, got %d",
			last.SubjectMastery[model.SubjectCropProtection])
	}
}

func TestRecordExamResultUnknownUser(t *testing.T) {
	agg := newTestAggregator(t, "erin@x.com")

	_, err := agg.RecordExamResult(context.Background(), "ghost@x.com", model.SubjectCropScience, 50)
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
