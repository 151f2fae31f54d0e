// Package progress folds completed exam results into a user's rolling
// statistics. It is the only writer of ProgressRecord fields and relies on
// the exam machine calling it at most once per session.
package progress

import (
	"context"
	"log/slog"
	"math"

	"github.com/agriprep/agriprep/internal/model"
)

const (
	// HoursPerExam is credited toward study time for every completed exam.
	HoursPerExam = 2
	// MasteryIncrement is added to the exam's subject, clamped at 100.
	MasteryIncrement = 20
)

// Store is the persistence the aggregator needs.
type Store interface {
	UpdateProgress(ctx context.Context, identity string, mutate func(*model.ProgressRecord) error) error
	GetUser(ctx context.Context, identity string) (*model.UserAccount, error)
}

type Aggregator struct {
	store Store
}

func New(store Store) *Aggregator {
	return &Aggregator{store: store}
}

// RecordExamResult folds one exam score into the user's record atomically:
// completed count, running-mean average (the new score weighted against the
// pre-increment count), study hours, and clamped subject mastery.
func (a *Aggregator) RecordExamResult(ctx context.Context, identity string, subject model.Subject, scorePercent int) (*model.ProgressRecord, error) {
	var updated model.ProgressRecord
	err := a.store.UpdateProgress(ctx, identity, func(p *model.ProgressRecord) error {
		prior := p.CompletedExams
		p.CompletedExams = prior + 1
		p.AverageScore = int(math.Round(
			(float64(p.AverageScore)*float64(prior) + float64(scorePercent)) / float64(prior+1)))
		p.StudyHours += HoursPerExam

		if p.SubjectMastery == nil {
			p.SubjectMastery = make(map[model.Subject]int)
		}
		mastery := p.SubjectMastery[subject] + MasteryIncrement
		if mastery > 100 {
			mastery = 100
		}
		p.SubjectMastery[subject] = mastery

		updated = *p
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("recorded exam result",
		"identity", identity, "subject", subject, "score", scorePercent,
		"completed", updated.CompletedExams, "average", updated.AverageScore)
	return &updated, nil
}
