// Package bank provides the read-only question bank. Questions are loaded
// once at startup from per-subject JSON files; subjects without a file get a
// synthesized placeholder set so every subject is always examinable.
package bank

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/agriprep/agriprep/internal/model"
)

// DefaultExamLength is the number of questions served per exam.
const DefaultExamLength = 100

// questionImport is the on-disk question shape.
type questionImport struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
	Correct int      `json:"correct"`
}

// Bank is an immutable by-subject question lookup.
type Bank struct {
	examLength int
	questions  map[model.Subject][]model.Question
}

// Load builds a bank from dir, reading <subject>.json for each known subject.
// A missing file is not an error: the subject falls back to synthesized
// questions. A present but malformed file is an error.
func Load(dir string, examLength int) (*Bank, error) {
	if examLength <= 0 {
		examLength = DefaultExamLength
	}
	b := &Bank{
		examLength: examLength,
		questions:  make(map[model.Subject][]model.Question, len(model.Subjects)),
	}

	for _, subject := range model.Subjects {
		path := filepath.Join(dir, string(subject)+".json")
		data, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			b.questions[subject] = synthesize(subject, examLength)
			slog.Info("no question file, using synthesized set", "subject", subject, "count", examLength)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var imports []questionImport
		if err := json.Unmarshal(data, &imports); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		qs := make([]model.Question, 0, len(imports))
		for i, qi := range imports {
			if qi.Prompt == "" {
				return nil, fmt.Errorf("%s: question %d has no prompt", path, i)
			}
			if len(qi.Options) != model.OptionsPerQuestion {
				return nil, fmt.Errorf("%s: question %d has %d options, want %d",
					path, i, len(qi.Options), model.OptionsPerQuestion)
			}
			if qi.Correct < 0 || qi.Correct >= model.OptionsPerQuestion {
				return nil, fmt.Errorf("%s: question %d has correct index %d out of range",
					path, i, qi.Correct)
			}
			qs = append(qs, model.Question{
				ID:            int64(i + 1),
				Prompt:        qi.Prompt,
				Options:       qi.Options,
				CorrectOption: qi.Correct,
			})
		}
		if len(qs) == 0 {
			return nil, fmt.Errorf("%s: no questions", path)
		}
		b.questions[subject] = qs
		slog.Info("loaded questions", "subject", subject, "count", len(qs))
	}

	return b, nil
}

// Questions returns the fixed-length question sequence for a subject.
// Subjects with more questions than the exam length are truncated.
func (b *Bank) Questions(subject model.Subject) ([]model.Question, error) {
	qs, ok := b.questions[subject]
	if !ok {
		return nil, fmt.Errorf("subject %q: %w", subject, model.ErrNotFound)
	}
	if len(qs) > b.examLength {
		qs = qs[:b.examLength]
	}
	return qs, nil
}

// synthesize generates a placeholder question set for subjects without a
// bank file, mirroring the mock sets the platform launched with.
func synthesize(subject model.Subject, n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			ID:     int64(i + 1),
			Prompt: fmt.Sprintf("%s practice question %d", subjectName(subject), i+1),
			Options: []string{
				"Option A",
				"Option B",
				"Option C",
				"Option D",
			},
			CorrectOption: i % model.OptionsPerQuestion,
		}
	}
	return qs
}
