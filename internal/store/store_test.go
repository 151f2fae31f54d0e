package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agriprep/agriprep/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testAccount(identity string) model.UserAccount {
	return model.UserAccount{
		Identity:    identity,
		DisplayName: "Test User",
		SecretHash:  "$2a$10$notarealhash",
		Progress:    model.NewProgressRecord(),
		CreatedAt:   time.Now().UTC(),
	}
}

func TestCreateAndGetUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateUser(ctx, testAccount("alice@example.com")); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	u, err := s.GetUser(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.DisplayName != "Test User" {
		t.Errorf("expected display name 'Test User', got %q", u.DisplayName)
	}
	if u.Progress.CompletedExams != 0 {
		t.Errorf("expected zeroed progress, got %d completed exams", u.Progress.CompletedExams)
	}
	if len(u.Progress.SubjectMastery) != len(model.Subjects) {
		t.Errorf("expected mastery for all %d subjects, got %d",
			len(model.Subjects), len(u.Progress.SubjectMastery))
	}
	for subject, mastery := range u.Progress.SubjectMastery {
		if mastery != 0 {
			t.Errorf("expected zero mastery for %s, got %d", subject, mastery)
		}
	}
}

func TestCreateUserAlreadyExists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateUser(ctx, testAccount("bob@example.com")); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	err := s.CreateUser(ctx, testAccount("bob@example.com"))
	if !errors.Is(err, model.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestGetUserNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetUser(context.Background(), "ghost@example.com")
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateProgress(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateUser(ctx, testAccount("carol@example.com")); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	err := s.UpdateProgress(ctx, "carol@example.com", func(p *model.ProgressRecord) error {
		p.CompletedExams = 1
		p.AverageScore = 85
		p.StudyHours = 2
		p.SubjectMastery[model.SubjectCropScience] = 20
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}

	u, err := s.GetUser(ctx, "carol@example.com")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Progress.CompletedExams != 1 {
		t.Errorf("expected 1 completed exam, got %d", u.Progress.CompletedExams)
	}
	if u.Progress.AverageScore != 85 {
		t.Errorf("expected average 85, got %d", u.Progress.AverageScore)
	}
	if u.Progress.SubjectMastery[model.SubjectCropScience] != 20 {
		t.Errorf("expected crop-science mastery 20, got %d",
			u.Progress.SubjectMastery[model.SubjectCropScience])
	}
}

func TestUpdateProgressUnknownUser(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateProgress(context.Background(), "ghost@example.com", func(p *model.ProgressRecord) error {
		p.CompletedExams++
		return nil
	})
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateProgressMutatorError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateUser(ctx, testAccount("dave@example.com")); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	sentinel := errors.New("mutator refused")
	err := s.UpdateProgress(ctx, "dave@example.com", func(p *model.ProgressRecord) error {
		p.CompletedExams = 99
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected mutator error to propagate, got %v", err)
	}

	u, err := s.GetUser(ctx, "dave@example.com")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Progress.CompletedExams != 0 {
		t.Errorf("mutator error must roll back, got %d completed exams", u.Progress.CompletedExams)
	}
}

// Concurrent read-modify-write cycles for one user must not lose updates.
// Uses a file-backed database so every pooled connection sees the same data.
func TestUpdateProgressSerialized(t *testing.T) {
	s, err := New(t.TempDir() + "/agriprep.db")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	if err := s.CreateUser(ctx, testAccount("erin@example.com")); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.UpdateProgress(ctx, "erin@example.com", func(p *model.ProgressRecord) error {
				p.CompletedExams++
				return nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("UpdateProgress: %v", err)
		}
	}

	u, err := s.GetUser(ctx, "erin@example.com")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Progress.CompletedExams != workers {
		t.Errorf("expected %d completed exams, got %d", workers, u.Progress.CompletedExams)
	}
}

// Operations that cannot reach the database report the retryable sentinel
// instead of leaking driver errors, and the store stays usable afterwards.
func TestUnservableContextIsStoreUnavailable(t *testing.T) {
	s := newTestStore(t)

	if err := s.CreateUser(context.Background(), testAccount("gina@example.com")); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.GetUser(ctx, "gina@example.com"); !errors.Is(err, model.ErrStoreUnavailable) {
		t.Errorf("GetUser: expected ErrStoreUnavailable, got %v", err)
	}
	err := s.UpdateProgress(ctx, "gina@example.com", func(p *model.ProgressRecord) error {
		p.CompletedExams++
		return nil
	})
	if !errors.Is(err, model.ErrStoreUnavailable) {
		t.Errorf("UpdateProgress: expected ErrStoreUnavailable, got %v", err)
	}
	if err := s.Ping(ctx); !errors.Is(err, model.ErrStoreUnavailable) {
		t.Errorf("Ping: expected ErrStoreUnavailable, got %v", err)
	}

	u, err := s.GetUser(context.Background(), "gina@example.com")
	if err != nil {
		t.Fatalf("GetUser after failed ops: %v", err)
	}
	if u.Progress.CompletedExams != 0 {
		t.Errorf("failed update must not apply, got %d completed exams", u.Progress.CompletedExams)
	}
}

func TestProgressSurvivesReopen(t *testing.T) {
	path := t.TempDir() + "/agriprep.db"
	ctx := context.Background()

	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.CreateUser(ctx, testAccount("frank@example.com")); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := s.UpdateProgress(ctx, "frank@example.com", func(p *model.ProgressRecord) error {
		p.StudyHours = 4
		return nil
	}); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	u, err := reopened.GetUser(ctx, "frank@example.com")
	if err != nil {
		t.Fatalf("GetUser after reopen: %v", err)
	}
	if u.Progress.StudyHours != 4 {
		t.Errorf("expected 4 study hours after reopen, got %d", u.Progress.StudyHours)
	}
}
