// Package exam drives timed mock-exam attempts. Each session is an
// independent state machine (Active, then Submitted or Expired) owned by the
// in-memory registry for its lifetime. The deadline is evaluated lazily on
// every operation: expiry is a forced submission with whatever answers were
// captured, never a discard.
package exam

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/agriprep/agriprep/internal/model"
)

// DefaultDuration is the exam time limit.
const DefaultDuration = 2 * time.Hour

// Aggregator folds a finished exam into the user's progress record.
type Aggregator interface {
	RecordExamResult(ctx context.Context, identity string, subject model.Subject, scorePercent int) (*model.ProgressRecord, error)
}

// QuestionSource supplies the fixed question sequence for a subject.
type QuestionSource interface {
	Questions(subject model.Subject) ([]model.Question, error)
}

// Machine manages all live exam sessions.
type Machine struct {
	bank     QuestionSource
	agg      Aggregator
	duration time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session
}

type session struct {
	mu           sync.Mutex
	id           string
	userID       string
	subject      model.Subject
	questions    []model.Question
	currentIndex int
	answers      map[int]int
	deadline     time.Time
	state        model.SessionState
	score        int // valid once terminal
	progress     *model.ProgressRecord
}

// View is a client-safe snapshot of a session. Correct answers are never
// included: Question marshals without its correct option.
type View struct {
	SessionID    string                `json:"sessionId"`
	Subject      model.Subject         `json:"subject"`
	State        model.SessionState    `json:"state"`
	CurrentIndex int                   `json:"currentIndex"`
	Answers      map[int]int           `json:"answers"`
	Deadline     time.Time             `json:"deadline"`
	RemainingSec int                   `json:"remainingSeconds"`
	Questions    []model.Question      `json:"questions"`
	ScorePercent *int                  `json:"scorePercent,omitempty"`
	Progress     *model.ProgressRecord `json:"updatedProgress,omitempty"`
}

func New(bank QuestionSource, agg Aggregator, duration time.Duration) *Machine {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Machine{
		bank:     bank,
		agg:      agg,
		duration: duration,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

// Start opens a new session for the user in the given subject. A prior
// active session for the same pair is left untouched; attempts are
// independent and each feeds the aggregator at most once.
func (m *Machine) Start(ctx context.Context, userID string, subject model.Subject) (*View, error) {
	if !model.ValidSubject(subject) {
		return nil, fmt.Errorf("subject %q: %w", subject, model.ErrNotFound)
	}
	questions, err := m.bank.Questions(subject)
	if err != nil {
		return nil, err
	}

	id, err := newSessionID()
	if err != nil {
		return nil, err
	}
	sess := &session{
		id:        id,
		userID:    userID,
		subject:   subject,
		questions: questions,
		answers:   make(map[int]int),
		deadline:  m.now().Add(m.duration),
		state:     model.StateActive,
	}

	m.mu.Lock()
	m.sessions[id] = sess
	m.mu.Unlock()

	slog.Info("started exam session",
		"session", id, "user", userID, "subject", subject,
		"questions", len(questions), "deadline", sess.deadline)
	return m.snapshot(sess), nil
}

// GoTo moves the cursor to index. Out-of-range navigation is silently
// ignored, matching the UI-safe contract.
func (m *Machine) GoTo(ctx context.Context, sessionID, userID string, index int) error {
	return m.withActive(ctx, sessionID, userID, func(s *session) error {
		if index >= 0 && index < len(s.questions) {
			s.currentIndex = index
		}
		return nil
	})
}

// Next advances the cursor by one within bounds.
func (m *Machine) Next(ctx context.Context, sessionID, userID string) error {
	return m.withActive(ctx, sessionID, userID, func(s *session) error {
		if s.currentIndex < len(s.questions)-1 {
			s.currentIndex++
		}
		return nil
	})
}

// Previous moves the cursor back by one within bounds.
func (m *Machine) Previous(ctx context.Context, sessionID, userID string) error {
	return m.withActive(ctx, sessionID, userID, func(s *session) error {
		if s.currentIndex > 0 {
			s.currentIndex--
		}
		return nil
	})
}

// SelectAnswer records the chosen option for a question, overwriting any
// prior choice. Any question may be answered regardless of cursor position.
func (m *Machine) SelectAnswer(ctx context.Context, sessionID, userID string, questionIndex, optionIndex int) error {
	return m.withActive(ctx, sessionID, userID, func(s *session) error {
		if questionIndex < 0 || questionIndex >= len(s.questions) {
			return fmt.Errorf("question index %d out of range: %w", questionIndex, model.ErrInvalidInput)
		}
		if optionIndex < 0 || optionIndex >= model.OptionsPerQuestion {
			return fmt.Errorf("option index %d out of range: %w", optionIndex, model.ErrInvalidInput)
		}
		s.answers[questionIndex] = optionIndex
		return nil
	})
}

// Submit finishes the session, scores it, and folds the result into the
// user's progress. A second submit, or a submit after expiry, fails with
// ErrAlreadyTerminal.
func (m *Machine) Submit(ctx context.Context, sessionID, userID string) (int, *model.ProgressRecord, error) {
	sess, err := m.lookup(sessionID, userID)
	if err != nil {
		return 0, nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := m.expireLocked(ctx, sess); err != nil {
		return 0, nil, err
	}
	if sess.state.Terminal() {
		return 0, nil, model.ErrAlreadyTerminal
	}
	if err := m.finalizeLocked(ctx, sess, model.StateSubmitted); err != nil {
		return 0, nil, err
	}
	return sess.score, sess.progress, nil
}

// Get returns a snapshot of the session, running lazy expiry first. Reads
// are allowed on terminal sessions.
func (m *Machine) Get(ctx context.Context, sessionID, userID string) (*View, error) {
	sess, err := m.lookup(sessionID, userID)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if err := m.expireLocked(ctx, sess); err != nil {
		return nil, err
	}
	return m.snapshotLocked(sess), nil
}

// Sweep finalizes every expired session still marked active and drops
// terminal sessions past their retention. It is optional hardening: scoring
// is already correct without it through lazy evaluation.
func (m *Machine) Sweep(ctx context.Context, retention time.Duration) {
	m.mu.RLock()
	candidates := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		candidates = append(candidates, s)
	}
	m.mu.RUnlock()

	now := m.now()
	var drop []string
	for _, sess := range candidates {
		sess.mu.Lock()
		if err := m.expireLocked(ctx, sess); err != nil {
			slog.Warn("sweep could not finalize expired session", "session", sess.id, "error", err)
		}
		if sess.state.Terminal() && now.Sub(sess.deadline) > retention {
			drop = append(drop, sess.id)
		}
		sess.mu.Unlock()
	}

	if len(drop) > 0 {
		m.mu.Lock()
		for _, id := range drop {
			delete(m.sessions, id)
		}
		m.mu.Unlock()
		slog.Info("swept finished exam sessions", "count", len(drop))
	}
}

func (m *Machine) lookup(sessionID, userID string) (*session, error) {
	m.mu.RLock()
	sess, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %q: %w", sessionID, model.ErrNotFound)
	}
	if sess.userID != userID {
		return nil, model.ErrForbidden
	}
	return sess, nil
}

// withActive runs fn on an active session under its lock, applying lazy
// expiry first.
func (m *Machine) withActive(ctx context.Context, sessionID, userID string, fn func(*session) error) error {
	sess, err := m.lookup(sessionID, userID)
	if err != nil {
		return err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := m.expireLocked(ctx, sess); err != nil {
		return err
	}
	if sess.state.Terminal() {
		return model.ErrAlreadyTerminal
	}
	return fn(sess)
}

// expireLocked transitions an active session past its deadline to Expired,
// scoring and aggregating exactly as an explicit submit would.
func (m *Machine) expireLocked(ctx context.Context, sess *session) error {
	if sess.state != model.StateActive || m.now().Before(sess.deadline) {
		return nil
	}
	return m.finalizeLocked(ctx, sess, model.StateExpired)
}

// finalizeLocked scores the session and persists the result before flipping
// the state. If persistence fails the session stays Active so the submission
// can be retried; the state changes only after the progress record is safely
// updated, which keeps aggregation at most-once.
func (m *Machine) finalizeLocked(ctx context.Context, sess *session, terminal model.SessionState) error {
	score := scorePercent(sess.questions, sess.answers)

	updated, err := m.agg.RecordExamResult(ctx, sess.userID, sess.subject, score)
	if err != nil {
		return err
	}

	sess.score = score
	sess.progress = updated
	sess.state = terminal
	slog.Info("exam session finished",
		"session", sess.id, "user", sess.userID, "subject", sess.subject,
		"state", terminal, "score", score)
	return nil
}

// scorePercent counts exact matches against the correct options; unanswered
// questions count as incorrect. An all-blank sheet scores 0, not an error.
func scorePercent(questions []model.Question, answers map[int]int) int {
	if len(questions) == 0 {
		return 0
	}
	correct := 0
	for i, q := range questions {
		if chosen, ok := answers[i]; ok && chosen == q.CorrectOption {
			correct++
		}
	}
	return int(math.Round(100 * float64(correct) / float64(len(questions))))
}

func (m *Machine) snapshot(sess *session) *View {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return m.snapshotLocked(sess)
}

func (m *Machine) snapshotLocked(sess *session) *View {
	answers := make(map[int]int, len(sess.answers))
	for k, v := range sess.answers {
		answers[k] = v
	}
	remaining := int(sess.deadline.Sub(m.now()).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	v := &View{
		SessionID:    sess.id,
		Subject:      sess.subject,
		State:        sess.state,
		CurrentIndex: sess.currentIndex,
		Answers:      answers,
		Deadline:     sess.deadline,
		RemainingSec: remaining,
		Questions:    sess.questions,
	}
	if sess.state.Terminal() {
		score := sess.score
		v.ScorePercent = &score
		v.Progress = sess.progress
	}
	return v
}

func newSessionID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(b), nil
}
