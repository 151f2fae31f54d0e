// Package store persists user accounts and their progress records in SQLite.
// It is the only owner of UserAccount data: identity is immutable after
// creation, and progress mutations go through UpdateProgress, which
// serializes concurrent updates for the same user.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/agriprep/agriprep/internal/model"

	_ "modernc.org/sqlite"
)

// DefaultOpTimeout bounds every store operation. An operation that cannot
// complete within it fails with model.ErrStoreUnavailable.
const DefaultOpTimeout = 5 * time.Second

type Store struct {
	db        *sql.DB
	opTimeout time.Duration

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{
		db:        db,
		opTimeout: DefaultOpTimeout,
		userLocks: make(map[string]*sync.Mutex),
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return infraErr("ping", err)
	}
	return nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		identity TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		secret_hash TEXT NOT NULL,
		completed_exams INTEGER NOT NULL DEFAULT 0,
		average_score INTEGER NOT NULL DEFAULT 0,
		study_hours INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS subject_mastery (
		identity TEXT NOT NULL,
		subject TEXT NOT NULL,
		mastery INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (identity, subject),
		FOREIGN KEY (identity) REFERENCES users(identity)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// userLock returns the mutex serializing read-modify-write cycles for one user.
func (s *Store) userLock(identity string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.userLocks[identity]
	if !ok {
		l = &sync.Mutex{}
		s.userLocks[identity] = l
	}
	return l
}

// CreateUser inserts a new account with its mastery rows. Fails with
// model.ErrAlreadyExists if the identity is taken.
func (s *Store) CreateUser(ctx context.Context, u model.UserAccount) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return infraErr("begin", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE identity = ?`, u.Identity).Scan(&exists)
	if err != nil {
		return infraErr("check identity", err)
	}
	if exists > 0 {
		return fmt.Errorf("identity %q: %w", u.Identity, model.ErrAlreadyExists)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (identity, display_name, secret_hash, completed_exams, average_score, study_hours, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.Identity, u.DisplayName, u.SecretHash,
		u.Progress.CompletedExams, u.Progress.AverageScore, u.Progress.StudyHours, u.CreatedAt,
	)
	if err != nil {
		return infraErr("insert user", err)
	}

	for _, subject := range model.Subjects {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO subject_mastery (identity, subject, mastery) VALUES (?, ?, ?)`,
			u.Identity, subject, u.Progress.SubjectMastery[subject],
		)
		if err != nil {
			return infraErr("insert mastery", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return infraErr("commit", err)
	}
	return nil
}

// GetUser returns the account for an identity, or model.ErrNotFound.
func (s *Store) GetUser(ctx context.Context, identity string) (*model.UserAccount, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return s.getUser(ctx, s.db, identity)
}

// querier covers *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *Store) getUser(ctx context.Context, q querier, identity string) (*model.UserAccount, error) {
	var u model.UserAccount
	err := q.QueryRowContext(ctx,
		`SELECT identity, display_name, secret_hash, completed_exams, average_score, study_hours, created_at
		 FROM users WHERE identity = ?`, identity,
	).Scan(&u.Identity, &u.DisplayName, &u.SecretHash,
		&u.Progress.CompletedExams, &u.Progress.AverageScore, &u.Progress.StudyHours, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %q: %w", identity, model.ErrNotFound)
	}
	if err != nil {
		return nil, infraErr("query user", err)
	}

	u.Progress.SubjectMastery = make(map[model.Subject]int, len(model.Subjects))
	rows, err := q.QueryContext(ctx,
		`SELECT subject, mastery FROM subject_mastery WHERE identity = ?`, identity)
	if err != nil {
		return nil, infraErr("query mastery", err)
	}
	defer rows.Close()
	for rows.Next() {
		var subject model.Subject
		var mastery int
		if err := rows.Scan(&subject, &mastery); err != nil {
			return nil, infraErr("scan mastery", err)
		}
		u.Progress.SubjectMastery[subject] = mastery
	}
	if err := rows.Err(); err != nil {
		return nil, infraErr("iterate mastery", err)
	}
	return &u, nil
}

// UpdateProgress applies an atomic read-modify-write of one user's progress.
// The mutator sees the current record and edits it in place; nothing else in
// the account can be changed through this path. Updates for the same user
// never interleave.
func (s *Store) UpdateProgress(ctx context.Context, identity string, mutate func(*model.ProgressRecord) error) error {
	lock := s.userLock(identity)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return infraErr("begin", err)
	}
	defer tx.Rollback()

	u, err := s.getUser(ctx, tx, identity)
	if err != nil {
		return err
	}

	if err := mutate(&u.Progress); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE users SET completed_exams = ?, average_score = ?, study_hours = ? WHERE identity = ?`,
		u.Progress.CompletedExams, u.Progress.AverageScore, u.Progress.StudyHours, identity,
	)
	if err != nil {
		return infraErr("update user", err)
	}

	for subject, mastery := range u.Progress.SubjectMastery {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO subject_mastery (identity, subject, mastery) VALUES (?, ?, ?)
			 ON CONFLICT(identity, subject) DO UPDATE SET mastery = excluded.mastery`,
			identity, subject, mastery,
		)
		if err != nil {
			return infraErr("update mastery", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return infraErr("commit", err)
	}
	return nil
}

// UserCount returns the total number of registered users.
func (s *Store) UserCount(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, infraErr("count users", err)
	}
	return count, nil
}

// infraErr tags an infrastructure failure as retryable while keeping the
// underlying detail in the message.
func infraErr(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, model.ErrStoreUnavailable)
}
