package model

import (
	"context"
	"time"
)

// Subject identifies one of the licensure exam subject areas. The set is
// closed: adding a subject means adding it to Subjects and to the question
// bank, nothing else.
type Subject string

const (
	SubjectCropScience    Subject = "crop-science"
	SubjectSoilScience    Subject = "soil-science"
	SubjectCropProtection Subject = "crop-protection"
	SubjectAnimalScience  Subject = "animal-science"
	SubjectAgriEconomics  Subject = "agricultural-economics"
	SubjectAgriExtension  Subject = "agricultural-extension"
)

// Subjects lists every valid subject in catalog order.
var Subjects = []Subject{
	SubjectCropScience,
	SubjectSoilScience,
	SubjectCropProtection,
	SubjectAnimalScience,
	SubjectAgriEconomics,
	SubjectAgriExtension,
}

// ValidSubject reports whether s is a member of the closed subject set.
func ValidSubject(s Subject) bool {
	for _, known := range Subjects {
		if s == known {
			return true
		}
	}
	return false
}

// ProgressRecord holds a user's rolling exam statistics. AverageScore is the
// cumulative mean of all submitted scores rounded to the nearest integer;
// SubjectMastery values never decrease and never exceed 100.
type ProgressRecord struct {
	CompletedExams int             `json:"completedExams"`
	AverageScore   int             `json:"averageScore"`
	StudyHours     int             `json:"studyHours"`
	SubjectMastery map[Subject]int `json:"subjectMastery"`
}

// NewProgressRecord returns a zeroed record with every subject present.
func NewProgressRecord() ProgressRecord {
	mastery := make(map[Subject]int, len(Subjects))
	for _, s := range Subjects {
		mastery[s] = 0
	}
	return ProgressRecord{SubjectMastery: mastery}
}

// UserAccount is one registered user. Identity is the primary key and is
// immutable after creation; SecretHash and Progress are the only mutable
// fields.
type UserAccount struct {
	Identity    string         `json:"id"`
	DisplayName string         `json:"displayName"`
	SecretHash  string         `json:"-"`
	Progress    ProgressRecord `json:"progress"`
	CreatedAt   time.Time      `json:"createdAt"`
}

// OptionsPerQuestion is the fixed number of answer choices.
const OptionsPerQuestion = 4

// Question is a single multiple-choice exam question. Immutable once loaded
// from the question bank. CorrectOption is never serialized to clients.
type Question struct {
	ID            int64    `json:"id"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"-"`
}

// SessionState is the lifecycle state of an exam session.
type SessionState string

const (
	StateActive    SessionState = "active"
	StateSubmitted SessionState = "submitted"
	StateExpired   SessionState = "expired"
)

// Terminal reports whether the state admits no further transitions.
func (s SessionState) Terminal() bool {
	return s == StateSubmitted || s == StateExpired
}

// SubjectInfo describes a subject area for the review catalog.
type SubjectInfo struct {
	ID     Subject  `json:"id"`
	Name   string   `json:"name"`
	Desc   string   `json:"desc"`
	Topics []string `json:"topics"`
}

type identityCtxKey struct{}

// ContextWithIdentity stores the verified token identity in the request context.
func ContextWithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityCtxKey{}, identity)
}

// IdentityFromContext retrieves the verified identity, or "" if unauthenticated.
func IdentityFromContext(ctx context.Context) string {
	id, _ := ctx.Value(identityCtxKey{}).(string)
	return id
}
