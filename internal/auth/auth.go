// Package auth registers and authenticates users and issues bearer tokens.
// Tokens are stateless HS256 JWTs: verification is pure computation with no
// store lookup, and revocation is deliberately unsupported.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/agriprep/agriprep/internal/model"
)

// DefaultTokenTTL matches the platform's long-lived session policy.
const DefaultTokenTTL = 7 * 24 * time.Hour

// MinSecretLength is the minimum accepted secret length.
const MinSecretLength = 8

// Store is the credential persistence the service needs.
type Store interface {
	CreateUser(ctx context.Context, u model.UserAccount) error
	GetUser(ctx context.Context, identity string) (*model.UserAccount, error)
}

type Service struct {
	store     Store
	jwtSecret []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

// New creates an auth service. The JWT secret must be supplied by the
// environment; an empty secret is a configuration error, not a default.
func New(store Store, jwtSecret string, tokenTTL time.Duration) (*Service, error) {
	if jwtSecret == "" {
		return nil, errors.New("auth: JWT secret must not be empty")
	}
	if tokenTTL <= 0 {
		tokenTTL = DefaultTokenTTL
	}
	return &Service{
		store:     store,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		now:       time.Now,
	}, nil
}

// ValidateRegistration checks the explicit input rules: identity non-empty
// and free of whitespace, display name non-empty, secret at least
// MinSecretLength characters.
func ValidateRegistration(identity, displayName, secret string) error {
	if identity == "" || strings.ContainsAny(identity, " \t\n") {
		return fmt.Errorf("identity must be non-empty without spaces: %w", model.ErrInvalidInput)
	}
	if strings.TrimSpace(displayName) == "" {
		return fmt.Errorf("display name must not be empty: %w", model.ErrInvalidInput)
	}
	if len(secret) < MinSecretLength {
		return fmt.Errorf("secret must be at least %d characters: %w", MinSecretLength, model.ErrInvalidInput)
	}
	return nil
}

// Register creates a new account with a zeroed progress record and returns a
// fresh token for it. The plaintext secret is hashed with bcrypt and never
// stored or logged.
func (s *Service) Register(ctx context.Context, identity, displayName, secret string) (string, *model.UserAccount, error) {
	if err := ValidateRegistration(identity, displayName, secret); err != nil {
		return "", nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("hash secret: %w", err)
	}

	u := model.UserAccount{
		Identity:    identity,
		DisplayName: displayName,
		SecretHash:  string(hash),
		Progress:    model.NewProgressRecord(),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return "", nil, err
	}

	token, err := s.issueToken(identity)
	if err != nil {
		return "", nil, err
	}
	slog.Info("registered user", "identity", identity)
	return token, &u, nil
}

// Login authenticates an identity/secret pair and returns a fresh token.
// Unknown identity and wrong secret produce the same ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, identity, secret string) (string, *model.UserAccount, error) {
	u, err := s.store.GetUser(ctx, identity)
	if errors.Is(err, model.ErrNotFound) {
		return "", nil, model.ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.SecretHash), []byte(secret)); err != nil {
		return "", nil, model.ErrInvalidCredentials
	}

	token, err := s.issueToken(identity)
	if err != nil {
		return "", nil, err
	}
	return token, u, nil
}

// Verify checks a bearer token and returns the identity it binds to.
// It performs no I/O.
func (s *Service) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return "", model.ErrInvalidToken
	}
	return claims.Subject, nil
}

func (s *Service) issueToken(identity string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   identity,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
