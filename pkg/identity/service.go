package identity

import (
	"context"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/studykeep/studykeep/pkg/errcodes"
	"github.com/studykeep/studykeep/pkg/prefstore"
	"github.com/uptrace/bun"
)

// Namespace is the preference namespace holding the signed-in account.
const Namespace = "account_identity"

const keyAccountUID = "account_uid"

// Provider reports the currently signed-in account. An empty uid means
// signed out; reconcilers treat that as a trivially successful no-op.
type Provider interface {
	CurrentUID(ctx context.Context) (string, error)
}

// Service validates sign-in tokens and persists the active account uid.
type Service struct {
	store  *prefstore.Store
	secret []byte
}

func NewService(db *bun.DB, jwtSecret string) *Service {
	return &Service{
		store:  prefstore.New(db, Namespace),
		secret: []byte(jwtSecret),
	}
}

// CurrentUID returns the signed-in account uid, or "" when signed out.
func (s *Service) CurrentUID(ctx context.Context) (string, error) {
	uid, err := s.store.String(ctx, keyAccountUID, "")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(uid), nil
}

// SignIn validates the token and records its subject as the active account.
// Tokens must be HS256-signed with the configured secret and carry a
// non-blank subject.
func (s *Service) SignIn(ctx context.Context, token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", errcodes.Unauthorized("Invalid sign-in token.")
	}

	subject, err := parsed.Claims.GetSubject()
	if err != nil {
		return "", errors.WithStack(err)
	}
	uid := strings.TrimSpace(subject)
	if uid == "" {
		return "", errcodes.Unauthorized("Sign-in token has no subject.")
	}

	err = s.store.Batch().PutString(keyAccountUID, uid).Commit(ctx)
	if err != nil {
		return "", err
	}
	return uid, nil
}

// SignOut clears the active account. Local ledgers are untouched; their
// state belongs to the device, not the account.
func (s *Service) SignOut(ctx context.Context) error {
	return s.store.Batch().Remove(keyAccountUID).Commit(ctx)
}
