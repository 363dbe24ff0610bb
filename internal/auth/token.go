package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/eddydoes42/FieldOpsPro-sub005/internal/storage"
	"github.com/eddydoes42/FieldOpsPro-sub005/pkg/models"
)

const tokenPrefix = "fop_"

// ErrInvalidToken is returned for unknown, expired, or revoked tokens.
var ErrInvalidToken = errors.New("invalid token")

// TokenStore is the minimal interface the Service needs from storage.
type TokenStore interface {
	GetAPIToken(ctx context.Context, tokenHash string) (*models.APIToken, error)
	GetPrincipal(ctx context.Context, id string) (*models.Principal, error)
}

// Service validates presented API tokens and resolves the authenticated
// principal. Token issuance lives outside this core: the store only ever
// sees SHA-256 hashes of plaintext tokens minted elsewhere.
type Service struct {
	store TokenStore
}

// NewService creates a Service backed by the given storage.
func NewService(store TokenStore) *Service {
	return &Service{store: store}
}

// Authenticate validates a plaintext bearer token and returns the principal
// it belongs to. Returns ErrInvalidToken for anything that should read as
// 401 to a caller; other errors indicate storage trouble.
func (s *Service) Authenticate(ctx context.Context, plaintext string) (*models.Principal, error) {
	if !strings.HasPrefix(plaintext, tokenPrefix) {
		return nil, ErrInvalidToken
	}
	token, err := s.store.GetAPIToken(ctx, HashToken(plaintext))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if token.IsRevoked() || token.IsExpired() {
		return nil, ErrInvalidToken
	}
	principal, err := s.store.GetPrincipal(ctx, token.PrincipalID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return principal, nil
}

// HashToken returns the SHA-256 hex hash of a plaintext token.
func HashToken(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}
