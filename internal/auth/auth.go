package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingAPIKey  = errors.New("missing authorization header")
	ErrInvalidAPIKey  = errors.New("invalid API key")
	ErrWritesDisabled = errors.New("no API key configured, catalog writes are disabled")
)

// keyPrefix marks catalog API keys.
const keyPrefix = "csk_"

// Caller identifies an authenticated writer. Only the key prefix is kept so
// the full key never reaches logs or audit rows.
type Caller struct {
	KeyPrefix string
}

// Authenticator validates the API key presented with a write request.
type Authenticator interface {
	Authenticate(apiKey string) (*Caller, error)
}

// HashAuthenticator accepts the single key whose bcrypt hash is configured.
// Verified keys are cached so bcrypt only runs once per TTL.
type HashAuthenticator struct {
	hash   []byte
	cache  *AuthCache
	logger *zap.Logger
}

// HashAuthConfig configures the HashAuthenticator.
type HashAuthConfig struct {
	APIKeyHash string        // bcrypt hash; empty disables writes
	CacheTTL   time.Duration // Default: 30s
	Logger     *zap.Logger
}

// NewHashAuthenticator creates an authenticator for the configured key hash.
func NewHashAuthenticator(cfg HashAuthConfig) *HashAuthenticator {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HashAuthenticator{
		hash:   []byte(cfg.APIKeyHash),
		cache:  NewAuthCache(ttl),
		logger: logger,
	}
}

// Authenticate checks apiKey against the configured hash.
func (a *HashAuthenticator) Authenticate(apiKey string) (*Caller, error) {
	if len(a.hash) == 0 {
		return nil, ErrWritesDisabled
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	if caller, ok := a.cache.Get(apiKey); ok {
		return caller, nil
	}

	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(apiKey)); err != nil {
		if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			// Malformed hash in config, not a bad key.
			a.logger.Error("configured API key hash is unusable", zap.Error(err))
		}
		return nil, ErrInvalidAPIKey
	}

	caller := &Caller{KeyPrefix: prefixOf(apiKey)}
	a.cache.Set(apiKey, caller)
	return caller, nil
}

// ExtractBearerToken returns the token from an "Authorization: Bearer <token>"
// header value. The scheme is matched case-insensitively (RFC 6750).
func ExtractBearerToken(header string) (string, bool) {
	const scheme = "bearer "
	if len(header) <= len(scheme) || !strings.EqualFold(header[:len(scheme)], scheme) {
		return "", false
	}
	token := strings.TrimSpace(header[len(scheme):])
	return token, token != ""
}

// GenerateAPIKey creates a new csk_ API key and its bcrypt hash.
// Returns (fullKey, hash, error). The fullKey is shown to the operator once.
func GenerateAPIKey() (string, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}
	fullKey := keyPrefix + hex.EncodeToString(raw)

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(fullKey), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("GenerateAPIKey: %w", err)
	}
	return fullKey, string(hashBytes), nil
}

func prefixOf(apiKey string) string {
	if len(apiKey) <= 8 {
		return apiKey[:len(apiKey)/2]
	}
	return apiKey[:8]
}
