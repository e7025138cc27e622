// Package identity provides the registry's own session: a service account
// that mints short-lived JWT access tokens for calls to the cryptography
// provider, and validates bearer tokens presented by API callers.
package identity

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"
	"golang.org/x/sync/singleflight"

	"credreg/internal/platform/logger"
	"credreg/internal/providers"
	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
)

const (
	tokenIssuer = "credreg"
	// Sessions this close to expiry are treated as expired so a token never
	// lapses mid-call.
	refreshMargin = 30 * time.Second
)

// Claims are the access token claims. Subject carries the DID.
type Claims struct {
	SmartAccount string `json:"smart_account,omitempty"`
	jwt.RegisteredClaims
}

// ServiceAccount implements providers.SessionProvider for the registry.
type ServiceAccount struct {
	signingKey []byte
	serviceDID id.DID
	ttl        time.Duration
	now        func() time.Time
	logger     *slog.Logger

	mu      sync.RWMutex
	session *providers.Session
	logins  singleflight.Group
}

type Option func(*ServiceAccount)

func WithLogger(logger *slog.Logger) Option {
	return func(s *ServiceAccount) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *ServiceAccount) {
		s.now = now
	}
}

// New builds a service account. The signing key and service DID are checked
// here so a misconfigured account never reaches a request path.
func New(signingKey string, serviceDID string, ttl time.Duration, opts ...Option) (*ServiceAccount, error) {
	if signingKey == "" {
		return nil, errors.New("identity: signing key is required")
	}
	did, err := id.ParseDID(serviceDID)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		return nil, errors.New("identity: token ttl must be positive")
	}
	s := &ServiceAccount{
		signingKey: []byte(signingKey),
		serviceDID: did,
		ttl:        ttl,
		now:        time.Now,
		logger:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Login mints a fresh session for the service DID. Concurrent logins share
// one mint.
func (s *ServiceAccount) Login(ctx context.Context) (*providers.Session, error) {
	v, err, _ := s.logins.Do("login", func() (any, error) {
		session, err := s.Mint(s.serviceDID, s.ttl)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.session = session
		s.mu.Unlock()
		s.logger.InfoContext(ctx, "service account logged in",
			"did", session.DID,
			"expires_at", session.ExpiresAt,
		)
		return session, nil
	})
	if err != nil {
		return nil, err
	}
	session := *v.(*providers.Session)
	return &session, nil
}

// Session returns the cached session, or providers.ErrNotAuthenticated when
// there is none or it is about to expire.
func (s *ServiceAccount) Session(_ context.Context) (*providers.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.session.Valid(s.now().Add(refreshMargin)) {
		return nil, providers.ErrNotAuthenticated
	}
	session := *s.session
	return &session, nil
}

// Mint signs an access token for did.
func (s *ServiceAccount) Mint(did id.DID, ttl time.Duration) (*providers.Session, error) {
	now := s.now()
	expires := now.Add(ttl)
	account := SmartAccountAddress(did)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		SmartAccount: account,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   did.String(),
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return nil, err
	}
	return &providers.Session{
		DID:          did,
		AccessToken:  signed,
		SmartAccount: account,
		ExpiresAt:    expires,
	}, nil
}

// ValidateToken checks a bearer token and returns the DID it was issued to.
func (s *ServiceAccount) ValidateToken(tokenString string) (id.DID, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	did, err := id.ParseDID(claims.Subject)
	if err != nil {
		return "", dErrors.New(dErrors.CodeUnauthorized, "token subject is not a DID")
	}
	return did, nil
}

// SmartAccountAddress derives the account address linked to a DID: the last
// 20 bytes of its Keccak-256 hash, hex encoded with a 0x prefix.
func SmartAccountAddress(did id.DID) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(did))
	sum := h.Sum(nil)
	return "0x" + hex.EncodeToString(sum[len(sum)-20:])
}
