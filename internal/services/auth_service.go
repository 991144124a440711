package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/keeper-escrow/backend/internal/auth"
	"github.com/keeper-escrow/backend/internal/ton"
)

// NonceStore keeps one-time ton_proof payloads.
type NonceStore interface {
	SaveNonce(ctx context.Context, nonce string, ttl time.Duration) error
	// ConsumeNonce removes nonce and reports whether it was present and unexpired.
	ConsumeNonce(ctx context.Context, nonce string) (bool, error)
}

type AuthConfig struct {
	JWTSecret      string
	JWTExpiration  time.Duration
	Network        string
	AllowedDomains []string
	PayloadTTL     time.Duration
}

// AuthService turns a TON Connect proof into a session token. The identity in the
// token is the wallet's raw address.
type AuthService struct {
	nonces   NonceStore
	verifier ton.ProofVerifier
	cfg      AuthConfig
	log      *zap.Logger
}

func NewAuthService(nonces NonceStore, clock Clock, cfg AuthConfig, log *zap.Logger) *AuthService {
	if clock == nil {
		clock = SystemClock{}
	}
	if cfg.PayloadTTL <= 0 {
		cfg.PayloadTTL = 5 * time.Minute
	}
	return &AuthService{
		nonces: nonces,
		verifier: ton.ProofVerifier{
			AllowedDomains: cfg.AllowedDomains,
			MaxAge:         cfg.PayloadTTL,
			Now:            clock.Now,
		},
		cfg: cfg,
		log: log,
	}
}

type LoginRequest struct {
	Address   string    `json:"address"`    // raw or user-friendly
	Network   string    `json:"network"`    // mainnet/testnet
	PublicKey string    `json:"public_key"` // hex, optional; must match the wallet
	StateInit string    `json:"state_init"` // base64 BOC of the wallet's StateInit
	Proof     ton.Proof `json:"proof"`
}

type LoginResult struct {
	Token    string `json:"token"`
	Identity string `json:"identity"`
}

// GeneratePayload issues a nonce the wallet must sign in its ton_proof.
func (s *AuthService) GeneratePayload(ctx context.Context) (string, error) {
	nonce, err := generateNonce(32)
	if err != nil {
		return "", err
	}
	if err := s.nonces.SaveNonce(ctx, nonce, s.cfg.PayloadTTL); err != nil {
		return "", fmt.Errorf("failed to save proof payload: %w", err)
	}
	return nonce, nil
}

// Login verifies req and returns a token. Every rejection wraps ErrAuthenticationFailure.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if s.cfg.Network != "" && req.Network != "" && req.Network != s.cfg.Network {
		return nil, fmt.Errorf("%w: network mismatch: expected %s, got %s", ErrAuthenticationFailure, s.cfg.Network, req.Network)
	}

	addr, err := ton.ParseAddress(req.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationFailure, err)
	}

	// Consumed before verification so a payload is never usable twice.
	ok, err := s.nonces.ConsumeNonce(ctx, req.Proof.Payload)
	if err != nil {
		return nil, fmt.Errorf("consume proof payload: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: invalid or expired proof payload", ErrAuthenticationFailure)
	}

	if err := s.verifier.Verify(addr, req.StateInit, req.PublicKey, req.Proof); err != nil {
		return nil, fmt.Errorf("%w: ton proof: %v", ErrAuthenticationFailure, err)
	}

	identity := addr.StringRaw()
	token, err := auth.GenerateJWT(s.cfg.JWTSecret, identity, s.cfg.Network, s.cfg.JWTExpiration)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.log.Info("wallet authenticated", zap.String("identity", identity))
	return &LoginResult{Token: token, Identity: identity}, nil
}

// Authenticate resolves a bearer token to an identity.
func (s *AuthService) Authenticate(token string) (string, error) {
	claims, err := auth.ParseJWT(s.cfg.JWTSecret, token)
	if err != nil {
		return "", errors.Join(ErrAuthenticationFailure, err)
	}
	return claims.Identity, nil
}

func generateNonce(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}
