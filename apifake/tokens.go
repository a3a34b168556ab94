package apifake

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/budget-session/internal/errors"
	"github.com/pkg/errors"
)

const refreshTokenBytes = 32

type refreshRecord struct {
	Token  string
	UserID string
	Iat    time.Time
}

// Tokens issues JWT access tokens and opaque refresh tokens.
type Tokens struct {
	mu         sync.Mutex
	signer     Signer
	accessTTL  time.Duration
	refreshTTL time.Duration
	rotate     bool
	nowFunc    func() time.Time

	refresh map[string]refreshRecord
	issued  map[string]struct{} // jti of every access token handed out
	revoked map[string]struct{}
}

func newTokens(signer Signer, accessTTL, refreshTTL time.Duration, rotate bool, now func() time.Time) *Tokens {
	return &Tokens{
		signer:     signer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		rotate:     rotate,
		nowFunc:    now,
		refresh:    make(map[string]refreshRecord),
		issued:     make(map[string]struct{}),
		revoked:    make(map[string]struct{}),
	}
}

// Issue creates a new access and refresh token pair for userID.
func (t *Tokens) Issue(userID, email string) (string, string, error) {
	access, err := t.createAccessToken(userID, email)
	if err != nil {
		return "", "", err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	refresh, err := t.createRefreshTokenLocked(userID)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

func (t *Tokens) createAccessToken(userID, email string) (string, error) {
	now := t.nowFunc()
	jti := uuid.New().String()
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"iat":   now.Unix(),
		"exp":   now.Add(t.accessTTL).Unix(),
		"jti":   jti,
	}
	signed, err := t.signer.Sign(claims)
	if err != nil {
		return "", err
	}

	t.mu.Lock()
	t.issued[jti] = struct{}{}
	t.mu.Unlock()
	return signed, nil
}

func (t *Tokens) createRefreshTokenLocked(userID string) (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "Tokens.createRefreshToken rand.Read")
	}
	token := hex.EncodeToString(b)
	t.refresh[token] = refreshRecord{Token: token, UserID: userID, Iat: t.nowFunc()}
	return token, nil
}

// VerifyAccess returns the user id of a valid, unrevoked access token.
func (t *Tokens) VerifyAccess(raw string) (string, error) {
	token, err := jwt.Parse(raw, t.signer.GetVerificationKey, jwt.WithTimeFunc(t.nowFunc))
	if err != nil || !token.Valid {
		return "", apperrors.ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", apperrors.ErrInvalidToken
	}
	jti, _ := claims["jti"].(string)

	t.mu.Lock()
	_, revoked := t.revoked[jti]
	t.mu.Unlock()
	if revoked {
		return "", apperrors.ErrTokenRevoked
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", apperrors.ErrInvalidToken
	}
	return sub, nil
}

// Refresh exchanges a refresh token for a new access token. The returned
// refresh token is empty unless rotation is on, in which case the presented
// one is invalidated.
func (t *Tokens) Refresh(refreshToken string, emailOf func(userID string) (string, error)) (string, string, string, error) {
	t.mu.Lock()
	rec, ok := t.refresh[refreshToken]
	if !ok {
		t.mu.Unlock()
		return "", "", "", apperrors.ErrInvalidToken
	}
	if t.nowFunc().Sub(rec.Iat) > t.refreshTTL {
		delete(t.refresh, refreshToken)
		t.mu.Unlock()
		return "", "", "", apperrors.ErrSessionExpired
	}

	var rotated string
	if t.rotate {
		delete(t.refresh, refreshToken)
		var err error
		if rotated, err = t.createRefreshTokenLocked(rec.UserID); err != nil {
			t.mu.Unlock()
			return "", "", "", err
		}
	}
	t.mu.Unlock()

	email, err := emailOf(rec.UserID)
	if err != nil {
		return "", "", "", err
	}
	access, err := t.createAccessToken(rec.UserID, email)
	if err != nil {
		return "", "", "", err
	}
	return access, rotated, rec.UserID, nil
}

// RevokeRefresh invalidates a single refresh token.
func (t *Tokens) RevokeRefresh(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.refresh, token)
}

// RevokeAllRefresh invalidates every refresh token.
func (t *Tokens) RevokeAllRefresh() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.refresh = make(map[string]refreshRecord)
}

// ExpireAllAccess revokes every access token issued so far.
func (t *Tokens) ExpireAllAccess() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for jti := range t.issued {
		t.revoked[jti] = struct{}{}
	}
}
