package main

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

const (
	// HostName is the user allowed to delete photos and users, compared
	// case-insensitively. There is no credential behind it.
	HostName = "facu silva"

	SessionTokenExpirationTime = time.Hour * 12
	SessionIssuer              = "photo_party_app"
	SessionCookieName          = "photo_party_session"
)

type Session struct {
	CurrentUser string `json:"user"`
}

func (s Session) IsHost() bool {
	return IsHost(s)
}

func IsHost(s Session) bool {
	return s.CurrentUser != "" && strings.EqualFold(s.CurrentUser, HostName)
}

// Login registers name when it is new and makes it the acting user.
func (s *Service) Login(ctx context.Context, name string) (Session, error) {
	if err := s.Register(ctx, name); err != nil {
		return Session{}, err
	}

	return Session{CurrentUser: name}, nil
}

func Logout(Session) Session {
	return Session{}
}

type Token struct {
	Access string `json:"access_token"`
}

func NewSessionToken(session Session, secret []byte) (*Token, error) {
	if session.CurrentUser == "" {
		return nil, errors.New("session: no current user")
	}

	now := time.Now()
	claims := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Issuer:    SessionIssuer,
		Subject:   session.CurrentUser,
		ExpiresAt: jwt.NewNumericDate(now.Add(SessionTokenExpirationTime)),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	})

	token, err := claims.SignedString(secret)
	if err != nil {
		return nil, err
	}

	return &Token{Access: token}, nil
}

func VerifySessionToken(token string, secret []byte) (Session, bool) {
	claims, ok := parseSessionToken(token, secret)
	if !ok {
		return Session{}, false
	}

	return Session{CurrentUser: claims.Subject}, true
}

func parseSessionToken(token string, secret []byte) (*jwt.RegisteredClaims, bool) {
	claims := &jwt.RegisteredClaims{}

	tkn, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("session: unexpected signing method")
		}
		return secret, nil
	})
	if err != nil || !tkn.Valid || claims.Subject == "" {
		return nil, false
	}

	return claims, true
}

// TokenDenylist holds the IDs of logged-out session tokens until they would
// have expired anyway. It lives in memory, so a restart forgets it.
type TokenDenylist struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

func NewTokenDenylist() *TokenDenylist {
	return &TokenDenylist{
		revoked: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (d *TokenDenylist) Revoke(id string, expiresAt time.Time) {
	if id == "" {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.prune()
	d.revoked[id] = expiresAt
}

func (d *TokenDenylist) IsRevoked(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	expiresAt, ok := d.revoked[id]
	return ok && d.now().Before(expiresAt)
}

func (d *TokenDenylist) prune() {
	now := d.now()
	for id, expiresAt := range d.revoked {
		if !now.Before(expiresAt) {
			delete(d.revoked, id)
		}
	}
}
