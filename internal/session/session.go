// Package session issues and validates signed session tokens binding a user
// to a room.
package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/memefeed-labs/memefeed/internal/errors"
)

// Claims are the session claims carried by a token.
type Claims struct {
	UserID int64 `json:"userId"`
	RoomID int64 `json:"roomId"`
	jwt.RegisteredClaims
}

// Manager mints and verifies bearer session tokens. Tokens are HMAC-signed
// with a fixed TTL; there is no revocation list.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

// NewManager creates a session manager. A zero ttl defaults to 30 days.
func NewManager(secret string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Manager{secret: []byte(secret), ttl: ttl}
}

// Issue mints a token binding userID to roomID.
func (m *Manager) Issue(userID, roomID int64) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RoomID: roomID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Validate parses and verifies a token. Missing, malformed, expired and
// tampered tokens all yield the same invalid-token error with no further
// detail.
func (m *Manager) Validate(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.InvalidToken(nil)
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.InvalidToken(nil)
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, errors.InvalidToken(err)
	}
	if !token.Valid {
		return nil, errors.InvalidToken(nil)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.InvalidToken(nil)
	}
	return claims, nil
}
