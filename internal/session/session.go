// Package session keeps short lived OAuth codes and access tokens together
// with the backend credentials they stand for.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/OFFIS-RIT/prospect/pkg/common"
)

// ErrNotFound is returned for unknown and expired keys.
var ErrNotFound = errors.New("session not found")

// Session is what a code or token resolves to.
type Session struct {
	KeyID     string    `json:"key_id"`
	KeySecret string    `json:"key_secret"`
	ClientID  string    `json:"client_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (s Session) Credentials() common.Credentials {
	return common.Credentials{KeyID: s.KeyID, KeySecret: s.KeySecret}
}

// Store is a key value store with per entry expiry. Implementations are safe
// for concurrent use.
type Store interface {
	Put(ctx context.Context, key string, s Session, ttl time.Duration) error
	Get(ctx context.Context, key string) (*Session, error)
	// Take returns and removes the entry in one step.
	Take(ctx context.Context, key string) (*Session, error)
	Delete(ctx context.Context, key string) error
}

// Key namespaces for the two kinds of entries.
func CodeKey(code string) string   { return "code:" + code }
func TokenKey(token string) string { return "token:" + token }
