// Package user defines the user domain model.
package user

import (
	"time"

	"github.com/memefeed-labs/memefeed/internal/app/domain/mirror"
)

// User is an account identified by a cryptographic address. The address is
// immutable once created; a user exists at most once per address.
type User struct {
	ID           int64         `json:"id" db:"id"`
	Address      string        `json:"address" db:"address"`
	Username     string        `json:"username" db:"username"`
	MirrorStatus mirror.Status `json:"mirrorStatus" db:"mirror_status"`
	MirrorTx     *string       `json:"mirrorTx,omitempty" db:"mirror_tx"`
	CreatedAt    time.Time     `json:"createdAt" db:"created_at"`
}

// MirrorRecord builds the ledger projection for a created user.
func (u User) MirrorRecord() (mirror.Record, error) {
	return mirror.NewRecord(mirror.RecordCreateUser, mirror.EntityUser, u.ID, map[string]interface{}{
		"id":       u.ID,
		"address":  u.Address,
		"username": u.Username,
	})
}
