// Package room defines the room and membership domain models.
package room

import (
	"time"

	"github.com/memefeed-labs/memefeed/internal/app/domain/mirror"
)

// Type discriminates room access models. Only public rooms are implemented;
// private rooms are rejected at validation.
type Type string

const (
	TypePublic  Type = "public"
	TypePrivate Type = "private"
)

// Room is a feed channel users join with a shared password.
// PasswordHash is internal only and never serialized to callers.
type Room struct {
	ID           int64         `json:"id" db:"id"`
	CreatorID    int64         `json:"creatorId" db:"creator_id"`
	Name         string        `json:"name" db:"name"`
	Description  string        `json:"description" db:"description"`
	Type         Type          `json:"type" db:"type"`
	PasswordHash string        `json:"-" db:"password_hash"`
	LogoURL      string        `json:"logoUrl" db:"logo_url"`
	MirrorStatus mirror.Status `json:"mirrorStatus" db:"mirror_status"`
	MirrorTx     *string       `json:"mirrorTx,omitempty" db:"mirror_tx"`
	CreatedAt    time.Time     `json:"createdAt" db:"created_at"`
}

// MirrorRecord builds the ledger projection for a created room. The password
// hash is deliberately excluded.
func (r Room) MirrorRecord() (mirror.Record, error) {
	return mirror.NewRecord(mirror.RecordCreateRoom, mirror.EntityRoom, r.ID, map[string]interface{}{
		"id":          r.ID,
		"creatorId":   r.CreatorID,
		"name":        r.Name,
		"description": r.Description,
		// "type" keys the record kind, so the room's own type travels
		// as roomType.
		"roomType": string(r.Type),
		"logoUrl":  r.LogoURL,
	})
}

// Membership asserts a user has joined a room. One row per (user, room),
// maintained by an atomic upsert; LastVisit is touched on every re-entry.
type Membership struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"userId" db:"user_id"`
	RoomID    int64     `json:"roomId" db:"room_id"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	LastVisit time.Time `json:"lastVisit" db:"last_visit"`
}
