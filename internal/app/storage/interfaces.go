// Package storage defines the persistence contracts for the feed.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/memefeed-labs/memefeed/internal/app/domain/meme"
	"github.com/memefeed-labs/memefeed/internal/app/domain/mirror"
	"github.com/memefeed-labs/memefeed/internal/app/domain/room"
	"github.com/memefeed-labs/memefeed/internal/app/domain/user"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("storage: not found")

// ErrConflict is returned when a uniqueness constraint rejects a write.
var ErrConflict = errors.New("storage: conflict")

// UserStore persists user records.
type UserStore interface {
	// CreateUser inserts a user with mirror status pending. A duplicate
	// address yields ErrConflict.
	CreateUser(ctx context.Context, u user.User) (user.User, error)
	GetUser(ctx context.Context, id int64) (user.User, error)
	GetUserByAddress(ctx context.Context, address string) (user.User, error)
}

// RoomStore persists room records.
type RoomStore interface {
	// CreateRoom inserts a room with mirror status pending. A duplicate
	// name yields ErrConflict.
	CreateRoom(ctx context.Context, r room.Room) (room.Room, error)
	// GetRoom returns the room including its password hash; callers are
	// responsible for never serializing the hash outward.
	GetRoom(ctx context.Context, id int64) (room.Room, error)
	GetRoomByName(ctx context.Context, name string) (room.Room, error)
}

// MembershipStore maintains (user, room) membership rows.
type MembershipStore interface {
	// JoinRoom upserts atomically: a new row on first join, otherwise the
	// existing row with last_visit advanced to now. Concurrent joins for
	// the same pair collapse to one row at the store, not via
	// application-level locking.
	JoinRoom(ctx context.Context, roomID, userID int64) (room.Membership, error)
	// GetMembership is the authorization gate for room-scoped operations.
	GetMembership(ctx context.Context, roomID, userID int64) (room.Membership, error)
}

// MemeStore persists memes and likes.
type MemeStore interface {
	CreateMeme(ctx context.Context, m meme.Meme) (meme.Meme, error)
	GetMeme(ctx context.Context, id int64) (meme.Meme, error)
	ListMemesByCreator(ctx context.Context, creatorID int64) ([]meme.Meme, error)
	// PopularMemes filters created_at >= start AND created_at < end,
	// ordered by likes_count descending then created_at descending.
	PopularMemes(ctx context.Context, roomID int64, start, end time.Time, limit int) ([]meme.Meme, error)
	RecentMemes(ctx context.Context, roomID int64, limit int) ([]meme.Meme, error)

	// LikeMeme inserts a like; the meme's likes_count moves in the same
	// transaction. A duplicate (meme, liker) returns (nil, nil): already
	// liked is success, not an error.
	LikeMeme(ctx context.Context, memeID, likerID int64) (*meme.Like, error)
	// UnlikeMeme deletes by (meme, liker); a missing row is not an error.
	// The returned bool reports whether a row was actually deleted.
	UnlikeMeme(ctx context.Context, memeID, likerID int64) (bool, error)
}

// MirrorStore records ledger commitment outcomes on mirrored entities.
type MirrorStore interface {
	// SetMirrorCommitted transitions the entity to committed with the
	// ledger transaction reference. Entities that fail to mirror are never
	// touched and stay pending.
	SetMirrorCommitted(ctx context.Context, kind mirror.EntityKind, id int64, txRef string) error
}

// Store aggregates all persistence contracts.
type Store interface {
	UserStore
	RoomStore
	MembershipStore
	MemeStore
	MirrorStore
}
