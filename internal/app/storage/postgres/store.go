// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/memefeed-labs/memefeed/internal/app/domain/meme"
	"github.com/memefeed-labs/memefeed/internal/app/domain/mirror"
	"github.com/memefeed-labs/memefeed/internal/app/domain/room"
	"github.com/memefeed-labs/memefeed/internal/app/domain/user"
	"github.com/memefeed-labs/memefeed/internal/app/storage"
)

// uniqueViolation is the Postgres error code for unique constraint failures.
const uniqueViolation = "23505"

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.Store = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for migrations and lifecycle management.
func (s *Store) DB() *sqlx.DB { return s.db }

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	var created user.User
	err := s.db.GetContext(ctx, &created, `
		INSERT INTO users (address, username, mirror_status)
		VALUES ($1, $2, $3)
		RETURNING id, address, username, mirror_status, mirror_tx, created_at
	`, u.Address, u.Username, mirror.StatusPending)
	if err != nil {
		return user.User{}, mapError(err)
	}
	return created, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (user.User, error) {
	var u user.User
	err := s.db.GetContext(ctx, &u, `
		SELECT id, address, username, mirror_status, mirror_tx, created_at
		FROM users
		WHERE id = $1
	`, id)
	if err != nil {
		return user.User{}, mapError(err)
	}
	return u, nil
}

func (s *Store) GetUserByAddress(ctx context.Context, address string) (user.User, error) {
	var u user.User
	err := s.db.GetContext(ctx, &u, `
		SELECT id, address, username, mirror_status, mirror_tx, created_at
		FROM users
		WHERE LOWER(address) = LOWER($1)
	`, address)
	if err != nil {
		return user.User{}, mapError(err)
	}
	return u, nil
}

// --- RoomStore --------------------------------------------------------------

func (s *Store) CreateRoom(ctx context.Context, r room.Room) (room.Room, error) {
	var created room.Room
	err := s.db.GetContext(ctx, &created, `
		INSERT INTO rooms (creator_id, name, description, type, password_hash, logo_url, mirror_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, creator_id, name, description, type, password_hash, logo_url, mirror_status, mirror_tx, created_at
	`, r.CreatorID, r.Name, r.Description, r.Type, r.PasswordHash, r.LogoURL, mirror.StatusPending)
	if err != nil {
		return room.Room{}, mapError(err)
	}
	return created, nil
}

func (s *Store) GetRoom(ctx context.Context, id int64) (room.Room, error) {
	var r room.Room
	err := s.db.GetContext(ctx, &r, `
		SELECT id, creator_id, name, description, type, password_hash, logo_url, mirror_status, mirror_tx, created_at
		FROM rooms
		WHERE id = $1
	`, id)
	if err != nil {
		return room.Room{}, mapError(err)
	}
	return r, nil
}

func (s *Store) GetRoomByName(ctx context.Context, name string) (room.Room, error) {
	var r room.Room
	err := s.db.GetContext(ctx, &r, `
		SELECT id, creator_id, name, description, type, password_hash, logo_url, mirror_status, mirror_tx, created_at
		FROM rooms
		WHERE name = $1
	`, name)
	if err != nil {
		return room.Room{}, mapError(err)
	}
	return r, nil
}

// --- MembershipStore --------------------------------------------------------

// JoinRoom is a single conditional insert-or-update so concurrent joins for
// the same (user, room) collapse to one row.
func (s *Store) JoinRoom(ctx context.Context, roomID, userID int64) (room.Membership, error) {
	var m room.Membership
	err := s.db.GetContext(ctx, &m, `
		INSERT INTO user_rooms (room_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id, room_id)
		DO UPDATE SET last_visit = NOW()
		RETURNING id, user_id, room_id, created_at, last_visit
	`, roomID, userID)
	if err != nil {
		return room.Membership{}, mapError(err)
	}
	return m, nil
}

func (s *Store) GetMembership(ctx context.Context, roomID, userID int64) (room.Membership, error) {
	var m room.Membership
	err := s.db.GetContext(ctx, &m, `
		SELECT id, user_id, room_id, created_at, last_visit
		FROM user_rooms
		WHERE room_id = $1 AND user_id = $2
	`, roomID, userID)
	if err != nil {
		return room.Membership{}, mapError(err)
	}
	return m, nil
}

// --- MemeStore --------------------------------------------------------------

func (s *Store) CreateMeme(ctx context.Context, m meme.Meme) (meme.Meme, error) {
	var created meme.Meme
	err := s.db.GetContext(ctx, &created, `
		INSERT INTO memes (creator_id, room_id, url, mirror_status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, creator_id, room_id, url, likes_count, mirror_status, mirror_tx, created_at
	`, m.CreatorID, m.RoomID, m.URL, mirror.StatusPending)
	if err != nil {
		return meme.Meme{}, mapError(err)
	}
	return created, nil
}

func (s *Store) GetMeme(ctx context.Context, id int64) (meme.Meme, error) {
	var m meme.Meme
	err := s.db.GetContext(ctx, &m, `
		SELECT id, creator_id, room_id, url, likes_count, mirror_status, mirror_tx, created_at
		FROM memes
		WHERE id = $1
	`, id)
	if err != nil {
		return meme.Meme{}, mapError(err)
	}
	return m, nil
}

func (s *Store) ListMemesByCreator(ctx context.Context, creatorID int64) ([]meme.Meme, error) {
	var result []meme.Meme
	err := s.db.SelectContext(ctx, &result, `
		SELECT id, creator_id, room_id, url, likes_count, mirror_status, mirror_tx, created_at
		FROM memes
		WHERE creator_id = $1
		ORDER BY created_at DESC
	`, creatorID)
	if err != nil {
		return nil, mapError(err)
	}
	return result, nil
}

// PopularMemes is inclusive of start and exclusive of end; ties on likes
// favor the newer meme.
func (s *Store) PopularMemes(ctx context.Context, roomID int64, start, end time.Time, limit int) ([]meme.Meme, error) {
	var result []meme.Meme
	err := s.db.SelectContext(ctx, &result, `
		SELECT id, creator_id, room_id, url, likes_count, mirror_status, mirror_tx, created_at
		FROM memes
		WHERE room_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY likes_count DESC, created_at DESC
		LIMIT $4
	`, roomID, start, end, limit)
	if err != nil {
		return nil, mapError(err)
	}
	return result, nil
}

func (s *Store) RecentMemes(ctx context.Context, roomID int64, limit int) ([]meme.Meme, error) {
	var result []meme.Meme
	err := s.db.SelectContext(ctx, &result, `
		SELECT id, creator_id, room_id, url, likes_count, mirror_status, mirror_tx, created_at
		FROM memes
		WHERE room_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, roomID, limit)
	if err != nil {
		return nil, mapError(err)
	}
	return result, nil
}

// LikeMeme returns (nil, nil) on a duplicate (meme, liker): already liked is
// success. The likes_count trigger fires in the same transaction as the
// insert.
func (s *Store) LikeMeme(ctx context.Context, memeID, likerID int64) (*meme.Like, error) {
	var l meme.Like
	err := s.db.GetContext(ctx, &l, `
		INSERT INTO meme_likes (meme_id, liker_id, mirror_status)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
		RETURNING id, meme_id, liker_id, mirror_status, mirror_tx, created_at
	`, memeID, likerID, mirror.StatusPending)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mapError(err)
	}
	return &l, nil
}

func (s *Store) UnlikeMeme(ctx context.Context, memeID, likerID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM meme_likes WHERE meme_id = $1 AND liker_id = $2
	`, memeID, likerID)
	if err != nil {
		return false, mapError(err)
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// --- MirrorStore ------------------------------------------------------------

var mirrorTables = map[mirror.EntityKind]string{
	mirror.EntityUser: "users",
	mirror.EntityRoom: "rooms",
	mirror.EntityMeme: "memes",
	mirror.EntityLike: "meme_likes",
}

func (s *Store) SetMirrorCommitted(ctx context.Context, kind mirror.EntityKind, id int64, txRef string) error {
	table, ok := mirrorTables[kind]
	if !ok {
		return fmt.Errorf("no mirror status column for entity kind %q", kind)
	}
	result, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE %s SET mirror_status = $2, mirror_tx = $3 WHERE id = $1
	`, table), id, mirror.StatusCommitted, txRef)
	if err != nil {
		return mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return storage.ErrConflict
	}
	return err
}
