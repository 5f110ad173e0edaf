// Package memory is an in-memory implementation of the storage interfaces.
// It is safe for concurrent use and is primarily intended for tests and
// local development.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/memefeed-labs/memefeed/internal/app/domain/meme"
	"github.com/memefeed-labs/memefeed/internal/app/domain/mirror"
	"github.com/memefeed-labs/memefeed/internal/app/domain/room"
	"github.com/memefeed-labs/memefeed/internal/app/domain/user"
	"github.com/memefeed-labs/memefeed/internal/app/storage"
)

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu          sync.RWMutex
	nextID      int64
	users       map[int64]user.User
	rooms       map[int64]room.Room
	memberships map[int64]room.Membership
	memes       map[int64]meme.Meme
	likes       map[int64]meme.Like
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:      1,
		users:       make(map[int64]user.User),
		rooms:       make(map[int64]room.Room),
		memberships: make(map[int64]room.Membership),
		memes:       make(map[int64]meme.Meme),
		likes:       make(map[int64]meme.Like),
	}
}

func (s *Store) nextIDLocked() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// --- UserStore --------------------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u user.User) (user.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Address, u.Address) {
			return user.User{}, storage.ErrConflict
		}
	}

	u.ID = s.nextIDLocked()
	u.MirrorStatus = mirror.StatusPending
	u.MirrorTx = nil
	u.CreatedAt = time.Now().UTC()
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id int64) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return user.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByAddress(_ context.Context, address string) (user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Address, address) {
			return u, nil
		}
	}
	return user.User{}, storage.ErrNotFound
}

// --- RoomStore --------------------------------------------------------------

func (s *Store) CreateRoom(_ context.Context, r room.Room) (room.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.rooms {
		if existing.Name == r.Name {
			return room.Room{}, storage.ErrConflict
		}
	}

	r.ID = s.nextIDLocked()
	r.MirrorStatus = mirror.StatusPending
	r.MirrorTx = nil
	r.CreatedAt = time.Now().UTC()
	s.rooms[r.ID] = r
	return r, nil
}

func (s *Store) GetRoom(_ context.Context, id int64) (room.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[id]
	if !ok {
		return room.Room{}, storage.ErrNotFound
	}
	return r, nil
}

func (s *Store) GetRoomByName(_ context.Context, name string) (room.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.rooms {
		if r.Name == name {
			return r, nil
		}
	}
	return room.Room{}, storage.ErrNotFound
}

// --- MembershipStore --------------------------------------------------------

func (s *Store) JoinRoom(_ context.Context, roomID, userID int64) (room.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; !ok {
		return room.Membership{}, storage.ErrNotFound
	}
	if _, ok := s.users[userID]; !ok {
		return room.Membership{}, storage.ErrNotFound
	}

	for id, m := range s.memberships {
		if m.RoomID == roomID && m.UserID == userID {
			m.LastVisit = time.Now().UTC()
			s.memberships[id] = m
			return m, nil
		}
	}

	now := time.Now().UTC()
	m := room.Membership{
		ID:        s.nextIDLocked(),
		UserID:    userID,
		RoomID:    roomID,
		CreatedAt: now,
		LastVisit: now,
	}
	s.memberships[m.ID] = m
	return m, nil
}

func (s *Store) GetMembership(_ context.Context, roomID, userID int64) (room.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.memberships {
		if m.RoomID == roomID && m.UserID == userID {
			return m, nil
		}
	}
	return room.Membership{}, storage.ErrNotFound
}

// --- MemeStore --------------------------------------------------------------

func (s *Store) CreateMeme(_ context.Context, m meme.Meme) (meme.Meme, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.ID = s.nextIDLocked()
	m.LikesCount = 0
	m.MirrorStatus = mirror.StatusPending
	m.MirrorTx = nil
	m.CreatedAt = time.Now().UTC()
	s.memes[m.ID] = m
	return m, nil
}

func (s *Store) GetMeme(_ context.Context, id int64) (meme.Meme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.memes[id]
	if !ok {
		return meme.Meme{}, storage.ErrNotFound
	}
	return m, nil
}

func (s *Store) ListMemesByCreator(_ context.Context, creatorID int64) ([]meme.Meme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []meme.Meme
	for _, m := range s.memes {
		if m.CreatorID == creatorID {
			result = append(result, m)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) PopularMemes(_ context.Context, roomID int64, start, end time.Time, limit int) ([]meme.Meme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []meme.Meme
	for _, m := range s.memes {
		if m.RoomID != roomID {
			continue
		}
		if m.CreatedAt.Before(start) || !m.CreatedAt.Before(end) {
			continue
		}
		result = append(result, m)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].LikesCount != result[j].LikesCount {
			return result[i].LikesCount > result[j].LikesCount
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) RecentMemes(_ context.Context, roomID int64, limit int) ([]meme.Meme, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []meme.Meme
	for _, m := range s.memes {
		if m.RoomID == roomID {
			result = append(result, m)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) LikeMeme(_ context.Context, memeID, likerID int64) (*meme.Like, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memes[memeID]
	if !ok {
		return nil, storage.ErrNotFound
	}

	for _, l := range s.likes {
		if l.MemeID == memeID && l.LikerID == likerID {
			// Already liked: success with no new row.
			return nil, nil
		}
	}

	l := meme.Like{
		ID:           s.nextIDLocked(),
		MemeID:       memeID,
		LikerID:      likerID,
		MirrorStatus: mirror.StatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	s.likes[l.ID] = l

	m.LikesCount++
	s.memes[memeID] = m
	return &l, nil
}

func (s *Store) UnlikeMeme(_ context.Context, memeID, likerID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, l := range s.likes {
		if l.MemeID == memeID && l.LikerID == likerID {
			delete(s.likes, id)
			if m, ok := s.memes[memeID]; ok {
				m.LikesCount--
				s.memes[memeID] = m
			}
			return true, nil
		}
	}
	return false, nil
}

// --- MirrorStore ------------------------------------------------------------

func (s *Store) SetMirrorCommitted(_ context.Context, kind mirror.EntityKind, id int64, txRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch kind {
	case mirror.EntityUser:
		u, ok := s.users[id]
		if !ok {
			return storage.ErrNotFound
		}
		u.MirrorStatus = mirror.StatusCommitted
		u.MirrorTx = &txRef
		s.users[id] = u
	case mirror.EntityRoom:
		r, ok := s.rooms[id]
		if !ok {
			return storage.ErrNotFound
		}
		r.MirrorStatus = mirror.StatusCommitted
		r.MirrorTx = &txRef
		s.rooms[id] = r
	case mirror.EntityMeme:
		m, ok := s.memes[id]
		if !ok {
			return storage.ErrNotFound
		}
		m.MirrorStatus = mirror.StatusCommitted
		m.MirrorTx = &txRef
		s.memes[id] = m
	case mirror.EntityLike:
		l, ok := s.likes[id]
		if !ok {
			return storage.ErrNotFound
		}
		l.MirrorStatus = mirror.StatusCommitted
		l.MirrorTx = &txRef
		s.likes[id] = l
	default:
		return storage.ErrNotFound
	}
	return nil
}
