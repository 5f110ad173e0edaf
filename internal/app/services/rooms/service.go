// Package rooms implements room creation and password-gated membership.
package rooms

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/memefeed-labs/memefeed/internal/app/domain/mirror"
	"github.com/memefeed-labs/memefeed/internal/app/domain/room"
	"github.com/memefeed-labs/memefeed/internal/app/storage"
	"github.com/memefeed-labs/memefeed/internal/errors"
	"github.com/memefeed-labs/memefeed/internal/identity"
	"github.com/memefeed-labs/memefeed/internal/logging"
	"github.com/memefeed-labs/memefeed/internal/session"
)

const (
	maxNameLength        = 256
	maxDescriptionLength = 1024
)

// Outbox receives ledger records for successfully persisted entities.
type Outbox interface {
	Enqueue(rec mirror.Record)
}

// Service handles room creation and the join flow. Joining requires both a
// signature over the canonical login message and the room password; only
// then is a session minted.
type Service struct {
	store    storage.Store
	sessions *session.Manager
	outbox   Outbox
	log      *logging.Logger
}

// New creates the rooms service.
func New(store storage.Store, sessions *session.Manager, outbox Outbox, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("rooms")
	}
	return &Service{store: store, sessions: sessions, outbox: outbox, log: log}
}

// CreateInput are the fields required to create a room.
type CreateInput struct {
	CreatorAddress string `json:"creatorAddress"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Type           string `json:"type"`
	Password       string `json:"password"`
	LogoURL        string `json:"logoUrl"`
}

// Create validates and inserts a room. Only public rooms are accepted; an
// optional password is bcrypt-hashed before it touches the store and the
// plaintext is never logged. A duplicate name is rejected, not upserted.
func (s *Service) Create(ctx context.Context, in CreateInput) (room.Room, error) {
	in.CreatorAddress = strings.TrimSpace(in.CreatorAddress)
	in.Name = strings.TrimSpace(in.Name)

	if !identity.IsValidAddress(in.CreatorAddress) {
		return room.Room{}, errors.Validation("creatorAddress must be a valid hex address")
	}
	if in.Name == "" {
		return room.Room{}, errors.Validation("name is required")
	}
	if len(in.Name) > maxNameLength {
		return room.Room{}, errors.Validation("name too long")
	}
	if len(in.Description) > maxDescriptionLength {
		return room.Room{}, errors.Validation("description too long")
	}
	if room.Type(in.Type) != room.TypePublic {
		return room.Room{}, errors.Validation("only public rooms are supported")
	}
	// The password is optional: a room created without one is open to any
	// signed-in user. When present it must meet the minimum length.
	if in.Password != "" && len(in.Password) < identity.MinPasswordLength {
		return room.Room{}, errors.Validation("password must be at least 8 characters")
	}

	creator, err := s.store.GetUserByAddress(ctx, in.CreatorAddress)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return room.Room{}, errors.NotFound("user")
		}
		return room.Room{}, errors.Internal("get creator", err)
	}

	var hash string
	if in.Password != "" {
		hash, err = identity.HashPassword(in.Password)
		if err != nil {
			return room.Room{}, errors.Internal("hash password", err)
		}
	}

	created, err := s.store.CreateRoom(ctx, room.Room{
		CreatorID:    creator.ID,
		Name:         in.Name,
		Description:  in.Description,
		Type:         room.TypePublic,
		PasswordHash: hash,
		LogoURL:      in.LogoURL,
	})
	if err != nil {
		if stderrors.Is(err, storage.ErrConflict) {
			return room.Room{}, errors.Conflict("room name already taken")
		}
		return room.Room{}, errors.Internal("create room", err)
	}

	s.enqueueMirror(ctx, created)
	return created, nil
}

// Get returns a room by id.
func (s *Service) Get(ctx context.Context, id int64) (room.Room, error) {
	r, err := s.store.GetRoom(ctx, id)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return room.Room{}, errors.NotFound("room")
		}
		return room.Room{}, errors.Internal("get room", err)
	}
	return r, nil
}

// JoinInput are the fields required to join a room.
type JoinInput struct {
	RoomID    int64  `json:"roomId"`
	Address   string `json:"address"`
	Signature string `json:"signature"`
	Password  string `json:"password"`
}

// JoinResult is the successful outcome of a join.
type JoinResult struct {
	Membership   room.Membership `json:"membership"`
	SessionToken string          `json:"sessionToken"`
}

// Join runs the full login flow: signature over the canonical login message,
// room existence and type check, password compare, then the atomic
// membership upsert and session mint. Any failed factor rejects with the
// same generic credential error and no partial state.
func (s *Service) Join(ctx context.Context, in JoinInput) (JoinResult, error) {
	in.Address = strings.TrimSpace(in.Address)

	if in.RoomID <= 0 {
		return JoinResult{}, errors.Validation("roomId is required")
	}
	if !identity.IsValidAddress(in.Address) {
		return JoinResult{}, errors.Validation("address must be a valid hex address")
	}

	if !identity.Verify(in.Address, identity.LoginMessage(in.RoomID, in.Address), in.Signature) {
		return JoinResult{}, errors.Unauthorized("")
	}

	u, err := s.store.GetUserByAddress(ctx, in.Address)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return JoinResult{}, errors.NotFound("user")
		}
		return JoinResult{}, errors.Internal("get user", err)
	}

	r, err := s.store.GetRoom(ctx, in.RoomID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return JoinResult{}, errors.NotFound("room")
		}
		return JoinResult{}, errors.Internal("get room", err)
	}
	if r.Type != room.TypePublic {
		return JoinResult{}, errors.Unauthorized("")
	}

	// A room without a hash has no password gate; the signature is the
	// only factor.
	if r.PasswordHash != "" && !identity.VerifyPassword(in.Password, r.PasswordHash) {
		return JoinResult{}, errors.Unauthorized("")
	}

	membership, err := s.store.JoinRoom(ctx, r.ID, u.ID)
	if err != nil {
		return JoinResult{}, errors.Internal("join room", err)
	}

	token, err := s.sessions.Issue(u.ID, r.ID)
	if err != nil {
		return JoinResult{}, errors.Internal("issue session", err)
	}

	return JoinResult{Membership: membership, SessionToken: token}, nil
}

// RequireMember verifies userID has joined roomID. A store failure here is
// terminating: the caller gets an infrastructure error, never a silent pass
// or a misleading authorization failure.
func (s *Service) RequireMember(ctx context.Context, roomID, userID int64) error {
	_, err := s.store.GetMembership(ctx, roomID, userID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.Unauthorized("not a member of this room")
		}
		return errors.Internal("check membership", err)
	}
	return nil
}

func (s *Service) enqueueMirror(ctx context.Context, r room.Room) {
	rec, err := r.MirrorRecord()
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("build room mirror record")
		return
	}
	s.outbox.Enqueue(rec)
}
