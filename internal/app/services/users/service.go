// Package users implements account creation and lookup.
package users

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/memefeed-labs/memefeed/internal/app/domain/mirror"
	"github.com/memefeed-labs/memefeed/internal/app/domain/user"
	"github.com/memefeed-labs/memefeed/internal/app/storage"
	"github.com/memefeed-labs/memefeed/internal/errors"
	"github.com/memefeed-labs/memefeed/internal/identity"
	"github.com/memefeed-labs/memefeed/internal/logging"
)

const maxUsernameLength = 256

// Outbox receives ledger records for successfully persisted entities.
type Outbox interface {
	Enqueue(rec mirror.Record)
}

// Service handles account creation and lookup. Creation is gated by a
// signature over the canonical create-account message.
type Service struct {
	store  storage.Store
	outbox Outbox
	log    *logging.Logger
}

// New creates the users service.
func New(store storage.Store, outbox Outbox, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("users")
	}
	return &Service{store: store, outbox: outbox, log: log}
}

// CreateInput are the fields required to create a user.
type CreateInput struct {
	Address   string `json:"address"`
	Username  string `json:"username"`
	Signature string `json:"signature"`
}

// Create verifies the caller controls Address and inserts the account. The
// signature gate runs before any store access; a failed or malformed
// signature leaves no trace.
func (s *Service) Create(ctx context.Context, in CreateInput) (user.User, error) {
	in.Address = strings.TrimSpace(in.Address)
	in.Username = strings.TrimSpace(in.Username)

	if !identity.IsValidAddress(in.Address) {
		return user.User{}, errors.Validation("address must be a valid hex address")
	}
	if in.Username == "" {
		return user.User{}, errors.Validation("username is required")
	}
	if len(in.Username) > maxUsernameLength {
		return user.User{}, errors.Validation("username too long")
	}

	if !identity.Verify(in.Address, identity.CreateUserMessage(in.Username), in.Signature) {
		return user.User{}, errors.Unauthorized("")
	}

	created, err := s.store.CreateUser(ctx, user.User{
		Address:  in.Address,
		Username: in.Username,
	})
	if err != nil {
		if stderrors.Is(err, storage.ErrConflict) {
			return user.User{}, errors.Conflict("address already registered")
		}
		return user.User{}, errors.Internal("create user", err)
	}

	s.enqueueMirror(ctx, created)
	return created, nil
}

// GetByAddress looks up a user by address.
func (s *Service) GetByAddress(ctx context.Context, address string) (user.User, error) {
	address = strings.TrimSpace(address)
	if !identity.IsValidAddress(address) {
		return user.User{}, errors.Validation("address must be a valid hex address")
	}

	u, err := s.store.GetUserByAddress(ctx, address)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return user.User{}, errors.NotFound("user")
		}
		return user.User{}, errors.Internal("get user", err)
	}
	return u, nil
}

func (s *Service) enqueueMirror(ctx context.Context, u user.User) {
	rec, err := u.MirrorRecord()
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("build user mirror record")
		return
	}
	s.outbox.Enqueue(rec)
}
