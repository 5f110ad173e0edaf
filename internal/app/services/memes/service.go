// Package memes implements meme upload, likes and feed queries.
package memes

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/memefeed-labs/memefeed/internal/app/domain/meme"
	"github.com/memefeed-labs/memefeed/internal/app/domain/mirror"
	"github.com/memefeed-labs/memefeed/internal/app/storage"
	"github.com/memefeed-labs/memefeed/internal/errors"
	"github.com/memefeed-labs/memefeed/internal/identity"
	"github.com/memefeed-labs/memefeed/internal/images"
	"github.com/memefeed-labs/memefeed/internal/imagestore"
	"github.com/memefeed-labs/memefeed/internal/logging"
)

const (
	// defaultFeedLimit applies when the caller does not specify one.
	defaultFeedLimit = 100
	// maxFeedLimit bounds any single feed query.
	maxFeedLimit = 200
)

// Outbox receives ledger records for successfully persisted entities.
type Outbox interface {
	Enqueue(rec mirror.Record)
}

// MembershipGate authorizes room-scoped operations.
type MembershipGate interface {
	RequireMember(ctx context.Context, roomID, userID int64) error
}

// Service handles the meme lifecycle: image upload into a room, likes and
// the popular/recent feed queries. All room-scoped operations pass the
// membership gate first.
type Service struct {
	store  storage.Store
	images imagestore.Uploader
	gate   MembershipGate
	outbox Outbox
	log    *logging.Logger
}

// New creates the memes service.
func New(store storage.Store, uploader imagestore.Uploader, gate MembershipGate, outbox Outbox, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("memes")
	}
	return &Service{store: store, images: uploader, gate: gate, outbox: outbox, log: log}
}

// UploadInput carries an image payload into a room.
type UploadInput struct {
	CreatorID int64
	RoomID    int64
	Payload   []byte
}

// Upload sniffs the payload's image type, stores the object under a fresh
// key and inserts the meme row. The committed row reaches live viewers via
// the store's change notification, not from here.
func (s *Service) Upload(ctx context.Context, in UploadInput) (meme.Meme, error) {
	if in.RoomID <= 0 {
		return meme.Meme{}, errors.Validation("roomId is required")
	}
	if len(in.Payload) == 0 {
		return meme.Meme{}, errors.Validation("image payload is required")
	}
	if len(in.Payload) > images.MaxUploadBytes {
		return meme.Meme{}, errors.Validation("image exceeds the 10 MiB limit")
	}

	imgType := images.Identify(in.Payload)
	if imgType == nil {
		return meme.Meme{}, errors.Validation("unsupported image format")
	}

	if err := s.gate.RequireMember(ctx, in.RoomID, in.CreatorID); err != nil {
		return meme.Meme{}, err
	}

	key := uuid.NewString() + imgType.Ext
	url, err := s.images.Upload(ctx, key, imgType.ContentType(), in.Payload)
	if err != nil {
		return meme.Meme{}, errors.Internal("store image", err)
	}

	created, err := s.store.CreateMeme(ctx, meme.Meme{
		CreatorID: in.CreatorID,
		RoomID:    in.RoomID,
		URL:       url,
	})
	if err != nil {
		return meme.Meme{}, errors.Internal("create meme", err)
	}

	rec, recErr := created.MirrorRecord()
	s.enqueue(ctx, rec, recErr)
	return created, nil
}

// Like records likerID liking memeID. Liking an already-liked meme is
// success with a nil like; the mirror record is enqueued only when a row was
// actually inserted.
func (s *Service) Like(ctx context.Context, memeID, likerID int64) (*meme.Like, error) {
	m, err := s.store.GetMeme(ctx, memeID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NotFound("meme")
		}
		return nil, errors.Internal("get meme", err)
	}

	if err := s.gate.RequireMember(ctx, m.RoomID, likerID); err != nil {
		return nil, err
	}

	like, err := s.store.LikeMeme(ctx, memeID, likerID)
	if err != nil {
		return nil, errors.Internal("like meme", err)
	}
	if like == nil {
		// Already liked.
		return nil, nil
	}

	rec, recErr := like.MirrorRecord()
	s.enqueue(ctx, rec, recErr)
	return like, nil
}

// Unlike removes likerID's like of memeID. A like that never existed or was
// already removed is success.
func (s *Service) Unlike(ctx context.Context, memeID, likerID int64) error {
	m, err := s.store.GetMeme(ctx, memeID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return errors.NotFound("meme")
		}
		return errors.Internal("get meme", err)
	}

	if err := s.gate.RequireMember(ctx, m.RoomID, likerID); err != nil {
		return err
	}

	deleted, err := s.store.UnlikeMeme(ctx, memeID, likerID)
	if err != nil {
		return errors.Internal("unlike meme", err)
	}
	if deleted {
		rec, recErr := meme.UnlikeRecord(memeID, likerID)
		s.enqueue(ctx, rec, recErr)
	}
	return nil
}

// PopularInput selects the popular feed window for a room.
type PopularInput struct {
	RoomID int64
	UserID int64
	Start  time.Time
	End    time.Time
	Limit  int
}

// Popular returns the room's most liked memes created within [Start, End),
// ordered by likes then recency.
func (s *Service) Popular(ctx context.Context, in PopularInput) ([]meme.Meme, error) {
	if in.RoomID <= 0 {
		return nil, errors.Validation("roomId is required")
	}
	if in.Start.IsZero() || in.End.IsZero() {
		return nil, errors.Validation("startDate and endDate are required")
	}
	if !in.Start.Before(in.End) {
		return nil, errors.Validation("startDate must be before endDate")
	}
	limit, err := clampLimit(in.Limit)
	if err != nil {
		return nil, err
	}

	if err := s.gate.RequireMember(ctx, in.RoomID, in.UserID); err != nil {
		return nil, err
	}

	out, err := s.store.PopularMemes(ctx, in.RoomID, in.Start, in.End, limit)
	if err != nil {
		return nil, errors.Internal("query popular memes", err)
	}
	return out, nil
}

// Recent returns the room's newest memes.
func (s *Service) Recent(ctx context.Context, roomID, userID int64, limit int) ([]meme.Meme, error) {
	if roomID <= 0 {
		return nil, errors.Validation("roomId is required")
	}
	clamped, err := clampLimit(limit)
	if err != nil {
		return nil, err
	}

	if err := s.gate.RequireMember(ctx, roomID, userID); err != nil {
		return nil, err
	}

	out, err := s.store.RecentMemes(ctx, roomID, clamped)
	if err != nil {
		return nil, errors.Internal("query recent memes", err)
	}
	return out, nil
}

// ListByCreator returns every meme a creator has posted, across rooms. This
// is a public profile view and is not membership-gated.
func (s *Service) ListByCreator(ctx context.Context, creatorAddress string) ([]meme.Meme, error) {
	creatorAddress = strings.TrimSpace(creatorAddress)
	if !identity.IsValidAddress(creatorAddress) {
		return nil, errors.Validation("creatorAddress must be a valid hex address")
	}

	creator, err := s.store.GetUserByAddress(ctx, creatorAddress)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return nil, errors.NotFound("user")
		}
		return nil, errors.Internal("get creator", err)
	}

	out, err := s.store.ListMemesByCreator(ctx, creator.ID)
	if err != nil {
		return nil, errors.Internal("list memes", err)
	}
	return out, nil
}

func clampLimit(limit int) (int, error) {
	if limit == 0 {
		return defaultFeedLimit, nil
	}
	if limit < 0 || limit > maxFeedLimit {
		return 0, errors.Validation("limit must be between 1 and 200")
	}
	return limit, nil
}

func (s *Service) enqueue(ctx context.Context, rec mirror.Record, err error) {
	if err != nil {
		s.log.WithContext(ctx).WithError(err).Warn("build mirror record")
		return
	}
	s.outbox.Enqueue(rec)
}
