// Package meme defines the meme and like domain models.
package meme

import (
	"time"

	"github.com/memefeed-labs/memefeed/internal/app/domain/mirror"
)

// Meme is an image posted into a room. LikesCount is denormalized and
// maintained by the store in the same transaction as like inserts/deletes.
type Meme struct {
	ID           int64         `json:"id" db:"id"`
	CreatorID    int64         `json:"creatorId" db:"creator_id"`
	RoomID       int64         `json:"roomId" db:"room_id"`
	URL          string        `json:"url" db:"url"`
	LikesCount   int64         `json:"likesCount" db:"likes_count"`
	MirrorStatus mirror.Status `json:"mirrorStatus" db:"mirror_status"`
	MirrorTx     *string       `json:"mirrorTx,omitempty" db:"mirror_tx"`
	CreatedAt    time.Time     `json:"createdAt" db:"created_at"`
}

// MirrorRecord builds the ledger projection for a created meme.
func (m Meme) MirrorRecord() (mirror.Record, error) {
	return mirror.NewRecord(mirror.RecordCreateMeme, mirror.EntityMeme, m.ID, map[string]interface{}{
		"id":        m.ID,
		"creatorId": m.CreatorID,
		"roomId":    m.RoomID,
		"url":       m.URL,
	})
}

// Like records one user liking one meme. Unique per (meme, liker); a second
// like from the same user is a no-op at the store.
type Like struct {
	ID           int64         `json:"id" db:"id"`
	MemeID       int64         `json:"memeId" db:"meme_id"`
	LikerID      int64         `json:"likerId" db:"liker_id"`
	MirrorStatus mirror.Status `json:"mirrorStatus" db:"mirror_status"`
	MirrorTx     *string       `json:"mirrorTx,omitempty" db:"mirror_tx"`
	CreatedAt    time.Time     `json:"createdAt" db:"created_at"`
}

// MirrorRecord builds the ledger projection for a created like.
func (l Like) MirrorRecord() (mirror.Record, error) {
	return mirror.NewRecord(mirror.RecordCreateLike, mirror.EntityLike, l.ID, map[string]interface{}{
		"id":     l.ID,
		"userId": l.LikerID,
		"memeId": l.MemeID,
	})
}

// UnlikeRecord builds the ledger projection for a deleted like. The like row
// no longer exists, so the record carries no entity to write status back to.
func UnlikeRecord(memeID, likerID int64) (mirror.Record, error) {
	return mirror.NewRecord(mirror.RecordDeleteLike, mirror.EntityNone, 0, map[string]interface{}{
		"userId": likerID,
		"memeId": memeID,
	})
}
