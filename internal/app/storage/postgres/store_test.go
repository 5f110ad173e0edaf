package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/memefeed-labs/memefeed/internal/app/domain/meme"
	"github.com/memefeed-labs/memefeed/internal/app/domain/mirror"
	"github.com/memefeed-labs/memefeed/internal/app/domain/room"
	"github.com/memefeed-labs/memefeed/internal/app/domain/user"
	"github.com/memefeed-labs/memefeed/internal/app/storage"
)

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := Apply(ctx, db.DB); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	store := New(db)
	suffix := time.Now().UnixNano()

	u, err := store.CreateUser(ctx, user.User{
		Address:  fmt.Sprintf("0x%040x", suffix),
		Username: fmt.Sprintf("alice-%d", suffix),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.MirrorStatus != mirror.StatusPending {
		t.Fatalf("mirror status = %s, want pending", u.MirrorStatus)
	}

	if _, err := store.CreateUser(ctx, user.User{Address: u.Address, Username: "dup"}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("duplicate address err = %v, want ErrConflict", err)
	}

	r, err := store.CreateRoom(ctx, room.Room{
		CreatorID:    u.ID,
		Name:         fmt.Sprintf("room-%d", suffix),
		Description:  "integration test room",
		Type:         room.TypePublic,
		PasswordHash: "bcrypt-hash",
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	if _, err := store.CreateRoom(ctx, room.Room{CreatorID: u.ID, Name: r.Name, Type: room.TypePublic}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("duplicate name err = %v, want ErrConflict", err)
	}

	// Join twice: one row, advanced last_visit.
	first, err := store.JoinRoom(ctx, r.ID, u.ID)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	second, err := store.JoinRoom(ctx, r.ID, u.ID)
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("membership rows differ: %d vs %d", first.ID, second.ID)
	}
	if second.LastVisit.Before(first.LastVisit) {
		t.Fatal("last_visit went backwards")
	}

	m, err := store.CreateMeme(ctx, meme.Meme{CreatorID: u.ID, RoomID: r.ID, URL: "https://img/m.png"})
	if err != nil {
		t.Fatalf("create meme: %v", err)
	}

	// Like is idempotent and the trigger maintains likes_count.
	like, err := store.LikeMeme(ctx, m.ID, u.ID)
	if err != nil {
		t.Fatalf("like: %v", err)
	}
	if like == nil {
		t.Fatal("first like must return a row")
	}
	again, err := store.LikeMeme(ctx, m.ID, u.ID)
	if err != nil {
		t.Fatalf("second like: %v", err)
	}
	if again != nil {
		t.Fatal("second like must return no row")
	}
	got, err := store.GetMeme(ctx, m.ID)
	if err != nil {
		t.Fatalf("get meme: %v", err)
	}
	if got.LikesCount != 1 {
		t.Fatalf("likes_count = %d, want 1", got.LikesCount)
	}

	deleted, err := store.UnlikeMeme(ctx, m.ID, u.ID)
	if err != nil {
		t.Fatalf("unlike: %v", err)
	}
	if !deleted {
		t.Fatal("expected like row deleted")
	}
	deleted, err = store.UnlikeMeme(ctx, m.ID, u.ID)
	if err != nil {
		t.Fatalf("second unlike: %v", err)
	}
	if deleted {
		t.Fatal("second unlike must be a no-op")
	}

	// Feed queries.
	popular, err := store.PopularMemes(ctx, r.ID, time.Now().Add(-time.Hour), time.Now().Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("popular: %v", err)
	}
	if len(popular) == 0 {
		t.Fatal("expected the meme in the popular window")
	}
	recent, err := store.RecentMemes(ctx, r.ID, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) == 0 || recent[0].ID != m.ID {
		t.Fatalf("recent = %v", recent)
	}

	// Mirror write-back.
	if err := store.SetMirrorCommitted(ctx, mirror.EntityMeme, m.ID, "TX-IT"); err != nil {
		t.Fatalf("set committed: %v", err)
	}
	got, err = store.GetMeme(ctx, m.ID)
	if err != nil {
		t.Fatalf("get meme: %v", err)
	}
	if got.MirrorStatus != mirror.StatusCommitted || got.MirrorTx == nil || *got.MirrorTx != "TX-IT" {
		t.Fatalf("mirror state = %s/%v", got.MirrorStatus, got.MirrorTx)
	}

	if err := store.SetMirrorCommitted(ctx, mirror.EntityMeme, m.ID+1_000_000, "TX"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing row err = %v, want ErrNotFound", err)
	}
}

// The insert trigger announces the full push frame: topic, entity type and
// the entity with the same field names the REST responses use.
func TestMemeInsertNotificationPayload(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := Apply(ctx, db.DB); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	store := New(db)
	suffix := time.Now().UnixNano()
	u, err := store.CreateUser(ctx, user.User{
		Address:  fmt.Sprintf("0x%040x", suffix),
		Username: fmt.Sprintf("carol-%d", suffix),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	r, err := store.CreateRoom(ctx, room.Room{
		CreatorID:    u.ID,
		Name:         fmt.Sprintf("push-room-%d", suffix),
		Type:         room.TypePublic,
		PasswordHash: "bcrypt-hash",
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	listener := pq.NewListener(dsn, time.Second, time.Minute, nil)
	defer listener.Close()
	if err := listener.Listen("new_content"); err != nil {
		t.Fatalf("listen: %v", err)
	}

	m, err := store.CreateMeme(ctx, meme.Meme{CreatorID: u.ID, RoomID: r.ID, URL: "https://img/push.png"})
	if err != nil {
		t.Fatalf("create meme: %v", err)
	}

	var raw string
	deadline := time.After(5 * time.Second)
	for raw == "" {
		select {
		case n := <-listener.Notify:
			if n != nil {
				raw = n.Extra
			}
		case <-deadline:
			t.Fatal("no notification within 5s")
		}
	}

	var push struct {
		Topic      string                 `json:"topic"`
		EntityType string                 `json:"entityType"`
		Entity     map[string]interface{} `json:"entity"`
	}
	if err := json.Unmarshal([]byte(raw), &push); err != nil {
		t.Fatalf("unmarshal payload %q: %v", raw, err)
	}
	if push.Topic != "new_content" {
		t.Fatalf("topic = %q, want new_content", push.Topic)
	}
	if push.EntityType != "meme" {
		t.Fatalf("entityType = %q, want meme", push.EntityType)
	}
	if got := push.Entity["id"]; got != float64(m.ID) {
		t.Fatalf("entity id = %v, want %d", got, m.ID)
	}
	if got := push.Entity["creatorId"]; got != float64(u.ID) {
		t.Fatalf("entity creatorId = %v, want %d", got, u.ID)
	}
	if got := push.Entity["roomId"]; got != float64(r.ID) {
		t.Fatalf("entity roomId = %v, want %d", got, r.ID)
	}
	if got := push.Entity["likesCount"]; got != float64(0) {
		t.Fatalf("entity likesCount = %v, want 0", got)
	}
	if got := push.Entity["url"]; got != "https://img/push.png" {
		t.Fatalf("entity url = %v", got)
	}
	for _, key := range []string{"creator_id", "room_id", "likes_count", "created_at"} {
		if _, ok := push.Entity[key]; ok {
			t.Fatalf("entity carries snake_case key %q", key)
		}
	}
}
