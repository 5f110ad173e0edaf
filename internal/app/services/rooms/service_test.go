package rooms

import (
	"context"
	"crypto/ecdsa"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/memefeed-labs/memefeed/internal/app/domain/mirror"
	"github.com/memefeed-labs/memefeed/internal/app/domain/user"
	"github.com/memefeed-labs/memefeed/internal/app/storage/memory"
	"github.com/memefeed-labs/memefeed/internal/errors"
	"github.com/memefeed-labs/memefeed/internal/identity"
	"github.com/memefeed-labs/memefeed/internal/session"
)

type recordingOutbox struct {
	mu      sync.Mutex
	records []mirror.Record
}

func (o *recordingOutbox) Enqueue(rec mirror.Record) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, rec)
}

func (o *recordingOutbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.records)
}

type fixture struct {
	store    *memory.Store
	sessions *session.Manager
	outbox   *recordingOutbox
	svc      *Service
	key      *ecdsa.PrivateKey
	creator  user.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	store := memory.New()
	creator, err := store.CreateUser(context.Background(), user.User{
		Address:  crypto.PubkeyToAddress(key.PublicKey).Hex(),
		Username: "alice",
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	sessions := session.NewManager("test-secret", time.Hour)
	outbox := &recordingOutbox{}
	return &fixture{
		store:    store,
		sessions: sessions,
		outbox:   outbox,
		svc:      New(store, sessions, outbox, nil),
		key:      key,
		creator:  creator,
	}
}

func (f *fixture) sign(t *testing.T, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), f.key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

func (f *fixture) createInput() CreateInput {
	return CreateInput{
		CreatorAddress: f.creator.Address,
		Name:           "dog-memes",
		Description:    "all dogs all day",
		Type:           "public",
		Password:       "correct-horse",
	}
}

func TestCreateRoom(t *testing.T) {
	f := newFixture(t)

	r, err := f.svc.Create(context.Background(), f.createInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.Name != "dog-memes" || r.CreatorID != f.creator.ID {
		t.Fatalf("room = %+v", r)
	}
	if r.PasswordHash == "" || r.PasswordHash == "correct-horse" {
		t.Fatal("password must be stored hashed")
	}
	if f.outbox.len() != 1 {
		t.Fatalf("outbox records = %d, want 1", f.outbox.len())
	}
}

func TestCreateRoomRejectsPrivateType(t *testing.T) {
	f := newFixture(t)

	in := f.createInput()
	in.Type = "private"
	_, err := f.svc.Create(context.Background(), in)
	if !errors.IsCode(err, errors.CodeValidation) {
		t.Fatalf("err = %v, want validation", err)
	}

	// No row may exist after the rejection.
	if _, err := f.store.GetRoomByName(context.Background(), in.Name); err == nil {
		t.Fatal("private room must not be persisted")
	}
	if f.outbox.len() != 0 {
		t.Fatal("nothing must be mirrored for a rejected room")
	}
}

func TestCreateRoomRejectsShortPassword(t *testing.T) {
	f := newFixture(t)

	in := f.createInput()
	in.Password = "short"
	if _, err := f.svc.Create(context.Background(), in); !errors.IsCode(err, errors.CodeValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestPasswordlessRoom(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := f.createInput()
	in.Name = "open-room"
	in.Password = ""
	r, err := f.svc.Create(ctx, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if r.PasswordHash != "" {
		t.Fatalf("password hash = %q, want none", r.PasswordHash)
	}

	// Joining needs only a valid signature; any supplied password is
	// ignored on a room that has none.
	result, err := f.svc.Join(ctx, JoinInput{
		RoomID:    r.ID,
		Address:   f.creator.Address,
		Signature: f.sign(t, identity.LoginMessage(r.ID, f.creator.Address)),
	})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if result.Membership.RoomID != r.ID || result.Membership.UserID != f.creator.ID {
		t.Fatalf("membership = %+v", result.Membership)
	}
}

func TestCreateRoomDuplicateName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Create(ctx, f.createInput()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.svc.Create(ctx, f.createInput()); !errors.IsCode(err, errors.CodeConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
}

func TestJoinHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.Create(ctx, f.createInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	in := JoinInput{
		RoomID:    r.ID,
		Address:   f.creator.Address,
		Signature: f.sign(t, identity.LoginMessage(r.ID, f.creator.Address)),
		Password:  "correct-horse",
	}
	result, err := f.svc.Join(ctx, in)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if result.Membership.RoomID != r.ID || result.Membership.UserID != f.creator.ID {
		t.Fatalf("membership = %+v", result.Membership)
	}

	claims, err := f.sessions.Validate(result.SessionToken)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.UserID != f.creator.ID || claims.RoomID != r.ID {
		t.Fatalf("claims = %+v", claims)
	}

	// Re-join advances last_visit on the same row.
	again, err := f.svc.Join(ctx, in)
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if again.Membership.ID != result.Membership.ID {
		t.Fatal("rejoin must reuse the membership row")
	}
}

func TestJoinRejectsWrongPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.Create(ctx, f.createInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = f.svc.Join(ctx, JoinInput{
		RoomID:    r.ID,
		Address:   f.creator.Address,
		Signature: f.sign(t, identity.LoginMessage(r.ID, f.creator.Address)),
		Password:  "wrong-password",
	})
	if !errors.IsCode(err, errors.CodeUnauthorized) {
		t.Fatalf("err = %v, want unauthorized", err)
	}

	// No membership may exist after the rejection.
	if _, err := f.store.GetMembership(ctx, r.ID, f.creator.ID); err == nil {
		t.Fatal("failed join must leave no membership")
	}
}

func TestJoinRejectsBadSignature(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.Create(ctx, f.createInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Signature over the wrong room id.
	_, err = f.svc.Join(ctx, JoinInput{
		RoomID:    r.ID,
		Address:   f.creator.Address,
		Signature: f.sign(t, identity.LoginMessage(r.ID+1, f.creator.Address)),
		Password:  "correct-horse",
	})
	if !errors.IsCode(err, errors.CodeUnauthorized) {
		t.Fatalf("err = %v, want unauthorized", err)
	}
}

func TestJoinUnknownRoom(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Join(context.Background(), JoinInput{
		RoomID:    424242,
		Address:   f.creator.Address,
		Signature: f.sign(t, identity.LoginMessage(424242, f.creator.Address)),
		Password:  "correct-horse",
	})
	if !errors.IsCode(err, errors.CodeNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestRequireMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r, err := f.svc.Create(ctx, f.createInput())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := f.svc.RequireMember(ctx, r.ID, f.creator.ID); !errors.IsCode(err, errors.CodeUnauthorized) {
		t.Fatalf("err = %v, want unauthorized before join", err)
	}

	if _, err := f.store.JoinRoom(ctx, r.ID, f.creator.ID); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := f.svc.RequireMember(ctx, r.ID, f.creator.ID); err != nil {
		t.Fatalf("err = %v, want nil after join", err)
	}
}
