package httpapi

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memefeed-labs/memefeed/internal/app/domain/mirror"
	"github.com/memefeed-labs/memefeed/internal/app/services/memes"
	"github.com/memefeed-labs/memefeed/internal/app/services/rooms"
	"github.com/memefeed-labs/memefeed/internal/app/services/users"
	"github.com/memefeed-labs/memefeed/internal/app/storage/memory"
	"github.com/memefeed-labs/memefeed/internal/identity"
	"github.com/memefeed-labs/memefeed/internal/imagestore"
	"github.com/memefeed-labs/memefeed/internal/session"
)

var pngPayload = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00}

type nullOutbox struct{}

func (nullOutbox) Enqueue(mirror.Record) {}

type testEnv struct {
	srv      *httptest.Server
	sessions *session.Manager
	key      *ecdsa.PrivateKey
	address  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	store := memory.New()
	sessions := session.NewManager("test-secret", time.Hour)
	outbox := nullOutbox{}

	userSvc := users.New(store, outbox, nil)
	roomSvc := rooms.New(store, sessions, outbox, nil)
	memeSvc := memes.New(store, imagestore.NewMemory(), roomSvc, outbox, nil)

	handler := NewHandler(Config{
		Users:    userSvc,
		Rooms:    roomSvc,
		Memes:    memeSvc,
		Sessions: sessions,
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return &testEnv{
		srv:      srv,
		sessions: sessions,
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}
}

func (e *testEnv) sign(t *testing.T, message string) string {
	t.Helper()
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), e.key)
	require.NoError(t, err)
	sig[crypto.RecoveryIDOffset] += 27
	return hexutil.Encode(sig)
}

func (e *testEnv) doJSON(t *testing.T, method, path string, body interface{}, token string) (*http.Response, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequestWithContext(context.Background(), method, e.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	resp.Body.Close()
	return resp, decoded
}

// createUserAndRoom drives the full onboarding flow and returns the room id
// plus a session token bound to it.
func (e *testEnv) createUserAndRoom(t *testing.T) (int64, string) {
	t.Helper()

	resp, _ := e.doJSON(t, http.MethodPost, "/v1/user", map[string]string{
		"address":   e.address,
		"username":  "alice",
		"signature": e.sign(t, identity.CreateUserMessage("alice")),
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := e.doJSON(t, http.MethodPut, "/v1/internal/room", map[string]string{
		"creatorAddress": e.address,
		"name":           "dog-memes",
		"description":    "dogs",
		"type":           "public",
		"password":       "correct-horse",
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	roomID := int64(body["room"].(map[string]interface{})["id"].(float64))

	resp, body = e.doJSON(t, http.MethodPost, "/v1/room/user", map[string]interface{}{
		"roomId":    roomID,
		"address":   e.address,
		"signature": e.sign(t, identity.LoginMessage(roomID, e.address)),
		"password":  "correct-horse",
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := body["sessionToken"].(string)
	require.NotEmpty(t, token)

	return roomID, token
}

func (e *testEnv) uploadMeme(t *testing.T, roomID int64, token string) int64 {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("roomId", fmt.Sprintf("%d", roomID)))
	part, err := mw.CreateFormFile("meme", "dog.png")
	require.NoError(t, err)
	_, err = part.Write(pngPayload)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/v1/meme", &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return int64(body["meme"].(map[string]interface{})["id"].(float64))
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)

	resp, body := e.doJSON(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestFullFlow(t *testing.T) {
	e := newTestEnv(t)
	roomID, token := e.createUserAndRoom(t)
	memeID := e.uploadMeme(t, roomID, token)

	// Like, then like again: second response carries no like.
	resp, body := e.doJSON(t, http.MethodPut, "/v1/meme/like", map[string]int64{"memeId": memeID}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "like")

	resp, body = e.doJSON(t, http.MethodPut, "/v1/meme/like", map[string]int64{"memeId": memeID}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, body, "like")

	// Recent feed carries the meme and the poll hint.
	path := fmt.Sprintf("/v1/memes/recent?roomId=%d&limit=10", roomID)
	resp, body = e.doJSON(t, http.MethodGet, path, nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(5000), body["pollDelayMs"])
	assert.Len(t, body["recentMemes"], 1)

	// Popular window includes the meme.
	start := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	end := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	path = fmt.Sprintf("/v1/memes/popular?roomId=%d&startDate=%s&endDate=%s&limit=10", roomID, start, end)
	resp, body = e.doJSON(t, http.MethodGet, path, nil, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["popularMemes"], 1)

	// Unlike.
	resp, _ = e.doJSON(t, http.MethodDelete, "/v1/meme/like", map[string]int64{"memeId": memeID}, token)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Public creator listing needs no session.
	resp, body = e.doJSON(t, http.MethodGet, "/v1/memes?creatorAddress="+e.address, nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["memes"], 1)
}

func TestSessionRequired(t *testing.T) {
	e := newTestEnv(t)

	resp, _ := e.doJSON(t, http.MethodGet, "/v1/memes/recent?roomId=1&limit=10", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = e.doJSON(t, http.MethodGet, "/v1/memes/recent?roomId=1&limit=10", nil, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSessionRoomMismatch(t *testing.T) {
	e := newTestEnv(t)
	roomID, token := e.createUserAndRoom(t)

	path := fmt.Sprintf("/v1/memes/recent?roomId=%d&limit=10", roomID+1)
	resp, _ := e.doJSON(t, http.MethodGet, path, nil, token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateUserRejectsForgedSignature(t *testing.T) {
	e := newTestEnv(t)

	resp, body := e.doJSON(t, http.MethodPost, "/v1/user", map[string]string{
		"address":   e.address,
		"username":  "mallory",
		"signature": e.sign(t, identity.CreateUserMessage("alice")),
	}, "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	errBody := body["error"].(map[string]interface{})
	assert.Equal(t, "invalid credentials", errBody["message"])
}

func TestJoinWrongPassword(t *testing.T) {
	e := newTestEnv(t)
	roomID, _ := e.createUserAndRoom(t)

	resp, _ := e.doJSON(t, http.MethodPost, "/v1/room/user", map[string]interface{}{
		"roomId":    roomID,
		"address":   e.address,
		"signature": e.sign(t, identity.LoginMessage(roomID, e.address)),
		"password":  "wrong-password",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCreateRoomRejectsPrivate(t *testing.T) {
	e := newTestEnv(t)
	e.createUserAndRoom(t)

	resp, _ := e.doJSON(t, http.MethodPut, "/v1/internal/room", map[string]string{
		"creatorAddress": e.address,
		"name":           "secret-club",
		"type":           "private",
		"password":       "correct-horse",
	}, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDuplicateRoomNameConflicts(t *testing.T) {
	e := newTestEnv(t)
	e.createUserAndRoom(t)

	resp, _ := e.doJSON(t, http.MethodPut, "/v1/internal/room", map[string]string{
		"creatorAddress": e.address,
		"name":           "dog-memes",
		"type":           "public",
		"password":       "correct-horse",
	}, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestPasswordHashNeverSerialized(t *testing.T) {
	e := newTestEnv(t)

	resp, _ := e.doJSON(t, http.MethodPost, "/v1/user", map[string]string{
		"address":   e.address,
		"username":  "alice",
		"signature": e.sign(t, identity.CreateUserMessage("alice")),
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := e.doJSON(t, http.MethodPut, "/v1/internal/room", map[string]string{
		"creatorAddress": e.address,
		"name":           "no-leaks",
		"type":           "public",
		"password":       "correct-horse",
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	raw, err := json.Marshal(body)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "correct-horse")
	assert.NotContains(t, string(raw), "password")
}
