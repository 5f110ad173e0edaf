// Package httpapi exposes the feed service over REST plus one websocket
// endpoint for live updates.
package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/memefeed-labs/memefeed/internal/app/services/memes"
	"github.com/memefeed-labs/memefeed/internal/app/services/rooms"
	"github.com/memefeed-labs/memefeed/internal/app/services/users"
	"github.com/memefeed-labs/memefeed/internal/errors"
	"github.com/memefeed-labs/memefeed/internal/images"
	"github.com/memefeed-labs/memefeed/internal/logging"
	"github.com/memefeed-labs/memefeed/internal/middleware"
	"github.com/memefeed-labs/memefeed/internal/session"
)

// pollDelayMs is the re-poll hint attached to feed responses. Clients fall
// back to polling at this cadence when the live socket is unavailable.
const pollDelayMs = 5000

// handler bundles the HTTP endpoints for the feed services.
type handler struct {
	users *users.Service
	rooms *rooms.Service
	memes *memes.Service
	log   *logging.Logger
}

// Config wires the handler's dependencies.
type Config struct {
	Users    *users.Service
	Rooms    *rooms.Service
	Memes    *memes.Service
	Sessions *session.Manager
	LiveFeed http.Handler
	Logger   *logging.Logger
}

// NewHandler returns a mux exposing the REST API and the live feed socket.
// Session-gated routes run behind the bearer token middleware.
func NewHandler(cfg Config) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logging.NewDefault("httpapi")
	}
	h := &handler{users: cfg.Users, rooms: cfg.Rooms, memes: cfg.Memes, log: log}

	auth := middleware.NewSessionMiddleware(cfg.Sessions, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.health)
	mux.HandleFunc("/v1/user", h.user)
	mux.HandleFunc("/v1/internal/room", h.createRoom)
	mux.HandleFunc("/v1/room/user", h.joinRoom)
	mux.HandleFunc("/v1/memes", h.memesByCreator)
	mux.Handle("/v1/meme", auth.Handler(http.HandlerFunc(h.uploadMeme)))
	mux.Handle("/v1/meme/like", auth.Handler(http.HandlerFunc(h.memeLike)))
	mux.Handle("/v1/memes/popular", auth.Handler(http.HandlerFunc(h.popularMemes)))
	mux.Handle("/v1/memes/recent", auth.Handler(http.HandlerFunc(h.recentMemes)))
	if cfg.LiveFeed != nil {
		mux.Handle("/v1/feed/live", cfg.LiveFeed)
	}
	return mux
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) user(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload users.CreateInput
		if err := decodeJSON(r.Body, &payload); err != nil {
			h.writeError(w, r, errors.Validation("malformed request body"))
			return
		}
		u, err := h.users.Create(r.Context(), payload)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{"user": u})

	case http.MethodGet:
		u, err := h.users.GetByAddress(r.Context(), r.URL.Query().Get("address"))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"user": u})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) createRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload rooms.CreateInput
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, r, errors.Validation("malformed request body"))
		return
	}
	created, err := h.rooms.Create(r.Context(), payload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"room": created})
}

func (h *handler) joinRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var payload rooms.JoinInput
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, r, errors.Validation("malformed request body"))
		return
	}
	result, err := h.rooms.Join(r.Context(), payload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) uploadMeme(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		h.writeError(w, r, errors.InvalidToken(nil))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, images.MaxUploadBytes+64*1024)
	if err := r.ParseMultipartForm(images.MaxUploadBytes); err != nil {
		h.writeError(w, r, errors.Validation("image exceeds the 10 MiB limit"))
		return
	}

	roomID, err := parseID(r.FormValue("roomId"))
	if err != nil {
		h.writeError(w, r, errors.Validation("roomId is required"))
		return
	}
	if roomID != claims.RoomID {
		h.writeError(w, r, errors.Unauthorized("session is not bound to this room"))
		return
	}

	file, _, err := r.FormFile("meme")
	if err != nil {
		h.writeError(w, r, errors.Validation("image field 'meme' is required"))
		return
	}
	defer file.Close()

	payload, err := io.ReadAll(io.LimitReader(file, images.MaxUploadBytes+1))
	if err != nil {
		h.writeError(w, r, errors.Internal("read upload", err))
		return
	}

	created, err := h.memes.Upload(r.Context(), memes.UploadInput{
		CreatorID: claims.UserID,
		RoomID:    roomID,
		Payload:   payload,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"meme": created})
}

func (h *handler) memesByCreator(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	out, err := h.memes.ListByCreator(r.Context(), r.URL.Query().Get("creatorAddress"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"memes": out})
}

func (h *handler) popularMemes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		h.writeError(w, r, errors.InvalidToken(nil))
		return
	}

	q := r.URL.Query()
	roomID, err := parseID(q.Get("roomId"))
	if err != nil {
		h.writeError(w, r, errors.Validation("roomId is required"))
		return
	}
	if roomID != claims.RoomID {
		h.writeError(w, r, errors.Unauthorized("session is not bound to this room"))
		return
	}

	start, err := parseDate(q.Get("startDate"))
	if err != nil {
		h.writeError(w, r, errors.Validation("startDate must be an RFC 3339 timestamp"))
		return
	}
	end, err := parseDate(q.Get("endDate"))
	if err != nil {
		h.writeError(w, r, errors.Validation("endDate must be an RFC 3339 timestamp"))
		return
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out, err := h.memes.Popular(r.Context(), memes.PopularInput{
		RoomID: roomID,
		UserID: claims.UserID,
		Start:  start,
		End:    end,
		Limit:  limit,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"popularMemes": out,
		"pollDelayMs":  pollDelayMs,
	})
}

func (h *handler) recentMemes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	claims, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		h.writeError(w, r, errors.InvalidToken(nil))
		return
	}

	q := r.URL.Query()
	roomID, err := parseID(q.Get("roomId"))
	if err != nil {
		h.writeError(w, r, errors.Validation("roomId is required"))
		return
	}
	if roomID != claims.RoomID {
		h.writeError(w, r, errors.Unauthorized("session is not bound to this room"))
		return
	}
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out, err := h.memes.Recent(r.Context(), roomID, claims.UserID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"recentMemes": out,
		"pollDelayMs": pollDelayMs,
	})
}

func (h *handler) memeLike(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		h.writeError(w, r, errors.InvalidToken(nil))
		return
	}

	var payload struct {
		MemeID int64 `json:"memeId"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		h.writeError(w, r, errors.Validation("malformed request body"))
		return
	}
	if payload.MemeID <= 0 {
		h.writeError(w, r, errors.Validation("memeId is required"))
		return
	}

	switch r.Method {
	case http.MethodPut:
		like, err := h.memes.Like(r.Context(), payload.MemeID, claims.UserID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if like == nil {
			// Already liked.
			writeJSON(w, http.StatusOK, map[string]interface{}{})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"like": like})

	case http.MethodDelete:
		if err := h.memes.Unlike(r.Context(), payload.MemeID, claims.UserID); err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	svcErr := errors.GetServiceError(err)
	if svcErr == nil {
		svcErr = errors.Internal("internal error", err)
	}

	if svcErr.Code == errors.CodeInternal {
		h.log.WithContext(r.Context()).WithError(svcErr).Error("request failed")
	}

	body := map[string]interface{}{
		"code":    svcErr.Code,
		"message": svcErr.Message,
	}
	if len(svcErr.Details) > 0 {
		body["details"] = svcErr.Details
	}
	writeJSON(w, svcErr.HTTPStatus, map[string]interface{}{"error": body})
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Validation("invalid id")
	}
	return id, nil
}

func parseDate(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339, raw)
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.Validation("limit must be an integer")
	}
	return limit, nil
}
