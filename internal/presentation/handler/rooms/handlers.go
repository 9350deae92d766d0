package rooms

import (
	"context"
	"errors"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/hilthontt/quadchat/internal/application/chat"
	"github.com/hilthontt/quadchat/internal/domain"
	"github.com/hilthontt/quadchat/internal/infrastructure/json"
	"github.com/hilthontt/quadchat/internal/infrastructure/logging"
	"github.com/hilthontt/quadchat/internal/infrastructure/ratelimiter"
	"github.com/hilthontt/quadchat/internal/infrastructure/ws"
	"github.com/hilthontt/quadchat/internal/presentation/utils"
)

// RoomService is the part of chat.Service the room endpoints use.
type RoomService interface {
	CreateRoom(ctx context.Context) (string, error)
	Join(ctx context.Context, rawCode, nickname, userID string) (*chat.JoinResult, error)
	Read(ctx context.Context, rawCode string) (domain.Snapshot, error)
	Send(ctx context.Context, rawCode, userID, body string) (*domain.Message, error)
	Leave(ctx context.Context, rawCode, userID string) (bool, error)
}

type Options struct {
	AllowedOrigins []string
	SecureCookies  bool
}

type Handler struct {
	service  RoomService
	core     *ws.Core
	throttle *ratelimiter.FixedWindowRateLimiter
	upgrader websocket.Upgrader
	logger   logging.Logger
	opts     Options
}

func NewHandler(
	service RoomService,
	core *ws.Core,
	throttle *ratelimiter.FixedWindowRateLimiter,
	logger logging.Logger,
	opts Options,
) *Handler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	h := &Handler{
		service:  service,
		core:     core,
		throttle: throttle,
		logger:   logger,
		opts:     opts,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.opts.AllowedOrigins) == 0 || slices.Contains(h.opts.AllowedOrigins, "*") {
		return true
	}
	return slices.Contains(h.opts.AllowedOrigins, origin)
}

func (h *Handler) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	code, err := h.service.CreateRoom(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	json.Write(w, http.StatusCreated, createRoomResponse{RoomCode: code})
}

func (h *Handler) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Read(r.Context(), chi.URLParam(r, "roomCode"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	json.Write(w, http.StatusOK, toRoomResponse(snap))
}

func (h *Handler) JoinRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req joinRoomRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	result, err := h.service.Join(r.Context(), chi.URLParam(r, "roomCode"), req.Nickname, utils.GetMemberToken(r, req.UserID))
	if err != nil {
		if errors.Is(err, domain.ErrRoomFull) {
			json.Write(w, http.StatusConflict, roomFullResponse{
				Error:       http.StatusText(http.StatusConflict),
				Message:     "Room is full",
				MemberCount: domain.MaxMembers,
				MaxMembers:  domain.MaxMembers,
			})
			return
		}
		h.writeError(w, r, err)
		return
	}

	utils.SetMemberIDCookie(w, result.Room.Code, result.Member.ID, h.opts.SecureCookies)
	json.Write(w, http.StatusOK, joinRoomResponse{
		UserID:      result.Member.ID,
		Nickname:    result.Member.Nickname,
		RoomCode:    result.Room.Code,
		Joined:      result.Joined,
		Members:     toMemberResponses(result.Room.Members),
		MemberCount: len(result.Room.Members),
	})
}

// LeaveRoomHandler answers 204 whether or not the caller was a member.
func (h *Handler) LeaveRoomHandler(w http.ResponseWriter, r *http.Request) {
	var req leaveRoomRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	code := chi.URLParam(r, "roomCode")
	if _, err := h.service.Leave(r.Context(), code, utils.GetMemberToken(r, req.UserID)); err != nil {
		h.writeError(w, r, err)
		return
	}

	if normalized, err := domain.NormalizeRoomCode(code); err == nil {
		utils.ClearMemberIDCookie(w, normalized, h.opts.SecureCookies)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if status := json.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(logging.RequestResponse, logging.ExternalService, "room request failed", map[logging.ExtraKey]any{
			logging.Path:         r.URL.Path,
			logging.Method:       r.Method,
			logging.StatusCode:   status,
			logging.ErrorMessage: err.Error(),
		})
	}
	json.WriteDomainError(w, err)
}
