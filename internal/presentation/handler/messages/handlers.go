package messages

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hilthontt/quadchat/internal/domain"
	"github.com/hilthontt/quadchat/internal/infrastructure/json"
	"github.com/hilthontt/quadchat/internal/infrastructure/logging"
	"github.com/hilthontt/quadchat/internal/presentation/utils"
)

type MessageSender interface {
	Send(ctx context.Context, rawCode, userID, body string) (*domain.Message, error)
}

type Handler struct {
	sender MessageSender
	logger logging.Logger
}

func NewHandler(sender MessageSender, logger logging.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Handler{
		sender: sender,
		logger: logger,
	}
}

// CreateNewMessageHandler posts a message as the calling member. Room members
// receive it through the broadcast layer, not through this response.
func (h *Handler) CreateNewMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req createMessageRequest
	if err := json.Read(r, &req); err != nil {
		json.WriteValidationError(w, err)
		return
	}

	code := chi.URLParam(r, "roomCode")
	msg, err := h.sender.Send(r.Context(), code, utils.GetMemberToken(r, req.UserID), req.Message)
	if err != nil {
		if json.StatusFor(err) >= http.StatusInternalServerError {
			h.logger.Error(logging.Room, logging.Send, "failed to send message", map[logging.ExtraKey]any{
				logging.RoomCode:     code,
				logging.ErrorMessage: err.Error(),
			})
		}
		json.WriteDomainError(w, err)
		return
	}

	normalized, _ := domain.NormalizeRoomCode(code)
	json.Write(w, http.StatusCreated, createMessageResponse{
		ID:             msg.ID,
		RoomCode:       normalized,
		AuthorID:       msg.AuthorID,
		AuthorNickname: msg.AuthorNickname,
		Body:           msg.Body,
		SentAt:         msg.SentAt,
	})
}
