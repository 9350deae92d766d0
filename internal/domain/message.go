package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hilthontt/quadchat/internal/infrastructure/validate"
)

const DefaultMaxMessageLength = 2000

type Message struct {
	ID             string    `json:"id"`
	AuthorID       string    `json:"authorId"`
	AuthorNickname string    `json:"authorNickname"`
	Body           string    `json:"body"`
	SentAt         time.Time `json:"sentAt"`
}

// newMessageID builds a time-ordered id: base36 milliseconds plus a random suffix.
func newMessageID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return strconv.FormatInt(now.UnixMilli(), 36) + "-" + suffix
}

// ValidateMessageBody rejects empty or oversized bodies. maxLength <= 0 disables
// the length check.
func ValidateMessageBody(body string, maxLength int) error {
	validators := []validate.Validator{validate.Required()}
	if maxLength > 0 {
		validators = append(validators, validate.MaxRunes(maxLength))
	}

	if err := validate.Compose(validators...)(body); err != nil {
		return NewValidationError("message", err.Error())
	}
	return nil
}
