package domain

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hilthontt/quadchat/internal/infrastructure/validate"
)

const MaxNicknameLength = 20

type User struct {
	ID       string    `json:"id"`
	Nickname string    `json:"nickname"`
	JoinedAt time.Time `json:"joinedAt"`
}

// NewUserID mints the opaque identity handed to a joiner. Client supplied ids are
// never used for a new membership.
func NewUserID() string {
	return uuid.NewString()
}

// NormalizeNickname trims the raw nickname and validates it. An empty result is
// only accepted when allowEmpty is set, in which case Join substitutes a fallback.
func NormalizeNickname(raw string, allowEmpty bool) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		if allowEmpty {
			return "", nil
		}
		return "", NewValidationError("nickname", "this field is required")
	}

	validateNickname := validate.Compose(
		validate.MaxRunes(MaxNicknameLength),
		validate.NoControlChars(),
	)
	if err := validateNickname(name); err != nil {
		return "", NewValidationError("nickname", err.Error())
	}

	return name, nil
}

func fallbackNickname() string {
	return fmt.Sprintf("User%d", rand.IntN(1000))
}
