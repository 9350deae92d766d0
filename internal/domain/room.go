package domain

import (
	"context"
	"crypto/rand"
	"math/big"
	"slices"
	"strings"
	"time"

	"github.com/hilthontt/quadchat/internal/infrastructure/validate"
)

const (
	MaxMembers        = 4
	MaxRecentMessages = 100
	RetentionWindow   = 24 * time.Hour

	roomCodeLength = 6
	roomCodeChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

var charsetLen = big.NewInt(int64(len(roomCodeChars)))

// Room is the authoritative state of one chat room. It has no identity beyond
// its code; the registry owns its lifecycle.
type Room struct {
	Code           string    `json:"code"`
	Members        []User    `json:"members"`
	RecentMessages []Message `json:"recentMessages"`
	Version        uint64    `json:"version"`
}

// Snapshot is the read-only view handed to transports.
type Snapshot struct {
	Code     string    `json:"code"`
	Members  []User    `json:"members"`
	Messages []Message `json:"messages"`
	Version  uint64    `json:"version"`
}

// RoomStore persists room state by code. Put and Delete are conditional on the
// version carried by the caller so concurrent writers never lose updates.
type RoomStore interface {
	// Get returns ErrRoomNotFound when the code is absent or expired.
	Get(ctx context.Context, code string) (*Room, error)
	// Put writes room iff the stored version equals room.Version, then bumps
	// room.Version. A ttl <= 0 stores without expiry.
	Put(ctx context.Context, room *Room, ttl time.Duration) error
	// Delete removes the entry iff its version matches. Absent entries are not an error.
	Delete(ctx context.Context, code string, version uint64) error
	Close() error
}

func NewRoom(code string) *Room {
	return &Room{
		Code:           code,
		Members:        make([]User, 0, MaxMembers),
		RecentMessages: make([]Message, 0),
	}
}

func (r *Room) Clone() *Room {
	return &Room{
		Code:           r.Code,
		Members:        slices.Clone(r.Members),
		RecentMessages: slices.Clone(r.RecentMessages),
		Version:        r.Version,
	}
}

func (r *Room) MemberCount() int {
	return len(r.Members)
}

func (r *Room) Empty() bool {
	return len(r.Members) == 0
}

func (r *Room) FindMember(id string) *User {
	if id == "" {
		return nil
	}
	for i := range r.Members {
		if r.Members[i].ID == id {
			m := r.Members[i]
			return &m
		}
	}
	return nil
}

func (r *Room) IsMember(id string) bool {
	return r.FindMember(id) != nil
}

// Join adds candidateID to the room. An existing member is returned unchanged
// with joined == false. A blank nickname is replaced with a generated one.
func (r *Room) Join(candidateID, nickname string, now time.Time) (member *User, joined bool, err error) {
	if existing := r.FindMember(candidateID); existing != nil {
		return existing, false, nil
	}
	if len(r.Members) >= MaxMembers {
		return nil, false, ErrRoomFull
	}

	name := strings.TrimSpace(nickname)
	if name == "" {
		name = fallbackNickname()
	}

	user := User{
		ID:       candidateID,
		Nickname: name,
		JoinedAt: now,
	}
	r.Members = append(r.Members, user)

	return &user, true, nil
}

// Leave removes the member with id. Leaving a room one is not in is a no-op.
func (r *Room) Leave(id string) (*User, bool) {
	idx := slices.IndexFunc(r.Members, func(m User) bool { return m.ID == id })
	if idx == -1 {
		return nil, false
	}

	left := r.Members[idx]
	// keep insertion order for the remaining members
	r.Members = slices.Delete(r.Members, idx, idx+1)

	return &left, true
}

// PostMessage appends a message from a current member, evicting the oldest
// message once the history exceeds MaxRecentMessages.
func (r *Room) PostMessage(authorID, body string, now time.Time) (*Message, error) {
	author := r.FindMember(authorID)
	if author == nil {
		return nil, ErrNotMember
	}

	msg := Message{
		ID:             newMessageID(now),
		AuthorID:       author.ID,
		AuthorNickname: author.Nickname,
		Body:           body,
		SentAt:         now,
	}

	r.RecentMessages = append(r.RecentMessages, msg)
	if excess := len(r.RecentMessages) - MaxRecentMessages; excess > 0 {
		r.RecentMessages = slices.Delete(r.RecentMessages, 0, excess)
	}

	return &msg, nil
}

func (r *Room) Snapshot() Snapshot {
	members := slices.Clone(r.Members)
	if members == nil {
		members = []User{}
	}
	messages := slices.Clone(r.RecentMessages)
	if messages == nil {
		messages = []Message{}
	}

	return Snapshot{
		Code:     r.Code,
		Members:  members,
		Messages: messages,
		Version:  r.Version,
	}
}

// NormalizeRoomCode upper-cases and validates a client supplied room code.
func NormalizeRoomCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))

	validateCode := validate.Compose(
		validate.Required(),
		validate.LengthBetween(4, 12),
		validate.Alphanumeric(),
	)
	if err := validateCode(code); err != nil {
		return "", NewValidationError("roomCode", err.Error())
	}

	return code, nil
}

func GenerateRoomCode() (string, error) {
	var sb strings.Builder
	sb.Grow(roomCodeLength)

	for i := 0; i < roomCodeLength; i++ {
		n, err := rand.Int(rand.Reader, charsetLen)
		if err != nil {
			return "", err
		}
		sb.WriteByte(roomCodeChars[n.Int64()])
	}

	return sb.String(), nil
}
