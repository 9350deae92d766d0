package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hilthontt/quadchat/internal/domain"
	"github.com/hilthontt/quadchat/internal/infrastructure/logging"
	"github.com/hilthontt/quadchat/internal/infrastructure/metrics"
	"github.com/hilthontt/quadchat/internal/infrastructure/registry"
)

const createRoomAttempts = 5

// Rooms is the registry contract the service depends on.
type Rooms interface {
	Resolve(ctx context.Context, code string) (*domain.Room, error)
	WithRoom(ctx context.Context, code string, mutate registry.Mutation) (*domain.Room, error)
}

type Options struct {
	AllowAnonymous   bool
	MaxMessageLength int
}

// Service exposes the transport-facing room operations. HTTP handlers and the
// WebSocket session both go through it, so validation and notification happen
// in one place.
type Service struct {
	rooms    Rooms
	notifier Notifier
	logger   logging.Logger
	metrics  *metrics.Metrics
	opts     Options
	now      func() time.Time
}

func NewService(rooms Rooms, notifier Notifier, logger logging.Logger, m *metrics.Metrics, opts Options) *Service {
	if notifier == nil {
		notifier = Notifiers{}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if opts.MaxMessageLength == 0 {
		opts.MaxMessageLength = domain.DefaultMaxMessageLength
	}

	return &Service{
		rooms:    rooms,
		notifier: notifier,
		logger:   logger,
		metrics:  m,
		opts:     opts,
		now:      time.Now,
	}
}

type JoinResult struct {
	Member domain.User
	// Joined is false when the caller was already a member.
	Joined bool
	Room   domain.Snapshot
}

// CreateRoom mints a code that is not currently in use.
func (s *Service) CreateRoom(ctx context.Context) (string, error) {
	for i := 0; i < createRoomAttempts; i++ {
		code, err := domain.GenerateRoomCode()
		if err != nil {
			return "", fmt.Errorf("failed to generate room code: %w", err)
		}

		room, err := s.rooms.Resolve(ctx, code)
		if err != nil {
			return "", err
		}
		if room.Empty() {
			return code, nil
		}
	}
	return "", fmt.Errorf("%w: no free room code after %d attempts", domain.ErrStoreUnavailable, createRoomAttempts)
}

// Join adds a member to the room. userID is only honoured when it already
// belongs to a member, which makes a repeated join idempotent; otherwise a new
// id is minted.
func (s *Service) Join(ctx context.Context, rawCode, nickname, userID string) (*JoinResult, error) {
	code, err := domain.NormalizeRoomCode(rawCode)
	if err != nil {
		s.metrics.ObserveTransition("join", "invalid")
		return nil, err
	}
	name, err := domain.NormalizeNickname(nickname, s.opts.AllowAnonymous)
	if err != nil {
		s.metrics.ObserveTransition("join", "invalid")
		return nil, err
	}

	var (
		member domain.User
		joined bool
	)
	room, err := s.rooms.WithRoom(ctx, code, func(room *domain.Room) (bool, error) {
		candidate := userID
		if !room.IsMember(candidate) {
			candidate = domain.NewUserID()
		}

		u, ok, err := room.Join(candidate, name, s.now())
		if err != nil {
			return false, err
		}
		member, joined = *u, ok
		return ok, nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrRoomFull) && room != nil {
			s.metrics.ObserveTransition("join", "room_full")
			s.logger.Info(logging.Room, logging.Join, "join rejected, room is full", map[logging.ExtraKey]any{
				logging.RoomCode:    code,
				logging.MemberCount: room.MemberCount(),
			})
			s.notifier.Notify(ctx, domain.NewJoinRejectedEvent(code, name, room.Snapshot().Members, s.now()))
			return nil, err
		}
		s.metrics.ObserveTransition("join", resultOf(err))
		return nil, err
	}

	result := &JoinResult{Member: member, Joined: joined, Room: room.Snapshot()}
	if !joined {
		s.metrics.ObserveTransition("join", "noop")
		return result, nil
	}

	s.metrics.ObserveTransition("join", "ok")
	s.logger.Info(logging.Room, logging.Join, "member joined", map[logging.ExtraKey]any{
		logging.RoomCode:    code,
		logging.UserID:      member.ID,
		logging.MemberCount: len(result.Room.Members),
	})
	s.notifier.Notify(ctx, domain.NewUserJoinedEvent(code, member, result.Room.Members, s.now()))

	return result, nil
}

// Read returns the current snapshot. An unknown room reads as empty.
func (s *Service) Read(ctx context.Context, rawCode string) (domain.Snapshot, error) {
	code, err := domain.NormalizeRoomCode(rawCode)
	if err != nil {
		return domain.Snapshot{}, err
	}

	room, err := s.rooms.Resolve(ctx, code)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return room.Snapshot(), nil
}

func (s *Service) Send(ctx context.Context, rawCode, userID, body string) (*domain.Message, error) {
	code, err := domain.NormalizeRoomCode(rawCode)
	if err != nil {
		s.metrics.ObserveTransition("send", "invalid")
		return nil, err
	}
	if err := domain.ValidateMessageBody(body, s.opts.MaxMessageLength); err != nil {
		s.metrics.ObserveTransition("send", "invalid")
		return nil, err
	}

	var msg domain.Message
	_, err = s.rooms.WithRoom(ctx, code, func(room *domain.Room) (bool, error) {
		m, err := room.PostMessage(userID, body, s.now())
		if err != nil {
			return false, err
		}
		msg = *m
		return true, nil
	})
	if err != nil {
		s.metrics.ObserveTransition("send", resultOf(err))
		return nil, err
	}

	s.metrics.ObserveTransition("send", "ok")
	s.metrics.IncMessagesPosted()
	s.notifier.Notify(ctx, domain.NewMessageReceivedEvent(code, msg, s.now()))

	return &msg, nil
}

// Leave never fails for an absent member or room; only malformed codes and
// store failures are errors. left reports whether membership changed.
func (s *Service) Leave(ctx context.Context, rawCode, userID string) (left bool, err error) {
	code, err := domain.NormalizeRoomCode(rawCode)
	if err != nil {
		return false, err
	}

	var member domain.User
	room, err := s.rooms.WithRoom(ctx, code, func(room *domain.Room) (bool, error) {
		u, ok := room.Leave(userID)
		if ok {
			member = *u
		}
		left = ok
		return ok, nil
	})
	if err != nil {
		s.metrics.ObserveTransition("leave", resultOf(err))
		return false, err
	}
	if !left {
		s.metrics.ObserveTransition("leave", "noop")
		return false, nil
	}

	members := room.Snapshot().Members
	s.metrics.ObserveTransition("leave", "ok")
	s.logger.Info(logging.Room, logging.Leave, "member left", map[logging.ExtraKey]any{
		logging.RoomCode:    code,
		logging.UserID:      member.ID,
		logging.MemberCount: len(members),
	})
	s.notifier.Notify(ctx, domain.NewUserLeftEvent(code, member, members, s.now()))

	return true, nil
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrValidation):
		return "invalid"
	case errors.Is(err, domain.ErrRoomFull):
		return "room_full"
	case errors.Is(err, domain.ErrNotMember):
		return "not_member"
	case domain.IsTransient(err):
		return "unavailable"
	default:
		return "error"
	}
}
