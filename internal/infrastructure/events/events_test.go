package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hilthontt/quadchat/internal/domain"
	"github.com/hilthontt/quadchat/internal/infrastructure/contracts"
	"github.com/stretchr/testify/require"
)

type published struct {
	key string
	msg contracts.AmqpMessage
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (f *fakePublisher) PublishMessage(_ context.Context, routingKey string, msg contracts.AmqpMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{key: routingKey, msg: msg})
	return nil
}

type fakeAuditRepo struct {
	domain.RoomAuditRepository
	logs []*domain.RoomAuditLog
	err  error
}

func (f *fakeAuditRepo) Log(_ context.Context, log *domain.RoomAuditLog) error {
	if f.err != nil {
		return f.err
	}
	f.logs = append(f.logs, log)
	return nil
}

func TestRoomPublisher_PublishesRoutingKeys(t *testing.T) {
	req := require.New(t)
	pub := &fakePublisher{}
	p := NewRoomPublisher(pub, nil)
	alice := domain.User{ID: "u1", Nickname: "alice"}

	// When the last member leaves
	p.Notify(context.Background(), domain.NewUserLeftEvent("ABC123", alice, []domain.User{}, time.Now()))

	// Then both member.left and room.deleted are published
	req.Len(pub.sent, 2)
	req.Equal(contracts.EventMemberLeft, pub.sent[0].key)
	req.Equal(contracts.EventRoomDeleted, pub.sent[1].key)
	req.Equal("ABC123", pub.sent[0].msg.RoomCode)
}

func TestRoomPublisher_SwallowsErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	p := NewRoomPublisher(pub, nil)

	require.NotPanics(t, func() {
		p.Notify(context.Background(), domain.NewUserJoinedEvent("ABC123", domain.User{ID: "u1"}, nil, time.Now()))
	})
}

func TestRoomConsumer_WritesAuditLogPerRoutingKey(t *testing.T) {
	req := require.New(t)
	pub := &fakePublisher{}
	repo := &fakeAuditRepo{}
	c := NewRoomConsumer(nil, repo, nil)
	alice := domain.User{ID: "u1", Nickname: "alice"}

	// Given events published through the publisher
	p := NewRoomPublisher(pub, nil)
	p.Notify(context.Background(), domain.NewUserJoinedEvent("ABC123", alice, []domain.User{alice}, time.Now()))
	p.Notify(context.Background(), domain.NewMessageReceivedEvent("ABC123", domain.Message{ID: "m1", AuthorID: "u1", Body: "hi", SentAt: time.Now()}, time.Now()))
	p.Notify(context.Background(), domain.NewUserLeftEvent("ABC123", alice, []domain.User{}, time.Now()))

	// When each delivery is handled
	for _, s := range pub.sent {
		body, err := json.Marshal(s.msg)
		req.NoError(err)
		req.NoError(c.Handle(context.Background(), s.key, body))
	}

	// Then one audit entry per delivery is recorded in order
	req.Len(repo.logs, 4)
	req.Equal(domain.AuditMemberJoined, repo.logs[0].EventType)
	req.Equal(domain.AuditMessageSent, repo.logs[1].EventType)
	req.Equal(domain.AuditMemberLeft, repo.logs[2].EventType)
	req.Equal(domain.AuditRoomDeleted, repo.logs[3].EventType)
	for _, l := range repo.logs {
		req.Equal("ABC123", l.RoomCode)
	}
}

func TestRoomConsumer_Errors(t *testing.T) {
	req := require.New(t)
	repo := &fakeAuditRepo{}
	c := NewRoomConsumer(nil, repo, nil)

	req.Error(c.Handle(context.Background(), contracts.EventMemberJoined, []byte("not json")))

	// unknown keys are acked and ignored
	body, _ := json.Marshal(contracts.AmqpMessage{RoomCode: "ABC123", Data: []byte(`{"event":{}}`)})
	req.NoError(c.Handle(context.Background(), "room.renamed", body))
	req.Empty(repo.logs)

	repo.err = errors.New("mongo down")
	joined, _ := json.Marshal(map[string]any{"event": domain.NewUserJoinedEvent("ABC123", domain.User{ID: "u1"}, nil, time.Now())})
	body, _ = json.Marshal(contracts.AmqpMessage{RoomCode: "ABC123", Data: joined})
	req.ErrorContains(c.Handle(context.Background(), contracts.EventMemberJoined, body), "mongo down")
}
