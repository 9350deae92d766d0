package chat

import (
	"context"

	"github.com/hilthontt/quadchat/internal/domain"
)

// Notifier receives the delta of every successful transition, plus join
// rejections. Delivery is best effort: implementations must not block the
// caller for long and never report failures back to the core.
type Notifier interface {
	Notify(ctx context.Context, event domain.RoomEvent)
}

type NotifierFunc func(ctx context.Context, event domain.RoomEvent)

func (f NotifierFunc) Notify(ctx context.Context, event domain.RoomEvent) {
	f(ctx, event)
}

// Notifiers fans an event out to every notifier in order.
type Notifiers []Notifier

func (n Notifiers) Notify(ctx context.Context, event domain.RoomEvent) {
	for _, notifier := range n {
		if notifier != nil {
			notifier.Notify(ctx, event)
		}
	}
}
