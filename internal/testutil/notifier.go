package testutil

import (
	"context"
	"slices"
	"sync"

	"github.com/dtroode/rollcall-server/internal/model"
)

// RecordingNotifier keeps every notification it is given.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
	Err  error
}

func (n *RecordingNotifier) Notify(_ context.Context, notification model.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return n.Err
}

func (n *RecordingNotifier) Sent() []model.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.sent)
}

func (n *RecordingNotifier) Count(kind model.NotificationKind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.Kind == kind {
			c++
		}
	}
	return c
}
