package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/events"
)

type recordingNotifier struct {
	mu         sync.Mutex
	recipients []string
	fail       map[string]error
}

func (n *recordingNotifier) Notify(_ context.Context, staffEmail string, _ events.TicketSummary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recipients = append(n.recipients, staffEmail)
	return n.fail[staffEmail]
}

func (n *recordingNotifier) delivered() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.recipients...)
}

func TestWorkerDeliversAndSurvivesFailures(t *testing.T) {
	outbox := events.NewChannelOutbox(8)
	notifier := &recordingNotifier{fail: map[string]error{"bob@helpdesk.local": errors.New("smtp down")}}
	w := NewNotificationWorker(outbox, notifier, nil, zap.NewNop(), time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for _, recipient := range []string{"alice@helpdesk.local", "bob@helpdesk.local", "carol@helpdesk.local"} {
		require.NoError(t, outbox.Enqueue(ctx, events.Notification{ID: recipient, Recipient: recipient}))
	}
	require.Eventually(t, func() bool { return len(notifier.delivered()) == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"alice@helpdesk.local", "bob@helpdesk.local", "carol@helpdesk.local"}, notifier.delivered())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
