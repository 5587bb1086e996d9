package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

type fakeSource struct {
	messages []RawMessage
	fetchErr error
	seen     []string
	closed   int
}

func (f *fakeSource) FetchUnseen(context.Context) ([]RawMessage, error) {
	return f.messages, f.fetchErr
}

func (f *fakeSource) MarkSeen(_ context.Context, uid string) error {
	f.seen = append(f.seen, uid)
	return nil
}

func (f *fakeSource) Close() error {
	f.closed++
	return nil
}

type scriptedAssigner struct {
	mu       sync.Mutex
	calls    []domain.Candidate
	outcomes map[string]domain.AssignmentStatus
	errs     map[string]error
	onAssign func(ctx context.Context)
}

func (a *scriptedAssigner) Assign(ctx context.Context, c domain.Candidate) (*domain.AssignmentOutcome, error) {
	a.mu.Lock()
	a.calls = append(a.calls, c)
	a.mu.Unlock()
	if a.onAssign != nil {
		a.onAssign(ctx)
	}
	if err := a.errs[c.ExternalID]; err != nil {
		return nil, err
	}
	status, ok := a.outcomes[c.ExternalID]
	if !ok {
		status = domain.AssignmentAssigned
	}
	return &domain.AssignmentOutcome{Status: status}, nil
}

func message(uid, messageID string) RawMessage {
	return RawMessage{
		UID:      uid,
		RemoteID: "support@mail:" + uid,
		Data: crlf(fmt.Sprintf(`From: user@example.com
Subject: Ticket %s
Message-ID: <%s>
Content-Type: text/plain

Help me with %s please.
`, uid, messageID, uid)),
	}
}

func newTestPoller(source *fakeSource, assigner *scriptedAssigner) *Poller {
	return NewPoller(PollerDependencies{
		Dialer:   func(context.Context) (Source, error) { return source, nil },
		Assigner: assigner,
	})
}

func TestRunOnceMarksSeenPerOutcome(t *testing.T) {
	source := &fakeSource{messages: []RawMessage{
		message("1", "a@x"),
		message("2", "b@x"),
		message("3", "c@x"),
		{UID: "4", RemoteID: "support@mail:4", Data: crlf("From: user@example.com\nSubject: no id\n\nbody text here\n")},
	}}
	assigner := &scriptedAssigner{outcomes: map[string]domain.AssignmentStatus{
		"b@x": domain.AssignmentAlreadyExists,
		"c@x": domain.AssignmentNoStaffAvailable,
	}}
	p := newTestPoller(source, assigner)

	result, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, result.Fetched)
	assert.Equal(t, 2, result.Assigned)
	assert.Equal(t, 1, result.Duplicates)
	assert.Equal(t, 1, result.Deferred)
	// no Message-ID: the remote id stands in
	assert.Equal(t, []string{"1", "2", "4"}, source.seen)
	assert.Equal(t, 1, source.closed)
	require.Len(t, assigner.calls, 4)
	assert.Equal(t, "support@mail:4", assigner.calls[3].ExternalID)
}

func TestRunOnceAbortsOnStoreUnavailable(t *testing.T) {
	source := &fakeSource{messages: []RawMessage{message("1", "a@x"), message("2", "b@x")}}
	assigner := &scriptedAssigner{errs: map[string]error{
		"a@x": apperrors.NewStoreUnavailable(errors.New("connection refused")),
	}}
	p := newTestPoller(source, assigner)

	_, err := p.RunOnce(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsStoreUnavailable(err))
	assert.Empty(t, source.seen)
	assert.Len(t, assigner.calls, 1)
	assert.Equal(t, 1, source.closed)
}

func TestRunOnceSkipsInvalidCandidates(t *testing.T) {
	source := &fakeSource{messages: []RawMessage{message("1", "a@x"), message("2", "b@x")}}
	assigner := &scriptedAssigner{errs: map[string]error{
		"a@x": apperrors.NewValidationError("bad", nil),
	}}
	p := newTestPoller(source, assigner)

	result, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, []string{"1", "2"}, source.seen)
}

func TestRunOnceMarksUnparseableMessagesSeen(t *testing.T) {
	garbage := crlf("this line has no colon\n\nbody\n")
	_, parseErr := Parse(garbage)
	require.Error(t, parseErr)

	source := &fakeSource{messages: []RawMessage{
		{UID: "1", RemoteID: "support@mail:1", Data: garbage},
		message("2", "b@x"),
	}}
	assigner := &scriptedAssigner{}
	p := newTestPoller(source, assigner)

	result, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, result.Assigned)
	assert.Equal(t, []string{"1", "2"}, source.seen)
	require.Len(t, assigner.calls, 1)
}

func TestRunOnceStopsBetweenCandidatesOnCancel(t *testing.T) {
	source := &fakeSource{messages: []RawMessage{message("1", "a@x"), message("2", "b@x")}}
	ctx, cancel := context.WithCancel(context.Background())
	var assignCtxErr error
	assigner := &scriptedAssigner{onAssign: func(actx context.Context) {
		cancel()
		assignCtxErr = actx.Err()
	}}
	p := newTestPoller(source, assigner)

	result, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Assigned)
	assert.Len(t, assigner.calls, 1)
	// the in-flight assignment is not cancelled with the cycle
	assert.NoError(t, assignCtxErr)
	assert.Equal(t, []string{"1"}, source.seen)
}

func TestRunOnceReportsConnectAndFetchErrors(t *testing.T) {
	p := NewPoller(PollerDependencies{
		Dialer:   func(context.Context) (Source, error) { return nil, errors.New("dial tcp: refused") },
		Assigner: &scriptedAssigner{},
	})
	_, err := p.RunOnce(context.Background())
	require.ErrorContains(t, err, "connect mailbox")

	source := &fakeSource{fetchErr: errors.New("search failed")}
	p = newTestPoller(source, &scriptedAssigner{})
	_, err = p.RunOnce(context.Background())
	require.ErrorContains(t, err, "fetch unseen")
	assert.Equal(t, 1, source.closed)
}

func TestRunRetriesAndHonoursTrigger(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	p := NewPoller(PollerDependencies{
		Dialer: func(context.Context) (Source, error) {
			mu.Lock()
			defer mu.Unlock()
			dials++
			if dials == 1 {
				return nil, errors.New("first dial fails")
			}
			return &fakeSource{}, nil
		},
		Assigner:     &scriptedAssigner{},
		Interval:     time.Hour,
		RetryInitial: 10 * time.Millisecond,
		RetryMax:     20 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	dialCount := func() int {
		mu.Lock()
		defer mu.Unlock()
		return dials
	}
	// failure retried quickly, then the loop parks on the hour-long interval
	require.Eventually(t, func() bool { return dialCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	p.Trigger()
	require.Eventually(t, func() bool { return dialCount() == 3 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}
