package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/analysis"
	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/observability"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

// Assigner is the engine entry point the poller feeds.
type Assigner interface {
	Assign(ctx context.Context, candidate domain.Candidate) (*domain.AssignmentOutcome, error)
}

// Result summarises one poll cycle.
type Result struct {
	Fetched    int `json:"fetched"`
	Assigned   int `json:"assigned"`
	Duplicates int `json:"duplicates"`
	Deferred   int `json:"deferred"`
	Skipped    int `json:"skipped"`
}

// PollerDependencies bundles collaborators.
type PollerDependencies struct {
	Dialer        Dialer
	Assigner      Assigner
	Analyzer      analysis.Analyzer
	Metrics       *observability.Metrics
	Logger        *zap.Logger
	Interval      time.Duration
	RetryInitial  time.Duration
	RetryMax      time.Duration
	AssignTimeout time.Duration
}

// Poller drains the mailbox into the assignment engine. Cycles never overlap.
type Poller struct {
	dialer        Dialer
	assigner      Assigner
	analyzer      analysis.Analyzer
	metrics       *observability.Metrics
	logger        *zap.Logger
	interval      time.Duration
	retryInitial  time.Duration
	retryMax      time.Duration
	assignTimeout time.Duration

	mu      sync.Mutex
	trigger chan struct{}
}

// NewPoller creates a poller.
func NewPoller(deps PollerDependencies) *Poller {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	analyzer := deps.Analyzer
	if analyzer == nil {
		analyzer = analysis.NewKeywordAnalyzer()
	}
	p := &Poller{
		dialer:        deps.Dialer,
		assigner:      deps.Assigner,
		analyzer:      analyzer,
		metrics:       deps.Metrics,
		logger:        logger.Named("ingest"),
		interval:      deps.Interval,
		retryInitial:  deps.RetryInitial,
		retryMax:      deps.RetryMax,
		assignTimeout: deps.AssignTimeout,
		trigger:       make(chan struct{}, 1),
	}
	if p.interval <= 0 {
		p.interval = 15 * time.Minute
	}
	if p.retryInitial <= 0 {
		p.retryInitial = 30 * time.Second
	}
	if p.retryMax <= 0 {
		p.retryMax = 5 * time.Minute
	}
	if p.assignTimeout <= 0 {
		p.assignTimeout = 30 * time.Second
	}
	return p
}

// RunOnce performs a single fetch-and-assign cycle. Cancelling ctx stops the
// cycle between candidates; an assignment already started runs to completion.
func (p *Poller) RunOnce(ctx context.Context) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	done := p.metrics.RecordPoll()
	result, err := p.cycle(ctx)
	done(err)
	return result, err
}

func (p *Poller) cycle(ctx context.Context) (Result, error) {
	var result Result
	source, err := p.dialer(ctx)
	if err != nil {
		return result, fmt.Errorf("connect mailbox: %w", err)
	}
	defer func() {
		if err := source.Close(); err != nil {
			p.logger.Warn("mailbox close failed", zap.Error(err))
		}
	}()

	messages, err := source.FetchUnseen(ctx)
	if err != nil {
		return result, fmt.Errorf("fetch unseen: %w", err)
	}
	result.Fetched = len(messages)

	for _, raw := range messages {
		if ctx.Err() != nil {
			p.logger.Info("poll cycle interrupted", zap.Int("remaining", result.Fetched-result.handled()))
			break
		}
		msg, err := Parse(raw.Data)
		if err != nil {
			result.Skipped++
			p.logger.Warn("unparseable message skipped", zap.String("uid", raw.UID), zap.Error(err))
			p.markSeen(ctx, source, raw.UID)
			continue
		}
		candidate := BuildCandidate(raw, msg, p.analyzer)

		outcome, err := p.assign(ctx, candidate)
		if err != nil {
			if apperrors.HasCode(err, apperrors.CodeValidation) {
				result.Skipped++
				p.logger.Warn("invalid candidate skipped", zap.String("uid", raw.UID), zap.Error(err))
				p.markSeen(ctx, source, raw.UID)
				continue
			}
			return result, err
		}

		switch outcome.Status {
		case domain.AssignmentAssigned:
			result.Assigned++
		case domain.AssignmentAlreadyExists:
			result.Duplicates++
		case domain.AssignmentNoStaffAvailable:
			result.Deferred++
			continue
		}
		p.markSeen(ctx, source, raw.UID)
	}

	p.logger.Info("poll cycle finished",
		zap.Int("fetched", result.Fetched),
		zap.Int("assigned", result.Assigned),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("deferred", result.Deferred),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

// markSeen keeps a message out of later cycles. Skipped messages are marked
// too; they would fail the same way every time.
func (p *Poller) markSeen(ctx context.Context, source Source, uid string) {
	if err := source.MarkSeen(ctx, uid); err != nil {
		// the external id keeps a redelivery idempotent
		p.logger.Warn("mark seen failed", zap.String("uid", uid), zap.Error(err))
	}
}

func (p *Poller) assign(ctx context.Context, candidate domain.Candidate) (*domain.AssignmentOutcome, error) {
	assignCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.assignTimeout)
	defer cancel()
	return p.assigner.Assign(assignCtx, candidate)
}

func (r Result) handled() int {
	return r.Assigned + r.Duplicates + r.Deferred + r.Skipped
}

// Trigger asks a running Run loop to start a cycle now.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Run polls until ctx is cancelled, waiting the configured interval after a
// successful cycle and an exponential backoff after a failed one.
func (p *Poller) Run(ctx context.Context) error {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = p.retryInitial
	retry.MaxInterval = p.retryMax

	p.logger.Info("mailbox poller started", zap.Duration("interval", p.interval))
	for {
		wait := p.interval
		if _, err := p.RunOnce(ctx); err != nil {
			wait = retry.NextBackOff()
			p.logger.Error("poll cycle failed", zap.Duration("retry_in", wait), zap.Error(err))
		} else {
			retry.Reset()
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.logger.Info("mailbox poller stopped")
			return nil
		case <-p.trigger:
			timer.Stop()
		case <-timer.C:
		}
	}
}
