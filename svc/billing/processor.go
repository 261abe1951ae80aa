package billing

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coachkit/creditledger/pkg/logger"
	"github.com/coachkit/creditledger/pkg/metrics"
)

// EventHandler applies a verified, deduplicated event.
type EventHandler interface {
	Handle(ctx context.Context, ev Event) (Outcome, error)
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, ev Event) (Outcome, error)

func (f EventHandlerFunc) Handle(ctx context.Context, ev Event) (Outcome, error) {
	return f(ctx, ev)
}

// Receipt is returned for every acknowledged delivery.
type Receipt struct {
	EventID   string    `json:"event_id,omitempty"`
	EventType EventType `json:"event_type,omitempty"`
	Outcome   Outcome   `json:"outcome"`
}

// Option configures a Processor.
type Option func(*Processor)

func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.log = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithArchive stores every verified payload before dispatch.
func WithArchive(a Archive) Option {
	return func(p *Processor) { p.archive = a }
}

// WithDedupTTL sets how long completed markers are retained.
func WithDedupTTL(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.ttl = d
		}
	}
}

// WithClaimLease sets how long an uncompleted claim blocks redeliveries.
func WithClaimLease(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.lease = d
		}
	}
}

// Processor runs the verify, dedup, dispatch and record steps.
type Processor struct {
	providers map[string]Provider
	dedup     DedupStore
	handler   EventHandler
	archive   Archive
	ttl       time.Duration
	lease     time.Duration
	log       *slog.Logger
	metrics   *metrics.Metrics
}

func NewProcessor(providers []Provider, dedup DedupStore, handler EventHandler, opts ...Option) *Processor {
	p := &Processor{
		providers: make(map[string]Provider, len(providers)),
		dedup:     dedup,
		handler:   handler,
		ttl:       30 * 24 * time.Hour,
		lease:     5 * time.Minute,
		log:       slog.Default(),
	}
	for _, prov := range providers {
		p.providers[prov.Name()] = prov
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.With(logger.Component("billing"))
	return p
}

// Process handles one delivery. The returned error is non-nil only for
// ErrUnknownProvider, ErrInvalidSignature and ErrInvalidPayload; every other
// failure is logged and reported as OutcomeFailed.
func (p *Processor) Process(ctx context.Context, provider string, payload []byte, header http.Header) (Receipt, error) {
	prov, ok := p.providers[provider]
	if !ok {
		return Receipt{}, ErrUnknownProvider
	}

	ev, err := prov.Parse(ctx, payload, header)
	if err != nil {
		p.log.WarnContext(ctx, "webhook rejected", logger.Provider(provider), logger.Error(err))
		p.metrics.WebhookEvent(provider, "unknown", "rejected")
		return Receipt{}, err
	}

	receipt := p.process(ctx, ev)
	p.metrics.WebhookEvent(provider, string(ev.Type), string(receipt.Outcome))
	return receipt, nil
}

func (p *Processor) process(ctx context.Context, ev Event) Receipt {
	receipt := Receipt{EventID: ev.ID, EventType: ev.Type}
	log := p.log.With(
		logger.Provider(ev.Provider),
		logger.EventID(ev.ID),
		logger.EventType(string(ev.Type)),
		logger.AccountID(ev.AccountID),
		logger.SubscriptionID(ev.SubscriptionID),
	)

	if !ev.Type.Known() {
		log.InfoContext(ctx, "ignoring unrecognised event", slog.String("provider_type", ev.ProviderType))
		receipt.Outcome = OutcomeIgnored
		return receipt
	}

	if p.archive != nil {
		if err := p.archive.Store(ctx, ev); err != nil {
			log.WarnContext(ctx, "failed to archive event", logger.Error(err))
		}
	}

	claimed, err := p.dedup.Claim(ctx, ev.Provider, ev.ID, p.lease)
	if err != nil {
		log.ErrorContext(ctx, "dedup claim failed, event not applied", logger.Error(err))
		receipt.Outcome = OutcomeFailed
		return receipt
	}
	if !claimed {
		log.InfoContext(ctx, "duplicate delivery")
		receipt.Outcome = OutcomeDuplicate
		return receipt
	}

	outcome, err := p.handler.Handle(ctx, ev)
	if err != nil {
		log.ErrorContext(ctx, "event dispatch failed",
			logger.Error(err),
			slog.String("customer_id", ev.CustomerID),
			slog.String("invoice_id", ev.InvoiceID),
			slog.String("status", ev.Status),
			slog.Time("occurred_at", ev.OccurredAt),
		)
		outcome = OutcomeFailed
	}
	if outcome == "" {
		outcome = OutcomeApplied
	}
	receipt.Outcome = outcome

	// The marker must be recorded even if the delivery request went away.
	if err := p.dedup.Complete(context.WithoutCancel(ctx), ev.Provider, ev.ID, outcome, p.ttl); err != nil {
		log.ErrorContext(ctx, "failed to record event outcome",
			slog.String("outcome", string(outcome)), logger.Error(err))
	}

	log.InfoContext(ctx, "event processed", slog.String("outcome", string(outcome)))
	return receipt
}

// IsClientError reports whether err should be answered with a 4xx.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidSignature) || errors.Is(err, ErrInvalidPayload) || errors.Is(err, ErrUnknownProvider)
}
