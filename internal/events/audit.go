package events

import (
	"context"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/bankledger/pkg/ledger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	routingKeyEntryPrefix    = "audit."
	routingKeyAccountRemoved = "account.removed"
	logMessagePublishFailed  = "event publish failed"
	logFieldRoutingKey       = "routing_key"
	logFieldAccount          = "account_id"
)

// EntryEvent is the JSON payload published for each committed audit entry.
type EntryEvent struct {
	EventID     string    `json:"event_id"`
	AccountID   string    `json:"account_id"`
	Kind        string    `json:"kind"`
	AmountCents int64     `json:"amount_cents"`
	BeforeCents int64     `json:"before_cents"`
	AfterCents  int64     `json:"after_cents"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// AccountRemovedEvent is published after an account's audit log is discarded.
type AccountRemovedEvent struct {
	EventID   string `json:"event_id"`
	AccountID string `json:"account_id"`
}

const (
	defaultPublishTimeout  = 5 * time.Second
	defaultQueueCapacity   = 1024
	logMessageEventDropped = "event queue full, dropping event"
)

type pendingEvent struct {
	routingKey string
	accountID  ledger.AccountID
	body       any
}

// PublishingAuditLog decorates an AuditLog and publishes what it stores.
// Events are queued and published by a background goroutine so a slow or
// unreachable broker never holds up the caller. Publishing is best effort:
// failures and overflow are logged and never returned.
type PublishingAuditLog struct {
	next           ledger.AuditLog
	publisher      Publisher
	logger         *zap.Logger
	publishTimeout time.Duration
	queueCapacity  int

	mu      sync.RWMutex
	closed  bool
	queue   chan pendingEvent
	drained chan struct{}
}

// PublishingOption configures a PublishingAuditLog.
type PublishingOption func(*PublishingAuditLog)

// WithPublishTimeout bounds each broker publish.
func WithPublishTimeout(timeout time.Duration) PublishingOption {
	return func(log *PublishingAuditLog) {
		if timeout > 0 {
			log.publishTimeout = timeout
		}
	}
}

// WithQueueCapacity sets how many events may wait for the broker before new
// ones are dropped.
func WithQueueCapacity(capacity int) PublishingOption {
	return func(log *PublishingAuditLog) {
		if capacity > 0 {
			log.queueCapacity = capacity
		}
	}
}

// NewPublishingAuditLog wraps next and starts the publishing goroutine.
// Close must be called to flush queued events.
func NewPublishingAuditLog(next ledger.AuditLog, publisher Publisher, logger *zap.Logger, options ...PublishingOption) *PublishingAuditLog {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := &PublishingAuditLog{
		next:           next,
		publisher:      publisher,
		logger:         logger,
		publishTimeout: defaultPublishTimeout,
		queueCapacity:  defaultQueueCapacity,
	}
	for _, option := range options {
		option(log)
	}
	log.queue = make(chan pendingEvent, log.queueCapacity)
	log.drained = make(chan struct{})
	go log.drain()
	return log
}

func (log *PublishingAuditLog) Append(ctx context.Context, entries ...ledger.Entry) error {
	if err := log.next.Append(ctx, entries...); err != nil {
		return err
	}
	for _, entry := range entries {
		log.enqueue(RoutingKeyFor(entry.Kind), entry.AccountID, NewEntryEvent(entry))
	}
	return nil
}

func (log *PublishingAuditLog) ReadAll(ctx context.Context, accountID ledger.AccountID) iter.Seq2[ledger.Entry, error] {
	return log.next.ReadAll(ctx, accountID)
}

func (log *PublishingAuditLog) Discard(ctx context.Context, accountID ledger.AccountID) error {
	if err := log.next.Discard(ctx, accountID); err != nil {
		return err
	}
	log.enqueue(routingKeyAccountRemoved, accountID, AccountRemovedEvent{EventID: uuid.NewString(), AccountID: accountID.String()})
	return nil
}

// Close stops accepting events and waits until the queued ones have been
// published or have timed out.
func (log *PublishingAuditLog) Close() error {
	log.mu.Lock()
	if !log.closed {
		log.closed = true
		close(log.queue)
	}
	log.mu.Unlock()
	<-log.drained
	return nil
}

func (log *PublishingAuditLog) enqueue(routingKey string, accountID ledger.AccountID, body any) {
	log.mu.RLock()
	defer log.mu.RUnlock()
	if !log.closed {
		select {
		case log.queue <- pendingEvent{routingKey: routingKey, accountID: accountID, body: body}:
			return
		default:
		}
	}
	log.logger.Warn(logMessageEventDropped,
		zap.String(logFieldRoutingKey, routingKey),
		zap.String(logFieldAccount, accountID.String()),
	)
}

func (log *PublishingAuditLog) drain() {
	defer close(log.drained)
	for event := range log.queue {
		log.publish(event)
	}
}

func (log *PublishingAuditLog) publish(event pendingEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), log.publishTimeout)
	defer cancel()
	if err := log.publisher.Publish(ctx, event.routingKey, event.body); err != nil {
		log.logger.Warn(logMessagePublishFailed,
			zap.String(logFieldRoutingKey, event.routingKey),
			zap.String(logFieldAccount, event.accountID.String()),
			zap.Error(err),
		)
	}
}

// NewEntryEvent converts an audit entry into its published form.
func NewEntryEvent(entry ledger.Entry) EntryEvent {
	return EntryEvent{
		EventID:     uuid.NewString(),
		AccountID:   entry.AccountID.String(),
		Kind:        entry.Kind.String(),
		AmountCents: entry.AmountCents.Int64(),
		BeforeCents: entry.BeforeCents.Int64(),
		AfterCents:  entry.AfterCents.Int64(),
		Note:        entry.Note,
		CreatedAt:   time.Unix(entry.CreatedUnixUTC, 0).UTC(),
	}
}

// RoutingKeyFor returns the topic routing key of an entry kind, e.g. audit.transfer_out.
func RoutingKeyFor(kind ledger.EntryKind) string {
	return routingKeyEntryPrefix + strings.ToLower(kind.String())
}
