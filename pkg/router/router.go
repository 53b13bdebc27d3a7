// Package router implements the MessageRouter component:
// per-agent bounded delivery queues, delivery-record tracking, bounded
// history, and fan-out to long-lived agent streams.
package router

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fugue-ai/rhema-coordinator/pkg/coordinationerr"
	"github.com/fugue-ai/rhema-coordinator/pkg/models"
)

const component = "router"

// Config holds the router's tunables.
type Config struct {
	HistoryCapacity    int // bounded history ring size, >= 1000
	PerAgentQueueCap   int // per-subscription channel capacity; full queues fail fast
	MaxPendingPerDrain int // heartbeat drains at most this many pending messages
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		HistoryCapacity:    1000,
		PerAgentQueueCap:   256,
		MaxPendingPerDrain: 50,
	}
}

// OperationalChecker reports whether an agent id is registered and in an
// operational status; wired to the registry by the facade.
type OperationalChecker func(agentID string) bool

// SendResult is the aggregated outcome of one Send call.
type SendResult struct {
	MessageID string
	Success   bool
	Delivery  []models.DeliveryRecord
	Error     string
}

// subscription is one agent's inbound channel plus its pull-mode backlog.
// streaming records whether a live stream reader is attached: deliveries go
// to the channel only then, and to the pull backlog otherwise, so Heartbeat
// can drain messages for agents that never opened a stream.
type subscription struct {
	ch        chan models.Message
	pull      []models.Message // heartbeat-drain backlog when no stream is attached
	streaming bool
	closed    bool
}

// metrics is the router's rolling counters.
type metrics struct {
	mu               sync.Mutex
	sent             uint64
	delivered        uint64
	failed           uint64
	responded        uint64
	totalRespondTime time.Duration
	respondSamples   uint64
}

// Router is the MessageRouter.
type Router struct {
	cfg Config

	isOperational OperationalChecker

	mu            sync.RWMutex
	subscriptions map[string]*subscription

	histMu  sync.Mutex
	history []models.Message

	deliveryMu sync.Mutex
	deliveries map[string][]models.DeliveryRecord // message_id -> records

	metrics metrics
}

// New constructs a Router. isOperational must be wired before Send is used;
// a nil checker treats every recipient as unknown.
func New(cfg Config, isOperational OperationalChecker) *Router {
	if isOperational == nil {
		isOperational = func(string) bool { return false }
	}
	return &Router{
		cfg:           cfg,
		isOperational: isOperational,
		subscriptions: make(map[string]*subscription),
		deliveries:    make(map[string][]models.DeliveryRecord),
	}
}

// Subscribe opens (or reopens) agentID's inbound stream. The returned
// channel is closed when ctx is cancelled; a subscribed agent's pull
// backlog (from prior heartbeat drains) is flushed into the channel first,
// in order.
func (r *Router) Subscribe(ctx context.Context, agentID string) (<-chan models.Message, error) {
	if !r.isOperational(agentID) {
		return nil, coordinationerr.NotFound(component, "Subscribe", agentID)
	}

	r.mu.Lock()
	sub, ok := r.subscriptions[agentID]
	if !ok {
		sub = &subscription{ch: make(chan models.Message, r.cfg.PerAgentQueueCap)}
		r.subscriptions[agentID] = sub
	}
	sub.streaming = true
	backlog := sub.pull
	sub.pull = nil
	r.mu.Unlock()

	for _, m := range backlog {
		select {
		case sub.ch <- m:
		default:
			// Queue is full; drop rather than block the flush.
		}
	}

	go func() {
		<-ctx.Done()
		r.closeSubscription(agentID, sub)
	}()

	return sub.ch, nil
}

// closeSubscription tears down agentID's channel on cancellation or
// disconnect. In-flight sends already recorded as
// delivered are untouched; later sends to this id go to a fresh pull
// backlog (drained by Heartbeat or flushed by the next Subscribe).
func (r *Router) closeSubscription(agentID string, sub *subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.subscriptions[agentID]; ok && cur == sub && !sub.closed {
		sub.closed = true
		close(sub.ch)
		delete(r.subscriptions, agentID)
	}
}

// Send routes message to its recipients. Zero recipients is rejected with
// InvalidArgument. Unknown or non-operational
// recipients produce a per-recipient failure without aborting delivery to
// valid ones; success is true iff at least one recipient was delivered.
func (r *Router) Send(sender string, msg models.Message) (SendResult, error) {
	if len(msg.Recipients) == 0 {
		return SendResult{}, coordinationerr.New(component, "Send", coordinationerr.KindInvalidArgument)
	}
	if !r.isOperational(sender) {
		return SendResult{}, coordinationerr.NotFound(component, "Send", sender)
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Sender = sender
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	r.appendHistory(msg)

	result := SendResult{MessageID: msg.ID}
	records := make([]models.DeliveryRecord, 0, len(msg.Recipients))

	for _, rid := range msg.Recipients {
		rec := models.DeliveryRecord{MessageID: msg.ID, Recipient: rid, QueuedAt: time.Now()}
		if !r.isOperational(rid) {
			rec.Status = models.DeliveryFailed
			rec.Error = "unknown or non-operational recipient"
			r.metrics.incFailed()
			records = append(records, rec)
			continue
		}

		rec.Status = models.DeliverySent
		r.metrics.incSent()

		if r.pushTo(rid, msg) {
			rec.Status = models.DeliveryDelivered
			rec.DeliveredAt = time.Now()
			r.metrics.incDelivered()
			result.Success = true
		} else {
			rec.Status = models.DeliveryFailed
			rec.Error = "queue full"
			r.metrics.incFailed()
		}
		records = append(records, rec)
	}

	r.deliveryMu.Lock()
	r.deliveries[msg.ID] = records
	r.deliveryMu.Unlock()

	result.Delivery = records
	if !result.Success {
		result.Error = "all recipients failed"
	}
	return result, nil
}

// pushTo enqueues msg onto agentID's channel/backlog without blocking,
// returning false (QueueFull) when the buffer is saturated.
func (r *Router) pushTo(agentID string, msg models.Message) bool {
	r.mu.Lock()
	sub, ok := r.subscriptions[agentID]
	if !ok {
		sub = &subscription{ch: make(chan models.Message, r.cfg.PerAgentQueueCap)}
		r.subscriptions[agentID] = sub
	}
	streaming := sub.streaming
	r.mu.Unlock()

	if streaming {
		select {
		case sub.ch <- msg:
			return true
		default:
		}
	}

	// No stream reader attached (or its channel is momentarily full) —
	// queue on the pull-mode backlog so Heartbeat can retrieve it, bounded
	// by the same capacity.
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(sub.pull) >= r.cfg.PerAgentQueueCap {
		return false
	}
	sub.pull = append(sub.pull, msg)
	return true
}

// Notify pushes a system-origin message straight to agentID, bypassing the
// operational-sender check Send applies. Used by the facade for lock-timeout
// conflict notifications, which have no registered sending agent. The
// message still lands in history and the per-agent queue like any other.
func (r *Router) Notify(agentID string, msg models.Message) bool {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	msg.Recipients = []string{agentID}
	r.appendHistory(msg)
	return r.pushTo(agentID, msg)
}

// DrainPending returns up to MaxPendingPerDrain backlog messages for
// agentID's cooperative pull, removing
// them from the backlog.
func (r *Router) DrainPending(agentID string) []models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subscriptions[agentID]
	if !ok || len(sub.pull) == 0 {
		return nil
	}
	n := len(sub.pull)
	if n > r.cfg.MaxPendingPerDrain {
		n = r.cfg.MaxPendingPerDrain
	}
	out := make([]models.Message, n)
	copy(out, sub.pull[:n])
	sub.pull = sub.pull[n:]
	return out
}

// MarkResponded records that recipient replied to messageID, updating the
// delivered->responded rolling average.
func (r *Router) MarkResponded(messageID, recipient string, respondedAt time.Time) {
	r.deliveryMu.Lock()
	defer r.deliveryMu.Unlock()
	recs, ok := r.deliveries[messageID]
	if !ok {
		return
	}
	for i := range recs {
		if recs[i].Recipient != recipient || recs[i].Status != models.DeliveryDelivered {
			continue
		}
		latency := respondedAt.Sub(recs[i].DeliveredAt)
		recs[i].Status = models.DeliveryResponded
		r.metrics.recordResponse(latency)
	}
}

// appendHistory appends msg to the bounded ring, dropping the oldest entry
// when HistoryCapacity is exceeded.
func (r *Router) appendHistory(msg models.Message) {
	r.histMu.Lock()
	defer r.histMu.Unlock()
	r.history = append(r.history, msg)
	if cap := r.cfg.HistoryCapacity; cap > 0 && len(r.history) > cap {
		r.history = r.history[len(r.history)-cap:]
	}
}

// History returns up to limit most-recent messages, optionally filtered to
// ones where agentID is sender or a recipient.
func (r *Router) History(limit int, agentID string) []models.Message {
	r.histMu.Lock()
	defer r.histMu.Unlock()

	var filtered []models.Message
	for _, m := range r.history {
		if agentID != "" && !involves(m, agentID) {
			continue
		}
		filtered = append(filtered, m)
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	out := make([]models.Message, len(filtered))
	copy(out, filtered)
	return out
}

func involves(m models.Message, agentID string) bool {
	if m.Sender == agentID {
		return true
	}
	for _, r := range m.Recipients {
		if r == agentID {
			return true
		}
	}
	return false
}

// Stats is the subset of CoordinationStats
// contributed by the router.
type Stats struct {
	Sent               uint64
	Delivered          uint64
	Failed             uint64
	Responded          uint64
	AverageRespondTime time.Duration
	EfficiencyRatio    float64
}

// Stats returns a snapshot of the router's rolling metrics.
func (r *Router) Stats() Stats {
	r.metrics.mu.Lock()
	defer r.metrics.mu.Unlock()
	s := Stats{
		Sent:      r.metrics.sent,
		Delivered: r.metrics.delivered,
		Failed:    r.metrics.failed,
		Responded: r.metrics.responded,
	}
	if r.metrics.respondSamples > 0 {
		s.AverageRespondTime = r.metrics.totalRespondTime / time.Duration(r.metrics.respondSamples)
	}
	if s.Sent > 0 {
		s.EfficiencyRatio = float64(s.Delivered) / float64(s.Sent)
	}
	return s
}

func (m *metrics) incSent() {
	m.mu.Lock()
	m.sent++
	m.mu.Unlock()
}

func (m *metrics) incDelivered() {
	m.mu.Lock()
	m.delivered++
	m.mu.Unlock()
}

func (m *metrics) incFailed() {
	m.mu.Lock()
	m.failed++
	m.mu.Unlock()
}

func (m *metrics) recordResponse(d time.Duration) {
	m.mu.Lock()
	m.responded++
	m.totalRespondTime += d
	m.respondSamples++
	m.mu.Unlock()
}
