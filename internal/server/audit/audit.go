// Package audit ships administrative actions to a fanout exchange. Delivery is
// fire-and-forget: a slow or unavailable broker never blocks a request.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dmitrijs2005/tmssession/internal/logging"
	"github.com/dmitrijs2005/tmssession/internal/server/metrics"
	"github.com/dmitrijs2005/tmssession/internal/server/models"
	"github.com/streadway/amqp"
)

const DefaultExchange = "tms.audit"

// Publisher publishes one message body to an exchange.
type Publisher interface {
	Publish(exchange string, body []byte) error
	Close()
}

type AMQPPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel

	mu       sync.Mutex
	declared map[string]bool
}

// NewAMQPPublisher connects to the broker at amqpURL.
func NewAMQPPublisher(amqpURL string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &AMQPPublisher{conn: conn, channel: ch, declared: map[string]bool{}}, nil
}

func (p *AMQPPublisher) Publish(exchange string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.declared[exchange] {
		if err := p.channel.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
			return err
		}
		p.declared[exchange] = true
	}
	return p.channel.Publish(exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

func (p *AMQPPublisher) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// Recorder queues audit entries for a background publisher. Every entry is
// also written to the structured log, so nothing is lost silently when no
// broker is configured.
type Recorder struct {
	pub      Publisher
	exchange string
	log      logging.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	mu     sync.RWMutex
	closed bool
	queue  chan models.AuditEntry
	done   chan struct{}
}

// NewRecorder starts the publishing goroutine. pub may be nil, in which case
// entries are only logged.
func NewRecorder(pub Publisher, exchange string, buffer int, log logging.Logger, m *metrics.Metrics) *Recorder {
	if log == nil {
		log = logging.Nop()
	}
	if exchange == "" {
		exchange = DefaultExchange
	}
	if buffer <= 0 {
		buffer = 256
	}
	r := &Recorder{
		pub:      pub,
		exchange: exchange,
		log:      log.With("module", "audit"),
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
		queue:    make(chan models.AuditEntry, buffer),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

// Record enqueues e. It never blocks; when the queue is full the entry is
// dropped and counted.
func (r *Recorder) Record(ctx context.Context, e models.AuditEntry) {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = r.now()
	}
	r.log.Info(ctx, "audit", "actor_id", e.ActorID, "action", e.Action,
		"target_type", e.TargetType, "target_id", e.TargetID)

	if r.pub == nil {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.metrics.IncAuditDropped()
		return
	}
	select {
	case r.queue <- e:
	default:
		r.metrics.IncAuditDropped()
		r.log.Warn(ctx, "audit queue full, entry dropped", "action", e.Action)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for e := range r.queue {
		body, err := json.Marshal(e)
		if err != nil {
			r.metrics.IncAuditDropped()
			continue
		}
		if err := r.pub.Publish(r.exchange, body); err != nil {
			r.metrics.IncAuditDropped()
			r.log.Warn(context.Background(), "audit publish failed", "action", e.Action, "error", err)
		}
	}
}

// Close drains the queue and closes the publisher.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done
	if r.pub != nil {
		r.pub.Close()
	}
}
