package notification

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/account"
	"github.com/xenking/storefront/internal/domain/order"
)

// Mailer delivers rendered messages through a mail relay.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// Accounts resolves the recipient of a confirmation.
type Accounts interface {
	GetByID(ctx context.Context, id string) (*account.Account, error)
}

// Config controls the dispatcher worker pool.
type Config struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
	Pricing     order.Pricing
}

// Dispatcher sends order confirmations in the background. Delivery is
// best effort: failures are logged and counted, never returned.
type Dispatcher struct {
	lg       *zap.Logger
	accounts Accounts
	mailer   Mailer
	pricing  order.Pricing
	timeout  time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan *order.Order
	wg     sync.WaitGroup

	results metric.Int64Counter
}

// NewDispatcher starts the worker pool. Call Close to stop it.
func NewDispatcher(lg *zap.Logger, accounts Accounts, mailer Mailer, cfg Config, mp metric.MeterProvider) (*Dispatcher, error) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	results, err := mp.Meter("storefront/notification").Int64Counter("storefront.notifications",
		metric.WithDescription("Order confirmation deliveries by result"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "notifications counter")
	}

	d := &Dispatcher{
		lg:       lg,
		accounts: accounts,
		mailer:   mailer,
		pricing:  cfg.Pricing,
		timeout:  cfg.SendTimeout,
		queue:    make(chan *order.Order, cfg.QueueSize),
		results:  results,
	}
	for range cfg.Workers {
		d.wg.Add(1)
		go d.work()
	}
	return d, nil
}

// Notify queues a confirmation for o. It never blocks: when the queue is
// full or the dispatcher is closed the notification is dropped.
func (d *Dispatcher) Notify(o *order.Order) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(o, "dispatcher closed")
		return
	}
	select {
	case d.queue <- o:
	default:
		d.drop(o, "queue full")
	}
}

// Close stops accepting notifications, delivers what is queued and waits
// for the workers to exit.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for o := range d.queue {
		d.deliver(o)
	}
}

func (d *Dispatcher) deliver(o *order.Order) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	lg := d.lg.With(
		zap.String("order_id", o.ID),
		zap.String("order_number", o.Number),
	)
	if err := d.send(ctx, o); err != nil {
		d.record(ctx, "failed")
		lg.Error("Send order confirmation", zap.Error(err))
		return
	}
	d.record(ctx, "sent")
	lg.Debug("Order confirmation sent")
}

func (d *Dispatcher) send(ctx context.Context, o *order.Order) error {
	a, err := d.accounts.GetByID(ctx, o.AccountID)
	if err != nil {
		return errors.Wrap(err, "get account")
	}
	if a.Email == "" {
		return errors.New("account has no email")
	}
	msg, err := RenderConfirmation(a.Email, o, d.pricing)
	if err != nil {
		return err
	}
	if err := d.mailer.Send(ctx, msg); err != nil {
		return errors.Wrap(err, "send mail")
	}
	return nil
}

func (d *Dispatcher) drop(o *order.Order, reason string) {
	d.record(context.Background(), "dropped")
	d.lg.Warn("Order confirmation dropped",
		zap.String("order_id", o.ID),
		zap.String("reason", reason),
	)
}

func (d *Dispatcher) record(ctx context.Context, result string) {
	d.results.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
