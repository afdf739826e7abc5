package payment

import (
	"context"
	"math/rand/v2"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/order"
)

// Config holds payment simulator settings.
type Config struct {
	// SuccessRate is the probability in [0, 1] that a charge succeeds.
	SuccessRate float64
}

// Service simulates a payment gateway.
type Service struct {
	orders   Orders
	carts    Carts
	notifier Notifier
	rate     float64

	// draw returns a value in [0, 1); a charge succeeds when it is below rate.
	draw func() float64

	tracer   trace.Tracer
	outcomes metric.Int64Counter
}

// NewService creates a payment Service.
func NewService(
	orders Orders,
	carts Carts,
	notifier Notifier,
	cfg Config,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (*Service, error) {
	if cfg.SuccessRate < 0 || cfg.SuccessRate > 1 {
		return nil, errors.Errorf("success rate %v out of range [0, 1]", cfg.SuccessRate)
	}
	outcomes, err := mp.Meter("storefront/payment").Int64Counter("storefront.payments",
		metric.WithDescription("Payment confirmations by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "payments counter")
	}
	return &Service{
		orders:   orders,
		carts:    carts,
		notifier: notifier,
		rate:     cfg.SuccessRate,
		draw:     rand.Float64,
		tracer:   tp.Tracer("storefront/payment"),
		outcomes: outcomes,
	}, nil
}

// CreateIntent prepares a simulated charge for a pending order owned by
// accountID.
func (s *Service) CreateIntent(ctx context.Context, orderID, accountID string) (*Intent, error) {
	o, err := s.owned(ctx, orderID, accountID)
	if err != nil {
		return nil, err
	}
	if o.Status != order.StatusPending {
		return nil, &order.StateError{Op: "create payment intent for", Status: o.Status}
	}

	id := "pi_" + randomToken()
	return &Intent{
		ID:           id,
		ClientSecret: id + "_secret_" + randomToken(),
		Amount:       o.Total,
		Currency:     "usd",
	}, nil
}

// Confirm charges the order. On success the order becomes paid, the
// owner's cart is cleared and a confirmation is queued; neither follow-up
// can fail the payment. Confirming an already paid order succeeds without
// drawing a new outcome.
func (s *Service) Confirm(ctx context.Context, orderID, accountID string, method order.PaymentMethod) (_ *Result, rerr error) {
	ctx, span := s.tracer.Start(ctx, "payment.Confirm",
		trace.WithAttributes(attribute.String("order.id", orderID)),
	)
	defer func() {
		if rerr != nil && !errors.Is(rerr, ErrDeclined) {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	o, err := s.owned(ctx, orderID, accountID)
	if err != nil {
		return nil, err
	}
	if !method.Valid() {
		return nil, &order.InvalidInputError{Field: "paymentMethod", Reason: "unsupported payment method"}
	}

	switch o.Status {
	case order.StatusPaid:
		s.record(ctx, "already_paid")
		return &Result{Order: o, AlreadyPaid: true}, nil
	case order.StatusPending:
	default:
		return nil, &order.StateError{Op: "pay", Status: o.Status}
	}

	if s.draw() >= s.rate {
		s.record(ctx, "declined")
		span.SetAttributes(attribute.Bool("payment.declined", true))
		return nil, ErrDeclined
	}

	paid, err := s.orders.MarkPaid(ctx, orderID, method)
	if err != nil {
		if errors.Is(err, order.ErrStatusChanged) {
			return s.raced(ctx, orderID)
		}
		return nil, errors.Wrap(err, "mark paid")
	}
	s.record(ctx, "paid")

	lg := zctx.From(ctx)
	if err := s.carts.Clear(ctx, accountID); err != nil {
		lg.Warn("Clear cart after payment",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
	}
	s.notifier.Notify(paid)

	return &Result{Order: paid}, nil
}

// Status reports the payment state of an order owned by accountID.
func (s *Service) Status(ctx context.Context, orderID, accountID string) (*Status, error) {
	o, err := s.owned(ctx, orderID, accountID)
	if err != nil {
		return nil, err
	}
	return &Status{Status: o.Status, Paid: o.Status == order.StatusPaid}, nil
}

// raced resolves a conditional write that lost to a concurrent change. A
// concurrent confirmation that already paid the order counts as success.
func (s *Service) raced(ctx context.Context, orderID string) (*Result, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == order.StatusPaid {
		s.record(ctx, "already_paid")
		return &Result{Order: o, AlreadyPaid: true}, nil
	}
	return nil, &order.StateError{Op: "pay", Status: o.Status}
}

func (s *Service) owned(ctx context.Context, orderID, accountID string) (*order.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.AccountID != accountID {
		return nil, auth.ErrForbidden
	}
	return o, nil
}

func (s *Service) record(ctx context.Context, outcome string) {
	s.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func randomToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
}
