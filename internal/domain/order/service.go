package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/domain/product"
)

// maxNumberAttempts bounds order number regeneration on collisions.
const maxNumberAttempts = 3

// LineRequest is a requested line item. Prices always come from the
// catalog.
type LineRequest struct {
	ProductID string
	Quantity  int
}

// CreateRequest holds the input for placing an order.
type CreateRequest struct {
	AccountID       string
	Items           []LineRequest
	ShippingAddress ShippingAddress
	PaymentMethod   PaymentMethod
}

// Service encapsulates order placement and lifecycle rules.
type Service struct {
	products product.Repository
	orders   Repository

	newNumber func() string
	now       func() time.Time

	tracer  trace.Tracer
	created metric.Int64Counter
	changes metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	orders Repository,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
) (*Service, error) {
	meter := mp.Meter("storefront/order")
	created, err := meter.Int64Counter("storefront.orders.created",
		metric.WithDescription("Orders placed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "orders created counter")
	}
	changes, err := meter.Int64Counter("storefront.orders.status_changes",
		metric.WithDescription("Order status transitions"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "status changes counter")
	}

	return &Service{
		products:  products,
		orders:    orders,
		newNumber: NewNumber,
		now:       time.Now,
		tracer:    tp.Tracer("storefront/order"),
		created:   created,
		changes:   changes,
	}, nil
}

// Create validates items against the live catalog, prices them from the
// catalog, and persists the order together with its stock decrements.
func (s *Service) Create(ctx context.Context, req CreateRequest) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Create",
		trace.WithAttributes(attribute.Int("order.items", len(req.Items))),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if err := validateCreate(req); err != nil {
		return nil, err
	}

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		ids[i] = item.ProductID
	}

	// Batch fetch all products in a single query.
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	// Quantities are summed per product so repeated lines are checked
	// against stock as a whole.
	requested := make(map[string]int, len(req.Items))
	items := make([]Item, len(req.Items))
	for i, line := range req.Items {
		p, ok := productMap[line.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: line.ProductID}
		}
		requested[p.ID] += line.Quantity
		if p.Stock < requested[p.ID] {
			return nil, &product.InsufficientStockError{
				ProductID: p.ID,
				Name:      p.Name,
				Available: p.Stock,
				Requested: requested[p.ID],
			}
		}
		items[i] = Item{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  line.Quantity,
			Price:     p.Price,
		}
	}

	now := s.now().UTC()
	o := &Order{
		ID:              uuid.New().String(),
		AccountID:       req.AccountID,
		Items:           items,
		Total:           calcSubtotal(items),
		ShippingAddress: trimAddress(req.ShippingAddress),
		PaymentMethod:   req.PaymentMethod,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	for attempt := 1; ; attempt++ {
		o.Number = s.newNumber()
		err := s.orders.Place(ctx, o)
		if err == nil {
			break
		}
		if errors.Is(err, ErrDuplicateNumber) && attempt < maxNumberAttempts {
			continue
		}
		if errors.Is(err, product.ErrInsufficientStock) {
			return nil, err
		}
		return nil, errors.Wrap(err, "place order")
	}

	s.created.Add(ctx, 1)
	span.SetAttributes(attribute.String("order.number", o.Number))
	return o, nil
}

// Get returns an order visible to the principal.
func (s *Service) Get(ctx context.Context, id string, p auth.Principal) (*Order, error) {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.CanAccess(o.AccountID) {
		return nil, auth.ErrForbidden
	}
	return o, nil
}

// ListMine returns the account's orders, newest first.
func (s *Service) ListMine(ctx context.Context, accountID string) ([]Order, error) {
	orders, err := s.orders.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return orders, nil
}

// ListAll returns every order, newest first. Callers must restrict it to
// administrators.
func (s *Service) ListAll(ctx context.Context) ([]Order, error) {
	orders, err := s.orders.ListAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list all orders")
	}
	return orders, nil
}

// UpdateStatus moves an order to the requested status. Owners may only
// cancel; administrators may make any transition the lifecycle allows.
// Writing the current status again is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, id string, p auth.Principal, to Status) (*Order, error) {
	if !to.Valid() {
		return nil, &InvalidInputError{Field: "status", Reason: "unknown status " + string(to)}
	}

	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.CanAccess(o.AccountID) {
		return nil, auth.ErrForbidden
	}
	if o.Status == to {
		return o, nil
	}
	if !p.IsAdmin() && to != StatusCancelled {
		return nil, auth.ErrForbidden
	}
	if !CanTransition(o.Status, to) {
		return nil, &InvalidTransitionError{From: o.Status, To: to}
	}

	updated, err := s.orders.Transition(ctx, id, o.Status, to, to == StatusCancelled)
	if err != nil {
		return nil, errors.Wrap(err, "transition order")
	}

	s.changes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(o.Status)),
		attribute.String("to", string(to)),
	))
	return updated, nil
}

// Delete removes a pending or cancelled order owned by the principal.
// Deleting a pending order returns its quantities to stock; cancelled
// orders already did so when they were cancelled.
func (s *Service) Delete(ctx context.Context, id string, p auth.Principal) error {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return err
	}
	if o.AccountID != p.AccountID {
		return auth.ErrForbidden
	}
	if !o.Status.Deletable() {
		return &StateError{Op: "delete", Status: o.Status}
	}
	if err := s.orders.Delete(ctx, id, o.Status, o.Status == StatusPending); err != nil {
		return errors.Wrap(err, "delete order")
	}
	return nil
}

func validateCreate(req CreateRequest) error {
	if req.AccountID == "" {
		return auth.ErrUnauthenticated
	}
	if len(req.Items) == 0 {
		return ErrEmptyItems
	}
	for _, item := range req.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return &InvalidInputError{Field: "productId", Reason: "required"}
		}
		if item.Quantity <= 0 || item.Quantity > product.MaxStock {
			return &InvalidQuantityError{ProductID: item.ProductID}
		}
	}

	a := req.ShippingAddress
	for _, f := range []struct {
		name, value string
	}{
		{"shippingAddress.name", a.Name},
		{"shippingAddress.address", a.Address},
		{"shippingAddress.city", a.City},
		{"shippingAddress.postalCode", a.PostalCode},
		{"shippingAddress.phone", a.Phone},
	} {
		if strings.TrimSpace(f.value) == "" {
			return &InvalidInputError{Field: f.name, Reason: "required"}
		}
	}

	if !req.PaymentMethod.Valid() {
		return &InvalidInputError{Field: "paymentMethod", Reason: "unsupported payment method"}
	}
	return nil
}

func trimAddress(a ShippingAddress) ShippingAddress {
	return ShippingAddress{
		Name:       strings.TrimSpace(a.Name),
		Address:    strings.TrimSpace(a.Address),
		City:       strings.TrimSpace(a.City),
		PostalCode: strings.TrimSpace(a.PostalCode),
		Phone:      strings.TrimSpace(a.Phone),
	}
}
