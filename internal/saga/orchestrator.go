// Package saga decides the fate of one order: reserve stock for every
// item or reject the whole order, compensating any partial reservation.
package saga

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/espe-commerce/inventory-service-go/internal/stock"
)

// OrderRequest is the saga input. Items are already validated by the
// consumer boundary (non-empty product, positive quantity).
type OrderRequest struct {
	OrderID       string
	CorrelationID string
	Items         []stock.Line
}

// Outcome is the terminal result of one processed order. Exactly one of
// the two variants applies: Reserved holds the reserved lines on
// success, Reason is set on rejection.
type Outcome struct {
	OrderID       string
	CorrelationID string
	Reserved      []stock.Line
	Reason        string
	DecidedAt     time.Time
}

func (o Outcome) Rejected() bool { return o.Reason != "" }

// Ledger is the subset of the stock repository the saga drives. All
// mutation of stock counters goes through it.
type Ledger interface {
	CheckAvailability(ctx context.Context, productID string, quantity int) (bool, error)
	Reserve(ctx context.Context, productID string, quantity int) error
	Release(ctx context.Context, productID string, quantity int) error
}

// OutcomePublisher emits the decided outcome downstream.
type OutcomePublisher interface {
	PublishStockReserved(ctx context.Context, orderID, correlationID string, items []stock.Line, reservedAt time.Time) error
	PublishStockRejected(ctx context.Context, orderID, correlationID, reason string, rejectedAt time.Time) error
}

// Orchestrator runs the reservation saga. Business shortfalls become
// Rejected outcomes; infrastructure failures are returned as errors so
// the consumer can apply its own acknowledgement policy. Completed
// orders are remembered by orderID so redelivered messages do not
// double-decrement stock.
type Orchestrator struct {
	ledger Ledger
	pub    OutcomePublisher
	logger *log.Logger

	mu        sync.Mutex
	completed map[string]Outcome
}

func NewOrchestrator(ledger Ledger, pub OutcomePublisher, logger *log.Logger) *Orchestrator {
	return &Orchestrator{
		ledger:    ledger,
		pub:       pub,
		logger:    logger,
		completed: make(map[string]Outcome),
	}
}

// ProcessOrder decides and publishes exactly one outcome for the order,
// or returns an error with no outcome published. A redelivered order is
// not re-reserved; its recorded outcome is published again.
func (o *Orchestrator) ProcessOrder(ctx context.Context, req OrderRequest) (Outcome, error) {
	if req.OrderID == "" {
		return Outcome{}, errors.New("orderID is required")
	}

	o.mu.Lock()
	prev, done := o.completed[req.OrderID]
	o.mu.Unlock()
	if done {
		o.logger.Printf("order %s already processed, re-emitting outcome", req.OrderID)
		if err := o.publish(ctx, prev); err != nil {
			return Outcome{}, fmt.Errorf("republish outcome for order %s: %w", req.OrderID, err)
		}
		return prev, nil
	}

	out, err := o.decide(ctx, req)
	if err != nil {
		return Outcome{}, err
	}

	o.mu.Lock()
	o.completed[req.OrderID] = out
	o.mu.Unlock()

	if err := o.publish(ctx, out); err != nil {
		return Outcome{}, fmt.Errorf("publish outcome for order %s: %w", req.OrderID, err)
	}
	return out, nil
}

func (o *Orchestrator) decide(ctx context.Context, req OrderRequest) (Outcome, error) {
	if len(req.Items) == 0 {
		return o.rejected(req, "order has no valid items"), nil
	}

	// Advisory screen: short-circuit obviously doomed orders before
	// taking any row locks. Correctness comes from the locked re-check
	// inside Reserve, not from this pass.
	for _, it := range req.Items {
		ok, err := o.ledger.CheckAvailability(ctx, it.ProductID, it.Quantity)
		if err != nil {
			return Outcome{}, fmt.Errorf("availability check for %s: %w", it.ProductID, err)
		}
		if !ok {
			return o.rejected(req, fmt.Sprintf("insufficient stock for product %s", it.ProductID)), nil
		}
	}

	// Committal phase. Locks are always taken in ascending productID
	// order so overlapping orders cannot deadlock against each other.
	items := make([]stock.Line, len(req.Items))
	copy(items, req.Items)
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

	reserved := make([]stock.Line, 0, len(items))
	for _, it := range items {
		err := o.ledger.Reserve(ctx, it.ProductID, it.Quantity)
		if err == nil {
			reserved = append(reserved, it)
			continue
		}

		// Whatever failed, already-committed reservations must be
		// unwound before anything else happens. A failed release
		// leaves the ledger inconsistent with every outcome we could
		// publish, so it escalates and suppresses the outcome.
		if compErr := o.compensate(ctx, req.OrderID, reserved); compErr != nil {
			return Outcome{}, fmt.Errorf("order %s left partially reserved after %v: %w", req.OrderID, err, compErr)
		}

		switch {
		case errors.Is(err, stock.ErrInsufficientStock):
			return o.rejected(req, fmt.Sprintf("insufficient stock for product %s", it.ProductID)), nil
		case errors.Is(err, stock.ErrNotFound):
			return o.rejected(req, fmt.Sprintf("unknown product %s", it.ProductID)), nil
		default:
			return Outcome{}, fmt.Errorf("reserve %s for order %s: %w", it.ProductID, req.OrderID, err)
		}
	}

	return Outcome{
		OrderID:       req.OrderID,
		CorrelationID: req.CorrelationID,
		Reserved:      reserved,
		DecidedAt:     time.Now().UTC(),
	}, nil
}

// compensate releases reservations in reverse acquisition order.
func (o *Orchestrator) compensate(ctx context.Context, orderID string, reserved []stock.Line) error {
	for i := len(reserved) - 1; i >= 0; i-- {
		ln := reserved[i]
		if err := o.ledger.Release(ctx, ln.ProductID, ln.Quantity); err != nil {
			return fmt.Errorf("release %d of product %s: %w", ln.Quantity, ln.ProductID, err)
		}
		o.logger.Printf("order %s: compensated %d of product %s", orderID, ln.Quantity, ln.ProductID)
	}
	return nil
}

func (o *Orchestrator) rejected(req OrderRequest, reason string) Outcome {
	return Outcome{
		OrderID:       req.OrderID,
		CorrelationID: req.CorrelationID,
		Reason:        reason,
		DecidedAt:     time.Now().UTC(),
	}
}

func (o *Orchestrator) publish(ctx context.Context, out Outcome) error {
	if out.Rejected() {
		return o.pub.PublishStockRejected(ctx, out.OrderID, out.CorrelationID, out.Reason, out.DecidedAt)
	}
	return o.pub.PublishStockReserved(ctx, out.OrderID, out.CorrelationID, out.Reserved, out.DecidedAt)
}
