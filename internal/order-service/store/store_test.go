package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jcmexdev/ecommerce-choreography/internal/order-service/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "orders.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func pendingOrder(id string) domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:           id,
		CustomerName: "Ada",
		Total:        500,
		Status:       domain.StatusPending,
		Items: []domain.OrderItem{
			{ProductID: "P1", Quantity: 10, UnitPrice: 50},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, pendingOrder("o-1")); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Get(ctx, "o-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusPending {
		t.Fatalf("status = %s, want PENDING", got.Status)
	}
	if len(got.Items) != 1 || got.Items[0].ProductID != "P1" {
		t.Fatalf("items round trip failed: %+v", got.Items)
	}
	if got.Items[0].Subtotal() != 500 {
		t.Fatalf("subtotal = %v, want 500", got.Items[0].Subtotal())
	}
}

func TestGetUnknownOrder(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFinalizeTransitionsExactlyOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, pendingOrder("o-1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Finalize(ctx, "o-1", domain.StatusCompleted, "Authorized"); err != nil {
		t.Fatalf("first finalize: %v", err)
	}

	// The terminal status must not be overwritten.
	err := s.Finalize(ctx, "o-1", domain.StatusFailed, "Insufficient Funds")
	if !errors.Is(err, ErrNotPending) {
		t.Fatalf("second finalize err = %v, want ErrNotPending", err)
	}

	got, err := s.Get(ctx, "o-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.StatusCompleted || got.Reason != "Authorized" {
		t.Fatalf("order = %s/%q, want COMPLETED/Authorized", got.Status, got.Reason)
	}
}

func TestFinalizeUnknownOrder(t *testing.T) {
	s := openTestStore(t)
	err := s.Finalize(context.Background(), "ghost", domain.StatusFailed, "x")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFinalizeRejectsNonTerminalStatus(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.Create(ctx, pendingOrder("o-1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Finalize(ctx, "o-1", domain.StatusPending, ""); err == nil {
		t.Fatal("finalize to PENDING succeeded, want error")
	}
}

func TestListNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	older := pendingOrder("o-old")
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	older.UpdatedAt = older.CreatedAt
	if err := s.Create(ctx, older); err != nil {
		t.Fatalf("create old: %v", err)
	}
	if err := s.Create(ctx, pendingOrder("o-new")); err != nil {
		t.Fatalf("create new: %v", err)
	}

	orders, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orders) != 2 || orders[0].ID != "o-new" {
		t.Fatalf("unexpected list: %+v", orders)
	}
}
