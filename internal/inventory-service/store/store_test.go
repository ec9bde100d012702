package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jcmexdev/ecommerce-choreography/internal/events"
	"github.com/jcmexdev/ecommerce-choreography/internal/inventory-service/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "inventory.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustGet(t *testing.T, s *Store, productID string) domain.InventoryItem {
	t.Helper()
	item, found, err := s.Get(context.Background(), productID)
	if err != nil {
		t.Fatalf("get %s: %v", productID, err)
	}
	if !found {
		t.Fatalf("product %s not found", productID)
	}
	return item
}

func TestAllocateAutoProvisionsUnknownProduct(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ok, err := s.Allocate(ctx, "order-1", []events.OrderItem{{ProductID: "P1", Quantity: 10}})
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if !ok {
		t.Fatal("allocation rejected, want accepted")
	}

	item := mustGet(t, s, "P1")
	if item.QuantityOnHand != domain.DefaultStockLevel {
		t.Fatalf("on hand = %d, want default %d", item.QuantityOnHand, domain.DefaultStockLevel)
	}
	if item.QuantityReserved != 10 {
		t.Fatalf("reserved = %d, want 10", item.QuantityReserved)
	}
}

func TestAllocateIsAllOrNothing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	seed := domain.InventoryItem{ProductID: "P1", QuantityOnHand: 100}
	if err := s.Upsert(ctx, seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Second item exceeds the default stock level, so the whole allocation
	// must be rejected with zero reservations changed.
	ok, err := s.Allocate(ctx, "order-1", []events.OrderItem{
		{ProductID: "P1", Quantity: 10},
		{ProductID: "P2", Quantity: domain.DefaultStockLevel + 50},
	})
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if ok {
		t.Fatal("allocation accepted, want rejected")
	}

	if got := mustGet(t, s, "P1").QuantityReserved; got != 0 {
		t.Fatalf("partial reservation observed: P1 reserved = %d, want 0", got)
	}
}

func TestAllocateRejectsInsufficientStock(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, domain.InventoryItem{ProductID: "P1", QuantityOnHand: 100}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ok, err := s.Allocate(ctx, "order-1", []events.OrderItem{{ProductID: "P1", Quantity: 150}})
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if ok {
		t.Fatal("allocation of 150 with 100 on hand accepted")
	}

	item := mustGet(t, s, "P1")
	if item.QuantityOnHand != 100 || item.QuantityReserved != 0 {
		t.Fatalf("reservation record changed: on hand %d reserved %d", item.QuantityOnHand, item.QuantityReserved)
	}
}

func TestAllocateDuplicateDeliveryDoesNotDoubleReserve(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	items := []events.OrderItem{{ProductID: "P1", Quantity: 10}}

	for i := 0; i < 2; i++ {
		ok, err := s.Allocate(ctx, "order-1", items)
		if err != nil || !ok {
			t.Fatalf("allocate #%d: ok=%v err=%v", i+1, ok, err)
		}
	}

	if got := mustGet(t, s, "P1").QuantityReserved; got != 10 {
		t.Fatalf("reserved = %d after duplicate allocate, want 10", got)
	}
}

func TestCommitIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	items := []events.OrderItem{{ProductID: "P1", Quantity: 10}}

	if _, err := s.Allocate(ctx, "order-1", items); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := s.Commit(ctx, "order-1", items); err != nil {
			t.Fatalf("commit #%d: %v", i+1, err)
		}
	}

	item := mustGet(t, s, "P1")
	if item.QuantityOnHand != domain.DefaultStockLevel-10 {
		t.Fatalf("on hand = %d, want %d", item.QuantityOnHand, domain.DefaultStockLevel-10)
	}
	if item.QuantityReserved != 0 {
		t.Fatalf("reserved = %d, want 0", item.QuantityReserved)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	items := []events.OrderItem{{ProductID: "P1", Quantity: 10}}

	if _, err := s.Allocate(ctx, "order-1", items); err != nil {
		t.Fatalf("allocate: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := s.Release(ctx, "order-1", items); err != nil {
			t.Fatalf("release #%d: %v", i+1, err)
		}
	}

	item := mustGet(t, s, "P1")
	if item.QuantityOnHand != domain.DefaultStockLevel {
		t.Fatalf("on hand = %d, want unchanged %d", item.QuantityOnHand, domain.DefaultStockLevel)
	}
	if item.QuantityReserved != 0 {
		t.Fatalf("reserved = %d, want 0", item.QuantityReserved)
	}
}

func TestCommitToleratesMissingRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.Commit(ctx, "order-x", []events.OrderItem{{ProductID: "ghost", Quantity: 3}})
	if err != nil {
		t.Fatalf("commit with missing record: %v", err)
	}
	if _, found, _ := s.Get(ctx, "ghost"); found {
		t.Fatal("commit must not create reservation records")
	}
}

func TestReservedNeverExceedsOnHand(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	items := []events.OrderItem{{ProductID: "P1", Quantity: 60}}

	if ok, _ := s.Allocate(ctx, "order-1", items); !ok {
		t.Fatal("first allocation should succeed")
	}
	// 60 of 100 reserved; another 60 must be rejected.
	if ok, _ := s.Allocate(ctx, "order-2", items); ok {
		t.Fatal("second allocation should be rejected")
	}

	item := mustGet(t, s, "P1")
	if item.QuantityReserved > item.QuantityOnHand {
		t.Fatalf("invariant violated: reserved %d > on hand %d", item.QuantityReserved, item.QuantityOnHand)
	}
}

func TestListOrdersByProduct(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, p := range []string{"b", "a", "c"} {
		if err := s.Upsert(ctx, domain.InventoryItem{ProductID: p, QuantityOnHand: 1}); err != nil {
			t.Fatalf("upsert %s: %v", p, err)
		}
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].ProductID != "a" || list[2].ProductID != "c" {
		t.Fatalf("unexpected list order: %+v", list)
	}
}

func TestCommitWithoutAllocationLeavesStockAlone(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, domain.InventoryItem{ProductID: "P1", QuantityOnHand: 100}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// Nothing reserved for this order, so there is nothing to commit.
	if err := s.Commit(ctx, "order-1", []events.OrderItem{{ProductID: "P1", Quantity: 150}}); err != nil {
		t.Fatalf("commit: %v", err)
	}

	item := mustGet(t, s, "P1")
	if item.QuantityOnHand != 100 || item.QuantityReserved != 0 {
		t.Fatalf("stock changed: on hand %d reserved %d, want 100/0", item.QuantityOnHand, item.QuantityReserved)
	}
}
