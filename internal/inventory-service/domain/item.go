package domain

// DefaultStockLevel is the on-hand quantity given to a product the first time
// it is referenced by an order.
const DefaultStockLevel = 100

// InventoryItem is the durable reservation record for one product. The
// invariant QuantityReserved <= QuantityOnHand holds after every successful
// mutation; an allocation that would break it is rejected.
type InventoryItem struct {
	ID               string
	ProductID        string
	QuantityOnHand   int
	QuantityReserved int
}

// Available is the quantity that can still be reserved.
func (i InventoryItem) Available() int {
	return i.QuantityOnHand - i.QuantityReserved
}
