package events

// Broker topology shared by every service. Queue and exchange names are part
// of the public contract between deployments and must not drift.
const (
	ExchangeOrder   = "order"
	ExchangePayment = "payment"

	KeyOrderCreated   = "order.created"
	KeyPaymentSuccess = "payment.success"
	KeyPaymentFailed  = "payment.failed"
	KeyPaymentAny     = "payment.*"

	QueueInventoryAllocate     = "inventory_allocate"
	QueueInventoryCommit       = "inventory_commit"
	QueueInventoryRelease      = "inventory_release"
	QueueInventoryPaymentWatch = "inventory_payment_update"
	QueueProcessPayment        = "process_payment"
	QueueOrderUpdates          = "order_updates"
)
