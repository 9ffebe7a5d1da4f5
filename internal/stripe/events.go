// internal/stripe/events.go
package stripe

// Event types the rules and reports care about. Others are stored as well.
const (
	PaymentIntentSucceeded     = "payment_intent.succeeded"
	PaymentIntentPaymentFailed = "payment_intent.payment_failed"
	ChargeSucceeded            = "charge.succeeded"
	ChargeFailed               = "charge.failed"
	ChargeRefunded             = "charge.refunded"
	SubscriptionCreated        = "customer.subscription.created"
	SubscriptionUpdated        = "customer.subscription.updated"
	SubscriptionDeleted        = "customer.subscription.deleted"
	InvoicePaymentSucceeded    = "invoice.payment_succeeded"
	InvoicePaymentFailed       = "invoice.payment_failed"
)

var interested = map[string]bool{
	PaymentIntentSucceeded:     true,
	PaymentIntentPaymentFailed: true,
	ChargeSucceeded:            true,
	ChargeFailed:               true,
	ChargeRefunded:             true,
	SubscriptionCreated:        true,
	SubscriptionUpdated:        true,
	SubscriptionDeleted:        true,
	InvoicePaymentSucceeded:    true,
	InvoicePaymentFailed:       true,
}

// OtherType is the metric label for event types outside the set above.
const OtherType = "other"

// Interested reports whether eventType is one of the operational signals
// above.
func Interested(eventType string) bool {
	return interested[eventType]
}

// TypeLabel returns eventType for the types above and OtherType for the
// rest, keeping the metric label set bounded.
func TypeLabel(eventType string) string {
	if Interested(eventType) {
		return eventType
	}
	return OtherType
}
