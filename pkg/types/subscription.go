package types

// SubscriptionStatus mirrors the gateway's subscription lifecycle verbatim.
// The local row is a read cache; the gateway is the source of truth.
type SubscriptionStatus string

const (
	SubscriptionStatusNotStarted SubscriptionStatus = "not_started"
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
	SubscriptionStatusTrialing   SubscriptionStatus = "trialing"
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled   SubscriptionStatus = "canceled"
	SubscriptionStatusUnpaid     SubscriptionStatus = "unpaid"
)

// Member reports whether the status grants membership benefits
// (shop discount, free shipping).
func (s SubscriptionStatus) Member() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrialing
}

// BlocksNewSubscription reports whether a second subscription checkout must
// be refused for a customer in this status.
func (s SubscriptionStatus) BlocksNewSubscription() bool {
	switch s {
	case SubscriptionStatusActive, SubscriptionStatusTrialing, SubscriptionStatusPastDue, SubscriptionStatusUnpaid:
		return true
	}
	return false
}
