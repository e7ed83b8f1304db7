package audit

import (
	"context"
	"time"

	id "securecard/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose so sinks can
// route and retain them differently.
type EventCategory string

const (
	// CategoryCompliance covers money movement and account lifecycle.
	CategoryCompliance EventCategory = "compliance"
	// CategorySecurity covers failed verifications, throttling and access denials.
	CategorySecurity EventCategory = "security"
	// CategoryOperations covers routine activity.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic to capture key actions. It is
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Category  EventCategory
	Timestamp time.Time
	// UserID is the user the event is about (card owner, payer, applicant).
	UserID id.UserID
	// ActorID is set when someone else acted on UserID's behalf (admin decisions).
	ActorID string
	// Subject identifies the entity acted on, e.g. a card or payment id.
	Subject   string
	Action    string
	Decision  string
	Reason    string
	Amount    string
	RequestID string
}

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListByUser(ctx context.Context, userID id.UserID) ([]Event, error)
}

type AuditEvent string

const (
	// Identity events
	EventUserRegistered AuditEvent = "user_registered"
	EventUserDeleted    AuditEvent = "user_deleted"
	EventLoginFailed    AuditEvent = "login_failed"
	EventUserLoggedIn   AuditEvent = "user_logged_in"

	// Application events
	EventApplicationSubmitted AuditEvent = "application_submitted"
	EventApplicationAccepted  AuditEvent = "application_accepted"
	EventApplicationRejected  AuditEvent = "application_rejected"

	// Card events
	EventCardCreated     AuditEvent = "card_created"
	EventCardDeactivated AuditEvent = "card_deactivated"
	EventCardDeleted     AuditEvent = "card_deleted"
	EventCardTierChanged AuditEvent = "card_tier_changed"
	EventBalanceUpdated  AuditEvent = "balance_updated"
	EventCardDeposit     AuditEvent = "card_deposit"
	EventCardBillPaid    AuditEvent = "card_bill_paid"

	// Payment events
	EventPaymentCreated     AuditEvent = "payment_created"
	EventPaymentPaid        AuditEvent = "payment_paid"
	EventPaymentRejected    AuditEvent = "payment_rejected"
	EventPaymentOTPRequired AuditEvent = "payment_otp_required"
	EventPaymentDeclined    AuditEvent = "payment_declined"

	// OTP events
	EventOTPIssued    AuditEvent = "otp_issued"
	EventOTPVerified  AuditEvent = "otp_verified"
	EventOTPFailed    AuditEvent = "otp_failed"
	EventOTPThrottled AuditEvent = "otp_throttled"

	// Support events
	EventQuerySubmitted AuditEvent = "query_submitted"
	EventQueryResolved  AuditEvent = "query_resolved"
)

var eventCategories = map[AuditEvent]EventCategory{
	EventUserRegistered:      CategoryCompliance,
	EventUserDeleted:         CategoryCompliance,
	EventApplicationAccepted: CategoryCompliance,
	EventApplicationRejected: CategoryCompliance,
	EventCardCreated:         CategoryCompliance,
	EventCardDeactivated:     CategoryCompliance,
	EventCardDeleted:         CategoryCompliance,
	EventCardTierChanged:     CategoryCompliance,
	EventBalanceUpdated:      CategoryCompliance,
	EventCardDeposit:         CategoryCompliance,
	EventCardBillPaid:        CategoryCompliance,
	EventPaymentPaid:         CategoryCompliance,
	EventPaymentRejected:     CategoryCompliance,

	EventLoginFailed:     CategorySecurity,
	EventPaymentDeclined: CategorySecurity,
	EventOTPFailed:       CategorySecurity,
	EventOTPThrottled:    CategorySecurity,
}

// Category returns the EventCategory for this audit event.
// Unknown events default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
