// AngelaMos | 2026
// types.go

package paypal

import (
	"encoding/json"
	"time"
)

// Subscription statuses reported by the billing API.
const (
	StatusApprovalPending = "APPROVAL_PENDING"
	StatusApproved        = "APPROVED"
	StatusActive          = "ACTIVE"
	StatusSuspended       = "SUSPENDED"
	StatusCancelled       = "CANCELLED"
	StatusExpired         = "EXPIRED"
)

// Webhook event types the API reacts to.
const (
	EventSubscriptionActivated = "BILLING.SUBSCRIPTION.ACTIVATED"
	EventSubscriptionUpdated   = "BILLING.SUBSCRIPTION.UPDATED"
	EventSubscriptionCancelled = "BILLING.SUBSCRIPTION.CANCELLED"
	EventSubscriptionSuspended = "BILLING.SUBSCRIPTION.SUSPENDED"
	EventSubscriptionExpired   = "BILLING.SUBSCRIPTION.EXPIRED"
)

const verificationSuccess = "SUCCESS"

type Subscription struct {
	ID         string      `json:"id"`
	PlanID     string      `json:"plan_id"`
	Status     string      `json:"status"`
	CustomID   string      `json:"custom_id"`
	StartTime  *time.Time  `json:"start_time,omitempty"`
	Subscriber *Subscriber `json:"subscriber,omitempty"`
}

// Paid reports whether the provider considers the subscription settled.
func (s *Subscription) Paid() bool {
	return s.Status == StatusActive || s.Status == StatusApproved
}

type Subscriber struct {
	EmailAddress string `json:"email_address"`
	PayerID      string `json:"payer_id"`
}

// Event is a webhook delivery envelope. Resource is decoded according to
// ResourceType by the receiver.
type Event struct {
	ID           string          `json:"id"`
	EventType    string          `json:"event_type"`
	ResourceType string          `json:"resource_type"`
	Summary      string          `json:"summary"`
	CreateTime   time.Time       `json:"create_time"`
	Resource     json.RawMessage `json:"resource"`
}

// SubscriptionResource decodes Resource for BILLING.SUBSCRIPTION.* events.
func (e *Event) SubscriptionResource() (*Subscription, error) {
	var sub Subscription
	if err := json.Unmarshal(e.Resource, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

type verifySignatureRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

type verifySignatureResponse struct {
	VerificationStatus string `json:"verification_status"`
}
