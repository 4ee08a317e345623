package notify

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryState tracks one webhook delivery through its lifecycle.
type DeliveryState string

const (
	DeliveryPending    DeliveryState = "pending"
	DeliveryDelivering DeliveryState = "delivering"
	DeliveryDelivered  DeliveryState = "delivered"
	DeliveryFailed     DeliveryState = "failed"
	DeliveryDead       DeliveryState = "dlq"
)

// Endpoint is one registered webhook receiver.
type Endpoint struct {
	ID        uuid.UUID `json:"id"`
	URL       string    `json:"url"`
	Secret    string    `json:"-"`
	Topics    []string  `json:"topics"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Delivery is one scheduled attempt series for an event against an endpoint.
type Delivery struct {
	ID             uuid.UUID     `json:"id"`
	EndpointID     uuid.UUID     `json:"endpointId"`
	EventID        uuid.UUID     `json:"eventId"`
	State          DeliveryState `json:"state"`
	Attempt        int           `json:"attempt"`
	MaxAttempt     int           `json:"maxAttempt"`
	NextRunAt      time.Time     `json:"nextRunAt"`
	LastError      string        `json:"lastError,omitempty"`
	ResponseStatus int           `json:"responseStatus,omitempty"`
	ResponseBody   string        `json:"responseBody,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// DLQEntry records a delivery that exhausted its attempts.
type DLQEntry struct {
	ID         uuid.UUID `json:"id"`
	DeliveryID uuid.UUID `json:"deliveryId"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"createdAt"`
}
