package model

import "time"

// Delivery outcome values recorded in the history table.
const (
	DeliveryStatusDelivered = "delivered"
	DeliveryStatusTransient = "failed-transient"
	DeliveryStatusPermanent = "failed-permanent"
)

// NotificationHistory is the audit record of one delivery attempt.
type NotificationHistory struct {
	ID             int64     `gorm:"primaryKey" json:"id"`
	SubscriptionID string    `gorm:"index;not null" json:"subscriptionId"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	Type           string    `json:"type"`
	Status         string    `json:"status"`
	HTTPStatus     int       `json:"httpStatus"`
	SentAt         time.Time `gorm:"index;not null" json:"sentAt"`
}
