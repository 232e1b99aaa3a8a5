package model

import "time"

// PushSubscription holds the information for a browser push subscription.
type PushSubscription struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Endpoint  string    `gorm:"uniqueIndex;not null" json:"endpoint"`
	P256DH    string    `gorm:"column:p256dh;not null" json:"-"`
	Auth      string    `gorm:"not null" json:"-"`
	CreatedAt time.Time `gorm:"not null" json:"created"`
	UpdatedAt time.Time `json:"-"`

	// Associations
	Preferences []Preference `gorm:"foreignKey:SubscriptionID;constraint:OnDelete:CASCADE" json:"-"`
}

// Preference records whether a subscriber wants notifications of one
// category. Categories a subscriber never recorded a row for fall back
// to the configured default.
type Preference struct {
	ID             int64  `gorm:"primaryKey"`
	SubscriptionID string `gorm:"uniqueIndex:idx_sub_category;not null"`
	Category       string `gorm:"uniqueIndex:idx_sub_category;not null"`
	Enabled        bool   `gorm:"not null"`
}

// PreferenceMap flattens the preference rows into a category lookup.
func (s *PushSubscription) PreferenceMap() map[string]bool {
	m := make(map[string]bool, len(s.Preferences))
	for _, p := range s.Preferences {
		m[p.Category] = p.Enabled
	}
	return m
}
