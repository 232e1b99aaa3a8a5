package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"push-alert-backend/internal/model"
)

// ErrValidation marks a malformed registration payload.
var ErrValidation = errors.New("invalid subscription")

// ErrNotFound marks a lookup for a subscription that does not exist.
var ErrNotFound = errors.New("subscription not found")

// Store defines the interface for all subscription persistence.
type Store interface {
	Register(ctx context.Context, endpoint, p256dh, auth string, initialPrefs map[string]bool) (*model.PushSubscription, error)
	Unregister(ctx context.Context, endpoint string) (bool, error)
	ListAll(ctx context.Context) ([]model.PushSubscription, error)
	UpdatePreferences(ctx context.Context, id string, prefs map[string]bool) error
	GetPreferences(ctx context.Context, id string) (map[string]bool, error)
	Evict(ctx context.Context, endpoint string) error
	RecordDelivery(ctx context.Context, h *model.NotificationHistory) error
	History(ctx context.Context, id string, limit int) ([]model.NotificationHistory, error)
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
	Stats(ctx context.Context) (*Stats, error)
	Ping(ctx context.Context) error
}

// Stats aggregates the subscription registry for the metrics endpoint.
type Stats struct {
	Subscriptions int64           `json:"subscriptions"`
	Categories    []CategoryStats `json:"categories"`
}

// CategoryStats counts stored preferences per category.
type CategoryStats struct {
	Category string `json:"category"`
	Enabled  int64  `json:"enabled"`
	Disabled int64  `json:"disabled"`
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// Register creates a subscription, or replaces the credentials of an
// existing one with the same endpoint. The replacement keeps the
// original ID and creation time, so a send running concurrently never
// observes a window with zero matching subscriptions. The write is a
// single upsert keyed on the endpoint, so concurrent registrations of
// the same endpoint cannot collide.
func (s *gormStore) Register(ctx context.Context, endpoint, p256dh, auth string, initialPrefs map[string]bool) (*model.PushSubscription, error) {
	if endpoint == "" || p256dh == "" || auth == "" {
		return nil, ErrValidation
	}

	var sub model.PushSubscription
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		candidate := model.PushSubscription{
			ID:       uuid.NewString(),
			Endpoint: endpoint,
			P256DH:   p256dh,
			Auth:     auth,
		}
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "updated_at"}),
		}).Create(&candidate).Error
		if err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}

		// When the endpoint already existed the stored row keeps its
		// identity; read it back so callers see the canonical ID.
		if err := tx.First(&sub, "endpoint = ?", endpoint).Error; err != nil {
			return fmt.Errorf("failed to read back subscription: %w", err)
		}

		return upsertPreferences(tx, sub.ID, initialPrefs)
	})
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Unregister removes the subscription for an endpoint. Removal of an
// unknown endpoint is a no-op; the returned bool reports whether a
// record actually existed.
func (s *gormStore) Unregister(ctx context.Context, endpoint string) (bool, error) {
	var found bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sub model.PushSubscription
		if err := tx.First(&sub, "endpoint = ?", endpoint).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("failed to look up endpoint: %w", err)
		}
		found = true
		return deleteSubscription(tx, &sub)
	})
	return found, err
}

// ListAll returns a snapshot of every subscription with its
// preferences preloaded, for fan-out.
func (s *gormStore) ListAll(ctx context.Context) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Preload("Preferences").Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

// UpdatePreferences merges the given categories into the stored
// preference map of one subscription. Unknown categories are accepted
// and stored as-is.
func (s *gormStore) UpdatePreferences(ctx context.Context, id string, prefs map[string]bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sub model.PushSubscription
		if err := tx.First(&sub, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to look up subscription: %w", err)
		}
		return upsertPreferences(tx, id, prefs)
	})
}

// GetPreferences returns the stored preference map of one subscription.
func (s *gormStore) GetPreferences(ctx context.Context, id string) (map[string]bool, error) {
	var sub model.PushSubscription
	err := s.db.WithContext(ctx).Preload("Preferences").First(&sub, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up subscription: %w", err)
	}
	return sub.PreferenceMap(), nil
}

// Evict removes a subscription whose push endpoint reported itself
// permanently gone. This is the only stale-subscription cleanup apart
// from the retention sweep.
func (s *gormStore) Evict(ctx context.Context, endpoint string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sub model.PushSubscription
		if err := tx.First(&sub, "endpoint = ?", endpoint).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return fmt.Errorf("failed to look up endpoint: %w", err)
		}
		return deleteSubscription(tx, &sub)
	})
}

// RecordDelivery appends one delivery attempt to the audit history.
func (s *gormStore) RecordDelivery(ctx context.Context, h *model.NotificationHistory) error {
	if h.SentAt.IsZero() {
		h.SentAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(h).Error; err != nil {
		return fmt.Errorf("failed to record delivery: %w", err)
	}
	return nil
}

// History returns the most recent delivery attempts for a subscription.
func (s *gormStore) History(ctx context.Context, id string, limit int) ([]model.NotificationHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []model.NotificationHistory
	err := s.db.WithContext(ctx).
		Where("subscription_id = ?", id).
		Order("sent_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history: %w", err)
	}
	return rows, nil
}

// PurgeExpired removes subscriptions that have not been touched since
// the cutoff, so orphaned endpoints self-expire without a delivery
// failure ever being observed.
func (s *gormStore) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	var purged int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stale []model.PushSubscription
		if err := tx.Where("updated_at < ?", cutoff).Find(&stale).Error; err != nil {
			return fmt.Errorf("failed to find expired subscriptions: %w", err)
		}
		for i := range stale {
			if err := deleteSubscription(tx, &stale[i]); err != nil {
				return err
			}
		}
		purged = int64(len(stale))
		return nil
	})
	return purged, err
}

// Stats aggregates registry counts for the metrics endpoint.
func (s *gormStore) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	if err := s.db.WithContext(ctx).Model(&model.PushSubscription{}).Count(&st.Subscriptions).Error; err != nil {
		return nil, fmt.Errorf("failed to count subscriptions: %w", err)
	}

	type aggRow struct {
		Category string
		Enabled  int64
		Total    int64
	}
	var aggs []aggRow
	err := s.db.WithContext(ctx).
		Model(&model.Preference{}).
		Select("category, SUM(CASE WHEN enabled THEN 1 ELSE 0 END) as enabled, COUNT(*) as total").
		Group("category").
		Order("category").
		Scan(&aggs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate preferences: %w", err)
	}

	st.Categories = make([]CategoryStats, 0, len(aggs))
	for _, a := range aggs {
		st.Categories = append(st.Categories, CategoryStats{
			Category: a.Category,
			Enabled:  a.Enabled,
			Disabled: a.Total - a.Enabled,
		})
	}
	return &st, nil
}

// Ping reports database reachability for the health endpoint.
func (s *gormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func upsertPreferences(tx *gorm.DB, subscriptionID string, prefs map[string]bool) error {
	if len(prefs) == 0 {
		return nil
	}
	rows := make([]model.Preference, 0, len(prefs))
	for category, enabled := range prefs {
		if category == "" {
			continue
		}
		rows = append(rows, model.Preference{
			SubscriptionID: subscriptionID,
			Category:       category,
			Enabled:        enabled,
		})
	}
	if len(rows) == 0 {
		return nil
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "subscription_id"}, {Name: "category"}},
		DoUpdates: clause.AssignmentColumns([]string{"enabled"}),
	}).Create(&rows).Error
	if err != nil {
		return fmt.Errorf("failed to upsert preferences: %w", err)
	}
	return nil
}

func deleteSubscription(tx *gorm.DB, sub *model.PushSubscription) error {
	if err := tx.Where("subscription_id = ?", sub.ID).Delete(&model.Preference{}).Error; err != nil {
		return fmt.Errorf("failed to delete preferences for %s: %w", sub.ID, err)
	}
	if err := tx.Where("subscription_id = ?", sub.ID).Delete(&model.NotificationHistory{}).Error; err != nil {
		return fmt.Errorf("failed to delete history for %s: %w", sub.ID, err)
	}
	if err := tx.Delete(&model.PushSubscription{}, "id = ?", sub.ID).Error; err != nil {
		return fmt.Errorf("failed to delete subscription %s: %w", sub.ID, err)
	}
	return nil
}
