package inventory

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrNotFound is returned when an item id does not exist in the store.
var ErrNotFound = errors.New("item not found")

// ValidationError rejects an item before it reaches the store.
type ValidationError struct {
	err error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid item: %v", e.err)
}

func (e *ValidationError) Unwrap() error {
	return e.err
}

// Category classifies a tracked item. Values form a closed set; anything a
// recognition provider returns outside this set collapses to CategoryOther.
type Category string

const (
	CategoryFood      Category = "food"
	CategoryMedicine  Category = "medicine"
	CategoryCosmetic  Category = "cosmetic"
	CategoryHousehold Category = "household"
	CategoryDaily     Category = "daily"
	CategoryOther     Category = "other"

	// CategoryAll is a filter wildcard, never a stored value.
	CategoryAll Category = "all"
)

// ParseCategory normalizes free-form category text from a recognition
// provider into the closed enum. Unknown values collapse to CategoryOther.
func ParseCategory(raw string) Category {
	switch Category(strings.ToLower(strings.TrimSpace(raw))) {
	case CategoryFood:
		return CategoryFood
	case CategoryMedicine:
		return CategoryMedicine
	case CategoryCosmetic:
		return CategoryCosmetic
	case CategoryHousehold:
		return CategoryHousehold
	case CategoryDaily:
		return CategoryDaily
	default:
		return CategoryOther
	}
}

// Date is a calendar date with no time-of-day component. It serializes as
// YYYY-MM-DD.
type Date struct {
	time.Time
}

// NewDate builds a Date at local midnight.
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.Local)}
}

// DateOf truncates t to midnight in t's location.
func DateOf(t time.Time) Date {
	return Date{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return Date{}, fmt.Errorf("parsing date: %w", err)
	}
	return Date{t}, nil
}

// AddDays returns the date n days later (negative n goes back).
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time.AddDate(0, 0, n))
}

func (d Date) String() string {
	return d.Format("2006-01-02")
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Item is a persisted tracked good with an expiry date and notification
// offset. ID and AddedDate are immutable after creation.
type Item struct {
	ID               string    `json:"id"`
	Name             string    `json:"name" validate:"required"`
	Category         Category  `json:"category" validate:"oneof=food medicine cosmetic household daily other"`
	ExpiryDate       Date      `json:"expiry_date" validate:"-"`
	Description      string    `json:"description,omitempty"`
	AddedDate        time.Time `json:"added_date"`
	NotifyDaysBefore int       `json:"notify_days_before" validate:"gte=1"`
	Icon             string    `json:"icon,omitempty"`
	LowConfidence    bool      `json:"low_confidence"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the item invariants: non-empty name, valid category,
// a real expiry date and a notify offset of at least one day.
func (i Item) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return &ValidationError{errors.New("name is required")}
	}
	if i.ExpiryDate.IsZero() {
		return &ValidationError{errors.New("expiry date is required")}
	}
	if err := validate.Struct(i); err != nil {
		return &ValidationError{err}
	}
	return nil
}

// ItemPatch is a partial update for an item. Nil fields are left untouched.
// ID and AddedDate cannot be patched.
type ItemPatch struct {
	Name             *string   `json:"name,omitempty"`
	Category         *Category `json:"category,omitempty"`
	ExpiryDate       *Date     `json:"expiry_date,omitempty"`
	Description      *string   `json:"description,omitempty"`
	NotifyDaysBefore *int      `json:"notify_days_before,omitempty"`
	Icon             *string   `json:"icon,omitempty"`
	LowConfidence    *bool     `json:"low_confidence,omitempty"`
}

func (p ItemPatch) apply(item Item) Item {
	if p.Name != nil {
		item.Name = *p.Name
	}
	if p.Category != nil {
		item.Category = *p.Category
	}
	if p.ExpiryDate != nil {
		item.ExpiryDate = *p.ExpiryDate
	}
	if p.Description != nil {
		item.Description = *p.Description
	}
	if p.NotifyDaysBefore != nil {
		item.NotifyDaysBefore = *p.NotifyDaysBefore
	}
	if p.Icon != nil {
		item.Icon = *p.Icon
	}
	if p.LowConfidence != nil {
		item.LowConfidence = *p.LowConfidence
	}
	return item
}

// Settings holds notification preferences.
type Settings struct {
	NotificationsEnabled bool   `json:"notifications_enabled"`
	TriggerTime          string `json:"trigger_time"` // 24h "HH:MM"
	DefaultNotifyDays    int    `json:"default_notify_days"`
}

// DefaultSettings mirrors the defaults a fresh install starts with.
func DefaultSettings() Settings {
	return Settings{
		NotificationsEnabled: true,
		TriggerTime:          "09:00",
		DefaultNotifyDays:    1,
	}
}

// Validate checks the settings invariants.
func (s Settings) Validate() error {
	if _, err := time.Parse("15:04", s.TriggerTime); err != nil {
		return &ValidationError{fmt.Errorf("trigger time must be HH:MM: %w", err)}
	}
	if s.DefaultNotifyDays < 1 {
		return &ValidationError{errors.New("default notify days must be at least 1")}
	}
	return nil
}
