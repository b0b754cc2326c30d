package inventory

import "time"

// Reminder is a due expiry notification for one item.
type Reminder struct {
	ItemID     string    `json:"item_id"`
	Name       string    `json:"name"`
	ExpiryDate Date      `json:"expiry_date"`
	DaysLeft   int       `json:"days_left"`
	At         time.Time `json:"at"`
}

// DueReminders computes which reminders are due at "now". For each item the
// reminder instant is expiryDate minus notifyDaysBefore days, at the
// configured daily trigger time. The function is pure and idempotent: it does
// not mark reminders as sent, and repeated calls with the same inputs yield
// the same result. Delivery bookkeeping, if any, belongs to the caller.
func DueReminders(items []Item, settings Settings, now time.Time) []Reminder {
	if !settings.NotificationsEnabled {
		return nil
	}

	trigger, err := time.Parse("15:04", settings.TriggerTime)
	if err != nil {
		trigger, _ = time.Parse("15:04", DefaultSettings().TriggerTime)
	}

	due := make([]Reminder, 0)
	for _, item := range items {
		day := item.ExpiryDate.AddDays(-item.NotifyDaysBefore)
		at := time.Date(day.Year(), day.Month(), day.Day(),
			trigger.Hour(), trigger.Minute(), 0, 0, now.Location())
		if now.Before(at) {
			continue
		}
		due = append(due, Reminder{
			ItemID:     item.ID,
			Name:       item.Name,
			ExpiryDate: item.ExpiryDate,
			DaysLeft:   DaysLeft(now, item.ExpiryDate),
			At:         at,
		})
	}
	return due
}
