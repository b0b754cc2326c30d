package inventory

import (
	"fmt"
	"math"
	"time"
)

// Tier is an urgency bucket derived from the days remaining until expiry.
type Tier int

const (
	TierExpired Tier = iota
	TierCritical
	TierWarning
	TierFresh
)

func (t Tier) String() string {
	switch t {
	case TierExpired:
		return "expired"
	case TierCritical:
		return "critical"
	case TierWarning:
		return "warning"
	case TierFresh:
		return "fresh"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

func (t Tier) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// DaysLeft returns the whole days between today and the expiry date. Both
// sides are normalized to local midnight, so the result is deterministic for
// a given "today" regardless of the time of day it was sampled at.
func DaysLeft(today time.Time, expiry Date) int {
	midnight := DateOf(today)
	return int(math.Ceil(expiry.Sub(midnight.Time).Hours() / 24))
}

// ClassifyUrgency maps an expiry date to its urgency tier relative to today.
// It is a pure function; inject the clock, never read it here.
func ClassifyUrgency(today time.Time, expiry Date) Tier {
	days := DaysLeft(today, expiry)
	switch {
	case days < 0:
		return TierExpired
	case days <= 1:
		return TierCritical
	case days <= 3:
		return TierWarning
	default:
		return TierFresh
	}
}
