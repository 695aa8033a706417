package model

import "time"

type Countdown struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

// CountdownUntil splits the time left until end, clamped at zero. Partial
// seconds round up so the countdown only reads zero once end has passed.
func CountdownUntil(end, now time.Time) Countdown {
	left := end.Sub(now)
	if left <= 0 {
		return Countdown{}
	}
	total := int((left + time.Second - 1) / time.Second)
	return Countdown{
		Hours:   total / 3600,
		Minutes: (total % 3600) / 60,
		Seconds: total % 60,
	}
}

func (c Countdown) IsZero() bool {
	return c.Hours == 0 && c.Minutes == 0 && c.Seconds == 0
}
