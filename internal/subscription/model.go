package subscription

import "time"

const (
	StatusActive = "active"
)

// Subscription одна строка на пользователя
type Subscription struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"user_id"`
	Plan             string    `json:"plan"`
	Status           string    `json:"status"`
	CurrentPeriodEnd time.Time `json:"current_period_end"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NextPeriodEnd the period always restarts from now, whatever was left of the old one.
func NextPeriodEnd(now time.Time) time.Time {
	return now.AddDate(0, 1, 0)
}
