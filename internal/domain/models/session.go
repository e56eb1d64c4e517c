package models

import "time"

// Credentials identifies the operator account at the broker.
type Credentials struct {
	ClientID string
	APIKey   string
	Secret   string
}

// Session is an authenticated broker session. Owned by the order
// manager; renewal is collapsed into a single in-flight call.
type Session struct {
	Token     string
	ExpiresAt time.Time
}

// Expired reports whether the session needs renewal at now, with a
// small skew so a call never rides a token about to lapse mid-flight.
func (s *Session) Expired(now time.Time) bool {
	if s == nil || s.Token == "" {
		return true
	}
	return !now.Add(30 * time.Second).Before(s.ExpiresAt)
}

// Placement is the broker's answer to a place-order call.
type Placement struct {
	BrokerOrderID string
	Status        OrderStatus
}
