package model

import "time"

// RateLimitInfo mirrors GitHub's X-RateLimit response headers.
type RateLimitInfo struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Reset     time.Time `json:"reset"`
}

// Low reports whether the remaining budget has dropped below ten percent of
// the limit.
func (r RateLimitInfo) Low() bool {
	if r.Limit <= 0 {
		return false
	}
	return r.Remaining*10 < r.Limit
}
