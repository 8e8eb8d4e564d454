package models

import "time"

// RateWindow is a fixed-window counter keyed by an (endpoint, subject)
// composite. The count never goes negative and resets at window boundaries
// by virtue of window_start being part of the key.
type RateWindow struct {
	Key         string    `json:"key"`
	WindowStart time.Time `json:"window_start"`
	Count       int       `json:"count"`
}
