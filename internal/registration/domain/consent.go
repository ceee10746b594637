package domain

import "time"

// Consent marks a chat as having accepted the data-collection terms. Written once.
type Consent struct {
	ChatID     int64
	AcceptedAt time.Time
}
