package domain

import "time"

// Project is owned by the external project store; the reservation core only
// consults it for existence and membership.
type Project struct {
	ID        string
	Name      string
	Owner     string
	Members   []string
	CreatedAt time.Time
}
