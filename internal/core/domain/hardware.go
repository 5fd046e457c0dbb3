package domain

import "time"

// HardwareSet is a named category of lab equipment with a fixed number of
// physical units. CheckedOut never exceeds TotalCapacity.
type HardwareSet struct {
	Name          string
	Description   string
	TotalCapacity int
	CheckedOut    int
	Version       int // optimistic locking
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Available returns the number of units currently reservable.
func (h HardwareSet) Available() int {
	return h.TotalCapacity - h.CheckedOut
}

// Availability is a point-in-time snapshot of a hardware set's counters.
type Availability struct {
	HardwareName  string
	TotalCapacity int
	Available     int
	CheckedOut    int
}

// CheckoutRecord is the single active ledger entry for a (project, hardware)
// pair. Repeated checkouts accumulate into Quantity rather than creating a
// second record.
type CheckoutRecord struct {
	ProjectID    string
	HardwareName string
	Quantity     int
	CheckedOutAt time.Time
	UpdatedAt    time.Time
}

// CheckoutConfirmation is returned after a committed reservation.
type CheckoutConfirmation struct {
	ConfirmationID string
	ProjectID      string
	HardwareName   string
	Quantity       int
	Availability   Availability
	Timestamp      time.Time
}

// CheckinConfirmation is returned after a committed return.
type CheckinConfirmation struct {
	ConfirmationID string
	ProjectID      string
	HardwareName   string
	Quantity       int
	Availability   Availability
	Timestamp      time.Time
}
