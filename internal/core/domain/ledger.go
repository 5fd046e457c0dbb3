package domain

import "time"

type LedgerAction string

const (
	LedgerActionCheckout LedgerAction = "checkout"
	LedgerActionCheckin  LedgerAction = "checkin"
)

// LedgerEvent is the audit record emitted after every committed checkout or
// check-in. It is persisted asynchronously and is never part of the atomic
// reservation unit.
type LedgerEvent struct {
	ID           string
	ProjectID    string
	HardwareName string
	Actor        string
	Action       LedgerAction
	Quantity     int
	Available    int
	OccurredAt   time.Time
}
