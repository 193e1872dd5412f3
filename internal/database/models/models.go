// Package models contains persisted entity types for the call ledger.
package models

import "time"

// Call statuses. Ended is terminal: no record ever transitions out of it.
const (
	CallStatusRinging = "ringing"
	CallStatusActive  = "active"
	CallStatusEnded   = "ended"
)

// Call directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// CallRecord is one call attempt and its lifecycle state. The gateway only
// exposes live call state, so this table is the system of record for call
// history. Metadata holds the encoded scope tag of the tenant that placed
// the call; it is persisted with the row, never re-derived from the gateway.
type CallRecord struct {
	ID                  string // internally generated uuid
	CallID              string // gateway-assigned SIP call id
	FromNumber          string
	ToNumber            string
	Direction           string
	StartedAt           time.Time
	EndedAt             *time.Time
	DurationSeconds     int // fixed at termination, never recomputed
	Status              string
	TrunkID             string
	RoomName            string
	ParticipantIdentity string
	ProjectID           string
	Metadata            string
	CreatedAt           time.Time
}
