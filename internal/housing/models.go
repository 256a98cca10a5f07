package housing

import (
	"fmt"
	"time"
)

type UnitType string

const (
	TwoRoom   UnitType = "2-room"
	ThreeRoom UnitType = "3-room"
)

// UnitTypes lists every unit kind a project offers, in display order.
var UnitTypes = []UnitType{TwoRoom, ThreeRoom}

func ParseUnitType(s string) (UnitType, error) {
	switch u := UnitType(s); u {
	case TwoRoom, ThreeRoom:
		return u, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidUnitType, s)
}

type MaritalStatus string

const (
	Single  MaritalStatus = "Single"
	Married MaritalStatus = "Married"
)

// MaxOfficerSlots is the hard cap on approved officers per project.
const MaxOfficerSlots = 10

type Units struct {
	Total     int `json:"total"`
	Available int `json:"available"`
}

type Project struct {
	Name          string             `json:"name"`
	Neighbourhood string             `json:"neighbourhood"`
	Visible       bool               `json:"visible"`
	ManagerID     string             `json:"manager_id"`
	OpenDate      time.Time          `json:"open_date"`
	CloseDate     time.Time          `json:"close_date"`
	OfficerSlots  int                `json:"officer_slots"`
	Units         map[UnitType]Units `json:"units"`
}

// Overlaps reports whether the inclusive application periods intersect.
func (p Project) Overlaps(other Project) bool {
	return !p.OpenDate.After(other.CloseDate) && !other.OpenDate.After(p.CloseDate)
}

func (p Project) Available(u UnitType) int { return p.Units[u].Available }

func (p Project) Clone() Project {
	units := make(map[UnitType]Units, len(p.Units))
	for k, v := range p.Units {
		units[k] = v
	}
	p.Units = units
	return p
}

type Applicant struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Age     int           `json:"age"`
	Marital MaritalStatus `json:"marital_status"`
}

type Application struct {
	ID                  string    `json:"id"`
	ApplicantID         string    `json:"applicant_id"`
	Project             string    `json:"project"`
	UnitType            UnitType  `json:"unit_type"`
	Status              Status    `json:"status"`
	WithdrawalRequested bool      `json:"withdrawal_requested"`
	BookingRequested    bool      `json:"booking_requested"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type OfficerAssignment struct {
	Project     string          `json:"project"`
	OfficerID   string          `json:"officer_id"`
	State       AssignmentState `json:"state"`
	RequestedAt time.Time       `json:"requested_at"`
	DecidedAt   *time.Time      `json:"decided_at,omitempty"`
}
