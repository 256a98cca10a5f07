package housing

import "errors"

// Allocation error kinds. Callers match them with errors.Is; operations wrap
// them with the identifiers involved.
var (
	ErrNotEligible        = errors.New("not eligible")
	ErrAlreadyApplied     = errors.New("already applied")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrNoUnitsLeft        = errors.New("no units left")
	ErrRosterFull         = errors.New("officer roster full")
	ErrAlreadyWithdrawing = errors.New("withdrawal already requested")
	ErrNoSuchApplication  = errors.New("no such application")

	// ErrInventoryOverflow means a release would push available above total.
	// It is an internal consistency failure, never a user error.
	ErrInventoryOverflow = errors.New("inventory overflow")

	ErrNoSuchProject     = errors.New("no such project")
	ErrProjectExists     = errors.New("project already exists")
	ErrProjectInUse      = errors.New("project has active applications")
	ErrPeriodOverlap     = errors.New("application period overlaps another project of the same manager")
	ErrInvalidProject    = errors.New("invalid project")
	ErrNotOwner          = errors.New("not the manager of this project")
	ErrNotAssigned       = errors.New("officer not assigned to project")
	ErrRoleConflict      = errors.New("applicant and officer roles conflict")
	ErrUnknownApplicant  = errors.New("unknown applicant")
	ErrInvalidUnitType   = errors.New("invalid unit type")
	ErrInconsistentState = errors.New("inconsistent snapshot")
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrNotEligible, "not_eligible"},
	{ErrAlreadyApplied, "already_applied"},
	{ErrInvalidTransition, "invalid_transition"},
	{ErrNoUnitsLeft, "no_units_left"},
	{ErrRosterFull, "roster_full"},
	{ErrAlreadyWithdrawing, "already_withdrawing"},
	{ErrNoSuchApplication, "no_such_application"},
	{ErrInventoryOverflow, "inventory_overflow"},
	{ErrNoSuchProject, "no_such_project"},
	{ErrProjectExists, "project_exists"},
	{ErrProjectInUse, "project_in_use"},
	{ErrPeriodOverlap, "period_overlap"},
	{ErrInvalidProject, "invalid_project"},
	{ErrNotOwner, "not_owner"},
	{ErrNotAssigned, "not_assigned"},
	{ErrRoleConflict, "role_conflict"},
	{ErrUnknownApplicant, "unknown_applicant"},
	{ErrInvalidUnitType, "invalid_unit_type"},
	{ErrInconsistentState, "inconsistent_state"},
}

// Kind names the error kind of err for logs, metrics and API responses:
// "ok" for nil, "internal" for anything outside the taxonomy.
func Kind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}
