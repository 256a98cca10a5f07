package housing

type Status string

const (
	StatusNone         Status = "NONE"
	StatusPending      Status = "PENDING"
	StatusSuccessful   Status = "SUCCESSFUL"
	StatusUnsuccessful Status = "UNSUCCESSFUL"
	StatusBooked       Status = "BOOKED"
	StatusWithdrawn    Status = "WITHDRAWN"
)

var validNext = map[Status]map[Status]bool{
	StatusNone:         {StatusPending: true},
	StatusPending:      {StatusSuccessful: true, StatusUnsuccessful: true},
	StatusSuccessful:   {StatusBooked: true, StatusWithdrawn: true},
	StatusBooked:       {StatusWithdrawn: true},
	StatusUnsuccessful: {},
	StatusWithdrawn:    {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Active reports whether an application in this status blocks a new one.
func (s Status) Active() bool {
	switch s {
	case StatusPending, StatusSuccessful, StatusBooked:
		return true
	case StatusNone, StatusUnsuccessful, StatusWithdrawn:
		return false
	}
	return false
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

type AssignmentState string

const (
	AssignmentPending  AssignmentState = "PENDING"
	AssignmentApproved AssignmentState = "APPROVED"
)
