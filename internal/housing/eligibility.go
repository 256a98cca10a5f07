package housing

const (
	singleMinAge  = 35
	marriedMinAge = 21
)

// AllowedUnitTypes returns the unit kinds an applicant profile may ever apply
// for, regardless of stock.
func AllowedUnitTypes(age int, marital MaritalStatus) []UnitType {
	switch marital {
	case Single:
		if age >= singleMinAge {
			return []UnitType{TwoRoom}
		}
	case Married:
		if age >= marriedMinAge {
			return []UnitType{TwoRoom, ThreeRoom}
		}
	}
	return nil
}

// EligibleUnitTypes returns the unit kinds the profile can apply for in p right
// now: allowed by age and marital status, with stock left, in a visible project.
func EligibleUnitTypes(age int, marital MaritalStatus, p Project) []UnitType {
	if !p.Visible {
		return nil
	}
	var out []UnitType
	for _, u := range AllowedUnitTypes(age, marital) {
		if p.Available(u) > 0 {
			out = append(out, u)
		}
	}
	return out
}

func IsAllowed(age int, marital MaritalStatus, u UnitType) bool {
	for _, a := range AllowedUnitTypes(age, marital) {
		if a == u {
			return true
		}
	}
	return false
}
