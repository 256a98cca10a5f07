package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-housing-allocation/internal/allocation"
	"github.com/ariefcatur/go-housing-allocation/internal/housing"
)

type errorResp struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, housing.ErrNoSuchApplication),
		errors.Is(err, housing.ErrNoSuchProject),
		errors.Is(err, housing.ErrUnknownApplicant):
		return http.StatusNotFound
	case errors.Is(err, housing.ErrNotOwner),
		errors.Is(err, housing.ErrNotAssigned):
		return http.StatusForbidden
	case errors.Is(err, housing.ErrNotEligible),
		errors.Is(err, housing.ErrInvalidProject),
		errors.Is(err, housing.ErrInvalidUnitType):
		return http.StatusUnprocessableEntity
	case errors.Is(err, housing.ErrAlreadyApplied),
		errors.Is(err, housing.ErrInvalidTransition),
		errors.Is(err, housing.ErrAlreadyWithdrawing),
		errors.Is(err, housing.ErrNoUnitsLeft),
		errors.Is(err, housing.ErrRosterFull),
		errors.Is(err, housing.ErrProjectExists),
		errors.Is(err, housing.ErrProjectInUse),
		errors.Is(err, housing.ErrPeriodOverlap),
		errors.Is(err, housing.ErrRoleConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResp{Error: err.Error(), Kind: housing.Kind(err)})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResp{Error: msg, Kind: "bad_request"})
}

// writeResult answers a transition. A transition that committed but could not
// be persisted is still reported as done; the store catches up on flush.
func writeResult(w http.ResponseWriter, code int, v any, err error) {
	switch {
	case err == nil:
		writeJSON(w, code, v)
	case errors.Is(err, allocation.ErrNotPersisted):
		w.Header().Set("X-Persisted", "false")
		writeJSON(w, http.StatusAccepted, v)
	default:
		writeError(w, err)
	}
}
