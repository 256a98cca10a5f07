package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ariefcatur/go-housing-allocation/internal/allocation"
	"github.com/ariefcatur/go-housing-allocation/internal/catalog"
	"github.com/ariefcatur/go-housing-allocation/internal/housing"
	"github.com/ariefcatur/go-housing-allocation/internal/redisx"
)

// ActorHeader names the manager or officer acting on a request. Identity is
// established upstream of this service.
const ActorHeader = "X-Actor-ID"

const dateLayout = "2006-01-02"

// Cache is satisfied by redisx.Cache.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type AllocationHandler struct {
	Service *allocation.Service
	Cache   Cache // optional
	Logger  *slog.Logger
}

func (h *AllocationHandler) Register(r chi.Router) {
	r.Route("/applicants/{applicant}", func(r chi.Router) {
		r.Get("/eligible-projects", h.eligibleProjects)
		r.Post("/application", h.apply)
		r.Get("/application", h.getApplication)
		r.Post("/application/decision", h.decideApplication)
		r.Post("/application/booking-request", h.requestBooking)
		r.Post("/application/booking", h.confirmBooking)
		r.Post("/application/withdrawal", h.requestWithdrawal)
		r.Post("/application/withdrawal/decision", h.decideWithdrawal)
	})
	r.Route("/projects", func(r chi.Router) {
		r.Get("/", h.listProjects)
		r.Post("/", h.createProject)
		r.Route("/{project}", func(r chi.Router) {
			r.Get("/", h.getProject)
			r.Patch("/", h.updateProject)
			r.Delete("/", h.deleteProject)
			r.Put("/visibility", h.setVisibility)
			r.Get("/applications", h.projectApplications)
			r.Get("/officers", h.listOfficers)
			r.Post("/officers", h.requestOfficer)
			r.Post("/officers/{officer}/decision", h.decideOfficer)
		})
	})
}

func (h *AllocationHandler) logger() *slog.Logger {
	if h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

func actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.Header.Get(ActorHeader))
	if id == "" {
		badRequest(w, "missing "+ActorHeader+" header")
		return "", false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid json")
		return false
	}
	return true
}

// forget drops the cached application of an applicant after a transition.
// The projector writes the fresh record once the event arrives.
func (h *AllocationHandler) forget(ctx context.Context, applicantID string) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Del(ctx, fmt.Sprintf(redisx.KeyApplicationStatus, applicantID)); err != nil {
		h.logger().WarnContext(ctx, "cache invalidation failed", "applicant", applicantID, "error", err)
	}
}

func (h *AllocationHandler) eligibleProjects(w http.ResponseWriter, r *http.Request) {
	out, err := h.Service.EligibleProjects(r.Context(), chi.URLParam(r, "applicant"))
	if err != nil {
		writeError(w, err)
		return
	}
	if out == nil {
		out = []allocation.EligibleProject{}
	}
	writeJSON(w, http.StatusOK, out)
}

type applyReq struct {
	Project  string `json:"project"`
	UnitType string `json:"unit_type"`
}

type applyResp struct {
	Application housing.Application `json:"application"`
	Idempotent  bool                `json:"idempotent"`
}

func (h *AllocationHandler) apply(w http.ResponseWriter, r *http.Request) {
	applicantID := chi.URLParam(r, "applicant")
	var req applyReq
	if !decode(w, r, &req) {
		return
	}
	if req.Project == "" || req.UnitType == "" {
		badRequest(w, "missing fields")
		return
	}
	u, err := housing.ParseUnitType(req.UnitType)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Fast-path idempotency via Redis; the ledger still refuses a second
	// active application on its own.
	var idemKey string
	if k := r.Header.Get("Idempotency-Key"); k != "" && h.Cache != nil {
		idemKey = fmt.Sprintf(redisx.KeyIdemApply, applicantID+":"+k)
		if raw, ok, err := h.Cache.Get(ctx, idemKey); err == nil && ok {
			var a housing.Application
			if json.Unmarshal([]byte(raw), &a) == nil {
				writeJSON(w, http.StatusOK, applyResp{Application: a, Idempotent: true})
				return
			}
		}
	}

	a, err := h.Service.Apply(ctx, applicantID, req.Project, u)
	if err == nil || a.ID != "" {
		h.forget(ctx, applicantID)
		if idemKey != "" {
			b, _ := json.Marshal(a)
			_ = h.Cache.Set(ctx, idemKey, string(b), redisx.TTLIdempotency)
		}
	}
	writeResult(w, http.StatusCreated, applyResp{Application: a}, err)
}

func (h *AllocationHandler) getApplication(w http.ResponseWriter, r *http.Request) {
	applicantID := chi.URLParam(r, "applicant")
	ctx := r.Context()
	key := fmt.Sprintf(redisx.KeyApplicationStatus, applicantID)
	if h.Cache != nil {
		if raw, ok, err := h.Cache.Get(ctx, key); err == nil && ok {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("X-Cache", "hit")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(raw))
			return
		}
	}
	// Only the projector fills the cache, in event order.
	a, err := h.Service.Engine().Application(applicantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type decisionReq struct {
	Accept *bool `json:"accept"`
}

func decision(w http.ResponseWriter, r *http.Request) (bool, bool) {
	var req decisionReq
	if !decode(w, r, &req) {
		return false, false
	}
	if req.Accept == nil {
		badRequest(w, "missing field accept")
		return false, false
	}
	return *req.Accept, true
}

func (h *AllocationHandler) decideApplication(w http.ResponseWriter, r *http.Request) {
	managerID, ok := actor(w, r)
	if !ok {
		return
	}
	accept, ok := decision(w, r)
	if !ok {
		return
	}
	applicantID := chi.URLParam(r, "applicant")
	a, err := h.Service.DecideApplication(r.Context(), managerID, applicantID, accept)
	h.forget(r.Context(), applicantID)
	writeResult(w, http.StatusOK, a, err)
}

func (h *AllocationHandler) requestBooking(w http.ResponseWriter, r *http.Request) {
	applicantID := chi.URLParam(r, "applicant")
	a, err := h.Service.RequestBooking(r.Context(), applicantID)
	h.forget(r.Context(), applicantID)
	writeResult(w, http.StatusOK, a, err)
}

func (h *AllocationHandler) confirmBooking(w http.ResponseWriter, r *http.Request) {
	officerID, ok := actor(w, r)
	if !ok {
		return
	}
	applicantID := chi.URLParam(r, "applicant")
	a, err := h.Service.ConfirmBooking(r.Context(), officerID, applicantID)
	h.forget(r.Context(), applicantID)
	writeResult(w, http.StatusOK, a, err)
}

func (h *AllocationHandler) requestWithdrawal(w http.ResponseWriter, r *http.Request) {
	applicantID := chi.URLParam(r, "applicant")
	a, err := h.Service.RequestWithdrawal(r.Context(), applicantID)
	h.forget(r.Context(), applicantID)
	writeResult(w, http.StatusOK, a, err)
}

func (h *AllocationHandler) decideWithdrawal(w http.ResponseWriter, r *http.Request) {
	managerID, ok := actor(w, r)
	if !ok {
		return
	}
	accept, ok := decision(w, r)
	if !ok {
		return
	}
	applicantID := chi.URLParam(r, "applicant")
	a, err := h.Service.DecideWithdrawal(r.Context(), managerID, applicantID, accept)
	h.forget(r.Context(), applicantID)
	writeResult(w, http.StatusOK, a, err)
}

func (h *AllocationHandler) listProjects(w http.ResponseWriter, r *http.Request) {
	var ps []housing.Project
	if m := r.URL.Query().Get("manager"); m != "" {
		ps = h.Service.Engine().ProjectsByManager(m)
	} else {
		ps = h.Service.Engine().Projects()
	}
	if ps == nil {
		ps = []housing.Project{}
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *AllocationHandler) getProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.Service.Engine().Project(chi.URLParam(r, "project"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type createProjectReq struct {
	Name          string                   `json:"name"`
	Neighbourhood string                   `json:"neighbourhood"`
	Visible       bool                     `json:"visible"`
	OpenDate      string                   `json:"open_date"`
	CloseDate     string                   `json:"close_date"`
	OfficerSlots  int                      `json:"officer_slots"`
	Units         map[housing.UnitType]int `json:"units"`
}

func parseDate(field, s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", housing.ErrInvalidProject, field)
	}
	return t, nil
}

func (h *AllocationHandler) createProject(w http.ResponseWriter, r *http.Request) {
	managerID, ok := actor(w, r)
	if !ok {
		return
	}
	var req createProjectReq
	if !decode(w, r, &req) {
		return
	}
	open, err := parseDate("open_date", req.OpenDate)
	if err != nil {
		writeError(w, err)
		return
	}
	closing, err := parseDate("close_date", req.CloseDate)
	if err != nil {
		writeError(w, err)
		return
	}
	units := make(map[housing.UnitType]housing.Units, len(req.Units))
	for u, total := range req.Units {
		units[u] = housing.Units{Total: total}
	}
	p, err := h.Service.CreateProject(r.Context(), housing.Project{
		Name:          req.Name,
		Neighbourhood: req.Neighbourhood,
		Visible:       req.Visible,
		ManagerID:     managerID,
		OpenDate:      open,
		CloseDate:     closing,
		OfficerSlots:  req.OfficerSlots,
		Units:         units,
	})
	writeResult(w, http.StatusCreated, p, err)
}

type updateProjectReq struct {
	Neighbourhood *string                  `json:"neighbourhood"`
	OpenDate      *string                  `json:"open_date"`
	CloseDate     *string                  `json:"close_date"`
	OfficerSlots  *int                     `json:"officer_slots"`
	Visible       *bool                    `json:"visible"`
	UnitTotals    map[housing.UnitType]int `json:"unit_totals"`
}

func (req updateProjectReq) change() (allocation.ProjectChange, error) {
	c := allocation.ProjectChange{
		Patch: catalog.Patch{
			Neighbourhood: req.Neighbourhood,
			OfficerSlots:  req.OfficerSlots,
			Visible:       req.Visible,
		},
		UnitTotals: req.UnitTotals,
	}
	if req.OpenDate != nil {
		t, err := parseDate("open_date", *req.OpenDate)
		if err != nil {
			return c, err
		}
		c.OpenDate = &t
	}
	if req.CloseDate != nil {
		t, err := parseDate("close_date", *req.CloseDate)
		if err != nil {
			return c, err
		}
		c.CloseDate = &t
	}
	return c, nil
}

func (h *AllocationHandler) updateProject(w http.ResponseWriter, r *http.Request) {
	managerID, ok := actor(w, r)
	if !ok {
		return
	}
	var req updateProjectReq
	if !decode(w, r, &req) {
		return
	}
	change, err := req.change()
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := h.Service.UpdateProject(r.Context(), managerID, chi.URLParam(r, "project"), change)
	writeResult(w, http.StatusOK, p, err)
}

func (h *AllocationHandler) setVisibility(w http.ResponseWriter, r *http.Request) {
	managerID, ok := actor(w, r)
	if !ok {
		return
	}
	var req struct {
		Visible *bool `json:"visible"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Visible == nil {
		badRequest(w, "missing field visible")
		return
	}
	p, err := h.Service.SetVisibility(r.Context(), managerID, chi.URLParam(r, "project"), *req.Visible)
	writeResult(w, http.StatusOK, p, err)
}

func (h *AllocationHandler) deleteProject(w http.ResponseWriter, r *http.Request) {
	managerID, ok := actor(w, r)
	if !ok {
		return
	}
	if err := h.Service.DeleteProject(r.Context(), managerID, chi.URLParam(r, "project")); err != nil {
		writeResult(w, http.StatusNoContent, nil, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AllocationHandler) projectApplications(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "project")
	if _, err := h.Service.Engine().Project(name); err != nil {
		writeError(w, err)
		return
	}
	var statuses []housing.Status
	for _, s := range r.URL.Query()["status"] {
		st := housing.Status(strings.ToUpper(s))
		if !st.Valid() {
			badRequest(w, "unknown status "+s)
			return
		}
		statuses = append(statuses, st)
	}
	out := h.Service.Engine().ApplicationsByProject(name, statuses...)
	if out == nil {
		out = []housing.Application{}
	}
	writeJSON(w, http.StatusOK, out)
}

type officersResp struct {
	Approved []housing.OfficerAssignment `json:"approved"`
	Pending  []housing.OfficerAssignment `json:"pending"`
}

func (h *AllocationHandler) listOfficers(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "project")
	if _, err := h.Service.Engine().Project(name); err != nil {
		writeError(w, err)
		return
	}
	resp := officersResp{
		Approved: h.Service.Engine().Roster(name),
		Pending:  h.Service.Engine().PendingOfficers(name),
	}
	if resp.Approved == nil {
		resp.Approved = []housing.OfficerAssignment{}
	}
	if resp.Pending == nil {
		resp.Pending = []housing.OfficerAssignment{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AllocationHandler) requestOfficer(w http.ResponseWriter, r *http.Request) {
	officerID, ok := actor(w, r)
	if !ok {
		return
	}
	a, err := h.Service.RequestOfficerAssignment(r.Context(), officerID, chi.URLParam(r, "project"))
	writeResult(w, http.StatusAccepted, a, err)
}

func (h *AllocationHandler) decideOfficer(w http.ResponseWriter, r *http.Request) {
	managerID, ok := actor(w, r)
	if !ok {
		return
	}
	accept, ok := decision(w, r)
	if !ok {
		return
	}
	a, err := h.Service.DecideOfficerAssignment(r.Context(), managerID,
		chi.URLParam(r, "officer"), chi.URLParam(r, "project"), accept)
	writeResult(w, http.StatusOK, a, err)
}
