package allocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-housing-allocation/internal/housing"
	kafkax "github.com/ariefcatur/go-housing-allocation/internal/kafka"
	"github.com/ariefcatur/go-housing-allocation/internal/metrics"
)

// ErrNotPersisted means the transition is committed in memory but the
// record store refused the write. Repeating the write (upsert) heals it.
var ErrNotPersisted = errors.New("transition committed but not persisted")

// Publisher is satisfied by kafka.Producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// Service runs engine transitions and then writes the touched records to the
// store and announces them as events. The engine stays the source of truth.
//
// A transition, its write and its event run under one lock per record, so
// the store and the event stream see the changes of a record in commit order.
type Service struct {
	engine        *Engine
	records       *keyedMutex
	store         housing.Store
	appEvents     Publisher
	officerEvents Publisher
	metrics       *metrics.Metrics
	logger        *slog.Logger
	producer      string
}

type ServiceOption func(*Service)

func WithPublishers(applications, officers Publisher) ServiceOption {
	return func(s *Service) {
		s.appEvents = applications
		s.officerEvents = officers
	}
}

func WithMetrics(m *metrics.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

func WithProducerName(name string) ServiceOption {
	return func(s *Service) { s.producer = name }
}

func NewService(engine *Engine, store housing.Store, opts ...ServiceOption) *Service {
	s := &Service{engine: engine, records: newKeyedMutex(), store: store, logger: slog.Default(), producer: "housing-api"}
	for _, opt := range opts {
		opt(s)
	}
	for _, p := range engine.Projects() {
		s.observeUnits(p)
	}
	return s
}

func (s *Service) Engine() *Engine { return s.engine }

func (s *Service) observe(op string, err error) {
	if s.metrics != nil {
		s.metrics.ObserveTransition(op, housing.Kind(err))
	}
	if err != nil {
		level := slog.LevelDebug
		if k := housing.Kind(err); k == "internal" || k == "inventory_overflow" {
			level = slog.LevelError
		}
		s.logger.Log(context.Background(), level, "allocation operation rejected", "operation", op, "error", err)
	}
}

func (s *Service) observeUnits(p housing.Project) {
	if s.metrics == nil {
		return
	}
	for _, u := range housing.UnitTypes {
		s.metrics.SetUnits(p.Name, string(u), p.Units[u].Total, p.Units[u].Available)
	}
}

func (s *Service) persistFailed(ctx context.Context, what string, err error) error {
	if s.metrics != nil {
		s.metrics.PersistErrors.Inc()
	}
	s.logger.ErrorContext(ctx, "persist failed", "record", what, "error", err)
	return fmt.Errorf("%w: %s: %w", ErrNotPersisted, what, err)
}

func (s *Service) persistApplication(ctx context.Context, a housing.Application) error {
	if err := s.store.PersistApplication(ctx, a); err != nil {
		return s.persistFailed(ctx, "application "+a.ID, err)
	}
	return nil
}

func applicantKey(id string) string { return "applicant:" + id }

func projectKey(name string) string { return "project:" + name }

func officerKey(project, officerID string) string { return "officer:" + project + "\x00" + officerID }

// persistProject writes the project with its current stock. The read and the
// write share the project lock, so a later write never carries older stock.
func (s *Service) persistProject(ctx context.Context, name string) error {
	defer s.records.Lock(projectKey(name))()
	p, err := s.engine.Project(name)
	if errors.Is(err, housing.ErrNoSuchProject) {
		// Deleted since the transition; nothing left to write.
		return nil
	}
	if err != nil {
		return err
	}
	s.observeUnits(p)
	if err := s.store.PersistProject(ctx, p); err != nil {
		return s.persistFailed(ctx, "project "+name, err)
	}
	return nil
}

func (s *Service) envelope(ctx context.Context, eventType, correlationID string, payload any) housing.Envelope {
	return housing.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.producer,
		TraceID:       middleware.GetReqID(ctx),
		CorrelationID: correlationID,
		Payload:       kafkax.MustMarshal(payload),
	}
}

func publish(p Publisher, key string, ev housing.Envelope) {
	if p == nil {
		return
	}
	p.Publish(housing.PartitionKey(key), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(ev.EventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(ev.EventVersion))},
	)
}

func (s *Service) announceApplication(ctx context.Context, eventType string, payload housing.ApplicationChangedPayload) {
	ev := s.envelope(ctx, eventType, payload.Application.ApplicantID, payload)
	publish(s.appEvents, payload.Application.ApplicantID, ev)
}

func (s *Service) announceOfficer(ctx context.Context, eventType string, payload housing.OfficerChangedPayload) {
	ev := s.envelope(ctx, eventType, payload.Assignment.Project, payload)
	publish(s.officerEvents, payload.Assignment.Project, ev)
}

func (s *Service) availableAfter(project string, u housing.UnitType) *int {
	p, err := s.engine.Project(project)
	if err != nil {
		return nil
	}
	n := p.Available(u)
	return &n
}

func (s *Service) EligibleProjects(_ context.Context, applicantID string) ([]EligibleProject, error) {
	out, err := s.engine.EligibleProjectsFor(applicantID)
	s.observe("list_eligible", err)
	return out, err
}

func (s *Service) Apply(ctx context.Context, applicantID, project string, u housing.UnitType) (housing.Application, error) {
	defer s.records.Lock(applicantKey(applicantID))()
	rec, err := s.engine.Apply(applicantID, project, u)
	s.observe("apply", err)
	if err != nil {
		return housing.Application{}, err
	}
	s.announceApplication(ctx, housing.EventApplicationSubmitted, housing.ApplicationChangedPayload{
		Application: rec, PriorStatus: housing.StatusNone, ActorID: applicantID,
	})
	return rec, s.persistApplication(ctx, rec)
}

func (s *Service) DecideApplication(ctx context.Context, managerID, applicantID string, accept bool) (housing.Application, error) {
	defer s.records.Lock(applicantKey(applicantID))()
	rec, err := s.engine.DecideApplication(managerID, applicantID, accept)
	s.observe("decide_application", err)
	if err != nil {
		return housing.Application{}, err
	}
	s.announceApplication(ctx, housing.EventApplicationDecided, housing.ApplicationChangedPayload{
		Application: rec, PriorStatus: housing.StatusPending, Accepted: &accept, ActorID: managerID,
	})
	return rec, s.persistApplication(ctx, rec)
}

func (s *Service) RequestBooking(ctx context.Context, applicantID string) (housing.Application, error) {
	defer s.records.Lock(applicantKey(applicantID))()
	rec, err := s.engine.RequestBooking(applicantID)
	s.observe("request_booking", err)
	if err != nil {
		return housing.Application{}, err
	}
	s.announceApplication(ctx, housing.EventBookingRequested, housing.ApplicationChangedPayload{
		Application: rec, PriorStatus: rec.Status, ActorID: applicantID,
	})
	return rec, s.persistApplication(ctx, rec)
}

func (s *Service) ConfirmBooking(ctx context.Context, officerID, applicantID string) (housing.Application, error) {
	defer s.records.Lock(applicantKey(applicantID))()
	rec, err := s.engine.ConfirmBooking(officerID, applicantID)
	s.observe("confirm_booking", err)
	if err != nil {
		return housing.Application{}, err
	}
	s.announceApplication(ctx, housing.EventBookingConfirmed, housing.ApplicationChangedPayload{
		Application: rec, PriorStatus: housing.StatusSuccessful, ActorID: officerID,
		Available: s.availableAfter(rec.Project, rec.UnitType),
	})
	return rec, errors.Join(s.persistApplication(ctx, rec), s.persistProject(ctx, rec.Project))
}

func (s *Service) RequestWithdrawal(ctx context.Context, applicantID string) (housing.Application, error) {
	defer s.records.Lock(applicantKey(applicantID))()
	rec, err := s.engine.RequestWithdrawal(applicantID)
	s.observe("request_withdrawal", err)
	if err != nil {
		return housing.Application{}, err
	}
	s.announceApplication(ctx, housing.EventWithdrawalRequested, housing.ApplicationChangedPayload{
		Application: rec, PriorStatus: rec.Status, ActorID: applicantID,
	})
	return rec, s.persistApplication(ctx, rec)
}

func (s *Service) DecideWithdrawal(ctx context.Context, managerID, applicantID string, accept bool) (housing.Application, error) {
	defer s.records.Lock(applicantKey(applicantID))()
	before, _ := s.engine.Application(applicantID)
	rec, err := s.engine.DecideWithdrawal(managerID, applicantID, accept)
	s.observe("decide_withdrawal", err)
	if err != nil {
		return housing.Application{}, err
	}
	payload := housing.ApplicationChangedPayload{
		Application: rec, PriorStatus: before.Status, Accepted: &accept, ActorID: managerID,
	}
	released := accept && before.Status == housing.StatusBooked
	if released {
		payload.Available = s.availableAfter(rec.Project, rec.UnitType)
	}
	s.announceApplication(ctx, housing.EventWithdrawalDecided, payload)

	perr := s.persistApplication(ctx, rec)
	if released {
		perr = errors.Join(perr, s.persistProject(ctx, rec.Project))
	}
	return rec, perr
}

func (s *Service) RequestOfficerAssignment(ctx context.Context, officerID, project string) (housing.OfficerAssignment, error) {
	defer s.records.Lock(officerKey(project, officerID))()
	a, created, err := s.engine.RequestOfficerAssignment(officerID, project)
	s.observe("request_officer", err)
	if err != nil || !created {
		return a, err
	}
	s.announceOfficer(ctx, housing.EventOfficerRequested, housing.OfficerChangedPayload{Assignment: a})
	if err := s.store.PersistOfficerAssignment(ctx, a); err != nil {
		return a, s.persistFailed(ctx, "officer "+officerID+"@"+project, err)
	}
	return a, nil
}

func (s *Service) DecideOfficerAssignment(ctx context.Context, managerID, officerID, project string, accept bool) (housing.OfficerAssignment, error) {
	defer s.records.Lock(officerKey(project, officerID))()
	a, err := s.engine.DecideOfficerAssignment(managerID, officerID, project, accept)
	s.observe("decide_officer", err)
	if err != nil {
		return housing.OfficerAssignment{}, err
	}
	s.announceOfficer(ctx, housing.EventOfficerDecided, housing.OfficerChangedPayload{
		Assignment: a, Accepted: &accept, ManagerID: managerID,
	})
	if accept {
		err = s.store.PersistOfficerAssignment(ctx, a)
	} else {
		err = s.store.DeleteOfficerAssignment(ctx, project, officerID)
	}
	if err != nil {
		return a, s.persistFailed(ctx, "officer "+officerID+"@"+project, err)
	}
	return a, nil
}

func (s *Service) CreateProject(ctx context.Context, p housing.Project) (housing.Project, error) {
	created, err := s.engine.CreateProject(p)
	s.observe("create_project", err)
	if err != nil {
		return housing.Project{}, err
	}
	return created, s.persistProject(ctx, created.Name)
}

func (s *Service) UpdateProject(ctx context.Context, managerID, name string, change ProjectChange) (housing.Project, error) {
	updated, err := s.engine.UpdateProject(managerID, name, change)
	s.observe("update_project", err)
	if err != nil {
		return housing.Project{}, err
	}
	return updated, s.persistProject(ctx, name)
}

func (s *Service) SetVisibility(ctx context.Context, managerID, name string, visible bool) (housing.Project, error) {
	updated, err := s.engine.SetVisibility(managerID, name, visible)
	s.observe("set_visibility", err)
	if err != nil {
		return housing.Project{}, err
	}
	return updated, s.persistProject(ctx, name)
}

func (s *Service) DeleteProject(ctx context.Context, managerID, name string) error {
	defer s.records.Lock(projectKey(name))()
	err := s.engine.DeleteProject(managerID, name)
	s.observe("delete_project", err)
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.DropProject(name, string(housing.TwoRoom), string(housing.ThreeRoom))
	}
	if err := s.store.DeleteProject(ctx, name); err != nil {
		return s.persistFailed(ctx, "project "+name, err)
	}
	return nil
}

// Flush writes the whole snapshot to the store, healing any earlier
// ErrNotPersisted.
func (s *Service) Flush(ctx context.Context) error {
	snap := s.engine.Snapshot()
	for _, p := range snap.Projects {
		if err := s.store.PersistProject(ctx, p); err != nil {
			return fmt.Errorf("flush project %s: %w", p.Name, err)
		}
	}
	for _, a := range snap.Applications {
		if err := s.store.PersistApplication(ctx, a); err != nil {
			return fmt.Errorf("flush application %s: %w", a.ID, err)
		}
	}
	for _, a := range snap.Officers {
		if err := s.store.PersistOfficerAssignment(ctx, a); err != nil {
			return fmt.Errorf("flush officer %s@%s: %w", a.OfficerID, a.Project, err)
		}
	}
	return nil
}
