package housing

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo is the Postgres-backed Store. Schema lives in migrations/.
type Repo struct{ DB *pgxpool.Pool }

var _ Store = (*Repo)(nil)

func (r *Repo) LoadProjects(ctx context.Context) ([]Project, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT name, neighbourhood, visible, manager_id, open_date, close_date, officer_slots,
		       two_room_total, two_room_available, three_room_total, three_room_available
		FROM projects ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Project
	for rows.Next() {
		var p Project
		var two, three Units
		if err := rows.Scan(&p.Name, &p.Neighbourhood, &p.Visible, &p.ManagerID, &p.OpenDate, &p.CloseDate,
			&p.OfficerSlots, &two.Total, &two.Available, &three.Total, &three.Available); err != nil {
			return nil, err
		}
		p.Units = map[UnitType]Units{TwoRoom: two, ThreeRoom: three}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *Repo) LoadApplications(ctx context.Context) ([]Application, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, applicant_id, project_name, unit_type, status,
		       withdrawal_requested, booking_requested, created_at, updated_at
		FROM applications ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Application
	for rows.Next() {
		var a Application
		var unit, status string
		if err := rows.Scan(&a.ID, &a.ApplicantID, &a.Project, &unit, &status,
			&a.WithdrawalRequested, &a.BookingRequested, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		if a.UnitType, err = ParseUnitType(unit); err != nil {
			return nil, fmt.Errorf("application %s: %w", a.ID, err)
		}
		a.Status = Status(status)
		if !a.Status.Valid() {
			return nil, fmt.Errorf("application %s: %w: status %q", a.ID, ErrInconsistentState, status)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repo) LoadOfficerAssignments(ctx context.Context) ([]OfficerAssignment, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT project_name, officer_id, state, requested_at, decided_at
		FROM officer_assignments ORDER BY project_name, requested_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OfficerAssignment
	for rows.Next() {
		var a OfficerAssignment
		var state string
		if err := rows.Scan(&a.Project, &a.OfficerID, &state, &a.RequestedAt, &a.DecidedAt); err != nil {
			return nil, err
		}
		a.State = AssignmentState(state)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repo) LoadApplicants(ctx context.Context) ([]Applicant, error) {
	rows, err := r.DB.Query(ctx, `SELECT id, name, age, marital_status FROM applicants ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Applicant
	for rows.Next() {
		var a Applicant
		var marital string
		if err := rows.Scan(&a.ID, &a.Name, &a.Age, &marital); err != nil {
			return nil, err
		}
		a.Marital = MaritalStatus(marital)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repo) PersistProject(ctx context.Context, p Project) error {
	two, three := p.Units[TwoRoom], p.Units[ThreeRoom]
	_, err := r.DB.Exec(ctx, `
		INSERT INTO projects(name, neighbourhood, visible, manager_id, open_date, close_date, officer_slots,
		                     two_room_total, two_room_available, three_room_total, three_room_available)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (name) DO UPDATE SET
			neighbourhood = EXCLUDED.neighbourhood,
			visible = EXCLUDED.visible,
			manager_id = EXCLUDED.manager_id,
			open_date = EXCLUDED.open_date,
			close_date = EXCLUDED.close_date,
			officer_slots = EXCLUDED.officer_slots,
			two_room_total = EXCLUDED.two_room_total,
			two_room_available = EXCLUDED.two_room_available,
			three_room_total = EXCLUDED.three_room_total,
			three_room_available = EXCLUDED.three_room_available,
			updated_at = now()`,
		p.Name, p.Neighbourhood, p.Visible, p.ManagerID, p.OpenDate, p.CloseDate, p.OfficerSlots,
		two.Total, two.Available, three.Total, three.Available)
	return err
}

func (r *Repo) PersistApplication(ctx context.Context, a Application) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO applications(id, applicant_id, project_name, unit_type, status,
		                         withdrawal_requested, booking_requested, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			withdrawal_requested = EXCLUDED.withdrawal_requested,
			booking_requested = EXCLUDED.booking_requested,
			updated_at = EXCLUDED.updated_at`,
		a.ID, a.ApplicantID, a.Project, string(a.UnitType), string(a.Status),
		a.WithdrawalRequested, a.BookingRequested, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r *Repo) PersistOfficerAssignment(ctx context.Context, a OfficerAssignment) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO officer_assignments(project_name, officer_id, state, requested_at, decided_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (project_name, officer_id) DO UPDATE SET
			state = EXCLUDED.state,
			decided_at = EXCLUDED.decided_at`,
		a.Project, a.OfficerID, string(a.State), a.RequestedAt, a.DecidedAt)
	return err
}

// DeleteProject removes the project together with its roster in one
// transaction. Application rows are kept as history.
func (r *Repo) DeleteProject(ctx context.Context, name string) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM officer_assignments WHERE project_name=$1`, name); err != nil {
		return err
	}
	ct, err := tx.Exec(ctx, `DELETE FROM projects WHERE name=$1`, name)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: %s", ErrNoSuchProject, name)
	}
	return tx.Commit(ctx)
}

func (r *Repo) DeleteOfficerAssignment(ctx context.Context, project, officerID string) error {
	_, err := r.DB.Exec(ctx, `DELETE FROM officer_assignments WHERE project_name=$1 AND officer_id=$2`, project, officerID)
	return err
}
