package appointments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Appointment statuses. Records are created once as scheduled and only ever
// transition to rescheduled when bumped by a later emergency.
const (
	StatusScheduled   = "scheduled"
	StatusRescheduled = "rescheduled"
)

var ErrAppointmentNotFound = errors.New("appointment not found")

// Appointment is the persisted intake record.
type Appointment struct {
	ID                   string    `json:"id"`
	PatientName          string    `json:"patient_name"`
	PatientEmail         string    `json:"patient_email,omitempty"`
	Age                  int       `json:"age"`
	Symptoms             string    `json:"symptoms"`
	Department           string    `json:"department"`
	SeverityScore        int       `json:"severity_score"`
	Emergency            int       `json:"emergency"`
	AssignedDoctorID     string    `json:"assigned_doctor_id"`
	AssignedDoctorName   string    `json:"assigned_doctor_name"`
	PredictedWaitMinutes int       `json:"predicted_wait_minutes"`
	WorkloadPercent      float64   `json:"workload_percent"`
	BedType              string    `json:"bed_type"`
	Status               string    `json:"status"`
	RescheduleReason     string    `json:"reschedule_reason,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// Repository persists appointments in Postgres.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const columns = `id, patient_name, patient_email, age, symptoms, department,
	severity_score, emergency, assigned_doctor_id, assigned_doctor_name,
	predicted_wait_minutes, workload_percent, bed_type, status,
	reschedule_reason, created_at`

func scan(row interface{ Scan(...interface{}) error }) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientName, &a.PatientEmail, &a.Age, &a.Symptoms,
		&a.Department, &a.SeverityScore, &a.Emergency, &a.AssignedDoctorID,
		&a.AssignedDoctorName, &a.PredictedWaitMinutes, &a.WorkloadPercent,
		&a.BedType, &a.Status, &a.RescheduleReason, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Create inserts a new appointment record. Records are immutable apart from
// the reschedule transition.
func (r *Repository) Create(ctx context.Context, a *Appointment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO appointments (`+columns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		a.ID, a.PatientName, a.PatientEmail, a.Age, a.Symptoms, a.Department,
		a.SeverityScore, a.Emergency, a.AssignedDoctorID, a.AssignedDoctorName,
		a.PredictedWaitMinutes, a.WorkloadPercent, a.BedType, a.Status,
		a.RescheduleReason, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

// List returns all appointments, newest first.
func (r *Repository) List(ctx context.Context) ([]*Appointment, error) {
	return r.query(ctx,
		"SELECT "+columns+" FROM appointments ORDER BY created_at DESC")
}

// ByDoctor returns all appointments assigned to a doctor, newest first.
func (r *Repository) ByDoctor(ctx context.Context, doctorID string) ([]*Appointment, error) {
	return r.query(ctx,
		"SELECT "+columns+" FROM appointments WHERE assigned_doctor_id = $1 ORDER BY created_at DESC",
		doctorID)
}

// ScheduledForDoctor returns the doctor's still-scheduled, non-emergency
// appointments: the set an incoming emergency may bump.
func (r *Repository) ScheduledForDoctor(ctx context.Context, doctorID string) ([]*Appointment, error) {
	return r.query(ctx,
		"SELECT "+columns+" FROM appointments WHERE assigned_doctor_id = $1 AND status = $2 AND emergency = 0 ORDER BY created_at",
		doctorID, StatusScheduled)
}

func (r *Repository) query(ctx context.Context, q string, args ...interface{}) ([]*Appointment, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Appointment
	for rows.Next() {
		a, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Reschedule marks an appointment as rescheduled with a reason.
func (r *Repository) Reschedule(ctx context.Context, id, reason string) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE appointments SET status = $1, reschedule_reason = $2 WHERE id = $3",
		StatusRescheduled, reason, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

// CountCases reports total and emergency appointment counts for the
// metrics aggregator.
func (r *Repository) CountCases(ctx context.Context) (total, emergency int, err error) {
	err = r.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COUNT(*) FILTER (WHERE emergency = 1) FROM appointments",
	).Scan(&total, &emergency)
	return total, emergency, err
}
