package capacity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore persists capacity counters in Postgres. Reservations run as
// a single transaction around SELECT ... FOR UPDATE, so the read-verify-
// increment sequence is atomic per row: concurrent reservations against the
// same doctor or the pool row queue on the row lock. See schema.sql for the
// expected tables.
type PostgresStore struct {
	db *sql.DB
}

const poolRowID = "hospital"

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const doctorColumns = "id, name, department, daily_capacity, current_appointments, is_available, avg_consultation_minutes"

func scanDoctor(row interface{ Scan(...interface{}) error }) (Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.Name, &d.Department, &d.DailyCapacity,
		&d.CurrentAppointments, &d.IsAvailable, &d.AvgConsultationMinutes)
	return d, err
}

func (s *PostgresStore) AddDoctor(ctx context.Context, d Doctor) error {
	if d.DailyCapacity <= 0 {
		return fmt.Errorf("daily capacity must be positive, got %d", d.DailyCapacity)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO doctors (id, name, department, daily_capacity, current_appointments, is_available, avg_consultation_minutes, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		d.ID, d.Name, d.Department, d.DailyCapacity, d.CurrentAppointments,
		d.IsAvailable, d.AvgConsultationMinutes, time.Now(),
	)
	if err != nil {
		return storeErr(err)
	}
	return nil
}

func (s *PostgresStore) ListDoctors(ctx context.Context, department string) ([]Doctor, error) {
	query := "SELECT " + doctorColumns + " FROM doctors"
	args := []interface{}{}
	if department != "" {
		query += " WHERE department = $1"
		args = append(args, department)
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(err)
	}
	defer rows.Close()

	var doctors []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		doctors = append(doctors, d)
	}
	return doctors, storeErr(rows.Err())
}

func (s *PostgresStore) GetDoctor(ctx context.Context, id string) (Doctor, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+doctorColumns+" FROM doctors WHERE id = $1", id)
	d, err := scanDoctor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Doctor{}, ErrDoctorNotFound
	}
	if err != nil {
		return Doctor{}, storeErr(err)
	}
	return d, nil
}

func (s *PostgresStore) SetDoctorAvailability(ctx context.Context, id string, available bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE doctors SET is_available = $1 WHERE id = $2", available, id)
	if err != nil {
		return storeErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDoctorNotFound
	}
	return nil
}

func (s *PostgresStore) ReserveDoctor(ctx context.Context, id string) (Doctor, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Doctor{}, storeErr(err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		"SELECT "+doctorColumns+" FROM doctors WHERE id = $1 FOR UPDATE", id)
	d, err := scanDoctor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Doctor{}, ErrDoctorNotFound
	}
	if err != nil {
		return Doctor{}, storeErr(err)
	}

	if !d.IsAvailable || !d.HasFreeSlot() {
		return Doctor{}, fmt.Errorf("%w: doctor %s at %d/%d", ErrCapacityExceeded,
			id, d.CurrentAppointments, d.DailyCapacity)
	}

	d.CurrentAppointments++
	if _, err := tx.ExecContext(ctx,
		"UPDATE doctors SET current_appointments = $1 WHERE id = $2",
		d.CurrentAppointments, id); err != nil {
		return Doctor{}, storeErr(err)
	}
	if err := tx.Commit(); err != nil {
		return Doctor{}, storeErr(err)
	}
	return d, nil
}

func (s *PostgresStore) ReleaseDoctor(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE doctors SET current_appointments = current_appointments - 1
		 WHERE id = $1 AND current_appointments > 0`, id)
	if err != nil {
		return storeErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Either unknown doctor or already at zero; only the former is an error.
		if _, err := s.GetDoctor(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

const poolColumns = "icu_total, icu_occupied, ward_total, ward_occupied, last_updated"

func scanPool(row interface{ Scan(...interface{}) error }) (ResourcePool, error) {
	var p ResourcePool
	var updated sql.NullTime
	err := row.Scan(&p.ICUTotal, &p.ICUOccupied, &p.WardTotal, &p.WardOccupied, &updated)
	if updated.Valid {
		p.LastUpdated = updated.Time
	}
	return p, err
}

func (s *PostgresStore) Pool(ctx context.Context) (ResourcePool, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+poolColumns+" FROM resources WHERE id = $1", poolRowID)
	p, err := scanPool(row)
	if err != nil {
		return ResourcePool{}, storeErr(err)
	}
	return p, nil
}

func (s *PostgresStore) ReserveBed(ctx context.Context, class BedClass) (ResourcePool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ResourcePool{}, storeErr(err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		"SELECT "+poolColumns+" FROM resources WHERE id = $1 FOR UPDATE", poolRowID)
	p, err := scanPool(row)
	if err != nil {
		return ResourcePool{}, storeErr(err)
	}

	if p.Occupied(class) >= p.Total(class) {
		return ResourcePool{}, fmt.Errorf("%w: %s at %d/%d", ErrResourceExhausted,
			class, p.Occupied(class), p.Total(class))
	}

	column := "ward_occupied"
	if class == BedICU {
		column = "icu_occupied"
		p.ICUOccupied++
	} else {
		p.WardOccupied++
	}
	p.LastUpdated = time.Now()

	if _, err := tx.ExecContext(ctx,
		"UPDATE resources SET "+column+" = "+column+" + 1, last_updated = $1 WHERE id = $2",
		p.LastUpdated, poolRowID); err != nil {
		return ResourcePool{}, storeErr(err)
	}
	if err := tx.Commit(); err != nil {
		return ResourcePool{}, storeErr(err)
	}
	return p, nil
}

func (s *PostgresStore) ReleaseBed(ctx context.Context, class BedClass) error {
	column := "ward_occupied"
	if class == BedICU {
		column = "icu_occupied"
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE resources SET "+column+" = "+column+" - 1, last_updated = $1 WHERE id = $2 AND "+column+" > 0",
		time.Now(), poolRowID)
	return storeErr(err)
}

func (s *PostgresStore) Snapshot(ctx context.Context) ([]Doctor, ResourcePool, error) {
	// Repeatable read gives both queries the same consistent view.
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, ResourcePool{}, storeErr(err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		"SELECT "+doctorColumns+" FROM doctors ORDER BY created_at, id")
	if err != nil {
		return nil, ResourcePool{}, storeErr(err)
	}
	defer rows.Close()

	var doctors []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, ResourcePool{}, storeErr(err)
		}
		doctors = append(doctors, d)
	}
	if err := rows.Err(); err != nil {
		return nil, ResourcePool{}, storeErr(err)
	}

	row := tx.QueryRowContext(ctx,
		"SELECT "+poolColumns+" FROM resources WHERE id = $1", poolRowID)
	pool, err := scanPool(row)
	if err != nil {
		return nil, ResourcePool{}, storeErr(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, ResourcePool{}, storeErr(err)
	}
	return doctors, pool, nil
}

// storeErr tags infrastructure failures so callers can tell an operational
// outage apart from a capacity rejection.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
