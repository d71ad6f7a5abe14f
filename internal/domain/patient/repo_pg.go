package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/tracker/internal/platform/apperr"
	"github.com/ehr/tracker/internal/platform/db"
)

// SQLSTATE codes the repositories translate into domain errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

type scanner interface {
	Scan(dest ...any) error
}

// -- Patient Repository --

type patientRepoPG struct {
	pool *pgxpool.Pool
}

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) db.Querier {
	return db.Pick(ctx, r.pool)
}

const patientCols = `id, first_name, last_name, national_id, date_of_birth, phone, email, address, created_at, updated_at`

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (first_name, last_name, national_id, date_of_birth, phone, email, address)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		p.FirstName, p.LastName, p.NationalID, p.DateOfBirth, p.Phone, p.Email, p.Address,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if isPgCode(err, pgUniqueViolation) {
			return apperr.DuplicateKey("national_id", p.NationalID)
		}
		return fmt.Errorf("insert patient: %w", err)
	}
	return nil
}

func (r *patientRepoPG) GetByID(ctx context.Context, id int64) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("patient", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get patient %d: %w", id, err)
	}
	return p, nil
}

func (r *patientRepoPG) GetByNationalID(ctx context.Context, nationalID string) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE national_id = $1`, nationalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("patient with national_id", nationalID)
	}
	if err != nil {
		return nil, fmt.Errorf("get patient by national_id: %w", err)
	}
	return p, nil
}

// Update writes every mutable column. national_id is left out of the SET list.
func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE patients SET
			first_name = $2, last_name = $3, date_of_birth = $4,
			phone = $5, email = $6, address = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth, p.Phone, p.Email, p.Address,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("patient", p.ID)
	}
	if err != nil {
		return fmt.Errorf("update patient %d: %w", p.ID, err)
	}
	return nil
}

func (r *patientRepoPG) Delete(ctx context.Context, id int64) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete patient %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient", id)
	}
	return nil
}

func (r *patientRepoPG) Search(ctx context.Context, f SearchFilter) ([]*Patient, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT ` + patientCols + ` FROM patients`)
	if f.Query != "" {
		args = append(args, "%"+escapeLike(f.Query)+"%")
		sb.WriteString(` WHERE first_name ILIKE $1 OR last_name ILIKE $1 OR national_id ILIKE $1
			OR phone ILIKE $1 OR email ILIKE $1`)
	}
	args = append(args, f.Skip, f.Limit)
	fmt.Fprintf(&sb, ` ORDER BY id DESC OFFSET $%d LIMIT $%d`, len(args)-1, len(args))

	rows, err := r.conn(ctx).Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search patients: %w", err)
	}
	defer rows.Close()

	var patients []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan patient: %w", err)
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

func scanPatient(row scanner) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.NationalID, &p.DateOfBirth,
		&p.Phone, &p.Email, &p.Address, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// -- Visit Repository --

type visitRepoPG struct {
	pool *pgxpool.Pool
}

func NewVisitRepo(pool *pgxpool.Pool) VisitRepository {
	return &visitRepoPG{pool: pool}
}

func (r *visitRepoPG) conn(ctx context.Context) db.Querier {
	return db.Pick(ctx, r.pool)
}

const visitCols = `id, patient_id, visit_time, complaint, diagnosis, notes`

func (r *visitRepoPG) Create(ctx context.Context, v *Visit) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO visits (patient_id, visit_time, complaint, diagnosis, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, visit_time`,
		v.PatientID, v.VisitTime, v.Complaint, v.Diagnosis, v.Notes,
	).Scan(&v.ID, &v.VisitTime)
	if err != nil {
		if isPgCode(err, pgForeignKeyViolation) {
			return apperr.NotFound("patient", v.PatientID)
		}
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

func (r *visitRepoPG) ListByPatient(ctx context.Context, patientID int64, skip, limit int) ([]*Visit, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+visitCols+` FROM visits
		WHERE patient_id = $1
		ORDER BY visit_time DESC, id DESC
		OFFSET $2 LIMIT $3`, patientID, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	defer rows.Close()

	var visits []*Visit
	for rows.Next() {
		var v Visit
		if err := rows.Scan(&v.ID, &v.PatientID, &v.VisitTime, &v.Complaint, &v.Diagnosis, &v.Notes); err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		visits = append(visits, &v)
	}
	return visits, rows.Err()
}

func (r *visitRepoPG) DeleteByPatient(ctx context.Context, patientID int64) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM visits WHERE patient_id = $1`, patientID)
	if err != nil {
		return 0, fmt.Errorf("delete visits: %w", err)
	}
	return tag.RowsAffected(), nil
}

// -- Medication Repository --

type medicationRepoPG struct {
	pool *pgxpool.Pool
}

func NewMedicationRepo(pool *pgxpool.Pool) MedicationRepository {
	return &medicationRepoPG{pool: pool}
}

func (r *medicationRepoPG) conn(ctx context.Context) db.Querier {
	return db.Pick(ctx, r.pool)
}

const medicationCols = `id, patient_id, name, dosage, start_date, end_date, instructions`

func (r *medicationRepoPG) Create(ctx context.Context, m *Medication) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medications (patient_id, name, dosage, start_date, end_date, instructions)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		m.PatientID, m.Name, m.Dosage, m.StartDate, m.EndDate, m.Instructions,
	).Scan(&m.ID)
	if err != nil {
		if isPgCode(err, pgForeignKeyViolation) {
			return apperr.NotFound("patient", m.PatientID)
		}
		return fmt.Errorf("insert medication: %w", err)
	}
	return nil
}

func (r *medicationRepoPG) ListByPatient(ctx context.Context, patientID int64) ([]*Medication, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+medicationCols+` FROM medications
		WHERE patient_id = $1
		ORDER BY id`, patientID)
	if err != nil {
		return nil, fmt.Errorf("list medications: %w", err)
	}
	defer rows.Close()

	var meds []*Medication
	for rows.Next() {
		var m Medication
		if err := rows.Scan(&m.ID, &m.PatientID, &m.Name, &m.Dosage, &m.StartDate, &m.EndDate, &m.Instructions); err != nil {
			return nil, fmt.Errorf("scan medication: %w", err)
		}
		meds = append(meds, &m)
	}
	return meds, rows.Err()
}

func (r *medicationRepoPG) DeleteByPatient(ctx context.Context, patientID int64) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM medications WHERE patient_id = $1`, patientID)
	if err != nil {
		return 0, fmt.Errorf("delete medications: %w", err)
	}
	return tag.RowsAffected(), nil
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

// escapeLike makes %, _ and \ in user input match literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
