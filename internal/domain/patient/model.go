package patient

import "time"

// Patient maps to the patients table.
type Patient struct {
	ID          int64      `db:"id" json:"id"`
	FirstName   string     `db:"first_name" json:"first_name"`
	LastName    string     `db:"last_name" json:"last_name"`
	NationalID  string     `db:"national_id" json:"national_id"`
	DateOfBirth *time.Time `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Phone       *string    `db:"phone" json:"phone,omitempty"`
	Email       *string    `db:"email" json:"email,omitempty"`
	Address     *string    `db:"address" json:"address,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Visit maps to the visits table.
type Visit struct {
	ID        int64     `db:"id" json:"id"`
	PatientID int64     `db:"patient_id" json:"patient_id"`
	VisitTime time.Time `db:"visit_time" json:"visit_time"`
	Complaint *string   `db:"complaint" json:"complaint,omitempty"`
	Diagnosis *string   `db:"diagnosis" json:"diagnosis,omitempty"`
	Notes     *string   `db:"notes" json:"notes,omitempty"`
}

// Medication maps to the medications table.
type Medication struct {
	ID           int64      `db:"id" json:"id"`
	PatientID    int64      `db:"patient_id" json:"patient_id"`
	Name         string     `db:"name" json:"name"`
	Dosage       *string    `db:"dosage" json:"dosage,omitempty"`
	StartDate    *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate      *time.Time `db:"end_date" json:"end_date,omitempty"`
	Instructions *string    `db:"instructions" json:"instructions,omitempty"`
}

// SearchFilter selects a page of patients. An empty Query matches everyone.
type SearchFilter struct {
	Query string
	Skip  int
	Limit int
}
