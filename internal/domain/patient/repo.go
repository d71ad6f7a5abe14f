package patient

import "context"

// Repositories return *apperr.Error for NotFound and DuplicateKey outcomes and
// the raw driver error for anything else.

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id int64) (*Patient, error)
	GetByNationalID(ctx context.Context, nationalID string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id int64) error
	Search(ctx context.Context, f SearchFilter) ([]*Patient, error)
}

type VisitRepository interface {
	Create(ctx context.Context, v *Visit) error
	ListByPatient(ctx context.Context, patientID int64, skip, limit int) ([]*Visit, error)
	DeleteByPatient(ctx context.Context, patientID int64) (int64, error)
}

type MedicationRepository interface {
	Create(ctx context.Context, m *Medication) error
	ListByPatient(ctx context.Context, patientID int64) ([]*Medication, error)
	DeleteByPatient(ctx context.Context, patientID int64) (int64, error)
}
