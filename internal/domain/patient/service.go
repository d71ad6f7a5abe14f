package patient

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/tracker/internal/platform/apperr"
	"github.com/ehr/tracker/internal/platform/db"
	"github.com/ehr/tracker/internal/platform/metrics"
)

type Service struct {
	tx          db.Transactor
	patients    PatientRepository
	visits      VisitRepository
	medications MedicationRepository
	now         func() time.Time
	logger      zerolog.Logger
}

func NewService(tx db.Transactor, patients PatientRepository, visits VisitRepository, medications MedicationRepository, logger zerolog.Logger) *Service {
	return &Service{
		tx:          tx,
		patients:    patients,
		visits:      visits,
		medications: medications,
		now:         time.Now,
		logger:      logger.With().Str("component", "patient").Logger(),
	}
}

// -- Patient --

// CreatePatient rejects a national_id that is already on file. The unique
// index catches the race the pre-check cannot.
func (s *Service) CreatePatient(ctx context.Context, in PatientCreate) (*Patient, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	p, err := s.createPatient(ctx, &in)
	if err != nil {
		return nil, apperr.Store("create patient", err)
	}
	metrics.RecordCreated("patient")
	s.logger.Debug().Int64("patient_id", p.ID).Msg("patient created")
	return p, nil
}

func (s *Service) createPatient(ctx context.Context, in *PatientCreate) (*Patient, error) {
	p := in.toModel()
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		_, err := s.patients.GetByNationalID(ctx, p.NationalID)
		switch {
		case err == nil:
			return apperr.DuplicateKey("national_id", p.NationalID)
		case !errors.Is(err, apperr.ErrNotFound):
			return err
		}
		return s.patients.Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetPatient(ctx context.Context, id int64) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Store("get patient", err)
	}
	return p, nil
}

func (s *Service) GetPatientByNationalID(ctx context.Context, nationalID string) (*Patient, error) {
	f := fieldErrors{}
	f.text("national_id", nationalID)
	if err := f.err(); err != nil {
		return nil, err
	}
	p, err := s.patients.GetByNationalID(ctx, nationalID)
	if err != nil {
		return nil, apperr.Store("get patient by national_id", err)
	}
	return p, nil
}

// SearchPatients returns patients newest first. A non-empty Query matches a
// case-insensitive substring of any name, national_id, phone or email.
func (s *Service) SearchPatients(ctx context.Context, f SearchFilter) ([]*Patient, error) {
	if err := checkPage(f.Skip, f.Limit); err != nil {
		return nil, err
	}
	problems := fieldErrors{}
	problems.text("q", f.Query)
	if err := problems.err(); err != nil {
		return nil, err
	}
	patients, err := s.patients.Search(ctx, f)
	if err != nil {
		return nil, apperr.Store("search patients", err)
	}
	if patients == nil {
		patients = []*Patient{}
	}
	return patients, nil
}

// UpdatePatient applies the present slots of in and returns the stored row.
func (s *Service) UpdatePatient(ctx context.Context, id int64, in PatientUpdate) (*Patient, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var p *Patient
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		var err error
		if p, err = s.patients.GetByID(ctx, id); err != nil {
			return err
		}
		if err := in.CheckNationalID(p.NationalID); err != nil {
			return err
		}
		if in.Empty() {
			return nil
		}
		in.Apply(p)
		return s.patients.Update(ctx, p)
	})
	if err != nil {
		return nil, apperr.Store("update patient", err)
	}
	return p, nil
}

// DeletePatient removes the patient with all of its medications and visits
// in one transaction.
func (s *Service) DeletePatient(ctx context.Context, id int64) error {
	var meds, visits int64
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.patients.GetByID(ctx, id); err != nil {
			return err
		}
		var err error
		if meds, err = s.medications.DeleteByPatient(ctx, id); err != nil {
			return err
		}
		if visits, err = s.visits.DeleteByPatient(ctx, id); err != nil {
			return err
		}
		return s.patients.Delete(ctx, id)
	})
	if err != nil {
		return apperr.Store("delete patient", err)
	}
	metrics.RecordPatientDeleted()
	s.logger.Debug().
		Int64("patient_id", id).
		Int64("medications", meds).
		Int64("visits", visits).
		Msg("patient deleted")
	return nil
}

// -- Visits --

// AddVisit records a visit. visit_time defaults to the current time in UTC.
func (s *Service) AddVisit(ctx context.Context, patientID int64, in VisitCreate) (*Visit, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	v := &Visit{
		PatientID: patientID,
		Complaint: in.Complaint,
		Diagnosis: in.Diagnosis,
		Notes:     in.Notes,
	}
	if in.VisitTime != nil {
		v.VisitTime = in.VisitTime.Time()
	} else {
		v.VisitTime = s.now().UTC()
	}

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.patients.GetByID(ctx, patientID); err != nil {
			return err
		}
		return s.visits.Create(ctx, v)
	})
	if err != nil {
		return nil, apperr.Store("add visit", err)
	}
	metrics.RecordCreated("visit")
	return v, nil
}

// ListVisits pages through a patient's visits, most recent first.
func (s *Service) ListVisits(ctx context.Context, patientID int64, skip, limit int) ([]*Visit, error) {
	if err := checkPage(skip, limit); err != nil {
		return nil, err
	}
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return nil, apperr.Store("list visits", err)
	}
	visits, err := s.visits.ListByPatient(ctx, patientID, skip, limit)
	if err != nil {
		return nil, apperr.Store("list visits", err)
	}
	if visits == nil {
		visits = []*Visit{}
	}
	return visits, nil
}

// -- Medications --

func (s *Service) AddMedication(ctx context.Context, patientID int64, in MedicationCreate) (*Medication, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	m := &Medication{
		PatientID:    patientID,
		Name:         in.Name,
		Dosage:       in.Dosage,
		StartDate:    dateTime(in.StartDate),
		EndDate:      dateTime(in.EndDate),
		Instructions: in.Instructions,
	}

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if _, err := s.patients.GetByID(ctx, patientID); err != nil {
			return err
		}
		return s.medications.Create(ctx, m)
	})
	if err != nil {
		return nil, apperr.Store("add medication", err)
	}
	metrics.RecordCreated("medication")
	return m, nil
}

func (s *Service) ListMedications(ctx context.Context, patientID int64) ([]*Medication, error) {
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return nil, apperr.Store("list medications", err)
	}
	meds, err := s.medications.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, apperr.Store("list medications", err)
	}
	if meds == nil {
		meds = []*Medication{}
	}
	return meds, nil
}

func checkPage(skip, limit int) error {
	f := fieldErrors{}
	if skip < 0 {
		f.add("skip", "must not be negative")
	}
	if limit < 0 {
		f.add("limit", "must not be negative")
	}
	return f.err()
}
