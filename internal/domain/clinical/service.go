package clinical

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/claimsdb/internal/platform/apperr"
	"github.com/ehr/claimsdb/internal/platform/db"
	"github.com/ehr/claimsdb/internal/platform/validate"
)

// Repositories bundles the storage dependencies of the clinical service.
type Repositories struct {
	Patients   PatientRepository
	Admissions AdmissionRepository
	Markers    MarkerRepository
	Cases      CaseDescriptorRepository
}

type Service struct {
	patients   PatientRepository
	admissions AdmissionRepository
	markers    MarkerRepository
	cases      CaseDescriptorRepository
	tx         db.Transactor
	log        zerolog.Logger
}

func NewService(repos Repositories, tx db.Transactor, log zerolog.Logger) *Service {
	return &Service{
		patients:   repos.Patients,
		admissions: repos.Admissions,
		markers:    repos.Markers,
		cases:      repos.Cases,
		tx:         tx,
		log:        log.With().Str("domain", "clinical").Logger(),
	}
}

// -- Patient --

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if err := validate.Struct(p); err != nil {
		return err
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, memberKey string) (*Patient, error) {
	return s.patients.GetByMemberKey(ctx, memberKey)
}

// UpdatePatient replaces the demographic fields of the member p.MemberKey.
func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if err := validate.Struct(p); err != nil {
		return err
	}
	return s.patients.Update(ctx, p)
}

func (s *Service) SearchPatients(ctx context.Context, lastName string, limit, offset int) ([]*Patient, int, error) {
	if lastName == "" {
		return nil, 0, apperr.Invalid("last_name", "last_name is required")
	}
	return s.patients.SearchByLastName(ctx, lastName, limit, offset)
}

// -- Admission --

func checkAdmission(a *Admission) error {
	if err := validate.Struct(a); err != nil {
		return err
	}
	if a.DischargeDate.Before(a.AdmitDate) {
		return apperr.Invalid("discharge_date", "discharge_date (%s) is before admit_date (%s)",
			a.DischargeDate.Format("2006-01-02"), a.AdmitDate.Format("2006-01-02"))
	}
	return nil
}

func (s *Service) warnInconsistent(a *Admission) {
	if a.TotalsConsistent() {
		return
	}
	s.log.Warn().
		Str("admission_id", a.ID.String()).
		Str("member_key", a.MemberKey).
		Str("allowed_categories", a.Allowed.CategoryTotal().StringFixed(2)).
		Str("allowed_episode", a.Allowed.EpisodeTotal().StringFixed(2)).
		Str("paid_categories", a.Paid.CategoryTotal().StringFixed(2)).
		Str("paid_episode", a.Paid.EpisodeTotal().StringFixed(2)).
		Msg("admission amount breakdowns do not add up")
}

// CreateAdmission stores an admission for an existing member. The member row
// stays key-share locked until the insert commits.
func (s *Service) CreateAdmission(ctx context.Context, a *Admission) error {
	if err := checkAdmission(a); err != nil {
		return err
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.patients.Lock(ctx, a.MemberKey); err != nil {
			return err
		}
		return s.admissions.Create(ctx, a)
	})
	if err != nil {
		return err
	}
	s.warnInconsistent(a)
	return nil
}

func (s *Service) GetAdmission(ctx context.Context, id uuid.UUID) (*Admission, error) {
	return s.admissions.GetByID(ctx, id)
}

// UpdateAdmission rewrites the admission with a.ID. The member it belongs to
// cannot be changed.
func (s *Service) UpdateAdmission(ctx context.Context, a *Admission) error {
	if a.ID == uuid.Nil {
		return apperr.Invalid("id", "id is required")
	}
	if err := checkAdmission(a); err != nil {
		return err
	}
	current, err := s.admissions.GetByID(ctx, a.ID)
	if err != nil {
		return err
	}
	if current.MemberKey != a.MemberKey {
		return apperr.Invalid("member_key", "member_key cannot be changed")
	}
	if err := s.admissions.Update(ctx, a); err != nil {
		return err
	}
	s.warnInconsistent(a)
	return nil
}

func (s *Service) ListAdmissionsByPatient(ctx context.Context, memberKey string, limit, offset int) ([]*Admission, int, error) {
	if _, err := s.patients.GetByMemberKey(ctx, memberKey); err != nil {
		return nil, 0, err
	}
	return s.admissions.ListByMember(ctx, memberKey, limit, offset)
}

// SearchAdmissions lists admissions whose admit date falls in [from, to].
func (s *Service) SearchAdmissions(ctx context.Context, from, to time.Time, limit, offset int) ([]*Admission, int, error) {
	if to.Before(from) {
		return nil, 0, apperr.Invalid("to", "to (%s) is before from (%s)", to.Format("2006-01-02"), from.Format("2006-01-02"))
	}
	return s.admissions.SearchByAdmitDate(ctx, from, to, limit, offset)
}

// -- Clinical Marker --

// RecordClinicalMarker inserts the marker or replaces the one already stored
// under the same member, rule and period.
func (s *Service) RecordClinicalMarker(ctx context.Context, m *ClinicalMarker) error {
	if err := validate.Struct(m); err != nil {
		return err
	}
	if m.MaxDt.Before(m.MinDt) {
		return apperr.Invalid("max_dt", "max_dt (%s) is before min_dt (%s)",
			m.MaxDt.Format("2006-01-02"), m.MinDt.Format("2006-01-02"))
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.patients.Lock(ctx, m.MemberKey); err != nil {
			return err
		}
		return s.markers.Upsert(ctx, m)
	})
}

func (s *Service) GetClinicalMarker(ctx context.Context, key MarkerKey) (*ClinicalMarker, error) {
	return s.markers.Get(ctx, key)
}

func (s *Service) ListClinicalMarkers(ctx context.Context, memberKey string) ([]*ClinicalMarker, error) {
	if _, err := s.patients.GetByMemberKey(ctx, memberKey); err != nil {
		return nil, err
	}
	return s.markers.ListByMember(ctx, memberKey)
}

// -- Case Descriptor --

func (s *Service) CreateCaseDescriptor(ctx context.Context, d *CaseDescriptor) error {
	if err := validate.Struct(d); err != nil {
		return err
	}
	return s.cases.Create(ctx, d)
}

func (s *Service) GetCaseDescriptor(ctx context.Context, caseID string) (*CaseDescriptor, error) {
	return s.cases.GetByID(ctx, caseID)
}

// ListCaseDescriptors lists descriptors in category, or all of them when
// category is empty.
func (s *Service) ListCaseDescriptors(ctx context.Context, category string, limit, offset int) ([]*CaseDescriptor, int, error) {
	return s.cases.ListByCategory(ctx, category, limit, offset)
}
