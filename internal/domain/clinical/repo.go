package clinical

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByMemberKey(ctx context.Context, memberKey string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	// Lock takes a FOR KEY SHARE lock on the member's row, returning
	// apperr.ReferentialIntegrityError when it does not exist.
	Lock(ctx context.Context, memberKey string) error
	SearchByLastName(ctx context.Context, lastName string, limit, offset int) ([]*Patient, int, error)
}

type AdmissionRepository interface {
	Create(ctx context.Context, a *Admission) error
	GetByID(ctx context.Context, id uuid.UUID) (*Admission, error)
	Update(ctx context.Context, a *Admission) error
	ListByMember(ctx context.Context, memberKey string, limit, offset int) ([]*Admission, int, error)
	SearchByAdmitDate(ctx context.Context, from, to time.Time, limit, offset int) ([]*Admission, int, error)
}

type MarkerRepository interface {
	// Upsert inserts the marker or replaces the row with the same key.
	Upsert(ctx context.Context, m *ClinicalMarker) error
	Get(ctx context.Context, key MarkerKey) (*ClinicalMarker, error)
	ListByMember(ctx context.Context, memberKey string) ([]*ClinicalMarker, error)
}

type CaseDescriptorRepository interface {
	Create(ctx context.Context, d *CaseDescriptor) error
	GetByID(ctx context.Context, caseID string) (*CaseDescriptor, error)
	ListByCategory(ctx context.Context, category string, limit, offset int) ([]*CaseDescriptor, int, error)
}
