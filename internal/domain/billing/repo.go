package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Lock methods take a FOR KEY SHARE lock on the row inside the current
// transaction and return apperr.ReferentialIntegrityError when it is absent.

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error
	Lock(ctx context.Context, id uuid.UUID) error
	SearchByLastName(ctx context.Context, lastName string, limit, offset int) ([]*Patient, int, error)
	// Addresses
	AddAddress(ctx context.Context, a *PatientAddress) error
	ListAddresses(ctx context.Context, patientID uuid.UUID) ([]*PatientAddress, error)
}

type ProviderRepository interface {
	Create(ctx context.Context, p *Provider) error
	GetByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	GetByNPI(ctx context.Context, npi string) (*Provider, error)
	Update(ctx context.Context, p *Provider) error
	Delete(ctx context.Context, id uuid.UUID) error
	Lock(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Provider, int, error)
}

type PayerRepository interface {
	Create(ctx context.Context, p *Payer) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payer, error)
	Update(ctx context.Context, p *Payer) error
	Delete(ctx context.Context, id uuid.UUID) error
	Lock(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Payer, int, error)
}

type ClaimRepository interface {
	Create(ctx context.Context, c *Claim) error
	GetByID(ctx context.Context, id uuid.UUID) (*Claim, error)
	// GetForUpdate reads the claim and holds a row lock until the
	// transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Claim, error)
	Lock(ctx context.Context, id uuid.UUID) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	CountByParty(ctx context.Context, party Party, id uuid.UUID) (int, error)
	Search(ctx context.Context, f ClaimFilter, limit, offset int) ([]*Claim, int, error)
	// Status history
	AddStatusChange(ctx context.Context, h *ClaimStatusChange) error
	StatusHistory(ctx context.Context, claimID uuid.UUID) ([]*ClaimStatusChange, error)
}

type ClaimLineRepository interface {
	Create(ctx context.Context, l *ClaimLine) error
	GetByID(ctx context.Context, id uuid.UUID) (*ClaimLine, error)
	ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*ClaimLine, error)
	SearchByProcedure(ctx context.Context, code string, limit, offset int) ([]*ClaimLine, int, error)
	// EachByServiceDate calls fn for every line serviced in [from, to],
	// ordered by service date. Iteration stops at the first error.
	EachByServiceDate(ctx context.Context, from, to time.Time, fn func(*ClaimLine) error) error
}

type PaymentRepository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*Payment, error)
	SumByClaim(ctx context.Context, claimID uuid.UUID) (decimal.Decimal, error)
	SearchByDate(ctx context.Context, from, to time.Time, limit, offset int) ([]*Payment, int, error)
}

type LookupRepository interface {
	Upsert(ctx context.Context, kind LookupKind, l Lookup) error
	List(ctx context.Context, kind LookupKind) ([]Lookup, error)
}
