package billing

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/claimsdb/internal/platform/apperr"
	"github.com/ehr/claimsdb/internal/platform/db"
	"github.com/ehr/claimsdb/internal/platform/validate"
)

// Repositories bundles the storage dependencies of the billing service.
type Repositories struct {
	Patients  PatientRepository
	Providers ProviderRepository
	Payers    PayerRepository
	Claims    ClaimRepository
	Lines     ClaimLineRepository
	Payments  PaymentRepository
	Lookups   LookupRepository
}

type Service struct {
	patients  PatientRepository
	providers ProviderRepository
	payers    PayerRepository
	claims    ClaimRepository
	lines     ClaimLineRepository
	payments  PaymentRepository
	lookups   LookupRepository
	vocab     *Vocabulary
	tx        db.Transactor
	log       zerolog.Logger

	enforcePaymentCap bool
}

func NewService(repos Repositories, vocab *Vocabulary, tx db.Transactor, log zerolog.Logger) *Service {
	return &Service{
		patients:          repos.Patients,
		providers:         repos.Providers,
		payers:            repos.Payers,
		claims:            repos.Claims,
		lines:             repos.Lines,
		payments:          repos.Payments,
		lookups:           repos.Lookups,
		vocab:             vocab,
		tx:                tx,
		log:               log.With().Str("domain", "billing").Logger(),
		enforcePaymentCap: true,
	}
}

// SetPaymentCap toggles the check that payments on a claim never sum past
// its total. It is on by default.
func (s *Service) SetPaymentCap(enforce bool) {
	s.enforcePaymentCap = enforce
}

func lineKey(claimID uuid.UUID, lineNumber int) string {
	return fmt.Sprintf("%s/%d", claimID, lineNumber)
}

func checkRange(from, to time.Time) error {
	if to.Before(from) {
		return apperr.Invalid("to", "to (%s) is before from (%s)", to.Format("2006-01-02"), from.Format("2006-01-02"))
	}
	return nil
}

// -- Patient --

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	if err := validate.Struct(p); err != nil {
		return err
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

// UpdatePatient replaces the mutable fields of the patient with p.ID.
func (s *Service) UpdatePatient(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		return apperr.Invalid("id", "id is required")
	}
	if err := validate.Struct(p); err != nil {
		return err
	}
	return s.patients.Update(ctx, p)
}

// DeletePatient removes a patient and its addresses. It fails while any
// claim references the patient.
func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		n, err := s.claims.CountByParty(ctx, PartyPatient, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.StillReferenced("patient", id.String(), fmt.Sprintf("%d claim(s)", n))
		}
		return s.patients.Delete(ctx, id)
	})
}

func (s *Service) SearchPatients(ctx context.Context, lastName string, limit, offset int) ([]*Patient, int, error) {
	if lastName == "" {
		return nil, 0, apperr.Invalid("last_name", "last_name is required")
	}
	return s.patients.SearchByLastName(ctx, lastName, limit, offset)
}

func (s *Service) AddPatientAddress(ctx context.Context, a *PatientAddress) error {
	if err := validate.Struct(a); err != nil {
		return err
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.patients.Lock(ctx, a.PatientID); err != nil {
			return err
		}
		return s.patients.AddAddress(ctx, a)
	})
}

func (s *Service) ListPatientAddresses(ctx context.Context, patientID uuid.UUID) ([]*PatientAddress, error) {
	if _, err := s.patients.GetByID(ctx, patientID); err != nil {
		return nil, err
	}
	return s.patients.ListAddresses(ctx, patientID)
}

// -- Provider --

func (s *Service) CreateProvider(ctx context.Context, p *Provider) error {
	if err := validate.Struct(p); err != nil {
		return err
	}
	return s.providers.Create(ctx, p)
}

func (s *Service) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	return s.providers.GetByID(ctx, id)
}

func (s *Service) GetProviderByNPI(ctx context.Context, npi string) (*Provider, error) {
	return s.providers.GetByNPI(ctx, npi)
}

func (s *Service) UpdateProvider(ctx context.Context, p *Provider) error {
	if p.ID == uuid.Nil {
		return apperr.Invalid("id", "id is required")
	}
	if err := validate.Struct(p); err != nil {
		return err
	}
	return s.providers.Update(ctx, p)
}

func (s *Service) DeleteProvider(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		n, err := s.claims.CountByParty(ctx, PartyProvider, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.StillReferenced("provider", id.String(), fmt.Sprintf("%d claim(s)", n))
		}
		return s.providers.Delete(ctx, id)
	})
}

func (s *Service) ListProviders(ctx context.Context, limit, offset int) ([]*Provider, int, error) {
	return s.providers.List(ctx, limit, offset)
}

// -- Payer --

func (s *Service) CreatePayer(ctx context.Context, p *Payer) error {
	if err := validate.Struct(p); err != nil {
		return err
	}
	return s.payers.Create(ctx, p)
}

func (s *Service) GetPayer(ctx context.Context, id uuid.UUID) (*Payer, error) {
	return s.payers.GetByID(ctx, id)
}

func (s *Service) UpdatePayer(ctx context.Context, p *Payer) error {
	if p.ID == uuid.Nil {
		return apperr.Invalid("id", "id is required")
	}
	if err := validate.Struct(p); err != nil {
		return err
	}
	return s.payers.Update(ctx, p)
}

func (s *Service) DeletePayer(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		n, err := s.claims.CountByParty(ctx, PartyPayer, id)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.StillReferenced("payer", id.String(), fmt.Sprintf("%d claim(s)", n))
		}
		return s.payers.Delete(ctx, id)
	})
}

func (s *Service) ListPayers(ctx context.Context, limit, offset int) ([]*Payer, int, error) {
	return s.payers.List(ctx, limit, offset)
}

// -- Claim --

// CreateClaim inserts a claim after checking that its patient, provider,
// payer, status and diagnosis all exist. The parent rows stay key-share
// locked until the insert commits. The initial status is recorded in the
// claim's history.
func (s *Service) CreateClaim(ctx context.Context, c *Claim) error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if err := s.vocab.Require(ctx, ClaimStatusCodes, c.StatusCode); err != nil {
		return err
	}
	if err := s.vocab.Require(ctx, DiagnosisCodes, c.DiagnosisCode); err != nil {
		return err
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.patients.Lock(ctx, c.PatientID); err != nil {
			return err
		}
		if err := s.providers.Lock(ctx, c.ProviderID); err != nil {
			return err
		}
		if err := s.payers.Lock(ctx, c.PayerID); err != nil {
			return err
		}
		if err := s.claims.Create(ctx, c); err != nil {
			return err
		}
		return s.claims.AddStatusChange(ctx, &ClaimStatusChange{ClaimID: c.ID, ToStatus: c.StatusCode})
	})
}

func (s *Service) GetClaim(ctx context.Context, id uuid.UUID) (*Claim, error) {
	return s.claims.GetByID(ctx, id)
}

// UpdateClaimStatus moves a claim to status and appends the transition to
// its history. Setting the current status again is a no-op.
func (s *Service) UpdateClaimStatus(ctx context.Context, id uuid.UUID, status string) (*Claim, error) {
	if status == "" {
		return nil, apperr.Invalid("status_code", "status_code is required")
	}
	if err := s.vocab.Require(ctx, ClaimStatusCodes, status); err != nil {
		return nil, err
	}
	var out *Claim
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.claims.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		out = c
		if c.StatusCode == status {
			return nil
		}
		from := c.StatusCode
		if err := s.claims.UpdateStatus(ctx, id, status); err != nil {
			return err
		}
		c.StatusCode = status
		return s.claims.AddStatusChange(ctx, &ClaimStatusChange{ClaimID: id, FromStatus: &from, ToStatus: status})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("claim_id", id.String()).Str("status", status).Msg("claim status updated")
	return out, nil
}

func (s *Service) ClaimStatusHistory(ctx context.Context, claimID uuid.UUID) ([]*ClaimStatusChange, error) {
	if _, err := s.claims.GetByID(ctx, claimID); err != nil {
		return nil, err
	}
	return s.claims.StatusHistory(ctx, claimID)
}

func (s *Service) SearchClaims(ctx context.Context, f ClaimFilter, limit, offset int) ([]*Claim, int, error) {
	if f.From != nil && f.To != nil {
		if err := checkRange(*f.From, *f.To); err != nil {
			return nil, 0, err
		}
	}
	return s.claims.Search(ctx, f, limit, offset)
}

// -- Claim Line --

// AddClaimLine attaches a line to an existing claim. A second line with the
// same number on the same claim fails with a ConflictError.
func (s *Service) AddClaimLine(ctx context.Context, l *ClaimLine) error {
	if err := validate.Struct(l); err != nil {
		return err
	}
	if err := s.vocab.Require(ctx, ProcedureCodes, l.ProcedureCode); err != nil {
		return err
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.claims.Lock(ctx, l.ClaimID); err != nil {
			return err
		}
		return s.lines.Create(ctx, l)
	})
}

func (s *Service) GetClaimLine(ctx context.Context, id uuid.UUID) (*ClaimLine, error) {
	return s.lines.GetByID(ctx, id)
}

func (s *Service) ListClaimLines(ctx context.Context, claimID uuid.UUID) ([]*ClaimLine, error) {
	if _, err := s.claims.GetByID(ctx, claimID); err != nil {
		return nil, err
	}
	return s.lines.ListByClaim(ctx, claimID)
}

func (s *Service) SearchClaimLinesByProcedure(ctx context.Context, code string, limit, offset int) ([]*ClaimLine, int, error) {
	if code == "" {
		return nil, 0, apperr.Invalid("procedure_code", "procedure_code is required")
	}
	return s.lines.SearchByProcedure(ctx, code, limit, offset)
}

// -- Payment --

// AddPayment records a payment against a claim. With the payment cap on,
// the claim row is locked for update so concurrent payments are checked
// one at a time against total_claim_amount.
func (s *Service) AddPayment(ctx context.Context, p *Payment) error {
	if err := validate.Struct(p); err != nil {
		return err
	}
	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if !s.enforcePaymentCap {
			if err := s.claims.Lock(ctx, p.ClaimID); err != nil {
				return err
			}
			return s.payments.Create(ctx, p)
		}

		c, err := s.claims.GetForUpdate(ctx, p.ClaimID)
		if apperr.IsNotFound(err) {
			return apperr.MissingRef("claim", p.ClaimID.String())
		}
		if err != nil {
			return err
		}
		paid, err := s.payments.SumByClaim(ctx, p.ClaimID)
		if err != nil {
			return err
		}
		if after := paid.Add(p.PaidAmount); after.GreaterThan(c.TotalClaimAmount) {
			return apperr.Invalid("paid_amount", "payments would total %s, exceeding claim total %s",
				after.StringFixed(2), c.TotalClaimAmount.StringFixed(2))
		}
		return s.payments.Create(ctx, p)
	})
}

func (s *Service) GetPayment(ctx context.Context, id uuid.UUID) (*Payment, error) {
	return s.payments.GetByID(ctx, id)
}

func (s *Service) ListPayments(ctx context.Context, claimID uuid.UUID) ([]*Payment, error) {
	if _, err := s.claims.GetByID(ctx, claimID); err != nil {
		return nil, err
	}
	return s.payments.ListByClaim(ctx, claimID)
}

func (s *Service) SearchPayments(ctx context.Context, from, to time.Time, limit, offset int) ([]*Payment, int, error) {
	if err := checkRange(from, to); err != nil {
		return nil, 0, err
	}
	return s.payments.SearchByDate(ctx, from, to, limit, offset)
}

// -- Vocabulary --

func (s *Service) UpsertLookup(ctx context.Context, kind LookupKind, l Lookup) error {
	if !kind.Valid() {
		return apperr.Invalid("kind", "unknown vocabulary %q", kind)
	}
	if err := kind.Check(&l); err != nil {
		return err
	}
	if err := s.lookups.Upsert(ctx, kind, l); err != nil {
		return err
	}
	s.vocab.Invalidate(ctx, kind)
	return nil
}

func (s *Service) ListLookups(ctx context.Context, kind LookupKind) ([]Lookup, error) {
	if !kind.Valid() {
		return nil, apperr.Invalid("kind", "unknown vocabulary %q", kind)
	}
	return s.lookups.List(ctx, kind)
}

// LoadVocabulary upserts every entry of a YAML seed file in one transaction
// and returns how many codes were written.
func (s *Service) LoadVocabulary(ctx context.Context, r io.Reader) (int, error) {
	f, err := ParseVocabulary(r)
	if err != nil {
		return 0, apperr.Invalid("file", "%v", err)
	}
	entries := f.Entries()
	for _, kind := range LookupKinds {
		for i := range entries[kind] {
			if err := kind.Check(&entries[kind][i]); err != nil {
				return 0, fmt.Errorf("%s entry %d: %w", kind, i+1, err)
			}
		}
	}

	n := 0
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		for _, kind := range LookupKinds {
			for _, l := range entries[kind] {
				if err := s.lookups.Upsert(ctx, kind, l); err != nil {
					return err
				}
				n++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.vocab.Invalidate(ctx, LookupKinds...)
	s.log.Info().Int("codes", n).Msg("vocabulary loaded")
	return n, nil
}
