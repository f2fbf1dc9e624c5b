package billing

import (
	"encoding/json"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ehr/claimsdb/internal/platform/apperr"
	"github.com/ehr/claimsdb/internal/platform/jsontime"
	"github.com/ehr/claimsdb/internal/platform/validate"
)

// Patient maps to billing.patients.
type Patient struct {
	ID        uuid.UUID `db:"id" json:"id"`
	FirstName string    `db:"first_name" json:"first_name" validate:"required,max=100"`
	LastName  string    `db:"last_name" json:"last_name" validate:"required,max=100"`
	BirthDate time.Time `db:"birth_date" json:"birth_date" validate:"required"`
	Gender    string    `db:"gender" json:"gender" validate:"required,oneof=M F O"`
	Phone     *string   `db:"phone" json:"phone,omitempty" validate:"omitempty,max=30"`
	Email     *string   `db:"email" json:"email,omitempty" validate:"omitempty,email,max=255"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// PatientAddress maps to billing.patient_addresses.
type PatientAddress struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id" validate:"required"`
	AddressType string    `db:"address_type" json:"address_type" validate:"required,oneof=Home Mailing Work"`
	Line1       string    `db:"line1" json:"line1" validate:"required,max=200"`
	Line2       *string   `db:"line2" json:"line2,omitempty" validate:"omitempty,max=200"`
	City        string    `db:"city" json:"city" validate:"required,max=100"`
	State       string    `db:"state" json:"state" validate:"required,max=50"`
	PostalCode  string    `db:"postal_code" json:"postal_code" validate:"required,max=20"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Provider maps to billing.providers. NPI is unique.
type Provider struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name" validate:"required,max=200"`
	NPI       string    `db:"npi" json:"npi" validate:"required,npi"`
	Specialty *string   `db:"specialty" json:"specialty,omitempty" validate:"omitempty,max=100"`
	Phone     *string   `db:"phone" json:"phone,omitempty" validate:"omitempty,max=30"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Payer maps to billing.payers.
type Payer struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name" validate:"required,max=200"`
	PayerCode *string   `db:"payer_code" json:"payer_code,omitempty" validate:"omitempty,max=50"`
	Phone     *string   `db:"phone" json:"phone,omitempty" validate:"omitempty,max=30"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Claim maps to billing.claims. Claims are never deleted; their status
// moves forward through claim_status_history.
type Claim struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	PatientID        uuid.UUID       `db:"patient_id" json:"patient_id" validate:"required"`
	ProviderID       uuid.UUID       `db:"provider_id" json:"provider_id" validate:"required"`
	PayerID          uuid.UUID       `db:"payer_id" json:"payer_id" validate:"required"`
	StatusCode       string          `db:"status_code" json:"status_code" validate:"required,max=30"`
	DiagnosisCode    string          `db:"diagnosis_code" json:"diagnosis_code" validate:"required,max=20"`
	ClaimDate        time.Time       `db:"claim_date" json:"claim_date" validate:"required"`
	TotalClaimAmount decimal.Decimal `db:"total_claim_amount" json:"total_claim_amount" validate:"money=10"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// ClaimStatusChange is one row of billing.claim_status_history. FromStatus
// is nil for the status a claim was created with.
type ClaimStatusChange struct {
	ID         uuid.UUID `db:"id" json:"id"`
	ClaimID    uuid.UUID `db:"claim_id" json:"claim_id"`
	FromStatus *string   `db:"from_status" json:"from_status,omitempty"`
	ToStatus   string    `db:"to_status" json:"to_status"`
	ChangedAt  time.Time `db:"changed_at" json:"changed_at"`
}

// ClaimLine maps to billing.claim_lines. (ClaimID, LineNumber) is unique.
type ClaimLine struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	ClaimID       uuid.UUID       `db:"claim_id" json:"claim_id" validate:"required"`
	LineNumber    int             `db:"line_number" json:"line_number" validate:"gte=1"`
	ProcedureCode string          `db:"procedure_code" json:"procedure_code" validate:"required,max=20"`
	ServiceDate   time.Time       `db:"service_date" json:"service_date" validate:"required"`
	ChargeAmount  decimal.Decimal `db:"charge_amount" json:"charge_amount" validate:"money=10"`
	Units         int             `db:"units" json:"units" validate:"gte=1"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// Payment maps to billing.payments.
type Payment struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	ClaimID       uuid.UUID       `db:"claim_id" json:"claim_id" validate:"required"`
	PaidAmount    decimal.Decimal `db:"paid_amount" json:"paid_amount" validate:"money=10"`
	PaymentDate   time.Time       `db:"payment_date" json:"payment_date" validate:"required"`
	PaymentMethod string          `db:"payment_method" json:"payment_method" validate:"required,max=30"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// LookupKind names one of the controlled vocabularies.
type LookupKind string

const (
	ProcedureCodes   LookupKind = "procedure"
	DiagnosisCodes   LookupKind = "diagnosis"
	ClaimStatusCodes LookupKind = "claim_status"
)

// LookupKinds lists every vocabulary.
var LookupKinds = []LookupKind{ProcedureCodes, DiagnosisCodes, ClaimStatusCodes}

// Valid reports whether k is a known vocabulary.
func (k LookupKind) Valid() bool {
	switch k {
	case ProcedureCodes, DiagnosisCodes, ClaimStatusCodes:
		return true
	}
	return false
}

// Table returns the lookup table backing k.
func (k LookupKind) Table() string {
	switch k {
	case ProcedureCodes:
		return "procedure_codes"
	case DiagnosisCodes:
		return "diagnosis_codes"
	case ClaimStatusCodes:
		return "claim_status_codes"
	}
	return ""
}

// Entity is the name used in error messages for a code of this kind.
func (k LookupKind) Entity() string {
	return string(k) + " code"
}

// limits returns the column widths of code and description in this kind's
// table.
func (k LookupKind) limits() (code, description int) {
	if k == ClaimStatusCodes {
		return 30, 200
	}
	return 20, 500
}

// Check validates l and holds it to the column widths of this kind's table.
func (k LookupKind) Check(l *Lookup) error {
	if err := validate.Struct(l); err != nil {
		return err
	}
	codeMax, descMax := k.limits()
	ve := &apperr.ValidationError{}
	if utf8.RuneCountInString(l.Code) > codeMax {
		ve.Fields = append(ve.Fields, apperr.FieldError{Field: "code",
			Message: fmt.Sprintf("code must be at most %d characters for %s codes", codeMax, k)})
	}
	if utf8.RuneCountInString(l.Description) > descMax {
		ve.Fields = append(ve.Fields, apperr.FieldError{Field: "description",
			Message: fmt.Sprintf("description must be at most %d characters for %s codes", descMax, k)})
	}
	if len(ve.Fields) > 0 {
		return ve
	}
	return nil
}

// Lookup is one code/description pair of a vocabulary.
type Lookup struct {
	Code        string `json:"code" yaml:"code" validate:"required,max=30"`
	Description string `json:"description" yaml:"description" validate:"required,max=500"`
}

// ClaimFilter narrows SearchClaims. Zero fields are ignored. From and To
// bound claim_date inclusively.
type ClaimFilter struct {
	From      *time.Time
	To        *time.Time
	Status    string
	PatientID *uuid.UUID
}

// Party identifies which reference column of claims a count applies to.
type Party string

const (
	PartyPatient  Party = "patient_id"
	PartyProvider Party = "provider_id"
	PartyPayer    Party = "payer_id"
)

// Request bodies may carry DATE columns as YYYY-MM-DD or RFC 3339.

func (p *Patient) UnmarshalJSON(b []byte) error {
	type plain Patient
	aux := struct {
		*plain
		BirthDate jsontime.Date `json:"birth_date"`
	}{plain: (*plain)(p), BirthDate: jsontime.From(p.BirthDate)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	p.BirthDate = aux.BirthDate.Time
	return nil
}

func (c *Claim) UnmarshalJSON(b []byte) error {
	type plain Claim
	aux := struct {
		*plain
		ClaimDate jsontime.Date `json:"claim_date"`
	}{plain: (*plain)(c), ClaimDate: jsontime.From(c.ClaimDate)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	c.ClaimDate = aux.ClaimDate.Time
	return nil
}

func (l *ClaimLine) UnmarshalJSON(b []byte) error {
	type plain ClaimLine
	aux := struct {
		*plain
		ServiceDate jsontime.Date `json:"service_date"`
	}{plain: (*plain)(l), ServiceDate: jsontime.From(l.ServiceDate)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	l.ServiceDate = aux.ServiceDate.Time
	return nil
}

func (p *Payment) UnmarshalJSON(b []byte) error {
	type plain Payment
	aux := struct {
		*plain
		PaymentDate jsontime.Date `json:"payment_date"`
	}{plain: (*plain)(p), PaymentDate: jsontime.From(p.PaymentDate)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	p.PaymentDate = aux.PaymentDate.Time
	return nil
}
