package clinical

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ehr/claimsdb/internal/platform/jsontime"
)

// Patient maps to clinical.patients, keyed by the member key assigned
// upstream. Gender is free text as received.
type Patient struct {
	MemberKey string     `db:"member_key" json:"member_key" validate:"required,max=50"`
	FirstName *string    `db:"first_name" json:"first_name,omitempty" validate:"omitempty,max=100"`
	LastName  *string    `db:"last_name" json:"last_name,omitempty" validate:"omitempty,max=100"`
	BirthDate *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Gender    *string    `db:"gender" json:"gender,omitempty" validate:"omitempty,max=20"`
	Address1  *string    `db:"address1" json:"address1,omitempty" validate:"omitempty,max=200"`
	Address2  *string    `db:"address2" json:"address2,omitempty" validate:"omitempty,max=200"`
	City      *string    `db:"city" json:"city,omitempty" validate:"omitempty,max=100"`
	State     *string    `db:"state" json:"state,omitempty" validate:"omitempty,max=50"`
	Zip       *string    `db:"zip" json:"zip,omitempty" validate:"omitempty,max=20"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// Amounts is one allowed-or-paid breakdown of an admission.
type Amounts struct {
	Facility   decimal.Decimal `json:"facility" validate:"money=12"`
	RoomBoard  decimal.Decimal `json:"room_board" validate:"money=12"`
	Ancillary  decimal.Decimal `json:"ancillary" validate:"money=12"`
	Clinician  decimal.Decimal `json:"clinician" validate:"money=12"`
	Other      decimal.Decimal `json:"other" validate:"money=12"`
	Episode    decimal.Decimal `json:"episode" validate:"money=12"`
	NonEpisode decimal.Decimal `json:"non_episode" validate:"money=12"`
}

// CategoryTotal sums the service categories.
func (a Amounts) CategoryTotal() decimal.Decimal {
	return decimal.Sum(a.Facility, a.RoomBoard, a.Ancillary, a.Clinician, a.Other)
}

// EpisodeTotal sums the episode and non-episode split.
func (a Amounts) EpisodeTotal() decimal.Decimal {
	return a.Episode.Add(a.NonEpisode)
}

// Consistent reports whether the category breakdown and the episode split
// describe the same total.
func (a Amounts) Consistent() bool {
	return a.CategoryTotal().Equal(a.EpisodeTotal())
}

// Admission maps to clinical.admissions: one confinement of a member.
type Admission struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	MemberKey       string     `db:"member_key" json:"member_key" validate:"required,max=50"`
	ConfinementNo   *string    `db:"confinement_no" json:"confinement_no,omitempty" validate:"omitempty,max=50"`
	EpisodeNo       *string    `db:"episode_no" json:"episode_no,omitempty" validate:"omitempty,max=50"`
	AdmitDate       time.Time  `db:"admit_date" json:"admit_date" validate:"required"`
	DischargeDate   time.Time  `db:"discharge_date" json:"discharge_date" validate:"required"`
	AgeAtAdmit      *int       `db:"age_at_admit" json:"age_at_admit,omitempty" validate:"omitempty,gte=0"`
	AgeAtDischarge  *int       `db:"age_at_discharge" json:"age_at_discharge,omitempty" validate:"omitempty,gte=0"`
	FacilityType    *string    `db:"facility_type" json:"facility_type,omitempty" validate:"omitempty,max=20"`
	BedType         *string    `db:"bed_type" json:"bed_type,omitempty" validate:"omitempty,max=20"`
	ConfinementType *string    `db:"confinement_type" json:"confinement_type,omitempty" validate:"omitempty,max=20"`
	DRG             *string    `db:"drg" json:"drg,omitempty" validate:"omitempty,max=20"`
	ETG             *string    `db:"etg" json:"etg,omitempty" validate:"omitempty,max=20"`
	PrincipalDx     *string    `db:"principal_dx" json:"principal_dx,omitempty" validate:"omitempty,max=20"`
	PrincipalPx     *string    `db:"principal_px" json:"principal_px,omitempty" validate:"omitempty,max=20"`
	// ProvID is stored as a timestamp, as received. Its intended type is
	// unconfirmed; it is carried unchanged.
	ProvID    *time.Time `db:"prov_id" json:"prov_id,omitempty"`
	Allowed   Amounts    `json:"allowed"`
	Paid      Amounts    `json:"paid"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// LengthOfStay is the number of days between admission and discharge. A
// same-day discharge is zero days.
func (a *Admission) LengthOfStay() int {
	return int(a.DischargeDate.Sub(a.AdmitDate).Hours() / 24)
}

// TotalsConsistent reports whether both the allowed and the paid breakdown
// add up. It is informational; inconsistent admissions are still stored.
func (a *Admission) TotalsConsistent() bool {
	return a.Allowed.Consistent() && a.Paid.Consistent()
}

// ClinicalMarker maps to clinical.clinical_markers: occurrences of one
// clinical rule for a member within a period bucket.
type ClinicalMarker struct {
	MemberKey   string    `db:"member_key" json:"member_key" validate:"required,max=50"`
	RuleID      string    `db:"rule_id" json:"rule_id" validate:"required,max=50"`
	Period      string    `db:"period" json:"period" validate:"required,max=20"`
	MinDt       time.Time `db:"min_dt" json:"min_dt" validate:"required"`
	MaxDt       time.Time `db:"max_dt" json:"max_dt" validate:"required"`
	Occurrences int       `db:"occurrences" json:"occurrences" validate:"gte=0"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// MarkerKey is the composite identity of a ClinicalMarker.
type MarkerKey struct {
	MemberKey string
	RuleID    string
	Period    string
}

func (m *ClinicalMarker) Key() MarkerKey {
	return MarkerKey{MemberKey: m.MemberKey, RuleID: m.RuleID, Period: m.Period}
}

func (k MarkerKey) String() string {
	return k.MemberKey + "/" + k.RuleID + "/" + k.Period
}

// CaseDescriptor maps to clinical.case_descriptors.
type CaseDescriptor struct {
	CaseID    string  `db:"case_id" json:"case_id" validate:"required,max=50"`
	ShortDesc string  `db:"short_desc" json:"short_desc" validate:"required,max=100"`
	LongDesc  *string `db:"long_desc" json:"long_desc,omitempty" validate:"omitempty,max=1000"`
	Category  *string `db:"category" json:"category,omitempty" validate:"omitempty,max=100"`
}

// Request bodies may carry DATE columns as YYYY-MM-DD or RFC 3339.

func (p *Patient) UnmarshalJSON(b []byte) error {
	type plain Patient
	aux := struct {
		*plain
		BirthDate *jsontime.Date `json:"birth_date,omitempty"`
	}{plain: (*plain)(p), BirthDate: jsontime.FromPtr(p.BirthDate)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	p.BirthDate = aux.BirthDate.Ptr()
	return nil
}

func (a *Admission) UnmarshalJSON(b []byte) error {
	type plain Admission
	aux := struct {
		*plain
		AdmitDate     jsontime.Date `json:"admit_date"`
		DischargeDate jsontime.Date `json:"discharge_date"`
	}{plain: (*plain)(a), AdmitDate: jsontime.From(a.AdmitDate), DischargeDate: jsontime.From(a.DischargeDate)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	a.AdmitDate = aux.AdmitDate.Time
	a.DischargeDate = aux.DischargeDate.Time
	return nil
}

func (m *ClinicalMarker) UnmarshalJSON(b []byte) error {
	type plain ClinicalMarker
	aux := struct {
		*plain
		MinDt jsontime.Date `json:"min_dt"`
		MaxDt jsontime.Date `json:"max_dt"`
	}{plain: (*plain)(m), MinDt: jsontime.From(m.MinDt), MaxDt: jsontime.From(m.MaxDt)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	m.MinDt = aux.MinDt.Time
	m.MaxDt = aux.MaxDt.Time
	return nil
}
