package clinical

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ehr/claimsdb/internal/platform/apperr"
	"github.com/ehr/claimsdb/internal/platform/db"
)

// -- Mock Repositories --

type mockPatientRepo struct {
	items map[string]*Patient
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{items: make(map[string]*Patient)}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	if _, ok := m.items[p.MemberKey]; ok {
		return apperr.Conflict("member", p.MemberKey)
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = time.Now()
	m.items[p.MemberKey] = p
	return nil
}

func (m *mockPatientRepo) GetByMemberKey(_ context.Context, key string) (*Patient, error) {
	p, ok := m.items[key]
	if !ok {
		return nil, apperr.NotFound("member", key)
	}
	return p, nil
}

func (m *mockPatientRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.items[p.MemberKey]; !ok {
		return apperr.NotFound("member", p.MemberKey)
	}
	m.items[p.MemberKey] = p
	return nil
}

func (m *mockPatientRepo) Lock(_ context.Context, key string) error {
	if _, ok := m.items[key]; !ok {
		return apperr.MissingRef("member", key)
	}
	return nil
}

func (m *mockPatientRepo) SearchByLastName(_ context.Context, lastName string, limit, offset int) ([]*Patient, int, error) {
	var result []*Patient
	for _, p := range m.items {
		if p.LastName != nil && *p.LastName == lastName {
			result = append(result, p)
		}
	}
	return result, len(result), nil
}

type mockAdmissionRepo struct {
	items map[uuid.UUID]*Admission
}

func newMockAdmissionRepo() *mockAdmissionRepo {
	return &mockAdmissionRepo{items: make(map[uuid.UUID]*Admission)}
}

func (m *mockAdmissionRepo) Create(_ context.Context, a *Admission) error {
	a.ID = uuid.New()
	m.items[a.ID] = a
	return nil
}

func (m *mockAdmissionRepo) GetByID(_ context.Context, id uuid.UUID) (*Admission, error) {
	a, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("admission", id.String())
	}
	cp := *a
	return &cp, nil
}

func (m *mockAdmissionRepo) Update(_ context.Context, a *Admission) error {
	if _, ok := m.items[a.ID]; !ok {
		return apperr.NotFound("admission", a.ID.String())
	}
	m.items[a.ID] = a
	return nil
}

func (m *mockAdmissionRepo) sorted(keep func(*Admission) bool) []*Admission {
	var result []*Admission
	for _, a := range m.items {
		if keep(a) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AdmitDate.Before(result[j].AdmitDate) })
	return result
}

func (m *mockAdmissionRepo) ListByMember(_ context.Context, key string, limit, offset int) ([]*Admission, int, error) {
	result := m.sorted(func(a *Admission) bool { return a.MemberKey == key })
	return result, len(result), nil
}

func (m *mockAdmissionRepo) SearchByAdmitDate(_ context.Context, from, to time.Time, limit, offset int) ([]*Admission, int, error) {
	result := m.sorted(func(a *Admission) bool { return !a.AdmitDate.Before(from) && !a.AdmitDate.After(to) })
	return result, len(result), nil
}

type mockMarkerRepo struct {
	items map[MarkerKey]*ClinicalMarker
}

func newMockMarkerRepo() *mockMarkerRepo {
	return &mockMarkerRepo{items: make(map[MarkerKey]*ClinicalMarker)}
}

func (m *mockMarkerRepo) Upsert(_ context.Context, cm *ClinicalMarker) error {
	cm.UpdatedAt = time.Now()
	m.items[cm.Key()] = cm
	return nil
}

func (m *mockMarkerRepo) Get(_ context.Context, key MarkerKey) (*ClinicalMarker, error) {
	cm, ok := m.items[key]
	if !ok {
		return nil, apperr.NotFound("clinical marker", key.String())
	}
	return cm, nil
}

func (m *mockMarkerRepo) ListByMember(_ context.Context, key string) ([]*ClinicalMarker, error) {
	var result []*ClinicalMarker
	for k, cm := range m.items {
		if k.MemberKey == key {
			result = append(result, cm)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RuleID < result[j].RuleID })
	return result, nil
}

type mockCaseRepo struct {
	items map[string]*CaseDescriptor
}

func newMockCaseRepo() *mockCaseRepo {
	return &mockCaseRepo{items: make(map[string]*CaseDescriptor)}
}

func (m *mockCaseRepo) Create(_ context.Context, d *CaseDescriptor) error {
	if _, ok := m.items[d.CaseID]; ok {
		return apperr.Conflict("case descriptor", d.CaseID)
	}
	m.items[d.CaseID] = d
	return nil
}

func (m *mockCaseRepo) GetByID(_ context.Context, id string) (*CaseDescriptor, error) {
	d, ok := m.items[id]
	if !ok {
		return nil, apperr.NotFound("case descriptor", id)
	}
	return d, nil
}

func (m *mockCaseRepo) ListByCategory(_ context.Context, category string, limit, offset int) ([]*CaseDescriptor, int, error) {
	var result []*CaseDescriptor
	for _, d := range m.items {
		if category == "" || (d.Category != nil && *d.Category == category) {
			result = append(result, d)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CaseID < result[j].CaseID })
	return result, len(result), nil
}

func newTestServiceWithLog(log zerolog.Logger) *Service {
	return NewService(Repositories{
		Patients:   newMockPatientRepo(),
		Admissions: newMockAdmissionRepo(),
		Markers:    newMockMarkerRepo(),
		Cases:      newMockCaseRepo(),
	}, db.NoopTransactor{}, log)
}

func newTestService() *Service {
	return newTestServiceWithLog(zerolog.Nop())
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func str(s string) *string { return &s }

func amounts(facility, roomBoard, episode, nonEpisode string) Amounts {
	return Amounts{
		Facility:   decimal.RequireFromString(facility),
		RoomBoard:  decimal.RequireFromString(roomBoard),
		Episode:    decimal.RequireFromString(episode),
		NonEpisode: decimal.RequireFromString(nonEpisode),
	}
}

func seedMember(t *testing.T, svc *Service, key string) *Patient {
	t.Helper()
	p := &Patient{MemberKey: key, FirstName: str("Grace"), LastName: str("Hopper"), Gender: str("female")}
	if err := svc.CreatePatient(context.Background(), p); err != nil {
		t.Fatalf("create patient: %v", err)
	}
	return p
}

func newAdmission(member, admit, discharge string) *Admission {
	return &Admission{
		MemberKey:     member,
		AdmitDate:     day(admit),
		DischargeDate: day(discharge),
		Allowed:       amounts("100.00", "50.00", "150.00", "0"),
		Paid:          amounts("80.00", "40.00", "100.00", "20.00"),
	}
}

// -- Patient Tests --

func TestCreatePatient_FreeFormGender(t *testing.T) {
	svc := newTestService()
	p := &Patient{MemberKey: "M-1", Gender: str("unknown")}
	if err := svc.CreatePatient(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreatePatient_RequiresMemberKey(t *testing.T) {
	svc := newTestService()
	err := svc.CreatePatient(context.Background(), &Patient{FirstName: str("Grace")})
	if !apperr.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestCreatePatient_DuplicateMemberKey(t *testing.T) {
	svc := newTestService()
	seedMember(t, svc, "M-1")
	err := svc.CreatePatient(context.Background(), &Patient{MemberKey: "M-1"})
	if !apperr.IsConflict(err) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestUpdatePatient(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	seedMember(t, svc, "M-1")
	if err := svc.UpdatePatient(ctx, &Patient{MemberKey: "M-1", LastName: str("Murray")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	items, total, err := svc.SearchPatients(ctx, "Murray", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || items[0].MemberKey != "M-1" {
		t.Errorf("expected M-1, got %d results", total)
	}

	err = svc.UpdatePatient(ctx, &Patient{MemberKey: "M-404"})
	if !apperr.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestSearchPatients_RequiresLastName(t *testing.T) {
	svc := newTestService()
	_, _, err := svc.SearchPatients(context.Background(), "", 10, 0)
	if !apperr.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

// -- Admission Tests --

func TestCreateAdmission(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	seedMember(t, svc, "M-1")
	a := newAdmission("M-1", "2024-01-10", "2024-01-14")
	if err := svc.CreateAdmission(ctx, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
	got, err := svc.GetAdmission(ctx, a.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.LengthOfStay() != 4 {
		t.Errorf("expected length of stay 4, got %d", got.LengthOfStay())
	}
}

func TestCreateAdmission_SameDayDischarge(t *testing.T) {
	svc := newTestService()
	seedMember(t, svc, "M-1")
	a := newAdmission("M-1", "2024-01-10", "2024-01-10")
	if err := svc.CreateAdmission(context.Background(), a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.LengthOfStay() != 0 {
		t.Errorf("expected length of stay 0, got %d", a.LengthOfStay())
	}
}

func TestCreateAdmission_DischargeBeforeAdmit(t *testing.T) {
	svc := newTestService()
	seedMember(t, svc, "M-1")
	err := svc.CreateAdmission(context.Background(), newAdmission("M-1", "2024-01-10", "2024-01-09"))
	if !apperr.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestCreateAdmission_NegativeAmount(t *testing.T) {
	svc := newTestService()
	seedMember(t, svc, "M-1")
	a := newAdmission("M-1", "2024-01-10", "2024-01-12")
	a.Paid.Clinician = decimal.RequireFromString("-1")
	err := svc.CreateAdmission(context.Background(), a)
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(ve.Fields) != 1 || ve.Fields[0].Field != "paid.clinician" {
		t.Errorf("expected field paid.clinician, got %+v", ve.Fields)
	}
}

func TestCreateAdmission_MissingMember(t *testing.T) {
	svc := newTestService()
	err := svc.CreateAdmission(context.Background(), newAdmission("M-404", "2024-01-10", "2024-01-12"))
	if !apperr.IsReferentialIntegrity(err) {
		t.Fatalf("expected ReferentialIntegrityError, got %v", err)
	}
}

func TestCreateAdmission_InconsistentTotalsStoredWithWarning(t *testing.T) {
	var buf bytes.Buffer
	svc := newTestServiceWithLog(zerolog.New(&buf))
	seedMember(t, svc, "M-1")
	a := newAdmission("M-1", "2024-01-10", "2024-01-12")
	a.Allowed.Episode = decimal.RequireFromString("999.00")
	if err := svc.CreateAdmission(context.Background(), a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.TotalsConsistent() {
		t.Error("expected totals to be inconsistent")
	}
	if !strings.Contains(buf.String(), "do not add up") {
		t.Errorf("expected warning to be logged, got %q", buf.String())
	}
}

func TestUpdateAdmission(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	seedMember(t, svc, "M-1")
	seedMember(t, svc, "M-2")
	a := newAdmission("M-1", "2024-01-10", "2024-01-12")
	if err := svc.CreateAdmission(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}

	upd := newAdmission("M-1", "2024-01-10", "2024-01-20")
	upd.ID = a.ID
	if err := svc.UpdateAdmission(ctx, upd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := svc.GetAdmission(ctx, a.ID)
	if got.LengthOfStay() != 10 {
		t.Errorf("expected length of stay 10, got %d", got.LengthOfStay())
	}

	moved := newAdmission("M-2", "2024-01-10", "2024-01-20")
	moved.ID = a.ID
	if err := svc.UpdateAdmission(ctx, moved); !apperr.IsValidation(err) {
		t.Errorf("expected ValidationError when changing member, got %v", err)
	}

	missing := newAdmission("M-1", "2024-01-10", "2024-01-20")
	missing.ID = uuid.New()
	if err := svc.UpdateAdmission(ctx, missing); !apperr.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestListAdmissionsByPatient(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	seedMember(t, svc, "M-1")
	seedMember(t, svc, "M-2")
	for _, a := range []*Admission{
		newAdmission("M-1", "2024-01-10", "2024-01-12"),
		newAdmission("M-1", "2024-03-01", "2024-03-02"),
		newAdmission("M-2", "2024-02-01", "2024-02-02"),
	} {
		if err := svc.CreateAdmission(ctx, a); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	_, total, err := svc.ListAdmissionsByPatient(ctx, "M-1", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 {
		t.Errorf("expected 2 admissions, got %d", total)
	}
	if _, _, err := svc.ListAdmissionsByPatient(ctx, "M-404", 10, 0); !apperr.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestSearchAdmissions(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	seedMember(t, svc, "M-1")
	for _, d := range []string{"2024-01-05", "2024-02-10", "2024-02-28", "2024-04-01"} {
		if err := svc.CreateAdmission(ctx, newAdmission("M-1", d, d)); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	items, total, err := svc.SearchAdmissions(ctx, day("2024-02-01"), day("2024-02-29"), 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || !items[0].AdmitDate.Equal(day("2024-02-10")) {
		t.Errorf("unexpected result: total=%d", total)
	}
	if _, _, err := svc.SearchAdmissions(ctx, day("2024-03-01"), day("2024-02-01"), 10, 0); !apperr.IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}
}

// -- Clinical Marker Tests --

func TestRecordClinicalMarker_Upsert(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	seedMember(t, svc, "M-1")
	m := &ClinicalMarker{MemberKey: "M-1", RuleID: "R-7", Period: "2024Q1",
		MinDt: day("2024-01-01"), MaxDt: day("2024-02-01"), Occurrences: 2}
	if err := svc.RecordClinicalMarker(ctx, m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	again := &ClinicalMarker{MemberKey: "M-1", RuleID: "R-7", Period: "2024Q1",
		MinDt: day("2024-01-01"), MaxDt: day("2024-03-15"), Occurrences: 5}
	if err := svc.RecordClinicalMarker(ctx, again); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	items, err := svc.ListClinicalMarkers(ctx, "M-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected a single marker, got %d", len(items))
	}
	got, err := svc.GetClinicalMarker(ctx, m.Key())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Occurrences != 5 || !got.MaxDt.Equal(day("2024-03-15")) {
		t.Errorf("expected replaced marker, got %+v", got)
	}
}

func TestRecordClinicalMarker_Rejects(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	seedMember(t, svc, "M-1")

	inverted := &ClinicalMarker{MemberKey: "M-1", RuleID: "R-7", Period: "2024Q1",
		MinDt: day("2024-03-01"), MaxDt: day("2024-01-01"), Occurrences: 1}
	if err := svc.RecordClinicalMarker(ctx, inverted); !apperr.IsValidation(err) {
		t.Errorf("expected ValidationError for min_dt > max_dt, got %v", err)
	}

	negative := &ClinicalMarker{MemberKey: "M-1", RuleID: "R-7", Period: "2024Q1",
		MinDt: day("2024-01-01"), MaxDt: day("2024-01-01"), Occurrences: -1}
	if err := svc.RecordClinicalMarker(ctx, negative); !apperr.IsValidation(err) {
		t.Errorf("expected ValidationError for negative occurrences, got %v", err)
	}

	orphan := &ClinicalMarker{MemberKey: "M-404", RuleID: "R-7", Period: "2024Q1",
		MinDt: day("2024-01-01"), MaxDt: day("2024-01-01"), Occurrences: 1}
	if err := svc.RecordClinicalMarker(ctx, orphan); !apperr.IsReferentialIntegrity(err) {
		t.Errorf("expected ReferentialIntegrityError, got %v", err)
	}
}

// -- Case Descriptor Tests --

func TestCaseDescriptors(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	for _, d := range []*CaseDescriptor{
		{CaseID: "C1", ShortDesc: "Asthma", Category: str("Respiratory")},
		{CaseID: "C2", ShortDesc: "COPD", Category: str("Respiratory")},
		{CaseID: "C3", ShortDesc: "Fracture", Category: str("Orthopedic")},
	} {
		if err := svc.CreateCaseDescriptor(ctx, d); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	err := svc.CreateCaseDescriptor(ctx, &CaseDescriptor{CaseID: "C1", ShortDesc: "Again"})
	if !apperr.IsConflict(err) {
		t.Errorf("expected ConflictError, got %v", err)
	}
	if err := svc.CreateCaseDescriptor(ctx, &CaseDescriptor{CaseID: "C4"}); !apperr.IsValidation(err) {
		t.Errorf("expected ValidationError for missing short_desc, got %v", err)
	}

	items, total, err := svc.ListCaseDescriptors(ctx, "Respiratory", 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || items[0].CaseID != "C1" {
		t.Errorf("unexpected result: total=%d", total)
	}
	_, total, _ = svc.ListCaseDescriptors(ctx, "", 10, 0)
	if total != 3 {
		t.Errorf("expected 3 descriptors, got %d", total)
	}

	got, err := svc.GetCaseDescriptor(ctx, "C3")
	if err != nil || got.ShortDesc != "Fracture" {
		t.Errorf("unexpected result: %v, %v", got, err)
	}
	if _, err := svc.GetCaseDescriptor(ctx, "C9"); !apperr.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestAmounts_Consistent(t *testing.T) {
	a := amounts("100.00", "50.00", "120.00", "30.00")
	if !a.Consistent() {
		t.Errorf("expected consistent: categories %s, episode %s", a.CategoryTotal(), a.EpisodeTotal())
	}
	a.NonEpisode = decimal.RequireFromString("31.00")
	if a.Consistent() {
		t.Error("expected inconsistent")
	}
}

func TestMarkerKey_String(t *testing.T) {
	k := (&ClinicalMarker{MemberKey: "M-1", RuleID: "R-7", Period: "2024Q1"}).Key()
	if k.String() != "M-1/R-7/2024Q1" {
		t.Errorf("unexpected key %q", k.String())
	}
}
