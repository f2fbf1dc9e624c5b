package clinical

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/claimsdb/internal/platform/apperr"
	"github.com/ehr/claimsdb/internal/platform/db"
)

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

const patientCols = `member_key, first_name, last_name, birth_date, gender,
	address1, address2, city, state, zip, created_at, updated_at`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.MemberKey, &p.FirstName, &p.LastName, &p.BirthDate, &p.Gender,
		&p.Address1, &p.Address2, &p.City, &p.State, &p.Zip, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO clinical.patients (member_key, first_name, last_name, birth_date, gender,
			address1, address2, city, state, zip)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		p.MemberKey, p.FirstName, p.LastName, p.BirthDate, p.Gender,
		p.Address1, p.Address2, p.City, p.State, p.Zip,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return db.Classify(err, "member", p.MemberKey)
}

func (r *patientRepoPG) GetByMemberKey(ctx context.Context, memberKey string) (*Patient, error) {
	p, err := r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM clinical.patients WHERE member_key = $1`, memberKey))
	if err != nil {
		return nil, db.Classify(err, "member", memberKey)
	}
	return p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE clinical.patients SET first_name=$2, last_name=$3, birth_date=$4, gender=$5,
			address1=$6, address2=$7, city=$8, state=$9, zip=$10, updated_at=NOW()
		WHERE member_key = $1
		RETURNING created_at, updated_at`,
		p.MemberKey, p.FirstName, p.LastName, p.BirthDate, p.Gender,
		p.Address1, p.Address2, p.City, p.State, p.Zip,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return db.Classify(err, "member", p.MemberKey)
}

func (r *patientRepoPG) Lock(ctx context.Context, memberKey string) error {
	var one int
	err := r.conn(ctx).QueryRow(ctx, `SELECT 1 FROM clinical.patients WHERE member_key = $1 FOR KEY SHARE`, memberKey).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.MissingRef("member", memberKey)
	}
	return err
}

func (r *patientRepoPG) SearchByLastName(ctx context.Context, lastName string, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM clinical.patients WHERE last_name = $1`, lastName).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM clinical.patients
		WHERE last_name = $1 ORDER BY member_key LIMIT $2 OFFSET $3`, lastName, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// =========== Admission Repository ===========

type admissionRepoPG struct{ pool *pgxpool.Pool }

func NewAdmissionRepoPG(pool *pgxpool.Pool) AdmissionRepository { return &admissionRepoPG{pool: pool} }

func (r *admissionRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

const admissionCols = `id, member_key, confinement_no, episode_no, admit_date, discharge_date,
	age_at_admit, age_at_discharge, facility_type, bed_type, confinement_type,
	drg, etg, principal_dx, principal_px, prov_id,
	facility_allowed, room_board_allowed, ancillary_allowed, clinician_allowed,
	other_allowed, episode_allowed, non_episode_allowed,
	facility_paid, room_board_paid, ancillary_paid, clinician_paid,
	other_paid, episode_paid, non_episode_paid,
	created_at, updated_at`

func (r *admissionRepoPG) scanAdmission(row pgx.Row) (*Admission, error) {
	var a Admission
	al, pd := &a.Allowed, &a.Paid
	err := row.Scan(&a.ID, &a.MemberKey, &a.ConfinementNo, &a.EpisodeNo, &a.AdmitDate, &a.DischargeDate,
		&a.AgeAtAdmit, &a.AgeAtDischarge, &a.FacilityType, &a.BedType, &a.ConfinementType,
		&a.DRG, &a.ETG, &a.PrincipalDx, &a.PrincipalPx, &a.ProvID,
		&al.Facility, &al.RoomBoard, &al.Ancillary, &al.Clinician, &al.Other, &al.Episode, &al.NonEpisode,
		&pd.Facility, &pd.RoomBoard, &pd.Ancillary, &pd.Clinician, &pd.Other, &pd.Episode, &pd.NonEpisode,
		&a.CreatedAt, &a.UpdatedAt)
	return &a, err
}

// amountArgs flattens both breakdowns in column order.
func amountArgs(a *Admission) []interface{} {
	al, pd := a.Allowed, a.Paid
	return []interface{}{
		al.Facility, al.RoomBoard, al.Ancillary, al.Clinician, al.Other, al.Episode, al.NonEpisode,
		pd.Facility, pd.RoomBoard, pd.Ancillary, pd.Clinician, pd.Other, pd.Episode, pd.NonEpisode,
	}
}

func (r *admissionRepoPG) Create(ctx context.Context, a *Admission) error {
	a.ID = uuid.New()
	args := append([]interface{}{
		a.ID, a.MemberKey, a.ConfinementNo, a.EpisodeNo, a.AdmitDate, a.DischargeDate,
		a.AgeAtAdmit, a.AgeAtDischarge, a.FacilityType, a.BedType, a.ConfinementType,
		a.DRG, a.ETG, a.PrincipalDx, a.PrincipalPx, a.ProvID,
	}, amountArgs(a)...)
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO clinical.admissions (id, member_key, confinement_no, episode_no, admit_date, discharge_date,
			age_at_admit, age_at_discharge, facility_type, bed_type, confinement_type,
			drg, etg, principal_dx, principal_px, prov_id,
			facility_allowed, room_board_allowed, ancillary_allowed, clinician_allowed,
			other_allowed, episode_allowed, non_episode_allowed,
			facility_paid, room_board_paid, ancillary_paid, clinician_paid,
			other_paid, episode_paid, non_episode_paid)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27,$28,$29,$30)
		RETURNING created_at, updated_at`, args...,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	return db.Classify(err, "admission", a.ID.String())
}

func (r *admissionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Admission, error) {
	a, err := r.scanAdmission(r.conn(ctx).QueryRow(ctx, `SELECT `+admissionCols+` FROM clinical.admissions WHERE id = $1`, id))
	if err != nil {
		return nil, db.Classify(err, "admission", id.String())
	}
	return a, nil
}

// Update rewrites every column except the id and member key.
func (r *admissionRepoPG) Update(ctx context.Context, a *Admission) error {
	args := append([]interface{}{
		a.ID, a.ConfinementNo, a.EpisodeNo, a.AdmitDate, a.DischargeDate,
		a.AgeAtAdmit, a.AgeAtDischarge, a.FacilityType, a.BedType, a.ConfinementType,
		a.DRG, a.ETG, a.PrincipalDx, a.PrincipalPx, a.ProvID,
	}, amountArgs(a)...)
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE clinical.admissions SET confinement_no=$2, episode_no=$3, admit_date=$4, discharge_date=$5,
			age_at_admit=$6, age_at_discharge=$7, facility_type=$8, bed_type=$9, confinement_type=$10,
			drg=$11, etg=$12, principal_dx=$13, principal_px=$14, prov_id=$15,
			facility_allowed=$16, room_board_allowed=$17, ancillary_allowed=$18, clinician_allowed=$19,
			other_allowed=$20, episode_allowed=$21, non_episode_allowed=$22,
			facility_paid=$23, room_board_paid=$24, ancillary_paid=$25, clinician_paid=$26,
			other_paid=$27, episode_paid=$28, non_episode_paid=$29, updated_at=NOW()
		WHERE id = $1
		RETURNING member_key, created_at, updated_at`, args...,
	).Scan(&a.MemberKey, &a.CreatedAt, &a.UpdatedAt)
	return db.Classify(err, "admission", a.ID.String())
}

func (r *admissionRepoPG) ListByMember(ctx context.Context, memberKey string, limit, offset int) ([]*Admission, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM clinical.admissions WHERE member_key = $1`, memberKey).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+admissionCols+` FROM clinical.admissions
		WHERE member_key = $1 ORDER BY admit_date DESC, id LIMIT $2 OFFSET $3`, memberKey, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return r.collect(rows, total)
}

func (r *admissionRepoPG) SearchByAdmitDate(ctx context.Context, from, to time.Time, limit, offset int) ([]*Admission, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM clinical.admissions WHERE admit_date BETWEEN $1 AND $2`, from, to).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+admissionCols+` FROM clinical.admissions
		WHERE admit_date BETWEEN $1 AND $2 ORDER BY admit_date, id LIMIT $3 OFFSET $4`, from, to, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return r.collect(rows, total)
}

func (r *admissionRepoPG) collect(rows pgx.Rows, total int) ([]*Admission, int, error) {
	defer rows.Close()
	var items []*Admission
	for rows.Next() {
		a, err := r.scanAdmission(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

// =========== Marker Repository ===========

type markerRepoPG struct{ pool *pgxpool.Pool }

func NewMarkerRepoPG(pool *pgxpool.Pool) MarkerRepository { return &markerRepoPG{pool: pool} }

func (r *markerRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

const markerCols = `member_key, rule_id, period, min_dt, max_dt, occurrences, updated_at`

func (r *markerRepoPG) scanMarker(row pgx.Row) (*ClinicalMarker, error) {
	var m ClinicalMarker
	err := row.Scan(&m.MemberKey, &m.RuleID, &m.Period, &m.MinDt, &m.MaxDt, &m.Occurrences, &m.UpdatedAt)
	return &m, err
}

func (r *markerRepoPG) Upsert(ctx context.Context, m *ClinicalMarker) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO clinical.clinical_markers (member_key, rule_id, period, min_dt, max_dt, occurrences)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (member_key, rule_id, period) DO UPDATE
			SET min_dt = EXCLUDED.min_dt, max_dt = EXCLUDED.max_dt,
				occurrences = EXCLUDED.occurrences, updated_at = NOW()
		RETURNING updated_at`,
		m.MemberKey, m.RuleID, m.Period, m.MinDt, m.MaxDt, m.Occurrences,
	).Scan(&m.UpdatedAt)
	return db.Classify(err, "clinical marker", m.Key().String())
}

func (r *markerRepoPG) Get(ctx context.Context, key MarkerKey) (*ClinicalMarker, error) {
	m, err := r.scanMarker(r.conn(ctx).QueryRow(ctx, `SELECT `+markerCols+` FROM clinical.clinical_markers
		WHERE member_key = $1 AND rule_id = $2 AND period = $3`, key.MemberKey, key.RuleID, key.Period))
	if err != nil {
		return nil, db.Classify(err, "clinical marker", key.String())
	}
	return m, nil
}

func (r *markerRepoPG) ListByMember(ctx context.Context, memberKey string) ([]*ClinicalMarker, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+markerCols+` FROM clinical.clinical_markers
		WHERE member_key = $1 ORDER BY rule_id, period`, memberKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ClinicalMarker
	for rows.Next() {
		m, err := r.scanMarker(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// =========== Case Descriptor Repository ===========

type caseDescriptorRepoPG struct{ pool *pgxpool.Pool }

func NewCaseDescriptorRepoPG(pool *pgxpool.Pool) CaseDescriptorRepository {
	return &caseDescriptorRepoPG{pool: pool}
}

func (r *caseDescriptorRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

const caseCols = `case_id, short_desc, long_desc, category`

func (r *caseDescriptorRepoPG) Create(ctx context.Context, d *CaseDescriptor) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO clinical.case_descriptors (case_id, short_desc, long_desc, category)
		VALUES ($1,$2,$3,$4)`,
		d.CaseID, d.ShortDesc, d.LongDesc, d.Category)
	return db.Classify(err, "case descriptor", d.CaseID)
}

func (r *caseDescriptorRepoPG) GetByID(ctx context.Context, caseID string) (*CaseDescriptor, error) {
	var d CaseDescriptor
	err := r.conn(ctx).QueryRow(ctx, `SELECT `+caseCols+` FROM clinical.case_descriptors WHERE case_id = $1`, caseID).
		Scan(&d.CaseID, &d.ShortDesc, &d.LongDesc, &d.Category)
	if err != nil {
		return nil, db.Classify(err, "case descriptor", caseID)
	}
	return &d, nil
}

func (r *caseDescriptorRepoPG) ListByCategory(ctx context.Context, category string, limit, offset int) ([]*CaseDescriptor, int, error) {
	where, args := "", []interface{}{}
	if category != "" {
		where = " WHERE category = $1"
		args = append(args, category)
	}
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM clinical.case_descriptors`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := fmt.Sprintf(`SELECT %s FROM clinical.case_descriptors%s ORDER BY case_id LIMIT $%d OFFSET $%d`,
		caseCols, where, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*CaseDescriptor
	for rows.Next() {
		var d CaseDescriptor
		if err := rows.Scan(&d.CaseID, &d.ShortDesc, &d.LongDesc, &d.Category); err != nil {
			return nil, 0, err
		}
		items = append(items, &d)
	}
	return items, total, rows.Err()
}
