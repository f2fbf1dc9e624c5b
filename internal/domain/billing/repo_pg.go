package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ehr/claimsdb/internal/platform/apperr"
	"github.com/ehr/claimsdb/internal/platform/db"
)

// lockRow takes a FOR KEY SHARE lock on the row of table whose id is id.
func lockRow(ctx context.Context, q db.Queryable, table, entity string, id uuid.UUID) error {
	var one int
	err := q.QueryRow(ctx, `SELECT 1 FROM `+table+` WHERE id = $1 FOR KEY SHARE`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.MissingRef(entity, id.String())
	}
	return err
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

const patientCols = `id, first_name, last_name, birth_date, gender, phone, email, created_at, updated_at`

func (r *patientRepoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.BirthDate, &p.Gender, &p.Phone, &p.Email,
		&p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO billing.patients (id, first_name, last_name, birth_date, gender, phone, email)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at, updated_at`,
		p.ID, p.FirstName, p.LastName, p.BirthDate, p.Gender, p.Phone, p.Email,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return db.Classify(err, "patient", p.ID.String())
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM billing.patients WHERE id = $1`, id))
	if err != nil {
		return nil, db.Classify(err, "patient", id.String())
	}
	return p, nil
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE billing.patients SET first_name=$2, last_name=$3, birth_date=$4, gender=$5,
			phone=$6, email=$7, updated_at=NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		p.ID, p.FirstName, p.LastName, p.BirthDate, p.Gender, p.Phone, p.Email,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return db.Classify(err, "patient", p.ID.String())
}

// Delete removes the patient together with its addresses.
func (r *patientRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	q := r.conn(ctx)
	if _, err := q.Exec(ctx, `DELETE FROM billing.patient_addresses WHERE patient_id = $1`, id); err != nil {
		return db.Classify(err, "patient", id.String())
	}
	tag, err := q.Exec(ctx, `DELETE FROM billing.patients WHERE id = $1`, id)
	if err != nil {
		return db.Classify(err, "patient", id.String())
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("patient", id.String())
	}
	return nil
}

func (r *patientRepoPG) Lock(ctx context.Context, id uuid.UUID) error {
	return lockRow(ctx, r.conn(ctx), "billing.patients", "patient", id)
}

func (r *patientRepoPG) SearchByLastName(ctx context.Context, lastName string, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM billing.patients WHERE last_name = $1`, lastName).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+patientCols+` FROM billing.patients
		WHERE last_name = $1 ORDER BY first_name, id LIMIT $2 OFFSET $3`, lastName, limit, offset)
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

const addressCols = `id, patient_id, address_type, line1, line2, city, state, postal_code, created_at`

func (r *patientRepoPG) AddAddress(ctx context.Context, a *PatientAddress) error {
	a.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO billing.patient_addresses (id, patient_id, address_type, line1, line2, city, state, postal_code)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at`,
		a.ID, a.PatientID, a.AddressType, a.Line1, a.Line2, a.City, a.State, a.PostalCode,
	).Scan(&a.CreatedAt)
	return db.Classify(err, "patient address", a.ID.String())
}

func (r *patientRepoPG) ListAddresses(ctx context.Context, patientID uuid.UUID) ([]*PatientAddress, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+addressCols+` FROM billing.patient_addresses
		WHERE patient_id = $1 ORDER BY created_at`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*PatientAddress
	for rows.Next() {
		var a PatientAddress
		if err := rows.Scan(&a.ID, &a.PatientID, &a.AddressType, &a.Line1, &a.Line2,
			&a.City, &a.State, &a.PostalCode, &a.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, &a)
	}
	return items, rows.Err()
}

// =========== Provider Repository ===========

type providerRepoPG struct{ pool *pgxpool.Pool }

func NewProviderRepoPG(pool *pgxpool.Pool) ProviderRepository { return &providerRepoPG{pool: pool} }

func (r *providerRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

const providerCols = `id, name, npi, specialty, phone, created_at, updated_at`

func (r *providerRepoPG) scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	err := row.Scan(&p.ID, &p.Name, &p.NPI, &p.Specialty, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *providerRepoPG) Create(ctx context.Context, p *Provider) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO billing.providers (id, name, npi, specialty, phone)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.NPI, p.Specialty, p.Phone,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return db.Classify(err, "provider", p.NPI)
}

func (r *providerRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	p, err := r.scanProvider(r.conn(ctx).QueryRow(ctx, `SELECT `+providerCols+` FROM billing.providers WHERE id = $1`, id))
	if err != nil {
		return nil, db.Classify(err, "provider", id.String())
	}
	return p, nil
}

func (r *providerRepoPG) GetByNPI(ctx context.Context, npi string) (*Provider, error) {
	p, err := r.scanProvider(r.conn(ctx).QueryRow(ctx, `SELECT `+providerCols+` FROM billing.providers WHERE npi = $1`, npi))
	if err != nil {
		return nil, db.Classify(err, "provider", npi)
	}
	return p, nil
}

func (r *providerRepoPG) Update(ctx context.Context, p *Provider) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE billing.providers SET name=$2, npi=$3, specialty=$4, phone=$5, updated_at=NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.NPI, p.Specialty, p.Phone,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("provider", p.ID.String())
	}
	return db.Classify(err, "provider", p.NPI)
}

func (r *providerRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM billing.providers WHERE id = $1`, id)
	if err != nil {
		return db.Classify(err, "provider", id.String())
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("provider", id.String())
	}
	return nil
}

func (r *providerRepoPG) Lock(ctx context.Context, id uuid.UUID) error {
	return lockRow(ctx, r.conn(ctx), "billing.providers", "provider", id)
}

func (r *providerRepoPG) List(ctx context.Context, limit, offset int) ([]*Provider, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM billing.providers`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+providerCols+` FROM billing.providers ORDER BY name, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Provider
	for rows.Next() {
		p, err := r.scanProvider(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// =========== Payer Repository ===========

type payerRepoPG struct{ pool *pgxpool.Pool }

func NewPayerRepoPG(pool *pgxpool.Pool) PayerRepository { return &payerRepoPG{pool: pool} }

func (r *payerRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

const payerCols = `id, name, payer_code, phone, created_at, updated_at`

func (r *payerRepoPG) scanPayer(row pgx.Row) (*Payer, error) {
	var p Payer
	err := row.Scan(&p.ID, &p.Name, &p.PayerCode, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	return &p, err
}

func (r *payerRepoPG) Create(ctx context.Context, p *Payer) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO billing.payers (id, name, payer_code, phone)
		VALUES ($1,$2,$3,$4)
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.PayerCode, p.Phone,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return db.Classify(err, "payer", p.ID.String())
}

func (r *payerRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Payer, error) {
	p, err := r.scanPayer(r.conn(ctx).QueryRow(ctx, `SELECT `+payerCols+` FROM billing.payers WHERE id = $1`, id))
	if err != nil {
		return nil, db.Classify(err, "payer", id.String())
	}
	return p, nil
}

func (r *payerRepoPG) Update(ctx context.Context, p *Payer) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE billing.payers SET name=$2, payer_code=$3, phone=$4, updated_at=NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		p.ID, p.Name, p.PayerCode, p.Phone,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	return db.Classify(err, "payer", p.ID.String())
}

func (r *payerRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM billing.payers WHERE id = $1`, id)
	if err != nil {
		return db.Classify(err, "payer", id.String())
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("payer", id.String())
	}
	return nil
}

func (r *payerRepoPG) Lock(ctx context.Context, id uuid.UUID) error {
	return lockRow(ctx, r.conn(ctx), "billing.payers", "payer", id)
}

func (r *payerRepoPG) List(ctx context.Context, limit, offset int) ([]*Payer, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM billing.payers`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+payerCols+` FROM billing.payers ORDER BY name, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Payer
	for rows.Next() {
		p, err := r.scanPayer(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// =========== Claim Repository ===========

type claimRepoPG struct{ pool *pgxpool.Pool }

func NewClaimRepoPG(pool *pgxpool.Pool) ClaimRepository { return &claimRepoPG{pool: pool} }

func (r *claimRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

const claimCols = `id, patient_id, provider_id, payer_id, status_code, diagnosis_code,
	claim_date, total_claim_amount, created_at, updated_at`

func (r *claimRepoPG) scanClaim(row pgx.Row) (*Claim, error) {
	var c Claim
	err := row.Scan(&c.ID, &c.PatientID, &c.ProviderID, &c.PayerID, &c.StatusCode, &c.DiagnosisCode,
		&c.ClaimDate, &c.TotalClaimAmount, &c.CreatedAt, &c.UpdatedAt)
	return &c, err
}

func (r *claimRepoPG) Create(ctx context.Context, c *Claim) error {
	c.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO billing.claims (id, patient_id, provider_id, payer_id, status_code, diagnosis_code,
			claim_date, total_claim_amount)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		c.ID, c.PatientID, c.ProviderID, c.PayerID, c.StatusCode, c.DiagnosisCode,
		c.ClaimDate, c.TotalClaimAmount,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	return db.Classify(err, "claim", c.ID.String())
}

func (r *claimRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Claim, error) {
	c, err := r.scanClaim(r.conn(ctx).QueryRow(ctx, `SELECT `+claimCols+` FROM billing.claims WHERE id = $1`, id))
	if err != nil {
		return nil, db.Classify(err, "claim", id.String())
	}
	return c, nil
}

func (r *claimRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Claim, error) {
	c, err := r.scanClaim(r.conn(ctx).QueryRow(ctx, `SELECT `+claimCols+` FROM billing.claims WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, db.Classify(err, "claim", id.String())
	}
	return c, nil
}

func (r *claimRepoPG) Lock(ctx context.Context, id uuid.UUID) error {
	return lockRow(ctx, r.conn(ctx), "billing.claims", "claim", id)
}

func (r *claimRepoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE billing.claims SET status_code=$2, updated_at=NOW() WHERE id = $1`, id, status)
	if err != nil {
		return db.Classify(err, "claim", id.String())
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("claim", id.String())
	}
	return nil
}

func (r *claimRepoPG) CountByParty(ctx context.Context, party Party, id uuid.UUID) (int, error) {
	switch party {
	case PartyPatient, PartyProvider, PartyPayer:
	default:
		return 0, fmt.Errorf("unknown claim party %q", party)
	}
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM billing.claims WHERE `+string(party)+` = $1`, id).Scan(&n)
	return n, err
}

func (r *claimRepoPG) Search(ctx context.Context, f ClaimFilter, limit, offset int) ([]*Claim, int, error) {
	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, v interface{}) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.From != nil {
		add("claim_date >= $%d", *f.From)
	}
	if f.To != nil {
		add("claim_date <= $%d", *f.To)
	}
	if f.Status != "" {
		add("status_code = $%d", f.Status)
	}
	if f.PatientID != nil {
		add("patient_id = $%d", *f.PatientID)
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM billing.claims`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := fmt.Sprintf(`SELECT %s FROM billing.claims%s ORDER BY claim_date DESC, id LIMIT $%d OFFSET $%d`,
		claimCols, cond, len(args)+1, len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Claim
	for rows.Next() {
		c, err := r.scanClaim(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

func (r *claimRepoPG) AddStatusChange(ctx context.Context, h *ClaimStatusChange) error {
	h.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO billing.claim_status_history (id, claim_id, from_status, to_status)
		VALUES ($1,$2,$3,$4)
		RETURNING changed_at`,
		h.ID, h.ClaimID, h.FromStatus, h.ToStatus,
	).Scan(&h.ChangedAt)
	return db.Classify(err, "claim status change", h.ClaimID.String())
}

func (r *claimRepoPG) StatusHistory(ctx context.Context, claimID uuid.UUID) ([]*ClaimStatusChange, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT id, claim_id, from_status, to_status, changed_at
		FROM billing.claim_status_history WHERE claim_id = $1 ORDER BY changed_at, id`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ClaimStatusChange
	for rows.Next() {
		var h ClaimStatusChange
		if err := rows.Scan(&h.ID, &h.ClaimID, &h.FromStatus, &h.ToStatus, &h.ChangedAt); err != nil {
			return nil, err
		}
		items = append(items, &h)
	}
	return items, rows.Err()
}

// =========== Claim Line Repository ===========

type claimLineRepoPG struct{ pool *pgxpool.Pool }

func NewClaimLineRepoPG(pool *pgxpool.Pool) ClaimLineRepository { return &claimLineRepoPG{pool: pool} }

func (r *claimLineRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

const claimLineCols = `id, claim_id, line_number, procedure_code, service_date, charge_amount, units, created_at`

func (r *claimLineRepoPG) scanLine(row pgx.Row) (*ClaimLine, error) {
	var l ClaimLine
	err := row.Scan(&l.ID, &l.ClaimID, &l.LineNumber, &l.ProcedureCode, &l.ServiceDate,
		&l.ChargeAmount, &l.Units, &l.CreatedAt)
	return &l, err
}

func (r *claimLineRepoPG) Create(ctx context.Context, l *ClaimLine) error {
	l.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO billing.claim_lines (id, claim_id, line_number, procedure_code, service_date,
			charge_amount, units)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at`,
		l.ID, l.ClaimID, l.LineNumber, l.ProcedureCode, l.ServiceDate, l.ChargeAmount, l.Units,
	).Scan(&l.CreatedAt)
	return db.Classify(err, "claim line", lineKey(l.ClaimID, l.LineNumber))
}

func (r *claimLineRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ClaimLine, error) {
	l, err := r.scanLine(r.conn(ctx).QueryRow(ctx, `SELECT `+claimLineCols+` FROM billing.claim_lines WHERE id = $1`, id))
	if err != nil {
		return nil, db.Classify(err, "claim line", id.String())
	}
	return l, nil
}

func (r *claimLineRepoPG) ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*ClaimLine, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+claimLineCols+` FROM billing.claim_lines
		WHERE claim_id = $1 ORDER BY line_number`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ClaimLine
	for rows.Next() {
		l, err := r.scanLine(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}

func (r *claimLineRepoPG) SearchByProcedure(ctx context.Context, code string, limit, offset int) ([]*ClaimLine, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM billing.claim_lines WHERE procedure_code = $1`, code).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+claimLineCols+` FROM billing.claim_lines
		WHERE procedure_code = $1 ORDER BY service_date DESC, id LIMIT $2 OFFSET $3`, code, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*ClaimLine
	for rows.Next() {
		l, err := r.scanLine(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, l)
	}
	return items, total, rows.Err()
}

func (r *claimLineRepoPG) EachByServiceDate(ctx context.Context, from, to time.Time, fn func(*ClaimLine) error) error {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+claimLineCols+` FROM billing.claim_lines
		WHERE service_date BETWEEN $1 AND $2 ORDER BY service_date, claim_id, line_number`, from, to)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		l, err := r.scanLine(rows)
		if err != nil {
			return err
		}
		if err := fn(l); err != nil {
			return err
		}
	}
	return rows.Err()
}

// =========== Payment Repository ===========

type paymentRepoPG struct{ pool *pgxpool.Pool }

func NewPaymentRepoPG(pool *pgxpool.Pool) PaymentRepository { return &paymentRepoPG{pool: pool} }

func (r *paymentRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

const paymentCols = `id, claim_id, paid_amount, payment_date, payment_method, created_at`

func (r *paymentRepoPG) scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.ClaimID, &p.PaidAmount, &p.PaymentDate, &p.PaymentMethod, &p.CreatedAt)
	return &p, err
}

func (r *paymentRepoPG) Create(ctx context.Context, p *Payment) error {
	p.ID = uuid.New()
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO billing.payments (id, claim_id, paid_amount, payment_date, payment_method)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`,
		p.ID, p.ClaimID, p.PaidAmount, p.PaymentDate, p.PaymentMethod,
	).Scan(&p.CreatedAt)
	return db.Classify(err, "payment", p.ID.String())
}

func (r *paymentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	p, err := r.scanPayment(r.conn(ctx).QueryRow(ctx, `SELECT `+paymentCols+` FROM billing.payments WHERE id = $1`, id))
	if err != nil {
		return nil, db.Classify(err, "payment", id.String())
	}
	return p, nil
}

func (r *paymentRepoPG) ListByClaim(ctx context.Context, claimID uuid.UUID) ([]*Payment, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+paymentCols+` FROM billing.payments
		WHERE claim_id = $1 ORDER BY payment_date, id`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Payment
	for rows.Next() {
		p, err := r.scanPayment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *paymentRepoPG) SumByClaim(ctx context.Context, claimID uuid.UUID) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.conn(ctx).QueryRow(ctx, `SELECT COALESCE(SUM(paid_amount), 0) FROM billing.payments WHERE claim_id = $1`, claimID).Scan(&sum)
	return sum, err
}

func (r *paymentRepoPG) SearchByDate(ctx context.Context, from, to time.Time, limit, offset int) ([]*Payment, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM billing.payments WHERE payment_date BETWEEN $1 AND $2`, from, to).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+paymentCols+` FROM billing.payments
		WHERE payment_date BETWEEN $1 AND $2 ORDER BY payment_date, id LIMIT $3 OFFSET $4`, from, to, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Payment
	for rows.Next() {
		p, err := r.scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// =========== Lookup Repository ===========

type lookupRepoPG struct{ pool *pgxpool.Pool }

func NewLookupRepoPG(pool *pgxpool.Pool) LookupRepository { return &lookupRepoPG{pool: pool} }

func (r *lookupRepoPG) conn(ctx context.Context) db.Queryable { return db.Conn(ctx, r.pool) }

func (r *lookupRepoPG) Upsert(ctx context.Context, kind LookupKind, l Lookup) error {
	if !kind.Valid() {
		return apperr.Invalid("kind", "unknown vocabulary %q", kind)
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO billing.`+kind.Table()+` (code, description) VALUES ($1, $2)
		ON CONFLICT (code) DO UPDATE SET description = EXCLUDED.description`,
		l.Code, l.Description)
	return db.Classify(err, kind.Entity(), l.Code)
}

func (r *lookupRepoPG) List(ctx context.Context, kind LookupKind) ([]Lookup, error) {
	if !kind.Valid() {
		return nil, apperr.Invalid("kind", "unknown vocabulary %q", kind)
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT code, description FROM billing.`+kind.Table()+` ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Lookup
	for rows.Next() {
		var l Lookup
		if err := rows.Scan(&l.Code, &l.Description); err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}
