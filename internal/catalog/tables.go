package catalog

import "github.com/ehr/claimsdb/migrations"

func pk(name, typ string) Column            { return Column{Name: name, Type: typ, PrimaryKey: true} }
func req(name, typ string) Column           { return Column{Name: name, Type: typ} }
func opt(name, typ string) Column           { return Column{Name: name, Type: typ, Nullable: true} }
func uniq(name, typ string) Column          { return Column{Name: name, Type: typ, Unique: true} }
func idx(name string, cols ...string) Index { return Index{Name: name, Columns: cols} }

func audit(cols ...Column) []Column {
	return append(cols, req("created_at", "TIMESTAMPTZ"), req("updated_at", "TIMESTAMPTZ"))
}

// amountColumns lists one admission amount breakdown, e.g. facility_paid.
func amountColumns(suffix string) []Column {
	var cols []Column
	for _, p := range []string{"facility", "room_board", "ancillary", "clinician", "other", "episode", "non_episode"} {
		cols = append(cols, req(p+"_"+suffix, "NUMERIC(14,2)"))
	}
	return cols
}

var tables = []TableSpec{
	// billing
	{
		Schema: migrations.Billing, Name: "patients",
		Description: "Billing patients, identified by surrogate id.",
		Columns: audit(
			pk("id", "UUID"),
			req("first_name", "VARCHAR(100)"),
			req("last_name", "VARCHAR(100)"),
			req("birth_date", "DATE"),
			req("gender", "CHAR(1)"),
			opt("phone", "VARCHAR(30)"),
			opt("email", "VARCHAR(255)"),
		),
		Indexes: []Index{idx("idx_patients_last_name", "last_name")},
		Checks:  []string{"gender IN ('M', 'F', 'O')"},
	},
	{
		Schema: migrations.Billing, Name: "patient_addresses",
		Description: "Postal addresses of billing patients.",
		Columns: []Column{
			pk("id", "UUID"),
			req("patient_id", "UUID"),
			req("address_type", "VARCHAR(10)"),
			req("line1", "VARCHAR(200)"),
			opt("line2", "VARCHAR(200)"),
			req("city", "VARCHAR(100)"),
			req("state", "VARCHAR(50)"),
			req("postal_code", "VARCHAR(20)"),
			req("created_at", "TIMESTAMPTZ"),
		},
		Indexes: []Index{idx("idx_patient_addresses_patient", "patient_id")},
		Checks:  []string{"address_type IN ('Home', 'Mailing', 'Work')"},
	},
	{
		Schema: migrations.Billing, Name: "providers",
		Description: "Rendering providers, unique by NPI.",
		Columns: audit(
			pk("id", "UUID"),
			req("name", "VARCHAR(200)"),
			uniq("npi", "CHAR(10)"),
			opt("specialty", "VARCHAR(100)"),
			opt("phone", "VARCHAR(30)"),
		),
	},
	{
		Schema: migrations.Billing, Name: "payers",
		Description: "Insurance payers.",
		Columns: audit(
			pk("id", "UUID"),
			req("name", "VARCHAR(200)"),
			opt("payer_code", "VARCHAR(50)"),
			opt("phone", "VARCHAR(30)"),
		),
	},
	{
		Schema: migrations.Billing, Name: "procedure_codes",
		Description: "Procedure code vocabulary.",
		Columns:     []Column{pk("code", "VARCHAR(20)"), req("description", "VARCHAR(500)")},
	},
	{
		Schema: migrations.Billing, Name: "diagnosis_codes",
		Description: "Diagnosis code vocabulary.",
		Columns:     []Column{pk("code", "VARCHAR(20)"), req("description", "VARCHAR(500)")},
	},
	{
		Schema: migrations.Billing, Name: "claim_status_codes",
		Description: "Claim status vocabulary.",
		Columns:     []Column{pk("code", "VARCHAR(30)"), req("description", "VARCHAR(200)")},
	},
	{
		Schema: migrations.Billing, Name: "claims",
		Description: "Insurance claims filed for a patient by a provider against a payer.",
		Columns: audit(
			pk("id", "UUID"),
			req("patient_id", "UUID"),
			req("provider_id", "UUID"),
			req("payer_id", "UUID"),
			req("status_code", "VARCHAR(30)"),
			req("diagnosis_code", "VARCHAR(20)"),
			req("claim_date", "DATE"),
			req("total_claim_amount", "NUMERIC(12,2)"),
		),
		Indexes: []Index{
			idx("idx_claims_claim_date", "claim_date"),
			idx("idx_claims_status_code", "status_code"),
			idx("idx_claims_patient", "patient_id"),
		},
		Checks: []string{"total_claim_amount >= 0"},
	},
	{
		Schema: migrations.Billing, Name: "claim_status_history",
		Description: "Append-only log of claim status transitions.",
		Columns: []Column{
			pk("id", "UUID"),
			req("claim_id", "UUID"),
			opt("from_status", "VARCHAR(30)"),
			req("to_status", "VARCHAR(30)"),
			req("changed_at", "TIMESTAMPTZ"),
		},
		Indexes: []Index{idx("idx_claim_status_history_claim", "claim_id", "changed_at")},
	},
	{
		Schema: migrations.Billing, Name: "claim_lines",
		Description: "Service lines of a claim, numbered uniquely within the claim.",
		Columns: []Column{
			pk("id", "UUID"),
			req("claim_id", "UUID"),
			req("line_number", "INTEGER"),
			req("procedure_code", "VARCHAR(20)"),
			req("service_date", "DATE"),
			req("charge_amount", "NUMERIC(12,2)"),
			req("units", "INTEGER"),
			req("created_at", "TIMESTAMPTZ"),
		},
		Indexes: []Index{
			{Name: "uq_claim_lines_claim_line", Columns: []string{"claim_id", "line_number"}, Unique: true},
			idx("idx_claim_lines_procedure_code", "procedure_code"),
			idx("idx_claim_lines_service_date", "service_date"),
		},
		Checks: []string{"line_number >= 1", "charge_amount >= 0", "units >= 1"},
	},
	{
		Schema: migrations.Billing, Name: "payments",
		Description: "Payments received against a claim.",
		Columns: []Column{
			pk("id", "UUID"),
			req("claim_id", "UUID"),
			req("paid_amount", "NUMERIC(12,2)"),
			req("payment_date", "DATE"),
			req("payment_method", "VARCHAR(30)"),
			req("created_at", "TIMESTAMPTZ"),
		},
		Indexes: []Index{
			idx("idx_payments_payment_date", "payment_date"),
			idx("idx_payments_claim", "claim_id"),
		},
		Checks: []string{"paid_amount >= 0"},
	},

	// clinical
	{
		Schema: migrations.Clinical, Name: "patients",
		Description: "Clinical members, identified by member key.",
		Columns: audit(
			pk("member_key", "VARCHAR(50)"),
			opt("first_name", "VARCHAR(100)"),
			opt("last_name", "VARCHAR(100)"),
			opt("birth_date", "DATE"),
			opt("gender", "VARCHAR(20)"),
			opt("address1", "VARCHAR(200)"),
			opt("address2", "VARCHAR(200)"),
			opt("city", "VARCHAR(100)"),
			opt("state", "VARCHAR(50)"),
			opt("zip", "VARCHAR(20)"),
		),
		Indexes: []Index{idx("idx_clinical_patients_last_name", "last_name")},
	},
	{
		Schema: migrations.Clinical, Name: "case_descriptors",
		Description: "Episode case definitions.",
		Columns: []Column{
			pk("case_id", "VARCHAR(50)"),
			req("short_desc", "VARCHAR(100)"),
			opt("long_desc", "VARCHAR(1000)"),
			opt("category", "VARCHAR(100)"),
		},
		Indexes: []Index{idx("idx_case_descriptors_category", "category")},
	},
	{
		Schema: migrations.Clinical, Name: "admissions",
		Description: "Inpatient confinements with allowed and paid amount breakdowns.",
		Columns: audit(append(append([]Column{
			pk("id", "UUID"),
			req("member_key", "VARCHAR(50)"),
			opt("confinement_no", "VARCHAR(50)"),
			opt("episode_no", "VARCHAR(50)"),
			req("admit_date", "DATE"),
			req("discharge_date", "DATE"),
			opt("age_at_admit", "INTEGER"),
			opt("age_at_discharge", "INTEGER"),
			opt("facility_type", "VARCHAR(20)"),
			opt("bed_type", "VARCHAR(20)"),
			opt("confinement_type", "VARCHAR(20)"),
			opt("drg", "VARCHAR(20)"),
			opt("etg", "VARCHAR(20)"),
			opt("principal_dx", "VARCHAR(20)"),
			opt("principal_px", "VARCHAR(20)"),
			opt("prov_id", "TIMESTAMPTZ"),
		}, amountColumns("allowed")...), amountColumns("paid")...)...),
		Indexes: []Index{
			idx("idx_admissions_member", "member_key"),
			idx("idx_admissions_admit_date", "admit_date"),
		},
		Checks: []string{"discharge_date >= admit_date", "age_at_admit >= 0", "age_at_discharge >= 0", "amounts >= 0"},
	},
	{
		Schema: migrations.Clinical, Name: "clinical_markers",
		Description: "Per-member occurrences of a clinical rule within a period.",
		Columns: []Column{
			pk("member_key", "VARCHAR(50)"),
			pk("rule_id", "VARCHAR(50)"),
			pk("period", "VARCHAR(20)"),
			req("min_dt", "DATE"),
			req("max_dt", "DATE"),
			req("occurrences", "INTEGER"),
			req("updated_at", "TIMESTAMPTZ"),
		},
		Indexes: []Index{idx("idx_clinical_markers_rule", "rule_id")},
		Checks:  []string{"min_dt <= max_dt", "occurrences >= 0"},
	},
}

func fk(src, col, dst, dstCol string) Relationship {
	return Relationship{SourceTable: src, SourceColumn: col, TargetTable: dst, TargetColumn: dstCol}
}

var relationships = []Relationship{
	fk("billing.patient_addresses", "patient_id", "billing.patients", "id"),
	fk("billing.claims", "patient_id", "billing.patients", "id"),
	fk("billing.claims", "provider_id", "billing.providers", "id"),
	fk("billing.claims", "payer_id", "billing.payers", "id"),
	fk("billing.claims", "status_code", "billing.claim_status_codes", "code"),
	fk("billing.claims", "diagnosis_code", "billing.diagnosis_codes", "code"),
	fk("billing.claim_status_history", "claim_id", "billing.claims", "id"),
	fk("billing.claim_status_history", "from_status", "billing.claim_status_codes", "code"),
	fk("billing.claim_status_history", "to_status", "billing.claim_status_codes", "code"),
	fk("billing.claim_lines", "claim_id", "billing.claims", "id"),
	fk("billing.claim_lines", "procedure_code", "billing.procedure_codes", "code"),
	fk("billing.payments", "claim_id", "billing.claims", "id"),
	fk("clinical.admissions", "member_key", "clinical.patients", "member_key"),
	fk("clinical.clinical_markers", "member_key", "clinical.patients", "member_key"),
}
