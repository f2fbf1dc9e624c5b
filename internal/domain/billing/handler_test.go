package billing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	return h, e
}

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %T: %v", err, err)
	}
	return he.Code
}

func TestHandler_CreatePatient(t *testing.T) {
	h, e := newTestHandler()
	body := `{"first_name":"Ada","last_name":"Lovelace","birth_date":"1980-12-10T00:00:00Z","gender":"F"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, body), rec)

	if err := h.CreatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var p Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.ID == uuid.Nil {
		t.Error("expected ID in response")
	}
}

func TestHandler_CreatePatient_Invalid(t *testing.T) {
	h, e := newTestHandler()
	body := `{"first_name":"Ada","last_name":"Lovelace","birth_date":"1980-12-10T00:00:00Z","gender":"Q"}`
	c := e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder())

	err := h.CreatePatient(c)
	if got := statusOf(t, err); got != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", got)
	}
}

func TestHandler_CreatePatient_DateOnly(t *testing.T) {
	h, e := newTestHandler()
	body := `{"first_name":"Ada","last_name":"Lovelace","birth_date":"1980-12-10","gender":"F"}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, body), rec)

	if err := h.CreatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var p Patient
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := p.BirthDate.Format("2006-01-02"); got != "1980-12-10" {
		t.Errorf("expected birth date 1980-12-10, got %s", got)
	}
}

func TestHandler_CreatePatient_BadDate(t *testing.T) {
	h, e := newTestHandler()
	body := `{"first_name":"Ada","last_name":"Lovelace","birth_date":"12/10/1980","gender":"F"}`
	c := e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder())

	err := h.CreatePatient(c)
	if got := statusOf(t, err); got != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", got)
	}
	if !strings.Contains(err.Error(), "YYYY-MM-DD") {
		t.Errorf("expected the accepted formats in the message, got %v", err)
	}
}

func TestHandler_GetPatient_NotFound(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	if got := statusOf(t, h.GetPatient(c)); got != http.StatusNotFound {
		t.Errorf("expected 404, got %d", got)
	}
}

func TestHandler_GetPatient_BadID(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	if got := statusOf(t, h.GetPatient(c)); got != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", got)
	}
}

func TestHandler_CreateProvider_Conflict(t *testing.T) {
	h, e := newTestHandler()
	seed(t, h.svc)
	body := `{"name":"Dr. Jones","npi":"1234567890"}`
	c := e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder())

	if got := statusOf(t, h.CreateProvider(c)); got != http.StatusConflict {
		t.Errorf("expected 409, got %d", got)
	}
}

func TestHandler_CreateClaim_MissingReference(t *testing.T) {
	h, e := newTestHandler()
	f := seed(t, h.svc)
	body := `{"patient_id":"` + uuid.New().String() + `","provider_id":"` + f.provider.ID.String() +
		`","payer_id":"` + f.payer.ID.String() + `","status_code":"Submitted","diagnosis_code":"J06.9",` +
		`"claim_date":"2024-03-01T00:00:00Z","total_claim_amount":"150.00"}`
	c := e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder())

	if got := statusOf(t, h.CreateClaim(c)); got != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", got)
	}
}

func TestHandler_AddClaimLine(t *testing.T) {
	h, e := newTestHandler()
	f := seed(t, h.svc)
	cl := newClaim(f, "150.00")
	if err := h.svc.CreateClaim(context.Background(), cl); err != nil {
		t.Fatalf("create claim: %v", err)
	}
	body := `{"line_number":1,"procedure_code":"99213","service_date":"2024-03-01","charge_amount":150.00,"units":1}`

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, body), rec)
	c.SetParamNames("id")
	c.SetParamValues(cl.ID.String())
	if err := h.AddClaimLine(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var line ClaimLine
	if err := json.Unmarshal(rec.Body.Bytes(), &line); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !line.ChargeAmount.Equal(decimal.RequireFromString("150")) {
		t.Errorf("expected charge 150, got %s", line.ChargeAmount)
	}

	c = e.NewContext(jsonRequest(http.MethodPost, body), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(cl.ID.String())
	if got := statusOf(t, h.AddClaimLine(c)); got != http.StatusConflict {
		t.Errorf("expected 409 for duplicate line, got %d", got)
	}
}

func TestHandler_SearchClaims_BadDate(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/?from=03/01/2024", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	if got := statusOf(t, h.SearchClaims(c)); got != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", got)
	}
}

func TestHandler_SearchClaims(t *testing.T) {
	h, e := newTestHandler()
	f := seed(t, h.svc)
	if err := h.svc.CreateClaim(context.Background(), newClaim(f, "10.00")); err != nil {
		t.Fatalf("create claim: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/?from=2024-01-01&to=2024-12-31&status=Submitted", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.SearchClaims(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 {
		t.Errorf("expected 1 claim, got %d", resp.Total)
	}
}

func TestHandler_SearchPayments_RequiresRange(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?from=2024-01-01", nil), httptest.NewRecorder())
	if got := statusOf(t, h.SearchPayments(c)); got != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", got)
	}
}

func TestHandler_UpdateClaimStatus(t *testing.T) {
	h, e := newTestHandler()
	f := seed(t, h.svc)
	cl := newClaim(f, "10.00")
	if err := h.svc.CreateClaim(context.Background(), cl); err != nil {
		t.Fatalf("create claim: %v", err)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPut, `{"status_code":"Paid"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(cl.ID.String())

	if err := h.UpdateClaimStatus(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_DeletePatient_Referenced(t *testing.T) {
	h, e := newTestHandler()
	f := seed(t, h.svc)
	if err := h.svc.CreateClaim(context.Background(), newClaim(f, "10.00")); err != nil {
		t.Fatalf("create claim: %v", err)
	}
	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(f.patient.ID.String())

	if got := statusOf(t, h.DeletePatient(c)); got != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", got)
	}
}

func TestHandler_ListLookups_UnknownKind(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("kind")
	c.SetParamValues("modifier")

	if got := statusOf(t, h.ListLookups(c)); got != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", got)
	}
}
