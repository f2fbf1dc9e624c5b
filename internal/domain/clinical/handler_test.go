package clinical

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *echo.Echo) {
	return NewHandler(newTestService()), echo.New()
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
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
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/", `{"member_key":"M-1","gender":"x"}`), rec)
	if err := h.CreatePatient(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	c = e.NewContext(jsonRequest(http.MethodPost, "/", `{"member_key":"M-1"}`), httptest.NewRecorder())
	if code := statusOf(t, h.CreatePatient(c)); code != http.StatusConflict {
		t.Errorf("expected 409, got %d", code)
	}
}

func TestHandler_GetPatient_NotFound(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("member")
	c.SetParamValues("M-404")
	if code := statusOf(t, h.GetPatient(c)); code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", code)
	}
}

func TestHandler_CreateAdmission(t *testing.T) {
	h, e := newTestHandler()
	seedMember(t, h.svc, "M-1")
	body := `{"member_key":"M-1","admit_date":"2024-01-10","discharge_date":"2024-01-13",
		"allowed":{"facility":"100.00","episode":"100.00"},"paid":{"facility":"90.00","episode":"90.00"}}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/", body), rec)
	if err := h.CreateAdmission(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var out struct {
		ID           string `json:"id"`
		LengthOfStay int    `json:"length_of_stay"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.LengthOfStay != 3 || out.ID == "" {
		t.Errorf("unexpected response: %s", rec.Body.String())
	}
}

func TestHandler_CreateAdmission_Errors(t *testing.T) {
	h, e := newTestHandler()
	seedMember(t, h.svc, "M-1")
	tests := []struct {
		name string
		body string
		want int
	}{
		{"discharge before admit", `{"member_key":"M-1","admit_date":"2024-01-10T00:00:00Z","discharge_date":"2024-01-09T00:00:00Z"}`, http.StatusBadRequest},
		{"sub-cent amount", `{"member_key":"M-1","admit_date":"2024-01-10","discharge_date":"2024-01-11","paid":{"other":"5.001"}}`, http.StatusBadRequest},
		{"bad date", `{"member_key":"M-1","admit_date":"10/01/2024","discharge_date":"2024-01-11"}`, http.StatusBadRequest},
		{"negative amount", `{"member_key":"M-1","admit_date":"2024-01-10T00:00:00Z","discharge_date":"2024-01-11T00:00:00Z","paid":{"other":"-5"}}`, http.StatusBadRequest},
		{"unknown member", `{"member_key":"M-9","admit_date":"2024-01-10T00:00:00Z","discharge_date":"2024-01-11T00:00:00Z"}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.NewContext(jsonRequest(http.MethodPost, "/", tt.body), httptest.NewRecorder())
			if code := statusOf(t, h.CreateAdmission(c)); code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, code)
			}
		})
	}
}

func TestHandler_SearchAdmissions_RequiresRange(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?from=2024-01-01", nil), httptest.NewRecorder())
	if code := statusOf(t, h.SearchAdmissions(c)); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestHandler_RecordMarker(t *testing.T) {
	h, e := newTestHandler()
	seedMember(t, h.svc, "M-1")
	body := `{"member_key":"M-1","rule_id":"R-7","period":"2024Q1","min_dt":"2024-01-01T00:00:00Z","max_dt":"2024-02-01T00:00:00Z","occurrences":3}`
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPut, "/", body), rec)
	if err := h.RecordMarker(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("member", "rule", "period")
	c.SetParamValues("M-1", "R-7", "2024Q1")
	if err := h.GetMarker(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"occurrences":3`) {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestHandler_ListCases(t *testing.T) {
	h, e := newTestHandler()
	for _, body := range []string{
		`{"case_id":"C1","short_desc":"Asthma","category":"Respiratory"}`,
		`{"case_id":"C2","short_desc":"Fracture","category":"Orthopedic"}`,
	} {
		c := e.NewContext(jsonRequest(http.MethodPost, "/", body), httptest.NewRecorder())
		if err := h.CreateCase(c); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?category=Orthopedic", nil), rec)
	if err := h.ListCases(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 {
		t.Errorf("expected 1 case, got %d", resp.Total)
	}
}
