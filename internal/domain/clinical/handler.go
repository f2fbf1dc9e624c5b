package clinical

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/claimsdb/internal/platform/apperr"
	"github.com/ehr/claimsdb/internal/platform/auth"
	"github.com/ehr/claimsdb/internal/platform/jsontime"
	"github.com/ehr/claimsdb/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the clinical endpoints under /clinical so member
// keys never collide with billing patient ids.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/clinical", auth.RequireRole("admin", "clinical"))

	g.GET("/patients", h.SearchPatients)
	g.POST("/patients", h.CreatePatient)
	g.GET("/patients/:member", h.GetPatient)
	g.PUT("/patients/:member", h.UpdatePatient)
	g.GET("/patients/:member/admissions", h.ListAdmissions)
	g.GET("/patients/:member/markers", h.ListMarkers)

	g.GET("/admissions", h.SearchAdmissions)
	g.POST("/admissions", h.CreateAdmission)
	g.GET("/admissions/:id", h.GetAdmission)
	g.PUT("/admissions/:id", h.UpdateAdmission)

	g.PUT("/markers", h.RecordMarker)
	g.GET("/markers/:member/:rule/:period", h.GetMarker)

	g.GET("/cases", h.ListCases)
	g.POST("/cases", h.CreateCase)
	g.GET("/cases/:id", h.GetCase)
}

// admissionView adds the derived length of stay to API responses.
type admissionView struct {
	*Admission
	LengthOfStay int `json:"length_of_stay"`
}

func viewOf(a *Admission) admissionView {
	return admissionView{Admission: a, LengthOfStay: a.LengthOfStay()}
}

func requiredDate(c echo.Context, name string) (time.Time, error) {
	v := c.QueryParam(name)
	if v == "" {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, name+" is required")
	}
	t, err := time.Parse(jsontime.DateLayout, v)
	if err != nil {
		return time.Time{}, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name+": expected YYYY-MM-DD")
	}
	return t, nil
}

// -- Patient Handlers --

func (h *Handler) CreatePatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreatePatient(c.Request().Context(), &p); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := h.svc.GetPatient(c.Request().Context(), c.Param("member"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	var p Patient
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.MemberKey = c.Param("member")
	if err := h.svc.UpdatePatient(c.Request().Context(), &p); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) SearchPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.SearchPatients(c.Request().Context(), c.QueryParam("last_name"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// -- Admission Handlers --

func (h *Handler) CreateAdmission(c echo.Context) error {
	var a Admission
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateAdmission(c.Request().Context(), &a); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, viewOf(&a))
}

func (h *Handler) GetAdmission(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.GetAdmission(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, viewOf(a))
}

func (h *Handler) UpdateAdmission(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var a Admission
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a.ID = id
	if err := h.svc.UpdateAdmission(c.Request().Context(), &a); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, viewOf(&a))
}

func (h *Handler) ListAdmissions(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListAdmissionsByPatient(c.Request().Context(), c.Param("member"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(views(items), total, pg.Limit, pg.Offset))
}

func (h *Handler) SearchAdmissions(c echo.Context) error {
	from, err := requiredDate(c, "from")
	if err != nil {
		return err
	}
	to, err := requiredDate(c, "to")
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.SearchAdmissions(c.Request().Context(), from, to, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(views(items), total, pg.Limit, pg.Offset))
}

func views(items []*Admission) []admissionView {
	out := make([]admissionView, 0, len(items))
	for _, a := range items {
		out = append(out, viewOf(a))
	}
	return out
}

// -- Clinical Marker Handlers --

func (h *Handler) RecordMarker(c echo.Context) error {
	var m ClinicalMarker
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.RecordClinicalMarker(c.Request().Context(), &m); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) GetMarker(c echo.Context) error {
	key := MarkerKey{MemberKey: c.Param("member"), RuleID: c.Param("rule"), Period: c.Param("period")}
	m, err := h.svc.GetClinicalMarker(c.Request().Context(), key)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) ListMarkers(c echo.Context) error {
	items, err := h.svc.ListClinicalMarkers(c.Request().Context(), c.Param("member"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

// -- Case Descriptor Handlers --

func (h *Handler) CreateCase(c echo.Context) error {
	var d CaseDescriptor
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateCaseDescriptor(c.Request().Context(), &d); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetCase(c echo.Context) error {
	d, err := h.svc.GetCaseDescriptor(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListCases(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListCaseDescriptors(c.Request().Context(), c.QueryParam("category"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
