package patient

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ehr/tracker/internal/platform/apperr"
	"github.com/ehr/tracker/pkg/pagination"
)

type Handler struct {
	svc   *Service
	pages pagination.Parser
}

func NewHandler(svc *Service, pages pagination.Parser) *Handler {
	return &Handler{svc: svc, pages: pages}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/patients", h.CreatePatient)
	g.GET("/patients", h.SearchPatients)
	g.GET("/patients/national-id/:national_id", h.GetPatientByNationalID)
	g.GET("/patients/:id", h.GetPatient)
	g.PATCH("/patients/:id", h.UpdatePatient)
	g.DELETE("/patients/:id", h.DeletePatient)

	g.POST("/patients/:id/visits", h.AddVisit)
	g.GET("/patients/:id/visits", h.ListVisits)
	g.POST("/patients/:id/medications", h.AddMedication)
	g.GET("/patients/:id/medications", h.ListMedications)

	g.POST("/import/patients", h.ImportPatients)
}

// -- Patients --

func (h *Handler) CreatePatient(c echo.Context) error {
	var in PatientCreate
	if err := bind(c, &in); err != nil {
		return err
	}
	p, err := h.svc.CreatePatient(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, NewPatientOut(p))
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewPatientOut(p))
}

func (h *Handler) GetPatientByNationalID(c echo.Context) error {
	p, err := h.svc.GetPatientByNationalID(c.Request().Context(), c.Param("national_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewPatientOut(p))
}

func (h *Handler) SearchPatients(c echo.Context) error {
	pg, err := h.pages.FromContext(c, pagination.DefaultPatientLimit)
	if err != nil {
		return err
	}
	patients, err := h.svc.SearchPatients(c.Request().Context(), SearchFilter{
		Query: c.QueryParam("q"),
		Skip:  pg.Skip,
		Limit: pg.Limit,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewPatientOuts(patients))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in PatientUpdate
	if err := bind(c, &in); err != nil {
		return err
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewPatientOut(p))
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatient(c.Request().Context(), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Visits --

func (h *Handler) AddVisit(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in VisitCreate
	if err := bind(c, &in); err != nil {
		return err
	}
	v, err := h.svc.AddVisit(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, NewVisitOut(v))
}

func (h *Handler) ListVisits(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	pg, err := h.pages.FromContext(c, pagination.DefaultVisitLimit)
	if err != nil {
		return err
	}
	visits, err := h.svc.ListVisits(c.Request().Context(), id, pg.Skip, pg.Limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewVisitOuts(visits))
}

// -- Medications --

func (h *Handler) AddMedication(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in MedicationCreate
	if err := bind(c, &in); err != nil {
		return err
	}
	m, err := h.svc.AddMedication(c.Request().Context(), id, in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, NewMedicationOut(m))
}

func (h *Handler) ListMedications(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	meds, err := h.svc.ListMedications(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewMedicationOuts(meds))
}

// -- Import --

// ImportPatients accepts the CSV either as the "file" part of a multipart
// form or as the raw request body.
func (h *Handler) ImportPatients(c echo.Context) error {
	body, err := importBody(c)
	if err != nil {
		return err
	}
	defer body.Close()

	rows, err := ParseCSV(body)
	if err != nil {
		return err
	}
	res, err := h.svc.ImportPatients(c.Request().Context(), rows)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewPatientOuts(res.Created))
}

func importBody(c echo.Context) (io.ReadCloser, error) {
	ct := c.Request().Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(ct, echo.MIMEMultipartForm) {
		return c.Request().Body, nil
	}
	fh, err := c.FormFile("file")
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return nil, he
		}
		return nil, apperr.Invalid("file", "is required")
	}
	return fh.Open()
}

// bind decodes the request body. Decoding failures are reported as
// validation errors on the body.
func bind(c echo.Context, dst any) error {
	err := c.Bind(dst)
	if err == nil {
		return nil
	}
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Code == http.StatusBadRequest {
		msg, ok := he.Message.(string)
		if !ok {
			msg = "malformed request body"
		}
		return apperr.Invalid("body", msg)
	}
	return err
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}
