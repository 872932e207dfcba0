package encounter

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc    *Service
	logger zerolog.Logger
	now    func() time.Time
}

func NewHandler(svc *Service, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/encounters", h.ListEncounters)
	api.GET("/encounters/export", h.ExportEncounters)
	api.GET("/encounters/:stay_id", h.GetEncounter)
	api.GET("/filters/options", h.GetFilterOptions)
}

func (h *Handler) ListEncounters(c echo.Context) error {
	q, err := pageQueryFromContext(c)
	if err != nil {
		return h.fail(c, err)
	}
	res, err := h.svc.ListEncounters(c.Request().Context(), filterFromContext(c), q)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) GetEncounter(c echo.Context) error {
	stayID, err := strconv.ParseInt(c.Param("stay_id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid stay_id")
	}
	detail, err := h.svc.GetDetail(c.Request().Context(), stayID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, detail)
}

func (h *Handler) GetFilterOptions(c echo.Context) error {
	cat, err := h.svc.GetFilterOptions(c.Request().Context())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, cat)
}

// ExportEncounters streams the filtered, sorted list as an XLSX download.
// page and per_page are accepted but ignored.
func (h *Handler) ExportEncounters(c echo.Context) error {
	q, err := NewPageQuery(c.QueryParam("sort_by"), c.QueryParam("sort_order"), "", "")
	if err != nil {
		return h.fail(c, err)
	}
	items, truncated, err := h.svc.ExportEncounters(c.Request().Context(), filterFromContext(c), q)
	if err != nil {
		return h.fail(c, err)
	}

	now := h.now()
	body, err := WriteWorkbook(items, now)
	if err != nil {
		return h.fail(c, err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+ExportFilename(now)+`"`)
	c.Response().Header().Set("X-Export-Rows", strconv.Itoa(len(items)))
	if truncated {
		c.Response().Header().Set("X-Export-Truncated", "true")
	}
	return c.Blob(http.StatusOK, xlsxContentType, body)
}

func pageQueryFromContext(c echo.Context) (PageQuery, error) {
	return NewPageQuery(
		c.QueryParam("sort_by"),
		c.QueryParam("sort_order"),
		c.QueryParam("page"),
		c.QueryParam("per_page"),
	)
}

// filterFromContext reads the list filters. race and disposition may repeat.
func filterFromContext(c echo.Context) Filter {
	params := c.QueryParams()
	return Filter{
		Gender:         params.Get("gender"),
		Races:          params["race"],
		Dispositions:   params["disposition"],
		DateFrom:       params.Get("date_from"),
		DateTo:         params.Get("date_to"),
		ChiefComplaint: params.Get("chief_complaint"),
	}
}

func (h *Handler) fail(c echo.Context, err error) error {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ve.Message)
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Encounter not found")
	}
	h.logger.Error().Err(err).
		Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
		Str("path", c.Path()).
		Msg("encounter request failed")
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
