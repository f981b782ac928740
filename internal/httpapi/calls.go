package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/calls"
	"github.com/prestonbrown26/braselton-phone-water-sewage/internal/reporting"
	"github.com/prestonbrown26/braselton-phone-water-sewage/pkg/logger"
)

type statsResponse struct {
	reporting.Stats
	LastCallDisplay string `json:"last_call_display,omitempty"`
}

func (h Handlers) Stats(c *gin.Context) {
	st, err := h.Reporting.Stats(c.Request.Context())
	if err != nil {
		internalError(c, "stats lookup failed", err)
		return
	}
	out := statsResponse{Stats: st}
	if st.LastCallAt != nil {
		out.LastCallDisplay = reporting.FormatEastern(*st.LastCallAt)
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) ListCalls(c *gin.Context) {
	page, err := queryInt(c, "page")
	if err != nil {
		abort(c, http.StatusBadRequest, "page must be an integer")
		return
	}
	size, err := queryInt(c, "page_size")
	if err != nil {
		abort(c, http.StatusBadRequest, "page_size must be an integer")
		return
	}

	out, err := h.Reporting.List(c.Request.Context(), page, size)
	if err != nil {
		internalError(c, "call listing failed", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) GetCall(c *gin.Context) {
	d, err := h.Reporting.Detail(c.Request.Context(), c.Param("id"))
	if errors.Is(err, calls.ErrNotFound) {
		abort(c, http.StatusNotFound, "call not found")
		return
	}
	if err != nil {
		internalError(c, "call lookup failed", err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h Handlers) SearchTranscripts(c *gin.Context) {
	rows, err := h.Reporting.Search(c.Request.Context(), reporting.SearchFilter{
		CallID: c.Query("call_id"),
		Phone:  c.Query("phone"),
		Date:   c.Query("date"),
	})
	if errors.Is(err, reporting.ErrInvalidRequest) {
		abort(c, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	if err != nil {
		internalError(c, "transcript search failed", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": rows})
}

// ExportCalls streams the CSV download. Headers are committed before the
// first row, so a mid-stream failure can only be logged.
func (h Handlers) ExportCalls(c *gin.Context) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="`+reporting.ExportFilename+`"`)
	c.Status(http.StatusOK)

	if err := h.Reporting.ExportCSV(c.Request.Context(), c.Writer); err != nil {
		logger.FromGin(c).Error("csv export failed", "err", err)
	}
}

func queryInt(c *gin.Context, key string) (int, error) {
	v := c.Query(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
