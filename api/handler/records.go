package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/perkins/cache"
	"github.com/use-agent/perkins/models"
)

// recordQuery holds the filter parameters shared by the records endpoints.
// Empty fields match anything.
type recordQuery struct {
	Form    string `form:"form"`
	College string `form:"college"`
	Year    string `form:"year"`
	Code    string `form:"code"`
}

func (q recordQuery) matches(rec models.ScrapeRecord) bool {
	return (q.Form == "" || rec.FormType == q.Form) &&
		(q.College == "" || rec.DistrictCollege == strings.TrimSpace(q.College)) &&
		(q.Year == "" || rec.FiscalYear == q.Year) &&
		(q.Code == "" || rec.TopCode == q.Code)
}

// ListRecords returns a handler for GET /api/v1/records.
func ListRecords(cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q recordQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), err))
			return
		}

		l, err := cc.Snapshot()
		if err != nil {
			respondError(c, err)
			return
		}

		recs := l.Filter(q.matches)
		if recs == nil {
			recs = []models.ScrapeRecord{}
		}
		c.JSON(http.StatusOK, models.RecordsResponse{
			Success: true,
			Count:   len(recs),
			Records: recs,
		})
	}
}

// LookupRecord returns a handler for GET /api/v1/records/lookup. It answers
// the same question the scraper asks before fetching a report: is this exact
// tuple recorded?
func LookupRecord(cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q recordQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), err))
			return
		}
		if q.Form == "" || strings.TrimSpace(q.College) == "" || q.Year == "" {
			respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, "form, college and year are required", nil))
			return
		}

		l, err := cc.Snapshot()
		if err != nil {
			respondError(c, err)
			return
		}

		key := models.NewReportKey(q.Form, q.College, q.Year, q.Code)
		resp := models.LookupResponse{Success: true, Key: key}
		if rec, ok := l.Lookup(key); ok {
			resp.Recorded = true
			resp.Record = &rec
		}
		c.JSON(http.StatusOK, resp)
	}
}

// respondError maps a ScrapeError to the correct HTTP status code and writes
// a structured JSON error response.
func respondError(c *gin.Context, err error) {
	var scrapeErr *models.ScrapeError
	if !errors.As(err, &scrapeErr) {
		scrapeErr = models.NewScrapeError(models.ErrCodeInternal, err.Error(), err)
	}

	c.JSON(mapErrorToStatus(scrapeErr), models.ErrorResponse{
		Success: false,
		Error:   scrapeErr.ToDetail(),
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeLedger:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}
