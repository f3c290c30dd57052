package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kopesha/kopesha-api/internal/services"
)

type AnalyticsHandler struct {
	analyticsService *services.AnalyticsService
	exportService    *services.ExportService
}

func NewAnalyticsHandler(analyticsService *services.AnalyticsService, exportService *services.ExportService) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyticsService: analyticsService,
		exportService:    exportService,
	}
}

func parseAnalyticsFilters(c *gin.Context) (services.AnalyticsFilters, error) {
	var filters services.AnalyticsFilters

	if v := c.Query("start_date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return filters, err
		}
		filters.StartDate = &parsed
	}
	if v := c.Query("end_date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			return filters, err
		}
		// Include the whole end day
		end := parsed.Add(24*time.Hour - time.Second)
		filters.EndDate = &end
	}
	if v := c.Query("trend_months"); v != "" {
		months, err := strconv.Atoi(v)
		if err == nil && months > 0 {
			filters.TrendMonths = months
		}
	}

	return filters, nil
}

// @Summary Portfolio Overview
// @Description Get portfolio totals, PAR, trends and breakdowns (Officer/Admin)
// @Tags Analytics
// @Accept json
// @Produce json
// @Param start_date query string false "Start date YYYY-MM-DD"
// @Param end_date query string false "End date YYYY-MM-DD"
// @Param trend_months query int false "Months of disbursement trend" default(6)
// @Success 200 {object} models.PortfolioOverview
// @Security BearerAuth
// @Router /analytics [get]
func (h *AnalyticsHandler) Overview(c *gin.Context) {
	filters, err := parseAnalyticsFilters(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Dates must be in YYYY-MM-DD format"})
		return
	}

	overview, err := h.analyticsService.GetOverview(c.Request.Context(), filters)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, overview)
}

// @Summary Officer Performance
// @Description Per-officer portfolio and collection figures (Admin)
// @Tags Analytics
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /analytics/officers [get]
func (h *AnalyticsHandler) OfficerPerformance(c *gin.Context) {
	performance, err := h.analyticsService.GetOfficerPerformance(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"officers": performance})
}

// @Summary Refresh Analytics Cache
// @Description Recompute and cache the portfolio overview (Admin)
// @Tags Analytics
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Security BearerAuth
// @Router /analytics/refresh [post]
func (h *AnalyticsHandler) Refresh(c *gin.Context) {
	if err := h.analyticsService.RefreshCache(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Analytics cache refreshed"})
}

// @Summary Export Analytics
// @Description Download the portfolio overview as csv, xlsx or pdf (Officer/Admin)
// @Tags Analytics
// @Produce application/octet-stream
// @Param format query string true "Export format: csv, xlsx or pdf"
// @Param start_date query string false "Start date YYYY-MM-DD"
// @Param end_date query string false "End date YYYY-MM-DD"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /analytics/export [get]
func (h *AnalyticsHandler) Export(c *gin.Context) {
	filters, err := parseAnalyticsFilters(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Dates must be in YYYY-MM-DD format"})
		return
	}

	overview, err := h.analyticsService.GetOverview(c.Request.Context(), filters)
	if err != nil {
		respondError(c, err)
		return
	}

	var (
		data        []byte
		filename    string
		contentType string
	)

	switch c.DefaultQuery("format", "csv") {
	case "csv":
		data, filename, err = h.exportService.ExportCSV(c.Request.Context(), overview)
		contentType = "text/csv"
	case "xlsx":
		data, filename, err = h.exportService.ExportXLSX(c.Request.Context(), overview)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "pdf":
		data, filename, err = h.exportService.ExportPDF(c.Request.Context(), overview)
		contentType = "application/pdf"
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be csv, xlsx or pdf"})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, contentType, data)
}

// @Summary Export Loan Book
// @Description Download the full loan book as an Excel workbook (Officer/Admin)
// @Tags Analytics
// @Produce application/octet-stream
// @Success 200 {file} file
// @Security BearerAuth
// @Router /analytics/loan_book [get]
func (h *AnalyticsHandler) LoanBookXLSX(c *gin.Context) {
	data, filename, err := h.exportService.ExportPortfolioXLSX(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
