package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kopesha/kopesha-api/internal/services"
)

type JobHandler struct {
	jobService *services.JobService
}

func NewJobHandler(jobService *services.JobService) *JobHandler {
	return &JobHandler{jobService: jobService}
}

// @Summary Background Job Status
// @Description Get worker pool statistics (Admin)
// @Tags Jobs
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /jobs/status [get]
func (h *JobHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.jobService.GetStatus())
}
