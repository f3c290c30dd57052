package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kopesha/kopesha-api/internal/models"
	"github.com/kopesha/kopesha-api/internal/repository"
	"github.com/kopesha/kopesha-api/internal/services"
	"github.com/stretchr/testify/assert"
)

type mockUserRepo struct {
	repository.UserRepository
	mockList func(ctx context.Context, query *repository.ListQuery) ([]models.User, int64, error)
}

func (m *mockUserRepo) List(ctx context.Context, query *repository.ListQuery) ([]models.User, int64, error) {
	return m.mockList(ctx, query)
}

func newUserHandlerForTest(mockRepo *mockUserRepo) *UserHandler {
	userService := services.NewUserService(mockRepo, nil, nil, nil, services.NewAuditService(nil))
	return NewUserHandler(userService, nil, nil)
}

func TestUserHandler_Index_DefaultStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockRepo := &mockUserRepo{}
	handler := newUserHandlerForTest(mockRepo)

	var capturedStatus string
	mockRepo.mockList = func(ctx context.Context, query *repository.ListQuery) ([]models.User, int64, error) {
		capturedStatus = query.Filters["status"]
		return []models.User{}, 0, nil
	}

	// No status provided defaults to active
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/users", nil)
	handler.Index(c)
	assert.Equal(t, models.StatusActive, capturedStatus)

	// "all" removes the filter
	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/users?status=all", nil)
	handler.Index(c)
	assert.Equal(t, "", capturedStatus)

	// A specific status passes through
	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/users?status=suspended", nil)
	handler.Index(c)
	assert.Equal(t, models.StatusSuspended, capturedStatus)
}

func TestUserHandler_Index_OfficerSeesOnlyClients(t *testing.T) {
	gin.SetMode(gin.TestMode)

	mockRepo := &mockUserRepo{}
	handler := newUserHandlerForTest(mockRepo)

	var capturedRole string
	mockRepo.mockList = func(ctx context.Context, query *repository.ListQuery) ([]models.User, int64, error) {
		capturedRole = query.Filters["role"]
		return []models.User{}, 0, nil
	}

	// Officers cannot browse staff accounts, whatever role they ask for
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/users?role=admin", nil)
	c.Set("userRole", models.RoleOfficer)
	handler.Index(c)
	assert.Equal(t, models.RoleClient, capturedRole)

	// Admins filter freely
	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/users?role=officer", nil)
	c.Set("userRole", models.RoleAdmin)
	handler.Index(c)
	assert.Equal(t, models.RoleOfficer, capturedRole)
}
