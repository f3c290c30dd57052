package services

import (
	"context"
	"testing"
	"time"

	"github.com/kopesha/kopesha-api/internal/models"
	"github.com/kopesha/kopesha-api/internal/repository"
	"github.com/stretchr/testify/assert"
)

type mockSmsRepo struct {
	repository.SmsRepository
	mockFindCampaignByID func(ctx context.Context, id uint) (*models.SmsCampaign, error)
	mockCreateCampaign   func(ctx context.Context, campaign *models.SmsCampaign) error
	mockUpdateCampaign   func(ctx context.Context, campaign *models.SmsCampaign) error
	mockFindDueCampaigns func(ctx context.Context, ref time.Time) ([]models.SmsCampaign, error)
	mockClaimCampaign    func(ctx context.Context, id uint) (bool, error)
	mockCreateMessages   func(ctx context.Context, messages []models.SmsMessage) error
	mockUpdateMessage    func(ctx context.Context, message *models.SmsMessage) error
}

func (m *mockSmsRepo) FindCampaignByID(ctx context.Context, id uint) (*models.SmsCampaign, error) {
	return m.mockFindCampaignByID(ctx, id)
}

func (m *mockSmsRepo) CreateCampaign(ctx context.Context, campaign *models.SmsCampaign) error {
	if m.mockCreateCampaign != nil {
		return m.mockCreateCampaign(ctx, campaign)
	}
	return nil
}

func (m *mockSmsRepo) UpdateCampaign(ctx context.Context, campaign *models.SmsCampaign) error {
	if m.mockUpdateCampaign != nil {
		return m.mockUpdateCampaign(ctx, campaign)
	}
	return nil
}

func (m *mockSmsRepo) FindDueCampaigns(ctx context.Context, ref time.Time) ([]models.SmsCampaign, error) {
	return m.mockFindDueCampaigns(ctx, ref)
}

func (m *mockSmsRepo) ClaimCampaign(ctx context.Context, id uint) (bool, error) {
	if m.mockClaimCampaign != nil {
		return m.mockClaimCampaign(ctx, id)
	}
	return true, nil
}

func (m *mockSmsRepo) CreateMessages(ctx context.Context, messages []models.SmsMessage) error {
	if m.mockCreateMessages != nil {
		return m.mockCreateMessages(ctx, messages)
	}
	return nil
}

func (m *mockSmsRepo) UpdateMessage(ctx context.Context, message *models.SmsMessage) error {
	if m.mockUpdateMessage != nil {
		return m.mockUpdateMessage(ctx, message)
	}
	return nil
}

func TestNewLogSmsProvider(t *testing.T) {
	provider := NewLogSmsProvider("KOPESHA")
	assert.Equal(t, "KOPESHA", provider.SenderID)

	// Delivery is simulated, so sending always succeeds
	err := provider.Send(context.Background(), "254712345678", "Karibu Kopesha")
	assert.NoError(t, err)
}

func TestSmsService_CreateCampaign_Validation(t *testing.T) {
	svc := NewSmsService(&mockSmsRepo{}, nil, nil, nil, NewLogSmsProvider("KOPESHA"), NewAuditService(nil))

	_, err := svc.CreateCampaign(context.Background(), &CreateCampaignInput{Message: "Hello", Audience: models.SmsAudienceAllClients})
	assert.True(t, IsValidation(err))

	_, err = svc.CreateCampaign(context.Background(), &CreateCampaignInput{Name: "August push", Audience: models.SmsAudienceAllClients})
	assert.True(t, IsValidation(err))

	_, err = svc.CreateCampaign(context.Background(), &CreateCampaignInput{Name: "August push", Message: "Hello", Audience: "everyone"})
	assert.True(t, IsValidation(err))
}

func TestSmsService_DispatchDue_SendsCampaign(t *testing.T) {
	smsRepo := &mockSmsRepo{}
	userRepo := &mockUserRepo{}
	svc := NewSmsService(smsRepo, userRepo, nil, nil, NewLogSmsProvider("KOPESHA"), NewAuditService(nil))

	scheduled := time.Now().Add(-5 * time.Minute)
	smsRepo.mockFindDueCampaigns = func(ctx context.Context, ref time.Time) ([]models.SmsCampaign, error) {
		return []models.SmsCampaign{{
			ID:          4,
			Name:        "Rate drop",
			Message:     "Our rates just dropped. Visit a branch to top up.",
			Audience:    models.SmsAudienceAllClients,
			Status:      models.SmsCampaignStatusScheduled,
			ScheduledAt: &scheduled,
		}}, nil
	}

	// One client has no phone on file and is skipped
	userRepo.mockList = func(ctx context.Context, query *repository.ListQuery) ([]models.User, int64, error) {
		assert.Equal(t, models.RoleClient, query.Filters["role"])
		assert.Equal(t, models.StatusActive, query.Filters["status"])
		return []models.User{
			{ID: 7, FullName: "Wanjiku Kamau", Phone: "254712345678"},
			{ID: 8, FullName: "Otieno Odhiambo"},
		}, 2, nil
	}

	var queued []models.SmsMessage
	smsRepo.mockCreateMessages = func(ctx context.Context, messages []models.SmsMessage) error {
		queued = messages
		return nil
	}

	var saved *models.SmsCampaign
	smsRepo.mockUpdateCampaign = func(ctx context.Context, campaign *models.SmsCampaign) error {
		saved = campaign
		return nil
	}

	err := svc.DispatchDue(context.Background())
	assert.NoError(t, err)

	assert.Len(t, queued, 1)
	assert.Equal(t, "254712345678", queued[0].Phone)

	assert.NotNil(t, saved)
	assert.Equal(t, models.SmsCampaignStatusSent, saved.Status)
	assert.Equal(t, 1, saved.SentCount)
	assert.Equal(t, 0, saved.FailedCount)
	assert.NotNil(t, saved.SentAt)
}

func TestSmsService_DispatchDue_SkipsUnclaimed(t *testing.T) {
	smsRepo := &mockSmsRepo{}
	svc := NewSmsService(smsRepo, &mockUserRepo{}, nil, nil, NewLogSmsProvider("KOPESHA"), NewAuditService(nil))

	smsRepo.mockFindDueCampaigns = func(ctx context.Context, ref time.Time) ([]models.SmsCampaign, error) {
		return []models.SmsCampaign{{ID: 4, Status: models.SmsCampaignStatusScheduled}}, nil
	}
	// Another dispatcher already claimed the campaign
	smsRepo.mockClaimCampaign = func(ctx context.Context, id uint) (bool, error) {
		return false, nil
	}

	var updated bool
	smsRepo.mockUpdateCampaign = func(ctx context.Context, campaign *models.SmsCampaign) error {
		updated = true
		return nil
	}

	assert.NoError(t, svc.DispatchDue(context.Background()))
	assert.False(t, updated)
}
