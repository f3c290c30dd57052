package repository

import (
	"context"
	"time"

	"github.com/kopesha/kopesha-api/internal/models"
	"gorm.io/gorm"
)

// SmsRepository defines the interface for SMS campaign and message data access
type SmsRepository interface {
	FindCampaignByID(ctx context.Context, id uint) (*models.SmsCampaign, error)
	CreateCampaign(ctx context.Context, campaign *models.SmsCampaign) error
	UpdateCampaign(ctx context.Context, campaign *models.SmsCampaign) error
	DeleteCampaign(ctx context.Context, id uint) error
	ListCampaigns(ctx context.Context, query *ListQuery) ([]models.SmsCampaign, int64, error)
	FindDueCampaigns(ctx context.Context, ref time.Time) ([]models.SmsCampaign, error)
	ClaimCampaign(ctx context.Context, id uint) (bool, error)
	CreateMessages(ctx context.Context, messages []models.SmsMessage) error
	UpdateMessage(ctx context.Context, message *models.SmsMessage) error
	FindMessagesByCampaign(ctx context.Context, campaignID uint) ([]models.SmsMessage, error)
	FindQueuedMessages(ctx context.Context, limit int) ([]models.SmsMessage, error)
}

type smsRepository struct {
	db *gorm.DB
}

// NewSmsRepository creates a new SMS repository
func NewSmsRepository(db *gorm.DB) SmsRepository {
	return &smsRepository{db: db}
}

func (r *smsRepository) FindCampaignByID(ctx context.Context, id uint) (*models.SmsCampaign, error) {
	var campaign models.SmsCampaign
	err := r.db.WithContext(ctx).
		Preload("CreatedBy").
		First(&campaign, id).Error
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (r *smsRepository) CreateCampaign(ctx context.Context, campaign *models.SmsCampaign) error {
	return r.db.WithContext(ctx).Create(campaign).Error
}

func (r *smsRepository) UpdateCampaign(ctx context.Context, campaign *models.SmsCampaign) error {
	return r.db.WithContext(ctx).Save(campaign).Error
}

func (r *smsRepository) DeleteCampaign(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.SmsCampaign{}, id).Error
}

func (r *smsRepository) ListCampaigns(ctx context.Context, query *ListQuery) ([]models.SmsCampaign, int64, error) {
	var campaigns []models.SmsCampaign
	var total int64

	db := r.db.WithContext(ctx).Model(&models.SmsCampaign{})

	if query.Search != "" {
		search := "%" + query.Search + "%"
		db = db.Where("name ILIKE ? OR message ILIKE ?", search, search)
	}

	if query.Filters["status"] != "" {
		db = db.Where("status = ?", query.Filters["status"])
	}

	if query.Filters["audience"] != "" {
		db = db.Where("audience = ?", query.Filters["audience"])
	}

	db.Count(&total)

	if query.SortBy != "" {
		order := query.SortBy
		if query.SortDir == "desc" {
			order += " DESC"
		}
		db = db.Order(order)
	} else {
		db = db.Order("created_at DESC")
	}

	if query.PerPage > 0 {
		db = db.Offset((query.Page - 1) * query.PerPage).Limit(query.PerPage)
	}

	err := db.Preload("CreatedBy").Find(&campaigns).Error
	return campaigns, total, err
}

func (r *smsRepository) FindDueCampaigns(ctx context.Context, ref time.Time) ([]models.SmsCampaign, error) {
	var campaigns []models.SmsCampaign
	err := r.db.WithContext(ctx).
		Where("status = ?", models.SmsCampaignStatusScheduled).
		Where("scheduled_at IS NULL OR scheduled_at <= ?", ref).
		Order("scheduled_at ASC").
		Find(&campaigns).Error
	return campaigns, err
}

// ClaimCampaign moves a scheduled campaign to sending in a single conditional
// UPDATE so two dispatcher runs cannot pick up the same campaign.
func (r *smsRepository) ClaimCampaign(ctx context.Context, id uint) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SmsCampaign{}).
		Where("id = ? AND status = ?", id, models.SmsCampaignStatusScheduled).
		Update("status", models.SmsCampaignStatusSending)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *smsRepository) CreateMessages(ctx context.Context, messages []models.SmsMessage) error {
	if len(messages) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&messages).Error
}

func (r *smsRepository) UpdateMessage(ctx context.Context, message *models.SmsMessage) error {
	return r.db.WithContext(ctx).Save(message).Error
}

func (r *smsRepository) FindMessagesByCampaign(ctx context.Context, campaignID uint) ([]models.SmsMessage, error) {
	var messages []models.SmsMessage
	err := r.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("created_at ASC").
		Find(&messages).Error
	return messages, err
}

func (r *smsRepository) FindQueuedMessages(ctx context.Context, limit int) ([]models.SmsMessage, error) {
	var messages []models.SmsMessage
	db := r.db.WithContext(ctx).
		Where("status = ?", models.SmsMessageStatusQueued).
		Order("created_at ASC")
	if limit > 0 {
		db = db.Limit(limit)
	}
	err := db.Find(&messages).Error
	return messages, err
}
