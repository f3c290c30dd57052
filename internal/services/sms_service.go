package services

import (
	"context"
	"fmt"
	"time"

	"github.com/kopesha/kopesha-api/internal/models"
	"github.com/kopesha/kopesha-api/internal/repository"
	"github.com/kopesha/kopesha-api/pkg/logger"
)

// SmsProvider sends one message to one phone. The default provider only logs
// the send; a real gateway plugs in behind the same interface.
type SmsProvider interface {
	Send(ctx context.Context, phone, body string) error
}

// LogSmsProvider simulates delivery by logging each message
type LogSmsProvider struct {
	SenderID string
}

func NewLogSmsProvider(senderID string) *LogSmsProvider {
	return &LogSmsProvider{SenderID: senderID}
}

func (p *LogSmsProvider) Send(ctx context.Context, phone, body string) error {
	logger.Info(fmt.Sprintf("[SMS] %s -> %s: %s", p.SenderID, phone, body))
	return nil
}

// SmsService manages bulk campaigns and system reminder messages. Campaigns
// resolve their audience at dispatch time, persist one SmsMessage per
// recipient, and hand each message to the provider.
type SmsService struct {
	repo            repository.SmsRepository
	userRepo        repository.UserRepository
	loanRepo        repository.LoanRepository
	installmentRepo repository.InstallmentRepository
	provider        SmsProvider
	auditSvc        *AuditService
}

func NewSmsService(
	repo repository.SmsRepository,
	userRepo repository.UserRepository,
	loanRepo repository.LoanRepository,
	installmentRepo repository.InstallmentRepository,
	provider SmsProvider,
	auditSvc *AuditService,
) *SmsService {
	return &SmsService{
		repo:            repo,
		userRepo:        userRepo,
		loanRepo:        loanRepo,
		installmentRepo: installmentRepo,
		provider:        provider,
		auditSvc:        auditSvc,
	}
}

func (s *SmsService) FindCampaignByID(ctx context.Context, id uint) (*models.SmsCampaign, error) {
	return s.repo.FindCampaignByID(ctx, id)
}

func (s *SmsService) ListCampaigns(ctx context.Context, query *repository.ListQuery) ([]models.SmsCampaign, int64, error) {
	return s.repo.ListCampaigns(ctx, query)
}

func (s *SmsService) FindMessagesByCampaign(ctx context.Context, campaignID uint) ([]models.SmsMessage, error) {
	return s.repo.FindMessagesByCampaign(ctx, campaignID)
}

// CreateCampaignInput carries a new campaign draft
type CreateCampaignInput struct {
	Name        string
	Message     string
	Audience    string
	ScheduledAt *time.Time
	CreatedByID uint
}

// CreateCampaign saves a campaign. A campaign with a schedule goes straight to
// scheduled; one without stays a draft until Schedule is called.
func (s *SmsService) CreateCampaign(ctx context.Context, input *CreateCampaignInput) (*models.SmsCampaign, error) {
	if input.Name == "" {
		return nil, NewValidationError("name", "is required")
	}
	if input.Message == "" {
		return nil, NewValidationError("message", "is required")
	}
	if !models.ValidSmsAudience(input.Audience) {
		return nil, NewValidationError("audience", "unknown audience: "+input.Audience)
	}

	status := models.SmsCampaignStatusDraft
	if input.ScheduledAt != nil {
		status = models.SmsCampaignStatusScheduled
	}

	campaign := &models.SmsCampaign{
		Name:        input.Name,
		Message:     input.Message,
		Audience:    input.Audience,
		Status:      status,
		ScheduledAt: input.ScheduledAt,
		CreatedByID: input.CreatedByID,
	}
	if err := s.repo.CreateCampaign(ctx, campaign); err != nil {
		return nil, NewPersistenceError("create campaign", err)
	}

	s.auditSvc.Log(ctx, input.CreatedByID, "CREATE", "SmsCampaign", campaign.ID,
		fmt.Sprintf("Campaign %q to %s", campaign.Name, campaign.Audience), "", "")

	return campaign, nil
}

// Schedule queues a draft campaign for dispatch. A nil time means send on the
// next dispatcher tick.
func (s *SmsService) Schedule(ctx context.Context, id uint, at *time.Time) (*models.SmsCampaign, error) {
	campaign, err := s.repo.FindCampaignByID(ctx, id)
	if err != nil {
		return nil, ErrNotFound
	}
	if campaign.Status != models.SmsCampaignStatusDraft {
		return nil, NewInvariantViolation(
			fmt.Sprintf("only draft campaigns can be scheduled, this one is %s", campaign.Status))
	}

	campaign.Status = models.SmsCampaignStatusScheduled
	campaign.ScheduledAt = at
	if err := s.repo.UpdateCampaign(ctx, campaign); err != nil {
		return nil, NewPersistenceError("update campaign", err)
	}
	return campaign, nil
}

// DeleteCampaign removes a campaign that has not started sending
func (s *SmsService) DeleteCampaign(ctx context.Context, id uint) error {
	campaign, err := s.repo.FindCampaignByID(ctx, id)
	if err != nil {
		return ErrNotFound
	}
	if campaign.Status == models.SmsCampaignStatusSending || campaign.Status == models.SmsCampaignStatusSent {
		return NewInvariantViolation("a campaign that has started sending cannot be deleted")
	}
	return s.repo.DeleteCampaign(ctx, id)
}

// resolveAudience returns the active clients a campaign targets
func (s *SmsService) resolveAudience(ctx context.Context, audience string) ([]models.User, error) {
	switch audience {
	case models.SmsAudienceAllClients:
		query := repository.NewListQuery()
		query.PerPage = 0 // no paging, the send is batch work
		query.Filters["role"] = models.RoleClient
		query.Filters["status"] = models.StatusActive
		users, _, err := s.userRepo.List(ctx, query)
		return users, err

	case models.SmsAudienceActiveLoans:
		return s.clientsWithLoanStatus(ctx,
			[]string{models.LoanStatusDisbursed, models.LoanStatusActive, models.LoanStatusInArrears})

	case models.SmsAudienceInArrears:
		return s.clientsWithLoanStatus(ctx, []string{models.LoanStatusInArrears})
	}
	return nil, NewValidationError("audience", "unknown audience: "+audience)
}

func (s *SmsService) clientsWithLoanStatus(ctx context.Context, statuses []string) ([]models.User, error) {
	loans, err := s.loanRepo.FindByStatus(ctx, statuses)
	if err != nil {
		return nil, err
	}

	seen := make(map[uint]bool)
	var users []models.User
	for _, loan := range loans {
		if seen[loan.ClientID] {
			continue
		}
		seen[loan.ClientID] = true
		if loan.Client.IsActive() {
			users = append(users, loan.Client)
		}
	}
	return users, nil
}

// DispatchDue sends every scheduled campaign whose time has come. The
// conditional claim keeps overlapping dispatcher runs from double-sending.
func (s *SmsService) DispatchDue(ctx context.Context) error {
	campaigns, err := s.repo.FindDueCampaigns(ctx, time.Now())
	if err != nil {
		return NewPersistenceError("find due campaigns", err)
	}

	for i := range campaigns {
		campaign := &campaigns[i]
		claimed, err := s.repo.ClaimCampaign(ctx, campaign.ID)
		if err != nil {
			logger.Error(fmt.Sprintf("[SmsService] Failed to claim campaign %d: %v", campaign.ID, err))
			continue
		}
		if !claimed {
			continue
		}
		if err := s.sendCampaign(ctx, campaign); err != nil {
			logger.Error(fmt.Sprintf("[SmsService] Campaign %d dispatch failed: %v", campaign.ID, err))
		}
	}
	return nil
}

func (s *SmsService) sendCampaign(ctx context.Context, campaign *models.SmsCampaign) error {
	recipients, err := s.resolveAudience(ctx, campaign.Audience)
	if err != nil {
		return fmt.Errorf("failed to resolve audience: %w", err)
	}

	campaignID := campaign.ID
	var messages []models.SmsMessage
	for _, user := range recipients {
		if user.Phone == "" {
			continue
		}
		messages = append(messages, models.SmsMessage{
			CampaignID: &campaignID,
			UserID:     user.ID,
			Phone:      user.Phone,
			Body:       campaign.Message,
		})
	}
	if err := s.repo.CreateMessages(ctx, messages); err != nil {
		return NewPersistenceError("create campaign messages", err)
	}

	sent, failed := s.deliverQueued(ctx, messages)

	now := time.Now()
	campaign.Status = models.SmsCampaignStatusSent
	campaign.SentAt = &now
	campaign.SentCount = sent
	campaign.FailedCount = failed
	if err := s.repo.UpdateCampaign(ctx, campaign); err != nil {
		return NewPersistenceError("update campaign", err)
	}

	logger.Info(fmt.Sprintf("[SmsService] Campaign %q sent: %d delivered, %d failed",
		campaign.Name, sent, failed))
	return nil
}

// deliverQueued pushes messages through the provider and records the outcome
// per row
func (s *SmsService) deliverQueued(ctx context.Context, messages []models.SmsMessage) (sent, failed int) {
	for i := range messages {
		msg := &messages[i]
		now := time.Now()
		if err := s.provider.Send(ctx, msg.Phone, msg.Body); err != nil {
			errMsg := err.Error()
			msg.Status = models.SmsMessageStatusFailed
			msg.Error = &errMsg
			failed++
		} else {
			msg.Status = models.SmsMessageStatusSent
			msg.SentAt = &now
			sent++
		}
		if err := s.repo.UpdateMessage(ctx, msg); err != nil {
			logger.Error(fmt.Sprintf("[SmsService] Failed to update message %d: %v", msg.ID, err))
		}
	}
	return sent, failed
}

// SendPaymentReminders messages clients whose installment falls due tomorrow.
// Each installment is reminded at most once.
func (s *SmsService) SendPaymentReminders(ctx context.Context) (int, error) {
	due, err := s.installmentRepo.FindDueTomorrowForActiveLoans(ctx)
	if err != nil {
		return 0, NewPersistenceError("find due installments", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	var reminded []uint
	for i := range due {
		inst := &due[i]
		client := inst.Loan.Client
		if client.Phone == "" {
			continue
		}

		body := fmt.Sprintf("Dear %s, your loan installment of KES %.0f is due on %s. Pay via M-Pesa paybill to stay on track.",
			client.FullName, inst.Amount, inst.DueDate.Format("02 Jan 2006"))

		batch := []models.SmsMessage{{
			UserID: client.ID,
			Phone:  client.Phone,
			Body:   body,
		}}
		if err := s.repo.CreateMessages(ctx, batch); err != nil {
			logger.Error(fmt.Sprintf("[SmsService] Failed to queue reminder for installment %d: %v", inst.ID, err))
			continue
		}
		s.deliverQueued(ctx, batch)
		reminded = append(reminded, inst.ID)
	}

	if err := s.installmentRepo.MarkReminderSent(ctx, reminded); err != nil {
		return len(reminded), NewPersistenceError("mark reminders sent", err)
	}

	if len(reminded) > 0 {
		logger.Info(fmt.Sprintf("[SmsService] Sent %d payment reminders", len(reminded)))
	}
	return len(reminded), nil
}
