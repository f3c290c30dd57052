package services

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	"github.com/kopesha/kopesha-api/internal/config"
	"github.com/kopesha/kopesha-api/internal/models"
	"github.com/kopesha/kopesha-api/pkg/logger"
	"github.com/resend/resend-go/v2"
)

//go:embed templates/email/*.html
var emailTemplates embed.FS

const appURL = "https://app.kopesha.app"

type EmailService struct {
	config       *config.Config
	resendClient *resend.Client
}

func NewEmailService(cfg *config.Config) *EmailService {
	client := resend.NewClient(cfg.ResendAPIKey)
	return &EmailService{
		config:       cfg,
		resendClient: client,
	}
}

func (s *EmailService) SendRecoveryCode(ctx context.Context, user *models.User, code string) error {
	data := struct {
		Name    string
		Code    string
		Minutes int
		AppURL  string
	}{
		Name:    user.FullName,
		Code:    code,
		Minutes: 15,
		AppURL:  appURL,
	}

	body, err := s.renderTemplate("reset_code.html", data)
	if err != nil {
		return err
	}

	return s.send(user.Email, "Password reset code", body)
}

func (s *EmailService) SendAccountCreated(ctx context.Context, user *models.User) error {
	data := struct {
		Name   string
		AppURL string
	}{
		Name:   user.FullName,
		AppURL: appURL,
	}

	body, err := s.renderTemplate("account_created.html", data)
	if err != nil {
		return err
	}

	return s.send(user.Email, "Welcome to Kopesha!", body)
}

// SendLoanApproved notifies the client their application was approved.
// Callers must load the loan with Client and Product.
func (s *EmailService) SendLoanApproved(ctx context.Context, loan *models.Loan) error {
	data := struct {
		Name              string
		Reference         string
		ProductName       string
		PrincipalAmount   string
		InstallmentAmount string
		TermMonths        int
		InterestRate      string
		AppURL            string
	}{
		Name:              loan.Client.FullName,
		Reference:         loan.Reference,
		ProductName:       loan.Product.Name,
		PrincipalAmount:   fmt.Sprintf("KES %.0f", loan.PrincipalAmount),
		InstallmentAmount: fmt.Sprintf("KES %.0f", loan.InstallmentAmount),
		TermMonths:        loan.TermMonths,
		InterestRate:      fmt.Sprintf("%.1f%%", loan.InterestRate),
		AppURL:            appURL,
	}

	body, err := s.renderTemplate("loan_approved.html", data)
	if err != nil {
		return err
	}

	return s.send(loan.Client.Email, "Loan approved", body)
}

// SendLoanDisbursed confirms the funds were released
func (s *EmailService) SendLoanDisbursed(ctx context.Context, loan *models.Loan) error {
	disbursedAt := ""
	if loan.DisbursedAt != nil {
		disbursedAt = loan.DisbursedAt.Format("02 Jan 2006")
	}
	firstDueDate := ""
	if len(loan.Installments) > 0 {
		firstDueDate = loan.Installments[0].DueDate.Format("02 Jan 2006")
	}

	data := struct {
		Name              string
		Reference         string
		PrincipalAmount   string
		TotalRepayable    string
		InstallmentAmount string
		DisbursedAt       string
		FirstDueDate      string
		AppURL            string
	}{
		Name:              loan.Client.FullName,
		Reference:         loan.Reference,
		PrincipalAmount:   fmt.Sprintf("KES %.0f", loan.PrincipalAmount),
		TotalRepayable:    fmt.Sprintf("KES %.0f", loan.TotalRepayable),
		InstallmentAmount: fmt.Sprintf("KES %.0f", loan.InstallmentAmount),
		DisbursedAt:       disbursedAt,
		FirstDueDate:      firstDueDate,
		AppURL:            appURL,
	}

	body, err := s.renderTemplate("loan_disbursed.html", data)
	if err != nil {
		return err
	}

	return s.send(loan.Client.Email, "Loan disbursed", body)
}

// SendLoanRejected tells the client the outcome and the reason recorded by
// the reviewer
func (s *EmailService) SendLoanRejected(ctx context.Context, loan *models.Loan, reason string) error {
	data := struct {
		Name      string
		Reference string
		Reason    string
		AppURL    string
	}{
		Name:      loan.Client.FullName,
		Reference: loan.Reference,
		Reason:    reason,
		AppURL:    appURL,
	}

	body, err := s.renderTemplate("loan_rejected.html", data)
	if err != nil {
		return err
	}

	return s.send(loan.Client.Email, "Loan application update", body)
}

type OverdueInstallmentData struct {
	Reference string
	Amount    string
	DueDate   string
}

// SendOverdueInstallments lists a client's overdue installments in one email
func (s *EmailService) SendOverdueInstallments(ctx context.Context, user *models.User, installments []models.Installment) error {
	var rows []OverdueInstallmentData
	for _, inst := range installments {
		rows = append(rows, OverdueInstallmentData{
			Reference: inst.Loan.Reference,
			Amount:    fmt.Sprintf("KES %.0f", inst.Remaining()),
			DueDate:   inst.DueDate.Format("02 Jan 2006"),
		})
	}

	data := struct {
		Name         string
		Installments []OverdueInstallmentData
		AppURL       string
	}{
		Name:         user.FullName,
		Installments: rows,
		AppURL:       appURL,
	}

	body, err := s.renderTemplate("overdue_installments.html", data)
	if err != nil {
		return err
	}

	return s.send(user.Email, fmt.Sprintf("Overdue installments (%d)", len(installments)), body)
}

func (s *EmailService) send(to, subject, body string) error {
	if to == "" {
		return NewValidationError("email", "recipient address is empty")
	}
	if s.config.ResendAPIKey == "" {
		// No provider configured, common in development. Log and move on.
		logger.Info(fmt.Sprintf("📧 [Email Skipped] RESEND_API_KEY not set | To: %s | Subject: %s", to, subject))
		return nil
	}

	params := &resend.SendEmailRequest{
		From:    s.config.FromEmail,
		To:      []string{to},
		Subject: subject,
		Html:    body,
	}
	_, err := s.resendClient.Emails.Send(params)
	if err != nil {
		logger.Error(fmt.Sprintf("Failed to send email to %s: %v", to, err))
		return err
	}

	logger.Info(fmt.Sprintf("📧 [Email Sent] To: %s | Subject: %s", to, subject))
	return nil
}

func (s *EmailService) renderTemplate(name string, data interface{}) (string, error) {
	tmpl, err := template.ParseFS(emailTemplates, "templates/email/"+name)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}

	return buf.String(), nil
}
