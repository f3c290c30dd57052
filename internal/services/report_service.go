package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"html/template"
	"os"
	"time"

	"github.com/SebastiaanKlippert/go-wkhtmltopdf"
	"github.com/jung-kurt/gofpdf"
	"github.com/kopesha/kopesha-api/internal/models"
	"github.com/kopesha/kopesha-api/internal/repository"
)

// ReportService produces the downloadable documents the back office hands to
// clients and auditors: CSV extracts, the loan statement PDF and the signed
// loan agreement PDF.
type ReportService struct {
	loanRepo      repository.LoanRepository
	repaymentRepo repository.RepaymentRepository
	userRepo      repository.UserRepository
}

func NewReportService(
	loanRepo repository.LoanRepository,
	repaymentRepo repository.RepaymentRepository,
	userRepo repository.UserRepository,
) *ReportService {
	return &ReportService{
		loanRepo:      loanRepo,
		repaymentRepo: repaymentRepo,
		userRepo:      userRepo,
	}
}

// GenerateArrearsCSV lists every loan currently in arrears with contact
// details for the collections team
func (s *ReportService) GenerateArrearsCSV(ctx context.Context) (*bytes.Buffer, error) {
	loans, err := s.loanRepo.FindByStatus(ctx, []string{models.LoanStatusInArrears})
	if err != nil {
		return nil, err
	}

	b := &bytes.Buffer{}
	w := csv.NewWriter(b)

	header := []string{"Reference", "Client", "Phone", "Principal", "Outstanding", "Days In Arrears", "Officer ID"}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, loan := range loans {
		clientName := "N/A"
		phone := "N/A"
		if loan.Client.ID != 0 {
			clientName = loan.Client.FullName
			phone = loan.Client.Phone
		}

		officerID := ""
		if loan.OfficerID != nil {
			officerID = fmt.Sprintf("%d", *loan.OfficerID)
		}

		record := []string{
			loan.Reference,
			clientName,
			phone,
			fmt.Sprintf("%.0f", loan.PrincipalAmount),
			fmt.Sprintf("%.0f", loan.OutstandingBalance),
			fmt.Sprintf("%d", loan.DaysInArrears),
			officerID,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	return b, nil
}

// GenerateCollectionsCSV extracts repayments over a date range
func (s *ReportService) GenerateCollectionsCSV(ctx context.Context, startDate, endDate string) (*bytes.Buffer, error) {
	query := repository.NewListQuery()
	query.PerPage = 0
	if startDate != "" {
		query.Filters["start_date"] = startDate
	}
	if endDate != "" {
		query.Filters["end_date"] = endDate
	}

	repayments, _, err := s.repaymentRepo.List(ctx, query)
	if err != nil {
		return nil, err
	}

	b := &bytes.Buffer{}
	w := csv.NewWriter(b)

	header := []string{"ID", "Loan Reference", "Client", "Amount", "Date", "Method", "Transaction ID", "Received By"}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, p := range repayments {
		clientName := "N/A"
		reference := fmt.Sprintf("%d", p.LoanID)
		if p.Loan.ID != 0 {
			reference = p.Loan.Reference
			if p.Loan.Client.ID != 0 {
				clientName = p.Loan.Client.FullName
			}
		}

		txnID := ""
		if p.TransactionID != nil {
			txnID = *p.TransactionID
		}

		receivedBy := ""
		if p.ReceivedBy != nil {
			receivedBy = p.ReceivedBy.FullName
		}

		record := []string{
			fmt.Sprintf("%d", p.ID),
			reference,
			clientName,
			fmt.Sprintf("%.0f", p.Amount),
			p.PaymentDate.Format("2006-01-02"),
			p.Method,
			txnID,
			receivedBy,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	return b, nil
}

// GenerateLoanStatementPDF renders a loan's schedule and payment history as a
// statement of account
func (s *ReportService) GenerateLoanStatementPDF(ctx context.Context, loanID uint) (*bytes.Buffer, error) {
	loan, err := s.loanRepo.FindByIDWithDetails(ctx, loanID)
	if err != nil {
		return nil, err
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Loan Statement "+loan.Reference, false)
	pdf.AddPage()

	// Header
	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, "Kopesha Microfinance")
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, "Loan Statement of Account")
	pdf.Ln(10)

	// Loan summary block
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(45, 6, "Reference:")
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, loan.Reference)
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(45, 6, "Client:")
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, loan.Client.FullName)
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(45, 6, "Product:")
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, loan.Product.Name)
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(45, 6, "Principal:")
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("KES %.0f at %.1f%% p.a. over %d months", loan.PrincipalAmount, loan.InterestRate, loan.TermMonths))
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(45, 6, "Status:")
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, loan.Status)
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(45, 6, "Outstanding balance:")
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("KES %.0f of KES %.0f", loan.OutstandingBalance, loan.TotalRepayable))
	pdf.Ln(10)

	// Schedule table
	pdf.SetFont("Arial", "B", 11)
	pdf.Cell(0, 8, "Repayment Schedule")
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(240, 240, 240)
	pdf.CellFormat(12, 7, "#", "1", 0, "C", true, 0, "")
	pdf.CellFormat(28, 7, "Due Date", "1", 0, "C", true, 0, "")
	pdf.CellFormat(30, 7, "Amount", "1", 0, "R", true, 0, "")
	pdf.CellFormat(30, 7, "Principal", "1", 0, "R", true, 0, "")
	pdf.CellFormat(30, 7, "Interest", "1", 0, "R", true, 0, "")
	pdf.CellFormat(30, 7, "Paid", "1", 0, "R", true, 0, "")
	pdf.CellFormat(25, 7, "Status", "1", 0, "C", true, 0, "")
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, inst := range loan.Installments {
		pdf.CellFormat(12, 6, fmt.Sprintf("%d", inst.Number), "1", 0, "C", false, 0, "")
		pdf.CellFormat(28, 6, inst.DueDate.Format("02 Jan 2006"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.0f", inst.Amount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.0f", inst.PrincipalComponent), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.0f", inst.InterestComponent), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.0f", inst.PaidAmount), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, inst.Status, "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(6)

	// Payment history table
	if len(loan.Repayments) > 0 {
		pdf.SetFont("Arial", "B", 11)
		pdf.Cell(0, 8, "Payments Received")
		pdf.Ln(8)

		pdf.SetFont("Arial", "B", 9)
		pdf.CellFormat(28, 7, "Date", "1", 0, "C", true, 0, "")
		pdf.CellFormat(35, 7, "Amount", "1", 0, "R", true, 0, "")
		pdf.CellFormat(35, 7, "Method", "1", 0, "C", true, 0, "")
		pdf.CellFormat(87, 7, "Transaction", "1", 0, "L", true, 0, "")
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 9)
		for _, p := range loan.Repayments {
			txnID := "-"
			if p.TransactionID != nil {
				txnID = *p.TransactionID
			}
			pdf.CellFormat(28, 6, p.PaymentDate.Format("02 Jan 2006"), "1", 0, "C", false, 0, "")
			pdf.CellFormat(35, 6, fmt.Sprintf("%.0f", p.Amount), "1", 0, "R", false, 0, "")
			pdf.CellFormat(35, 6, p.Method, "1", 0, "C", false, 0, "")
			pdf.CellFormat(87, 6, txnID, "1", 0, "L", false, 0, "")
			pdf.Ln(-1)
		}
	}

	pdf.Ln(8)
	pdf.SetFont("Arial", "I", 8)
	pdf.Cell(0, 5, fmt.Sprintf("Generated on %s. Amounts in Kenya Shillings.", time.Now().Format("02 Jan 2006 15:04")))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render statement: %w", err)
	}
	return &buf, nil
}

// GenerateLoanAgreementPDF renders the loan agreement from its HTML template
func (s *ReportService) GenerateLoanAgreementPDF(ctx context.Context, loanID uint) (*bytes.Buffer, error) {
	loan, err := s.loanRepo.FindByIDWithDetails(ctx, loanID)
	if err != nil {
		return nil, err
	}

	formatDate := func(t time.Time) string {
		return t.Format("2 January 2006")
	}

	clientName := "THE BORROWER"
	clientNationalID := "____________________"
	clientAddress := "____________________"
	if loan.Client.ID != 0 {
		clientName = loan.Client.FullName
		if loan.Client.NationalID != "" {
			clientNationalID = loan.Client.NationalID
		}
		if loan.Client.Address != nil && *loan.Client.Address != "" {
			clientAddress = *loan.Client.Address
		}
	}

	firstDueDate := "__________"
	lastDueDate := "__________"
	if len(loan.Installments) > 0 {
		firstDueDate = formatDate(loan.Installments[0].DueDate)
		lastDueDate = formatDate(loan.Installments[len(loan.Installments)-1].DueDate)
	}

	guarantorClause := "No guarantor is recorded for this facility."
	if loan.GuarantorName != nil && *loan.GuarantorName != "" {
		guarantorClause = fmt.Sprintf("This facility is secured by a personal guarantee from %s.", *loan.GuarantorName)
	}
	collateralClause := "No collateral is pledged against this facility."
	if loan.CollateralDescription != nil && *loan.CollateralDescription != "" {
		collateralClause = fmt.Sprintf("This facility is secured by the following collateral: %s.", *loan.CollateralDescription)
	}

	data := map[string]interface{}{
		"Reference":           loan.Reference,
		"ClientName":          clientName,
		"ClientNationalID":    clientNationalID,
		"ClientAddress":       clientAddress,
		"ProductName":         loan.Product.Name,
		"PrincipalAmount":     fmt.Sprintf("%.0f", loan.PrincipalAmount),
		"PrincipalWords":      NumberToWords(loan.PrincipalAmount),
		"InterestRate":        fmt.Sprintf("%.1f", loan.InterestRate),
		"InterestMethod":      loan.Product.InterestMethod,
		"TermMonths":          loan.TermMonths,
		"TotalInterest":       fmt.Sprintf("%.0f", loan.TotalInterest),
		"TotalRepayable":      fmt.Sprintf("%.0f", loan.TotalRepayable),
		"TotalRepayableWords": NumberToWords(loan.TotalRepayable),
		"InstallmentAmount":   fmt.Sprintf("%.0f", loan.InstallmentAmount),
		"InstallmentCount":    len(loan.Installments),
		"FirstDueDate":        firstDueDate,
		"LastDueDate":         lastDueDate,
		"GuarantorClause":     guarantorClause,
		"CollateralClause":    collateralClause,
		"Date":                formatDate(time.Now()),
	}

	return s.generatePDF("loan_agreement.html", data)
}

// generatePDF renders an HTML template and converts it with wkhtmltopdf
func (s *ReportService) generatePDF(templateName string, data interface{}) (*bytes.Buffer, error) {
	// Try path relative to project root (Prod)
	tmplPath := fmt.Sprintf("internal/services/templates/reports/%s", templateName)
	if _, err := os.Stat(tmplPath); os.IsNotExist(err) {
		// Try path relative to package (Test)
		tmplPath = fmt.Sprintf("templates/reports/%s", templateName)
	}

	tmpl, err := template.ParseFiles(tmplPath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s (path: %s): %w", templateName, tmplPath, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute template: %w", err)
	}

	pdfg, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return nil, fmt.Errorf("failed to create pdf generator: %w", err)
	}

	pdfg.Dpi.Set(300)
	pdfg.Orientation.Set(wkhtmltopdf.OrientationPortrait)
	pdfg.Grayscale.Set(false)

	page := wkhtmltopdf.NewPageReader(bytes.NewReader(buf.Bytes()))
	page.EnableLocalFileAccess.Set(true)
	pdfg.AddPage(page)

	if err := pdfg.Create(); err != nil {
		return nil, fmt.Errorf("failed to create pdf: %w", err)
	}

	return pdfg.Buffer(), nil
}
