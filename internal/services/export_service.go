package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/kopesha/kopesha-api/internal/models"
	"github.com/kopesha/kopesha-api/internal/repository"
	"github.com/xuri/excelize/v2"
)

// ExportService turns analytics snapshots and the loan book into downloadable
// files
type ExportService struct {
	analyticsSvc *AnalyticsService
	loanRepo     repository.LoanRepository
}

func NewExportService(analyticsSvc *AnalyticsService, loanRepo repository.LoanRepository) *ExportService {
	return &ExportService{analyticsSvc: analyticsSvc, loanRepo: loanRepo}
}

func (s *ExportService) ExportCSV(ctx context.Context, overview *models.PortfolioOverview) ([]byte, string, error) {
	buf := new(bytes.Buffer)
	writer := csv.NewWriter(buf)

	// Header
	_ = writer.Write([]string{"Portfolio Report", time.Now().Format("2006-01-02 15:04")})
	_ = writer.Write([]string{""})

	// Overview Section
	_ = writer.Write([]string{"Overview"})
	_ = writer.Write([]string{"Metric", "Value"})
	_ = writer.Write([]string{"Total Disbursed", fmt.Sprintf("%.0f", overview.TotalDisbursed)})
	_ = writer.Write([]string{"Total Outstanding", fmt.Sprintf("%.0f", overview.TotalOutstanding)})
	_ = writer.Write([]string{"Total Collected", fmt.Sprintf("%.0f", overview.TotalCollected)})
	_ = writer.Write([]string{"Active Loans", fmt.Sprintf("%d", overview.ActiveLoans)})
	_ = writer.Write([]string{"Loans In Arrears", fmt.Sprintf("%d", overview.LoansInArrears)})
	_ = writer.Write([]string{"Portfolio At Risk", fmt.Sprintf("%.1f%%", overview.PortfolioAtRisk)})
	_ = writer.Write([]string{"Collection Rate", fmt.Sprintf("%.1f%%", overview.CollectionRate)})
	_ = writer.Write([]string{""})

	// Status Section
	_ = writer.Write([]string{"Loans By Status"})
	_ = writer.Write([]string{"Status", "Count"})
	for _, sc := range overview.StatusDistribution {
		_ = writer.Write([]string{sc.Status, fmt.Sprintf("%d", sc.Count)})
	}

	writer.Flush()

	filename := fmt.Sprintf("portfolio_report_%s.csv", time.Now().Format("2006-01-02"))
	return buf.Bytes(), filename, nil
}

func (s *ExportService) ExportXLSX(ctx context.Context, overview *models.PortfolioOverview) ([]byte, string, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Portfolio"
	_ = f.SetSheetName("Sheet1", sheet)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 14},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})

	_ = f.SetCellValue(sheet, "A1", "Portfolio Report")
	_ = f.SetCellStyle(sheet, "A1", "A1", headerStyle)

	_ = f.SetCellValue(sheet, "A3", "Overview")
	_ = f.SetCellValue(sheet, "A4", "Metric")
	_ = f.SetCellValue(sheet, "B4", "Value")

	_ = f.SetCellValue(sheet, "A5", "Total Disbursed")
	_ = f.SetCellValue(sheet, "B5", overview.TotalDisbursed)
	_ = f.SetCellValue(sheet, "A6", "Total Outstanding")
	_ = f.SetCellValue(sheet, "B6", overview.TotalOutstanding)
	_ = f.SetCellValue(sheet, "A7", "Total Collected")
	_ = f.SetCellValue(sheet, "B7", overview.TotalCollected)
	_ = f.SetCellValue(sheet, "A8", "Active Loans")
	_ = f.SetCellValue(sheet, "B8", overview.ActiveLoans)
	_ = f.SetCellValue(sheet, "A9", "Loans In Arrears")
	_ = f.SetCellValue(sheet, "B9", overview.LoansInArrears)
	_ = f.SetCellValue(sheet, "A10", "Portfolio At Risk")
	_ = f.SetCellValue(sheet, "B10", fmt.Sprintf("%.1f%%", overview.PortfolioAtRisk))
	_ = f.SetCellValue(sheet, "A11", "Collection Rate")
	_ = f.SetCellValue(sheet, "B11", fmt.Sprintf("%.1f%%", overview.CollectionRate))

	row := 13
	_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), "Loans By Status")
	row++
	_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), "Status")
	_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), "Count")
	for _, sc := range overview.StatusDistribution {
		row++
		_ = f.SetCellValue(sheet, fmt.Sprintf("A%d", row), sc.Status)
		_ = f.SetCellValue(sheet, fmt.Sprintf("B%d", row), sc.Count)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("portfolio_report_%s.xlsx", time.Now().Format("2006-01-02"))
	return buf.Bytes(), filename, nil
}

func (s *ExportService) ExportPDF(ctx context.Context, overview *models.PortfolioOverview) ([]byte, string, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(40, 10, "Portfolio Report")
	pdf.Ln(12)

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(40, 10, "Overview")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	pdf.Cell(60, 10, "Total Disbursed:")
	pdf.Cell(40, 10, fmt.Sprintf("KES %.0f", overview.TotalDisbursed))
	pdf.Ln(6)

	pdf.Cell(60, 10, "Total Outstanding:")
	pdf.Cell(40, 10, fmt.Sprintf("KES %.0f", overview.TotalOutstanding))
	pdf.Ln(6)

	pdf.Cell(60, 10, "Total Collected:")
	pdf.Cell(40, 10, fmt.Sprintf("KES %.0f", overview.TotalCollected))
	pdf.Ln(6)

	pdf.Cell(60, 10, "Active Loans:")
	pdf.Cell(40, 10, fmt.Sprintf("%d", overview.ActiveLoans))
	pdf.Ln(6)

	pdf.Cell(60, 10, "Loans In Arrears:")
	pdf.Cell(40, 10, fmt.Sprintf("%d", overview.LoansInArrears))
	pdf.Ln(6)

	pdf.Cell(60, 10, "Portfolio At Risk:")
	pdf.Cell(40, 10, fmt.Sprintf("%.1f%%", overview.PortfolioAtRisk))
	pdf.Ln(6)

	pdf.Cell(60, 10, "Collection Rate:")
	pdf.Cell(40, 10, fmt.Sprintf("%.1f%%", overview.CollectionRate))
	pdf.Ln(12)

	pdf.SetFont("Arial", "B", 12)
	pdf.Cell(40, 10, "Loans By Status")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	for _, sc := range overview.StatusDistribution {
		pdf.Cell(60, 10, sc.Status+":")
		pdf.Cell(40, 10, fmt.Sprintf("%d", sc.Count))
		pdf.Ln(6)
	}

	buf := new(bytes.Buffer)
	err := pdf.Output(buf)
	if err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("portfolio_report_%s.pdf", time.Now().Format("2006-01-02"))
	return buf.Bytes(), filename, nil
}

// ExportPortfolioXLSX dumps the full loan book, one row per loan
func (s *ExportService) ExportPortfolioXLSX(ctx context.Context) ([]byte, string, error) {
	query := &repository.LoanQuery{ListQuery: repository.NewListQuery()}
	query.PerPage = 0

	loans, _, err := s.loanRepo.List(ctx, query)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Loan Book"
	_ = f.SetSheetName("Sheet1", sheet)

	headers := []string{"Reference", "Client", "Product", "Principal", "Rate %", "Term", "Status",
		"Risk", "Total Repayable", "Paid", "Outstanding", "Days In Arrears", "Applied", "Disbursed"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	_ = f.SetCellStyle(sheet, "A1", "N1", headerStyle)

	for i, loan := range loans {
		row := i + 2
		clientName := ""
		if loan.Client.ID != 0 {
			clientName = loan.Client.FullName
		}
		productName := ""
		if loan.Product.ID != 0 {
			productName = loan.Product.Name
		}
		disbursed := ""
		if loan.DisbursedAt != nil {
			disbursed = loan.DisbursedAt.Format("2006-01-02")
		}

		values := []interface{}{
			loan.Reference, clientName, productName, loan.PrincipalAmount, loan.InterestRate,
			loan.TermMonths, loan.Status, loan.RiskLevel, loan.TotalRepayable, loan.PaidAmount,
			loan.OutstandingBalance, loan.DaysInArrears, loan.ApplicationDate.Format("2006-01-02"), disbursed,
		}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("loan_book_%s.xlsx", time.Now().Format("2006-01-02"))
	return buf.Bytes(), filename, nil
}
