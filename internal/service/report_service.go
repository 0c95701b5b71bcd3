package service

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"github.com/yourusername/identity-api/internal/domain/repository"
)

// ReportService exports the link inventory for administrators.
type ReportService struct {
	linkRepo repository.LinkRepository
	userRepo repository.UserRepository
}

func NewReportService(linkRepo repository.LinkRepository, userRepo repository.UserRepository) (*ReportService, error) {
	if linkRepo == nil {
		return nil, fmt.Errorf("link repository is required")
	}
	if userRepo == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	return &ReportService{linkRepo: linkRepo, userRepo: userRepo}, nil
}

// WriteLinksXLSX writes every federated link to w as an Excel workbook.
// Uses StreamWriter so large inventories do not buffer in memory.
func (s *ReportService) WriteLinksXLSX(w io.Writer) error {
	links, err := s.linkRepo.ListAll()
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Links"
	f.SetSheetName("Sheet1", sheetName)

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create stream writer: %w", err)
	}

	headers := []interface{}{"Account ID", "Account Email", "Provider", "Provider Subject", "Provider Email", "Display Name", "Email Verified", "Connected At"}
	if err := sw.SetRow("A1", headers); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	for i, link := range links {
		accountEmail := ""
		if user, userErr := s.userRepo.GetByID(link.UserID); userErr == nil {
			accountEmail = user.Email
		}

		verified := "no"
		if link.EmailVerified {
			verified = "yes"
		}

		row := []interface{}{
			link.UserID,
			sanitizeForExcel(accountEmail),
			link.Provider,
			sanitizeForExcel(link.ProviderSub),
			sanitizeForExcel(link.ProviderEmail),
			sanitizeForExcel(link.DisplayName),
			verified,
			link.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		if err := sw.SetRow(fmt.Sprintf("A%d", i+2), row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush stream writer: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// sanitizeForExcel escapes values so they cannot start a formula in
// Excel/LibreOffice.
func sanitizeForExcel(s string) string {
	if len(s) == 0 {
		return s
	}
	if s[0] == '=' || s[0] == '+' || s[0] == '-' || s[0] == '@' || s[0] == '\t' || s[0] == '\r' {
		return "'" + s
	}
	return s
}
