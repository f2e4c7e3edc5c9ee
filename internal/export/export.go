package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"rezerva/internal/domain"
	"rezerva/internal/models"

	"github.com/xuri/excelize/v2"
)

const (
	attemptsSheet = "Attempts"
	parkedSheet   = "Parked Jobs"
)

// Exporter writes the delivery audit trail and the parked-job backlog to
// an xlsx workbook for operational review.
type Exporter struct {
	jobs       domain.JobRepository
	attempts   domain.AttemptRepository
	exportPath string
}

func NewExporter(jobs domain.JobRepository, attempts domain.AttemptRepository, exportPath string) *Exporter {
	return &Exporter{jobs: jobs, attempts: attempts, exportPath: exportPath}
}

// ExportAudit writes one workbook with an attempts sheet and a parked
// jobs sheet, returning the file path.
func (e *Exporter) ExportAudit(ctx context.Context) (string, error) {
	if err := os.MkdirAll(e.exportPath, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	attempts, err := e.attempts.GetAllAttempts(ctx)
	if err != nil {
		return "", fmt.Errorf("error getting delivery attempts: %w", err)
	}
	parked, err := e.jobs.GetFailedDeliveryJobs(ctx)
	if err != nil {
		return "", fmt.Errorf("error getting parked jobs: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := writeAttemptsSheet(f, attempts); err != nil {
		return "", err
	}
	if err := writeParkedSheet(f, parked); err != nil {
		return "", err
	}
	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("delivery_audit_%s.xlsx", time.Now().Format("2006-01-02_150405"))
	fullPath := filepath.Join(e.exportPath, fileName)
	if err := f.SaveAs(fullPath); err != nil {
		return "", fmt.Errorf("error saving export file: %w", err)
	}
	return fullPath, nil
}

func writeAttemptsSheet(f *excelize.File, attempts []models.DeliveryAttempt) error {
	index, err := f.NewSheet(attemptsSheet)
	if err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headers := []string{"ID", "Transaction", "Reservation", "Channel", "Recipient", "Status", "Message", "Provider Message ID", "Recorded At"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(attemptsSheet, cell, h)
	}

	for row, a := range attempts {
		providerID := ""
		if a.ProviderMessageID != nil {
			providerID = *a.ProviderMessageID
		}
		values := []interface{}{
			a.ID, a.TransactionID, a.ReservationNumber, a.Channel, a.Recipient,
			a.Status, a.Message, providerID, a.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(attemptsSheet, cell, v)
		}
	}

	style, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	_ = f.SetCellStyle(attemptsSheet, "A1", "I1", style)
	_ = f.SetColWidth(attemptsSheet, "A", "I", 22)
	return nil
}

func writeParkedSheet(f *excelize.File, jobs []models.DeliveryJob) error {
	if _, err := f.NewSheet(parkedSheet); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}

	headers := []string{"ID", "Transaction", "Reservation", "Booking", "Attempts", "Last Error", "Created At"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(parkedSheet, cell, h)
	}

	for row, j := range jobs {
		lastErr := ""
		if j.LastError != nil {
			lastErr = *j.LastError
		}
		values := []interface{}{
			j.ID, j.TransactionID, j.ReservationNumber, j.BookingID,
			j.AttemptCount, lastErr, j.CreatedAt.Format("2006-01-02 15:04:05"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(parkedSheet, cell, v)
		}
	}

	style, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	_ = f.SetCellStyle(parkedSheet, "A1", "G1", style)
	_ = f.SetColWidth(parkedSheet, "A", "G", 22)
	return nil
}
