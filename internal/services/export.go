package services

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"devicegate/internal/models"
)

const exportSheet = "Auth Logs"

// BuildAuthLogWorkbook renders auth log entries into an xlsx workbook:
// a header row followed by one row per entry, oldest first.
func BuildAuthLogWorkbook(entries []*models.AuthLogEntry) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to drop default sheet: %w", err)
	}

	header := []any{"User ID", "Message", "Timestamp", "Device ID", "Success", "IP"}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}

	for i, entry := range entries {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{
			entry.UserID,
			entry.Message,
			formatTimestamp(entry.Timestamp),
			entry.DeviceID,
			entry.Success,
			entry.IP,
		}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize workbook: %w", err)
	}
	return buf, nil
}

// formatTimestamp renders a stored unix-seconds string as UTC time, falling
// back to the raw value if it does not parse.
func formatTimestamp(ts string) string {
	i, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ts
	}
	return time.Unix(i, 0).UTC().Format("2006-01-02 15:04:05 MST")
}
