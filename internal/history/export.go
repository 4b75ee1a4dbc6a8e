package history

import (
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"pubdetect/internal/models"
)

const sheetName = "Predictions"

var exportHeaders = []string{"ID", "Label", "Confidence (%)", "Image", "Timestamp", "User"}

// ExportXLSX writes records, in the given order, as a spreadsheet.
func ExportXLSX(w io.Writer, records []models.Prediction) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return err
		}
	}

	for r, rec := range records {
		row := []any{nil, string(rec.Label), rec.Confidence, rec.ImagePath, nil, string(rec.UserID)}
		if rec.ID != nil {
			row[0] = *rec.ID
		}
		if rec.Timestamp != nil {
			row[4] = rec.Timestamp.UTC().Format(time.RFC3339)
		}
		for c, v := range row {
			if v == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return err
			}
		}
	}

	if err := f.SetColWidth(sheetName, "D", "E", 28); err != nil {
		return err
	}

	_, err := f.WriteTo(w)
	return err
}
