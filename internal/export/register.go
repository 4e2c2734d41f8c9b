// Package export renders the document register as an XLSX workbook.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/qmdoc/doccontrol/internal/document"
	"github.com/qmdoc/doccontrol/internal/policy"
)

// SheetName is the register worksheet.
const SheetName = "Register"

var header = []interface{}{"ID", "Title", "Type", "Status", "Version", "Owner", "Updated", "Next review", "Expired"}

// WriteRegister writes one row per summary. types supplies the type labels
// and may be nil.
func WriteRegister(w io.Writer, rows []document.Summary, types *policy.TypeRegistry, now time.Time) error {
	if types == nil {
		types = policy.DefaultTypes()
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(SheetName, "A1", last, bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, s := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		next := ""
		expired := "no"
		if s.NextReviewAt != nil {
			next = s.NextReviewAt.UTC().Format("2006-01-02")
			doc := document.Document{Status: s.Status, NextReviewAt: s.NextReviewAt}
			if doc.Status == document.StatusPublished && doc.IsExpired(now) {
				expired = "yes"
			}
		}
		row := []interface{}{
			s.ID,
			s.Title,
			types.Get(s.Type).Label,
			string(s.Status),
			s.Version,
			s.OwnerID,
			s.UpdatedAt.UTC().Format("2006-01-02 15:04"),
			next,
			expired,
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write row for %s: %w", s.ID, err)
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 14)
	_ = f.SetColWidth(SheetName, "B", "B", 48)
	_ = f.SetColWidth(SheetName, "C", "I", 16)
	if len(rows) > 0 {
		if err := f.AutoFilter(SheetName, "A1:"+last, nil); err != nil {
			return fmt.Errorf("failed to add filter: %w", err)
		}
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
