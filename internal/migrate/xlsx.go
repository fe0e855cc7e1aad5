package migrate

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/fieldwork/tasksync/internal/schema"
)

// SheetName is the worksheet WriteXLSX fills.
const SheetName = "Tasks"

var xlsxHeaders = []string{
	"ID", "Title", "Description", "Assigned To", "Assigned Date", "Due Date",
	"Status", "Completed", "Created At", "Updated At", "Created By",
}

// WriteXLSX writes tasks as one worksheet with a header row.
func WriteXLSX(w io.Writer, tasks []schema.Task) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	dateFormat := "yyyy-mm-dd hh:mm"
	dateStyle, err := f.NewStyle(&excelize.Style{CustomNumFmt: &dateFormat})
	if err != nil {
		return fmt.Errorf("failed to create date style: %w", err)
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("failed to create stream writer: %w", err)
	}
	if err := sw.SetColWidth(2, 3, 40); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}

	header := make([]interface{}, len(xlsxHeaders))
	for i, h := range xlsxHeaders {
		header[i] = excelize.Cell{Value: h, StyleID: headerStyle}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, t := range tasks {
		var due interface{}
		if t.DueDate != nil {
			due = excelize.Cell{Value: t.DueDate.UTC(), StyleID: dateStyle}
		}
		row := []interface{}{
			t.ID,
			t.Title,
			t.Description,
			t.AssignedTo,
			excelize.Cell{Value: t.AssignedDate.UTC(), StyleID: dateStyle},
			due,
			string(t.Status),
			t.Completed,
			excelize.Cell{Value: t.CreatedAt.UTC(), StyleID: dateStyle},
			excelize.Cell{Value: t.UpdatedAt.UTC(), StyleID: dateStyle},
			t.CreatedBy,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("failed to write task %s: %w", t.ID, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
