package export

import (
	"fmt"
	"io"

	"reservly/internal/models"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Reservations"

// WriteReservationsXLSX streams an XLSX workbook with one row per reservation
// to w. Rows are written in the order given; callers pass them sorted by date
// and start time.
func WriteReservationsXLSX(w io.Writer, store *models.Store, reservations []*models.Reservation) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	headers := []string{
		"ID", "Date", "Start", "End", "Status",
		"Customer", "Service", "Staff ID", "Event ID",
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, header)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, res := range reservations {
		row := i + 2
		values := []interface{}{
			res.ID,
			res.Date,
			res.StartTime,
			res.EndTime,
			res.Status,
			res.CustomerName,
			res.ServiceName,
			res.StaffID,
			res.EventID,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheetName, cell, v)
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 8)
	_ = f.SetColWidth(sheetName, "B", "E", 12)
	_ = f.SetColWidth(sheetName, "F", "G", 20)
	_ = f.SetColWidth(sheetName, "H", "I", 14)

	if store != nil {
		_ = f.SetDocProps(&excelize.DocProperties{Title: store.Name + " reservations"})
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
