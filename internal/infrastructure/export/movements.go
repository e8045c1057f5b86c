// Package export renders ledger listings as spreadsheets.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"pharmledger/internal/core/id"
	"pharmledger/internal/domain/inventory"
)

// ContentTypeXLSX is the MIME type of the generated workbooks.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const movementSheet = "Movements"

var movementHeadings = []any{
	"Date", "Product", "Batch", "From", "To", "Quantity", "Reason", "Remarks", "User", "Sale",
}

// WriteMovements writes movements as a single-sheet workbook to w.
// productNames maps product ids to display names; unknown ids are printed as ids.
func WriteMovements(w io.Writer, movements []inventory.Movement, productNames map[id.ID]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", movementSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(movementSheet, "A1", &movementHeadings); err != nil {
		return fmt.Errorf("write headings: %w", err)
	}

	for i := range movements {
		m := &movements[i]
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			m.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			productName(productNames, m.ProductID),
			optionalID(m.BatchID),
			string(m.FromLocation),
			string(m.ToLocation),
			m.Quantity,
			string(m.Reason),
			m.Remarks,
			m.UserID,
			optionalID(m.SaleID),
		}
		if err := f.SetSheetRow(movementSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(movementSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func productName(names map[id.ID]string, productID id.ID) string {
	if n, ok := names[productID]; ok {
		return n
	}
	return productID.String()
}

func optionalID(v *id.ID) string {
	if v == nil {
		return ""
	}
	return v.String()
}
