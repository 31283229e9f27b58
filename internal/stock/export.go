package stock

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// ExportWorkbook genera un .xlsx con las filas de una consulta de stock,
// para descargar desde la pantalla "Stock por Bin".
func ExportWorkbook(searched string, lots []Lot) (*excelize.File, error) {
	f := excelize.NewFile()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())

	header := []interface{}{
		"BinCode",
		"ItemCode",
		"Lote",
		"Almacen",
		"Cantidad",
		"Estado",
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("export header: %w", err)
	}

	row := 2
	for _, lot := range lots {
		qty, _ := lot.OnHand.Float64()
		excelRow := []interface{}{
			lot.BinCode,
			lot.ItemCode,
			lot.LotNumber,
			lot.Warehouse,
			qty,
			lot.State.String(),
		}
		cell := fmt.Sprintf("A%d", row)
		if err := f.SetSheetRow(sheet, cell, &excelRow); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("export row %d: %w", row, err)
		}
		row++
	}

	// Nombre de hoja con el código buscado, para distinguir descargas.
	if searched != "" {
		_ = f.SetSheetName(sheet, clampSheetName(searched))
	}
	return f, nil
}

// Excel limita el nombre de hoja a 31 caracteres.
func clampSheetName(name string) string {
	if len(name) > 31 {
		return name[:31]
	}
	return name
}
