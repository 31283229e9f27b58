package transfer

import "github.com/shopspring/decimal"

// Marcadores de acción de bin del documento StockTransfers.
const (
	binActionOut = "batFromWarehouse"
	binActionIn  = "batToWarehouse"
)

// Command es el payload resuelto y validado que se entrega al Service
// Layer. Solo se construye desde un intento en estado Ready; nunca a
// medias.
type Command struct {
	FromWarehouse      string `json:"FromWarehouse"`
	ToWarehouse        string `json:"ToWarehouse"`
	Comments           string `json:"Comments,omitempty"`
	StockTransferLines []Line `json:"StockTransferLines"`
}

type Line struct {
	ItemCode       string            `json:"ItemCode"`
	Quantity       float64           `json:"Quantity"`
	WarehouseCode  string            `json:"WarehouseCode"`
	BatchNumbers   []BatchAllocation `json:"BatchNumbers"`
	BinAllocations []BinAllocation   `json:"StockTransferLinesBinAllocations"`
}

type BatchAllocation struct {
	BatchNumber string  `json:"BatchNumber"`
	Quantity    float64 `json:"Quantity"`
}

type BinAllocation struct {
	BinAbsEntry    int     `json:"BinAbsEntry"`
	Quantity       float64 `json:"Quantity"`
	BinActionType  string  `json:"BinActionType"`
	BaseLineNumber int     `json:"BaseLineNumber"`
}

func newCommand(it *intent, operator string) Command {
	qty, _ := it.qty.Float64()
	return Command{
		FromWarehouse: it.lot.Warehouse,
		ToWarehouse:   it.dest.Warehouse,
		Comments:      operator,
		StockTransferLines: []Line{{
			ItemCode:      it.lot.ItemCode,
			Quantity:      qty,
			WarehouseCode: it.dest.Warehouse,
			BatchNumbers: []BatchAllocation{{
				BatchNumber: it.lot.LotNumber,
				Quantity:    qty,
			}},
			BinAllocations: []BinAllocation{
				{BinAbsEntry: it.lot.BinAbsEntry, Quantity: qty, BinActionType: binActionOut, BaseLineNumber: 0},
				{BinAbsEntry: it.dest.AbsEntry, Quantity: qty, BinActionType: binActionIn, BaseLineNumber: 0},
			},
		}},
	}
}

// Quantity expone la cantidad total del comando (para tests y métricas).
func (c Command) Quantity() decimal.Decimal {
	if len(c.StockTransferLines) == 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(c.StockTransferLines[0].Quantity)
}
