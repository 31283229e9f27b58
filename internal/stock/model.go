package stock

import (
	"github.com/shopspring/decimal"

	"github.com/Nestorcanpac/pda-app/internal/sap"
)

// LotState lo fija el servicio de inventario; el cliente solo lo lee.
type LotState int

const (
	LotReleased LotState = 0
	LotDenied   LotState = 1
	LotBlocked  LotState = 2
)

// Restricted indica si el estado impide mover el lote a almacenes
// restringidos (producción / nave de consumo).
func (s LotState) Restricted() bool {
	return s == LotDenied || s == LotBlocked
}

func (s LotState) String() string {
	switch s {
	case LotDenied:
		return "denegado"
	case LotBlocked:
		return "bloqueado"
	default:
		return "liberado"
	}
}

// Lot es una instantánea inmutable de stock de un artículo en un bin.
// Se sustituye re-consultando tras un traslado, nunca se muta.
type Lot struct {
	ItemCode    string          `json:"itemCode"`
	LotNumber   string          `json:"lotNumber"`
	BinCode     string          `json:"binCode"`
	Warehouse   string          `json:"warehouse"`
	BinAbsEntry int             `json:"binAbsEntry"`
	OnHand      decimal.Decimal `json:"onHand"`
	State       LotState        `json:"state"`
}

// ResultKind distingue explícitamente "sin buscar", "sin resultados" y
// "con resultados": nada de codificarlo en nil/false/slice vacío.
type ResultKind int

const (
	NotSearched ResultKind = iota
	NotFound
	Found
)

func (k ResultKind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Found:
		return "found"
	default:
		return "not_searched"
	}
}

// Result es el resultado de una búsqueda de lote o bin, con el factor de
// caja por artículo ya resuelto (los artículos sin factor no aparecen en
// Factors: para ellos solo está disponible el modo palet).
type Result struct {
	Kind    ResultKind
	Lots    []Lot
	Factors map[string]decimal.Decimal
}

// Factor devuelve las unidades por caja de un artículo del resultado.
func (r Result) Factor(itemCode string) (decimal.Decimal, bool) {
	f, ok := r.Factors[itemCode]
	return f, ok
}

// lotFromRow mapea una fila de query a Lot. Acepta los alias de columna
// que usan las distintas queries del Service Layer.
func lotFromRow(row map[string]any) Lot {
	lot := Lot{
		ItemCode:  stringField(row, "ItemCode"),
		LotNumber: stringField(row, "Lote", "BatchNum", "DistNumber"),
		BinCode:   stringField(row, "Ubicacion", "BinCode"),
		Warehouse: stringField(row, "Almacen", "WhsCode"),
	}
	if qty, ok := sap.DecimalField(row, "Cantidad"); ok {
		lot.OnHand = qty
	} else if qty, ok := sap.DecimalField(row, "OnHandQty"); ok {
		lot.OnHand = qty
	}
	if abs, ok := sap.DecimalField(row, "BinAbsEntry"); ok {
		lot.BinAbsEntry = int(abs.IntPart())
	} else if abs, ok := sap.DecimalField(row, "AbsEntry"); ok {
		lot.BinAbsEntry = int(abs.IntPart())
	}
	if st, ok := sap.DecimalField(row, "Estado"); ok {
		lot.State = LotState(st.IntPart())
	}
	return lot
}

func stringField(row map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := row[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
