package transfer

import (
	"context"

	"github.com/Nestorcanpac/pda-app/internal/sap"
	"github.com/Nestorcanpac/pda-app/internal/stock"
)

// ResolvedBin es la ubicación destino ya resuelta por el inventario:
// la referencia interna (AbsEntry) es la que se usa para direccionar el
// traslado.
type ResolvedBin struct {
	BinCode   string `json:"binCode"`
	AbsEntry  int    `json:"absEntry"`
	Warehouse string `json:"warehouse"`
}

// BinResolver resuelve un código de ubicación. nil sin error significa
// "no encontrada".
type BinResolver interface {
	ResolveBin(ctx context.Context, code string) (*ResolvedBin, error)
}

// QueryBinResolver resuelve ubicaciones con la query pda_codigoUbi.
type QueryBinResolver struct {
	queries stock.QueryExecutor
}

func NewQueryBinResolver(queries stock.QueryExecutor) *QueryBinResolver {
	return &QueryBinResolver{queries: queries}
}

func (r *QueryBinResolver) ResolveBin(ctx context.Context, code string) (*ResolvedBin, error) {
	rows, err := r.queries.ExecuteQuery(ctx, sap.QueryBinCode, map[string]string{"binCode": code})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[0]
	bin := &ResolvedBin{}
	if v, ok := row["BinCode"].(string); ok {
		bin.BinCode = v
	}
	if v, ok := row["WhsCode"].(string); ok {
		bin.Warehouse = v
	}
	if abs, ok := sap.DecimalField(row, "AbsEntry"); ok {
		bin.AbsEntry = int(abs.IntPart())
	}
	return bin, nil
}
