package stock

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/Nestorcanpac/pda-app/internal/infra/metrics"
	"github.com/Nestorcanpac/pda-app/internal/sap"
	"github.com/Nestorcanpac/pda-app/internal/session"
)

// QueryExecutor ejecuta una query con nombre contra el inventario.
type QueryExecutor interface {
	ExecuteQuery(ctx context.Context, name string, params map[string]string) ([]map[string]any, error)
}

// FactorSource resuelve las unidades por caja de un artículo.
// ok=false significa "sin factor", que no es un error.
type FactorSource interface {
	PackageFactor(ctx context.Context, itemCode string) (decimal.Decimal, bool, error)
}

// Locator resuelve un número de lote o un código de bin en los registros de
// stock actuales, enriquecidos con el factor de caja de cada artículo.
type Locator struct {
	queries QueryExecutor
	factors FactorSource
	gate    session.Gate
	log     *slog.Logger
}

func NewLocator(queries QueryExecutor, factors FactorSource, gate session.Gate, log *slog.Logger) *Locator {
	return &Locator{queries: queries, factors: factors, gate: gate, log: log}
}

// ByLot busca todos los registros de stock de un número de lote. Si la
// query de listado no devuelve nada se intenta la query de lote exacto,
// que cubre lotes sin stock en ubicaciones de picking.
func (l *Locator) ByLot(ctx context.Context, lotNumber string) (Result, error) {
	res, err := l.locate(ctx, sap.QueryLots, "lote", lotNumber)
	if err != nil || res.Kind != NotFound {
		return res, err
	}
	return l.locate(ctx, sap.QueryByLot, "lote", lotNumber)
}

// ByBin busca todos los registros de stock de un código de ubicación.
func (l *Locator) ByBin(ctx context.Context, binCode string) (Result, error) {
	return l.locate(ctx, sap.QueryStockByBin, "binCode", binCode)
}

func (l *Locator) locate(ctx context.Context, query, param, value string) (Result, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return Result{}, sap.Validation("No se ha especificado un código")
	}

	if !l.gate.Valid() && !l.gate.Refresh(ctx) {
		metrics.LotLookupsTotal.WithLabelValues("error").Inc()
		return Result{}, sap.SessionExpired()
	}

	rows, err := l.queries.ExecuteQuery(ctx, query, map[string]string{param: value})
	if err != nil {
		metrics.LotLookupsTotal.WithLabelValues("error").Inc()
		return Result{}, sap.AsError(err)
	}
	if len(rows) == 0 {
		metrics.LotLookupsTotal.WithLabelValues("not_found").Inc()
		return Result{Kind: NotFound}, nil
	}

	lots := make([]Lot, 0, len(rows))
	for _, row := range rows {
		lots = append(lots, lotFromRow(row))
	}

	metrics.LotLookupsTotal.WithLabelValues("found").Inc()
	return Result{Kind: Found, Lots: lots, Factors: l.fetchFactors(ctx, lots)}, nil
}

// fetchFactors resuelve en paralelo el factor de caja de cada artículo
// distinto del resultado. Un fallo individual se registra y se descarta:
// sin factor se degrada el modo cajas, nunca la búsqueda entera. No se
// devuelve nada hasta que terminan todas las peticiones.
func (l *Locator) fetchFactors(ctx context.Context, lots []Lot) map[string]decimal.Decimal {
	distinct := make(map[string]struct{})
	for _, lot := range lots {
		if lot.ItemCode != "" {
			distinct[lot.ItemCode] = struct{}{}
		}
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		factors = make(map[string]decimal.Decimal, len(distinct))
	)
	for itemCode := range distinct {
		wg.Add(1)
		go func(itemCode string) {
			defer wg.Done()
			factor, ok, err := l.factors.PackageFactor(ctx, itemCode)
			if err != nil {
				l.log.Warn("package factor lookup failed", "item", itemCode, "err", err)
				return
			}
			if !ok {
				return
			}
			mu.Lock()
			factors[itemCode] = factor
			mu.Unlock()
		}(itemCode)
	}
	wg.Wait()
	return factors
}
