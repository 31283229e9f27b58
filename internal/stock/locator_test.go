package stock

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nestorcanpac/pda-app/internal/sap"
)

type stubQueries struct {
	rows map[string][]map[string]any
	err  error

	gotNames  []string
	gotParams map[string]string
}

func (q *stubQueries) ExecuteQuery(_ context.Context, name string, params map[string]string) ([]map[string]any, error) {
	q.gotNames = append(q.gotNames, name)
	q.gotParams = params
	return q.rows[name], q.err
}

type stubFactors struct {
	mu      sync.Mutex
	factors map[string]decimal.Decimal
	errs    map[string]error
	calls   []string
}

func (f *stubFactors) PackageFactor(_ context.Context, itemCode string) (decimal.Decimal, bool, error) {
	f.mu.Lock()
	f.calls = append(f.calls, itemCode)
	f.mu.Unlock()
	if err := f.errs[itemCode]; err != nil {
		return decimal.Zero, false, err
	}
	factor, ok := f.factors[itemCode]
	return factor, ok, nil
}

type openGate struct{}

func (openGate) Valid() bool                  { return true }
func (openGate) Refresh(context.Context) bool { return true }

type closedGate struct{}

func (closedGate) Valid() bool                  { return false }
func (closedGate) Refresh(context.Context) bool { return false }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestByLotFound(t *testing.T) {
	queries := &stubQueries{rows: map[string][]map[string]any{sap.QueryLots: {
		{"ItemCode": "7001", "Lote": "L-240901", "Ubicacion": "01-A-01", "Almacen": "01",
			"Cantidad": float64(2380), "BinAbsEntry": float64(118), "Estado": float64(0)},
		{"ItemCode": "7003", "Lote": "L-240901", "Ubicacion": "01-B-04", "Almacen": "01",
			"Cantidad": float64(40), "BinAbsEntry": float64(131), "Estado": float64(2)},
	}}}
	factors := &stubFactors{factors: map[string]decimal.Decimal{
		"7001": decimal.NewFromInt(20),
	}}
	l := NewLocator(queries, factors, openGate{}, discard())

	res, err := l.ByLot(context.Background(), "  L-240901 ")
	require.NoError(t, err)
	assert.Equal(t, Found, res.Kind)
	assert.Equal(t, []string{sap.QueryLots}, queries.gotNames)
	assert.Equal(t, map[string]string{"lote": "L-240901"}, queries.gotParams)

	require.Len(t, res.Lots, 2)
	assert.Equal(t, "7001", res.Lots[0].ItemCode)
	assert.True(t, res.Lots[0].OnHand.Equal(decimal.NewFromInt(2380)))
	assert.Equal(t, 118, res.Lots[0].BinAbsEntry)
	assert.Equal(t, LotReleased, res.Lots[0].State)
	assert.Equal(t, LotBlocked, res.Lots[1].State)

	// El factor llega solo para los artículos que lo tienen.
	f, ok := res.Factor("7001")
	require.True(t, ok)
	assert.True(t, f.Equal(decimal.NewFromInt(20)))
	_, ok = res.Factor("7003")
	assert.False(t, ok)

	assert.ElementsMatch(t, []string{"7001", "7003"}, factors.calls)
}

func TestByBinUsesBinQuery(t *testing.T) {
	queries := &stubQueries{rows: map[string][]map[string]any{sap.QueryStockByBin: {
		{"ItemCode": "7001", "BatchNum": "L-1", "BinCode": "01-A-01", "WhsCode": "01",
			"OnHandQty": float64(10), "AbsEntry": float64(5)},
	}}}
	l := NewLocator(queries, &stubFactors{}, openGate{}, discard())

	res, err := l.ByBin(context.Background(), "01-A-01")
	require.NoError(t, err)
	assert.Equal(t, []string{sap.QueryStockByBin}, queries.gotNames)
	assert.Equal(t, map[string]string{"binCode": "01-A-01"}, queries.gotParams)
	require.Len(t, res.Lots, 1)
	// Alias de columna de la query de bin.
	assert.Equal(t, "L-1", res.Lots[0].LotNumber)
	assert.Equal(t, "01-A-01", res.Lots[0].BinCode)
	assert.Equal(t, 5, res.Lots[0].BinAbsEntry)
}

func TestNotFoundIsNotAnError(t *testing.T) {
	queries := &stubQueries{}
	l := NewLocator(queries, &stubFactors{}, openGate{}, discard())

	res, err := l.ByLot(context.Background(), "L-999")
	require.NoError(t, err)
	assert.Equal(t, NotFound, res.Kind)
	assert.Empty(t, res.Lots)
	// Se agotan las dos queries de lote antes de rendirse.
	assert.Equal(t, []string{sap.QueryLots, sap.QueryByLot}, queries.gotNames)
}

func TestByLotFallsBackToExactQuery(t *testing.T) {
	queries := &stubQueries{rows: map[string][]map[string]any{sap.QueryByLot: {
		{"ItemCode": "7001", "Lote": "L-240901", "Cantidad": float64(60)},
	}}}
	l := NewLocator(queries, &stubFactors{}, openGate{}, discard())

	res, err := l.ByLot(context.Background(), "L-240901")
	require.NoError(t, err)
	assert.Equal(t, Found, res.Kind)
	require.Len(t, res.Lots, 1)
	assert.Equal(t, []string{sap.QueryLots, sap.QueryByLot}, queries.gotNames)
}

func TestEmptyInputRejected(t *testing.T) {
	l := NewLocator(&stubQueries{}, &stubFactors{}, openGate{}, discard())

	_, err := l.ByLot(context.Background(), "   ")
	require.Error(t, err)
	assert.Equal(t, sap.KindValidation, sap.AsError(err).Kind)
}

func TestExpiredSessionRejected(t *testing.T) {
	l := NewLocator(&stubQueries{}, &stubFactors{}, closedGate{}, discard())

	_, err := l.ByLot(context.Background(), "L-1")
	require.Error(t, err)
	assert.Equal(t, sap.KindSession, sap.AsError(err).Kind)
}

func TestFactorFailureDegradesNotFails(t *testing.T) {
	queries := &stubQueries{rows: map[string][]map[string]any{sap.QueryLots: {
		{"ItemCode": "7001", "Lote": "L-1", "Cantidad": float64(10)},
		{"ItemCode": "7002", "Lote": "L-1", "Cantidad": float64(20)},
	}}}
	factors := &stubFactors{
		factors: map[string]decimal.Decimal{"7002": decimal.NewFromInt(12)},
		errs:    map[string]error{"7001": errors.New("timeout")},
	}
	l := NewLocator(queries, factors, openGate{}, discard())

	res, err := l.ByLot(context.Background(), "L-1")
	require.NoError(t, err)
	assert.Equal(t, Found, res.Kind)
	// El artículo cuyo factor falló simplemente no trae factor.
	_, ok := res.Factor("7001")
	assert.False(t, ok)
	f, ok := res.Factor("7002")
	require.True(t, ok)
	assert.True(t, f.Equal(decimal.NewFromInt(12)))
}

func TestQueryErrorPropagatesNormalized(t *testing.T) {
	queries := &stubQueries{err: sap.Network()}
	l := NewLocator(queries, &stubFactors{}, openGate{}, discard())

	_, err := l.ByLot(context.Background(), "L-1")
	require.Error(t, err)
	assert.Equal(t, sap.KindNetwork, sap.AsError(err).Kind)
}
