package transfer

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nestorcanpac/pda-app/internal/sap"
	"github.com/Nestorcanpac/pda-app/internal/stock"
)

type stubGate struct {
	valid     bool
	refreshes bool
}

func (g *stubGate) Valid() bool                   { return g.valid }
func (g *stubGate) Refresh(_ context.Context) bool { return g.refreshes }

type stubResolver struct {
	bins map[string]*ResolvedBin
	err  error
}

func (r *stubResolver) ResolveBin(_ context.Context, code string) (*ResolvedBin, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.bins[code], nil
}

type stubSubmitter struct {
	err  error
	last Command
	ack  map[string]any
}

func (s *stubSubmitter) Submit(_ context.Context, cmd Command) (map[string]any, error) {
	s.last = cmd
	if s.err != nil {
		return nil, s.err
	}
	if s.ack == nil {
		s.ack = map[string]any{"DocEntry": float64(421)}
	}
	return s.ack, nil
}

func testLot(state stock.LotState) stock.Lot {
	return stock.Lot{
		ItemCode:    "7001",
		LotNumber:   "L-240901",
		BinCode:     "01-A-01",
		Warehouse:   "01",
		BinAbsEntry: 118,
		OnHand:      decimal.NewFromInt(2380),
		State:       state,
	}
}

func testBuilder(resolver *stubResolver, submitter *stubSubmitter, opts ...BuilderOption) *Builder {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewBuilder(resolver, submitter, &stubGate{valid: true}, log, opts...)
}

func defaultResolver() *stubResolver {
	return &stubResolver{bins: map[string]*ResolvedBin{
		"02-B-01": {BinCode: "02-B-01", AbsEntry: 240, Warehouse: "02"},
		"18-X-01": {BinCode: "18-X-01", AbsEntry: 310, Warehouse: "18"},
		"01-A-01": {BinCode: "01-A-01", AbsEntry: 118, Warehouse: "01"},
	}}
}

func TestCasesFlowSucceeds(t *testing.T) {
	submitter := &stubSubmitter{}
	b := testBuilder(defaultResolver(), submitter)
	ctx := context.Background()

	snap := b.Begin(testLot(stock.LotReleased), decimal.NewFromInt(20), true)
	assert.Equal(t, StateModeUnselected, snap.State)
	assert.EqualValues(t, 119, snap.MaxCases)

	snap, err := b.SetMode(snap.ID, ModeCases)
	require.NoError(t, err)
	assert.Equal(t, StateQuantityEntry, snap.State)

	snap, err = b.SetCases(snap.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, StateDestinationEntry, snap.State)
	assert.True(t, snap.Quantity.Equal(decimal.NewFromInt(2000)))

	snap, err = b.SetDestinationText(snap.ID, "02-B-01")
	require.NoError(t, err)

	snap, err = b.ConfirmDestination(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, StateReady, snap.State)
	require.NotNil(t, snap.Destination)
	assert.Equal(t, "02", snap.Destination.Warehouse)

	snap, err = b.Submit(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, snap.State)
	assert.True(t, snap.Requery)
	assert.Equal(t, map[string]any{"DocEntry": float64(421)}, snap.Ack)

	// El comando que llegó al inventario.
	cmd := submitter.last
	assert.Equal(t, "01", cmd.FromWarehouse)
	assert.Equal(t, "02", cmd.ToWarehouse)
	require.Len(t, cmd.StockTransferLines, 1)
	line := cmd.StockTransferLines[0]
	assert.Equal(t, "7001", line.ItemCode)
	assert.Equal(t, float64(2000), line.Quantity)
	require.Len(t, line.BatchNumbers, 1)
	assert.Equal(t, "L-240901", line.BatchNumbers[0].BatchNumber)
	require.Len(t, line.BinAllocations, 2)
	assert.Equal(t, 118, line.BinAllocations[0].BinAbsEntry)
	assert.Equal(t, binActionOut, line.BinAllocations[0].BinActionType)
	assert.Equal(t, 240, line.BinAllocations[1].BinAbsEntry)
	assert.Equal(t, binActionIn, line.BinAllocations[1].BinActionType)

	// El intento se consume: ya no se puede consultar ni reenviar.
	_, err = b.Get(snap.ID)
	assert.Error(t, err)
}

func TestCasesOverStockRejected(t *testing.T) {
	b := testBuilder(defaultResolver(), &stubSubmitter{})

	snap := b.Begin(testLot(stock.LotReleased), decimal.NewFromInt(20), true)
	snap, err := b.SetMode(snap.ID, ModeCases)
	require.NoError(t, err)

	snap, err = b.SetCases(snap.ID, 150)
	require.Error(t, err)
	se := sap.AsError(err)
	assert.Equal(t, sap.KindValidation, se.Kind)
	assert.Contains(t, se.Message, "3000")
	assert.Contains(t, se.Message, "2380")
	// El intento no avanza.
	assert.Equal(t, StateQuantityEntry, snap.State)
	assert.True(t, snap.Quantity.IsZero())
}

func TestCasesWithoutFactorRejected(t *testing.T) {
	b := testBuilder(defaultResolver(), &stubSubmitter{})

	snap := b.Begin(testLot(stock.LotReleased), decimal.Zero, false)
	assert.EqualValues(t, 0, snap.MaxCases)
	snap, err := b.SetMode(snap.ID, ModeCases)
	require.NoError(t, err)

	_, err = b.SetCases(snap.ID, 1)
	require.Error(t, err)
	assert.Contains(t, sap.AsError(err).Message, "cantidad por caja")
}

func TestPalletFlow(t *testing.T) {
	b := testBuilder(defaultResolver(), &stubSubmitter{})
	ctx := context.Background()

	snap := b.Begin(testLot(stock.LotReleased), decimal.NewFromInt(20), true)
	snap, err := b.SetMode(snap.ID, ModePallet)
	require.NoError(t, err)

	_, err = b.SetQuantity(snap.ID, "2500")
	require.Error(t, err)
	assert.Contains(t, sap.AsError(err).Message, "excede")

	_, err = b.SetQuantity(snap.ID, "palet-roto")
	require.Error(t, err)
	assert.Equal(t, sap.KindValidation, sap.AsError(err).Kind)

	snap, err = b.SetQuantity(snap.ID, "2380")
	require.NoError(t, err)
	assert.Equal(t, StateDestinationEntry, snap.State)

	snap, err = b.SetDestinationText(snap.ID, "02-B-01")
	require.NoError(t, err)
	snap, err = b.ConfirmDestination(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, StateReady, snap.State)
}

func TestBlockedLotIntoRestrictedWarehouse(t *testing.T) {
	b := testBuilder(defaultResolver(), &stubSubmitter{})
	ctx := context.Background()

	snap := b.Begin(testLot(stock.LotBlocked), decimal.NewFromInt(20), true)
	snap, err := b.SetMode(snap.ID, ModePallet)
	require.NoError(t, err)
	snap, err = b.SetQuantity(snap.ID, "100")
	require.NoError(t, err)
	snap, err = b.SetDestinationText(snap.ID, "18-X-01")
	require.NoError(t, err)

	snap, err = b.ConfirmDestination(ctx, snap.ID)
	require.Error(t, err)
	se := sap.AsError(err)
	assert.Equal(t, sap.KindValidation, se.Kind)
	assert.Contains(t, se.Message, "bloqueado")
	assert.Contains(t, se.Message, "18")
	// Sigue en entrada de destino, sin destino resuelto.
	assert.Equal(t, StateDestinationEntry, snap.State)
	assert.Nil(t, snap.Destination)
}

func TestReleasedLotIntoRestrictedWarehouseAllowed(t *testing.T) {
	b := testBuilder(defaultResolver(), &stubSubmitter{})
	ctx := context.Background()

	snap := b.Begin(testLot(stock.LotReleased), decimal.NewFromInt(20), true)
	snap, _ = b.SetMode(snap.ID, ModePallet)
	snap, _ = b.SetQuantity(snap.ID, "100")
	snap, _ = b.SetDestinationText(snap.ID, "18-X-01")

	snap, err := b.ConfirmDestination(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, StateReady, snap.State)
}

func TestSameBinRejected(t *testing.T) {
	b := testBuilder(defaultResolver(), &stubSubmitter{})
	ctx := context.Background()

	snap := b.Begin(testLot(stock.LotReleased), decimal.NewFromInt(20), true)
	snap, _ = b.SetMode(snap.ID, ModePallet)
	snap, _ = b.SetQuantity(snap.ID, "100")
	snap, _ = b.SetDestinationText(snap.ID, "01-A-01")

	snap, err := b.ConfirmDestination(ctx, snap.ID)
	require.Error(t, err)
	assert.Contains(t, sap.AsError(err).Message, "origen y destino son iguales")
	assert.Equal(t, StateDestinationEntry, snap.State)
}

func TestDestinationNotFound(t *testing.T) {
	b := testBuilder(defaultResolver(), &stubSubmitter{})
	ctx := context.Background()

	snap := b.Begin(testLot(stock.LotReleased), decimal.NewFromInt(20), true)
	snap, _ = b.SetMode(snap.ID, ModePallet)
	snap, _ = b.SetQuantity(snap.ID, "100")
	snap, _ = b.SetDestinationText(snap.ID, "99-Z-99")

	snap, err := b.ConfirmDestination(ctx, snap.ID)
	require.Error(t, err)
	assert.Contains(t, sap.AsError(err).Message, "No se encontró la ubicación destino")
	assert.Equal(t, StateDestinationEntry, snap.State)
}

func TestConfirmWithExpiredSession(t *testing.T) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := NewBuilder(defaultResolver(), &stubSubmitter{}, &stubGate{valid: false, refreshes: false}, log)
	ctx := context.Background()

	snap := b.Begin(testLot(stock.LotReleased), decimal.NewFromInt(20), true)
	snap, _ = b.SetMode(snap.ID, ModePallet)
	snap, _ = b.SetQuantity(snap.ID, "100")
	snap, _ = b.SetDestinationText(snap.ID, "02-B-01")

	_, err := b.ConfirmDestination(ctx, snap.ID)
	require.Error(t, err)
	assert.Equal(t, sap.KindSession, sap.AsError(err).Kind)
}

func TestSubmitSessionErrorDropsDestination(t *testing.T) {
	submitter := &stubSubmitter{err: sap.SessionExpired()}
	b := testBuilder(defaultResolver(), submitter)
	ctx := context.Background()

	snap := b.Begin(testLot(stock.LotReleased), decimal.NewFromInt(20), true)
	snap, _ = b.SetMode(snap.ID, ModePallet)
	snap, _ = b.SetQuantity(snap.ID, "100")
	snap, _ = b.SetDestinationText(snap.ID, "02-B-01")
	snap, err := b.ConfirmDestination(ctx, snap.ID)
	require.NoError(t, err)

	snap, err = b.Submit(ctx, snap.ID)
	require.Error(t, err)
	assert.Equal(t, sap.KindSession, sap.AsError(err).Kind)
	// Hay que re-confirmar el destino tras re-autenticarse.
	assert.Equal(t, StateDestinationEntry, snap.State)
	assert.Nil(t, snap.Destination)

	// La cantidad introducida sobrevive al fallo.
	assert.True(t, snap.Quantity.Equal(decimal.NewFromInt(100)))
}

func TestSubmitNetworkErrorStaysReady(t *testing.T) {
	submitter := &stubSubmitter{err: sap.Network()}
	b := testBuilder(defaultResolver(), submitter)
	ctx := context.Background()

	snap := b.Begin(testLot(stock.LotReleased), decimal.NewFromInt(20), true)
	snap, _ = b.SetMode(snap.ID, ModePallet)
	snap, _ = b.SetQuantity(snap.ID, "100")
	snap, _ = b.SetDestinationText(snap.ID, "02-B-01")
	snap, err := b.ConfirmDestination(ctx, snap.ID)
	require.NoError(t, err)

	snap, err = b.Submit(ctx, snap.ID)
	require.Error(t, err)
	se := sap.AsError(err)
	assert.True(t, se.Retryable())
	// El destino sigue resuelto: se reintenta sin volver a introducirlo.
	assert.Equal(t, StateReady, snap.State)
	require.NotNil(t, snap.Destination)

	// El reintento tras recuperar la red funciona.
	submitter.err = nil
	snap, err = b.Submit(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, snap.State)
}

func TestModeSwitchClearsProgress(t *testing.T) {
	b := testBuilder(defaultResolver(), &stubSubmitter{})
	ctx := context.Background()

	snap := b.Begin(testLot(stock.LotReleased), decimal.NewFromInt(20), true)
	snap, _ = b.SetMode(snap.ID, ModeCases)
	snap, _ = b.SetCases(snap.ID, 10)
	snap, _ = b.SetDestinationText(snap.ID, "02-B-01")
	snap, err := b.ConfirmDestination(ctx, snap.ID)
	require.NoError(t, err)
	require.Equal(t, StateReady, snap.State)

	snap, err = b.SetMode(snap.ID, ModePallet)
	require.NoError(t, err)
	assert.Equal(t, StateQuantityEntry, snap.State)
	assert.True(t, snap.Quantity.IsZero())
	assert.Empty(t, snap.DestinationText)
	assert.Nil(t, snap.Destination)
}

func TestEditingDestinationDropsResolution(t *testing.T) {
	b := testBuilder(defaultResolver(), &stubSubmitter{})
	ctx := context.Background()

	snap := b.Begin(testLot(stock.LotReleased), decimal.NewFromInt(20), true)
	snap, _ = b.SetMode(snap.ID, ModePallet)
	snap, _ = b.SetQuantity(snap.ID, "100")
	snap, _ = b.SetDestinationText(snap.ID, "02-B-01")
	snap, err := b.ConfirmDestination(ctx, snap.ID)
	require.NoError(t, err)
	require.Equal(t, StateReady, snap.State)

	snap, err = b.SetDestinationText(snap.ID, "02-B-0")
	require.NoError(t, err)
	assert.Equal(t, StateDestinationEntry, snap.State)
	assert.Nil(t, snap.Destination)

	// Sin re-confirmar no se puede enviar.
	_, err = b.Submit(ctx, snap.ID)
	require.Error(t, err)
	assert.Contains(t, sap.AsError(err).Message, "confirma primero")
}

func TestCancelIsIdempotent(t *testing.T) {
	b := testBuilder(defaultResolver(), &stubSubmitter{})

	snap := b.Begin(testLot(stock.LotReleased), decimal.NewFromInt(20), true)
	require.NoError(t, b.Cancel(snap.ID))
	require.NoError(t, b.Cancel(snap.ID))

	_, err := b.Get(snap.ID)
	assert.Error(t, err)
}

func TestCustomRestrictedWarehouses(t *testing.T) {
	b := testBuilder(defaultResolver(), &stubSubmitter{}, WithRestrictedWarehouses([]string{"02"}))
	ctx := context.Background()

	snap := b.Begin(testLot(stock.LotDenied), decimal.NewFromInt(20), true)
	snap, _ = b.SetMode(snap.ID, ModePallet)
	snap, _ = b.SetQuantity(snap.ID, "100")

	// El 18 ya no está restringido.
	snap, _ = b.SetDestinationText(snap.ID, "18-X-01")
	snap, err := b.ConfirmDestination(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, StateReady, snap.State)

	// Pero el 02 sí, y el mensaje nombra el estado del lote.
	snap, _ = b.SetDestinationText(snap.ID, "02-B-01")
	_, err = b.ConfirmDestination(ctx, snap.ID)
	require.Error(t, err)
	assert.Contains(t, sap.AsError(err).Message, "denegado")
	assert.Contains(t, sap.AsError(err).Message, "02")
}

func TestOperatorTagOnCommand(t *testing.T) {
	submitter := &stubSubmitter{}
	b := testBuilder(defaultResolver(), submitter, WithOperatorTag(func() string { return "M. García" }))
	ctx := context.Background()

	snap := b.Begin(testLot(stock.LotReleased), decimal.NewFromInt(20), true)
	snap, _ = b.SetMode(snap.ID, ModePallet)
	snap, _ = b.SetQuantity(snap.ID, "50")
	snap, _ = b.SetDestinationText(snap.ID, "02-B-01")
	snap, _ = b.ConfirmDestination(ctx, snap.ID)
	_, err := b.Submit(ctx, snap.ID)
	require.NoError(t, err)

	assert.Equal(t, "M. García", submitter.last.Comments)
}
