// Package transfer implementa el flujo de traslado de stock: a partir de
// un lote localizado recoge el tipo de movimiento, la cantidad y la
// ubicación destino, valida las invariantes del almacén y construye el
// comando de traslado para el servicio de inventario.
package transfer

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Nestorcanpac/pda-app/internal/sap"
	"github.com/Nestorcanpac/pda-app/internal/session"
	"github.com/Nestorcanpac/pda-app/internal/stock"
)

type Mode string

const (
	ModeNone   Mode = ""
	ModeCases  Mode = "cajas"
	ModePallet Mode = "palet"
)

// State es el estado del intento de traslado en curso.
type State string

const (
	StateModeUnselected   State = "mode_unselected"
	StateQuantityEntry    State = "quantity_entry"
	StateDestinationEntry State = "destination_entry"
	StateResolving        State = "resolving"
	StateReady            State = "ready"
	StateSubmitting       State = "submitting"
	StateSucceeded        State = "succeeded"
)

// PalletQuantityResolver traduce el payload escaneado de un palet a una
// cantidad. El comportamiento heredado interpreta el código de barras
// directamente como magnitud; se aísla aquí para poder sustituirlo por
// una consulta real de etiqueta de palet.
type PalletQuantityResolver func(payload string) (decimal.Decimal, error)

// DefaultPalletQuantity interpreta el payload como número decimal.
func DefaultPalletQuantity(payload string) (decimal.Decimal, error) {
	qty, err := decimal.NewFromString(strings.TrimSpace(payload))
	if err != nil {
		return decimal.Zero, sap.Validation("Por favor, escanea el código de barras del palet o introduce la cantidad")
	}
	return qty, nil
}

// intent es el estado mutable de un traslado en composición. Lo posee el
// Builder; se muta solo bajo su mutex, nunca tras ser descartado.
type intent struct {
	id        uuid.UUID
	lot       stock.Lot
	factor    decimal.Decimal
	hasFactor bool

	state    State
	mode     Mode
	cases    int64
	qty      decimal.Decimal
	destText string
	dest     *ResolvedBin

	// inFlight impide un segundo Resolving/Submitting simultáneo para el
	// mismo intento (el control que dispara la llamada queda deshabilitado
	// hasta que esta termina).
	inFlight bool
}

// Snapshot es la vista inmutable que ven las pantallas tras cada operación.
type Snapshot struct {
	ID              uuid.UUID       `json:"id"`
	State           State           `json:"state"`
	Mode            Mode            `json:"mode"`
	Lot             stock.Lot       `json:"lot"`
	HasFactor       bool            `json:"hasFactor"`
	Factor          decimal.Decimal `json:"factor"`
	MaxCases        int64           `json:"maxCases"`
	Cases           int64           `json:"cases,omitempty"`
	Quantity        decimal.Decimal `json:"quantity"`
	DestinationText string          `json:"destinationText,omitempty"`
	Destination     *ResolvedBin    `json:"destination,omitempty"`
	Ack             map[string]any  `json:"ack,omitempty"`
	// Requery avisa a la pantalla de que debe re-consultar el lote/bin
	// para reflejar el stock tras un traslado correcto.
	Requery bool `json:"requery,omitempty"`
}

// Submitter ejecuta un comando ya validado contra el inventario.
type Submitter interface {
	Submit(ctx context.Context, cmd Command) (map[string]any, error)
}

// Builder es la máquina de estados del traslado. Una instancia sirve a
// todas las pantallas; cada intento se identifica por su handle.
type Builder struct {
	resolver   BinResolver
	submitter  Submitter
	gate       session.Gate
	restricted map[string]bool
	palletQty  PalletQuantityResolver
	operator   func() string
	log        *slog.Logger

	mu      sync.Mutex
	intents map[uuid.UUID]*intent
}

type BuilderOption func(*Builder)

// WithRestrictedWarehouses sustituye el conjunto de almacenes restringidos.
func WithRestrictedWarehouses(codes []string) BuilderOption {
	return func(b *Builder) {
		b.restricted = make(map[string]bool, len(codes))
		for _, c := range codes {
			b.restricted[c] = true
		}
	}
}

// WithPalletQuantityResolver sustituye la resolución de cantidad de palet.
func WithPalletQuantityResolver(r PalletQuantityResolver) BuilderOption {
	return func(b *Builder) { b.palletQty = r }
}

// WithOperatorTag añade la etiqueta de operario a los comandos emitidos.
func WithOperatorTag(name func() string) BuilderOption {
	return func(b *Builder) { b.operator = name }
}

func NewBuilder(resolver BinResolver, submitter Submitter, gate session.Gate, log *slog.Logger, opts ...BuilderOption) *Builder {
	b := &Builder{
		resolver:   resolver,
		submitter:  submitter,
		gate:       gate,
		restricted: map[string]bool{"18": true, "21": true},
		palletQty:  DefaultPalletQuantity,
		operator:   func() string { return "" },
		log:        log,
		intents:    make(map[uuid.UUID]*intent),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Begin crea un intento de traslado a partir de un lote seleccionado.
func (b *Builder) Begin(lot stock.Lot, factor decimal.Decimal, hasFactor bool) Snapshot {
	it := &intent{
		id:        uuid.New(),
		lot:       lot,
		factor:    factor,
		hasFactor: hasFactor,
		state:     StateModeUnselected,
	}
	b.mu.Lock()
	b.intents[it.id] = it
	b.mu.Unlock()
	return snapshot(it)
}

// Get devuelve la vista actual de un intento.
func (b *Builder) Get(id uuid.UUID) (Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	it, ok := b.intents[id]
	if !ok {
		return Snapshot{}, errGone()
	}
	return snapshot(it), nil
}

// SetMode elige mover por cajas o por palet. Cambiar de modo limpia la
// cantidad y el destino introducidos.
func (b *Builder) SetMode(id uuid.UUID, mode Mode) (Snapshot, error) {
	if mode != ModeCases && mode != ModePallet {
		return Snapshot{}, sap.Validation("Por favor, selecciona si quieres mover por cajas o por palet")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	it, ok := b.intents[id]
	if !ok {
		return Snapshot{}, errGone()
	}
	if it.inFlight || it.state == StateSubmitting {
		return snapshot(it), errBusy()
	}
	it.mode = mode
	it.cases = 0
	it.qty = decimal.Zero
	it.destText = ""
	it.dest = nil
	it.state = StateQuantityEntry
	return snapshot(it), nil
}

// SetCases fija el número de cajas a mover. La cantidad resultante es
// cajas × factor y no puede superar el stock disponible.
func (b *Builder) SetCases(id uuid.UUID, cases int64) (Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	it, ok := b.intents[id]
	if !ok {
		return Snapshot{}, errGone()
	}
	if it.inFlight {
		return snapshot(it), errBusy()
	}
	if it.mode != ModeCases || (it.state != StateQuantityEntry && it.state != StateDestinationEntry) {
		return snapshot(it), sap.Validation("Por favor, selecciona primero el movimiento por cajas")
	}
	if !it.hasFactor {
		return snapshot(it), sap.Validation("No se pudo obtener la cantidad por caja para este item")
	}
	if cases <= 0 {
		return snapshot(it), sap.Validation("Por favor, introduce un número válido de cajas")
	}
	qty := it.factor.Mul(decimal.NewFromInt(cases))
	if qty.GreaterThan(it.lot.OnHand) {
		return snapshot(it), sap.Validation(
			"La cantidad calculada (%s) excede la cantidad disponible (%s)",
			qty.String(), it.lot.OnHand.String())
	}

	it.cases = cases
	it.qty = qty
	it.dest = nil
	it.state = StateDestinationEntry
	return snapshot(it), nil
}

// SetQuantity fija la cantidad en modo palet a partir del payload escaneado
// o tecleado.
func (b *Builder) SetQuantity(id uuid.UUID, payload string) (Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	it, ok := b.intents[id]
	if !ok {
		return Snapshot{}, errGone()
	}
	if it.inFlight {
		return snapshot(it), errBusy()
	}
	if it.mode != ModePallet || (it.state != StateQuantityEntry && it.state != StateDestinationEntry) {
		return snapshot(it), sap.Validation("Por favor, selecciona primero el movimiento por palet")
	}
	qty, err := b.palletQty(payload)
	if err != nil {
		return snapshot(it), sap.AsError(err)
	}
	if !qty.IsPositive() {
		return snapshot(it), sap.Validation("Por favor, escanea el código de barras del palet o introduce la cantidad")
	}
	if qty.GreaterThan(it.lot.OnHand) {
		return snapshot(it), sap.Validation(
			"La cantidad escaneada (%s) excede la cantidad disponible (%s)",
			qty.String(), it.lot.OnHand.String())
	}

	it.qty = qty
	it.dest = nil
	it.state = StateDestinationEntry
	return snapshot(it), nil
}

// SetDestinationText actualiza el texto del destino. Editar el destino de
// un intento ya resuelto lo devuelve a la entrada de destino.
func (b *Builder) SetDestinationText(id uuid.UUID, text string) (Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	it, ok := b.intents[id]
	if !ok {
		return Snapshot{}, errGone()
	}
	if it.inFlight {
		return snapshot(it), errBusy()
	}
	if it.state != StateDestinationEntry && it.state != StateReady {
		return snapshot(it), sap.Validation("Por favor, introduce primero una cantidad válida")
	}
	it.destText = text
	it.dest = nil
	it.state = StateDestinationEntry
	return snapshot(it), nil
}

// ConfirmDestination resuelve la ubicación destino y valida las
// invariantes: destino existente, distinto del origen y, para lotes
// denegados o bloqueados, fuera de los almacenes restringidos.
func (b *Builder) ConfirmDestination(ctx context.Context, id uuid.UUID) (Snapshot, error) {
	b.mu.Lock()
	it, ok := b.intents[id]
	if !ok {
		b.mu.Unlock()
		return Snapshot{}, errGone()
	}
	if it.inFlight {
		b.mu.Unlock()
		return snapshot(it), errBusy()
	}
	if it.state != StateDestinationEntry && it.state != StateReady {
		b.mu.Unlock()
		return snapshot(it), sap.Validation("Por favor, introduce primero una cantidad válida")
	}
	code := strings.TrimSpace(it.destText)
	if code == "" {
		b.mu.Unlock()
		return snapshot(it), sap.Validation("Por favor, introduce un código de ubicación destino")
	}
	if !it.qty.IsPositive() || it.qty.GreaterThan(it.lot.OnHand) {
		b.mu.Unlock()
		return snapshot(it), sap.Validation("Por favor, introduce primero una cantidad válida")
	}
	it.state = StateResolving
	it.inFlight = true
	b.mu.Unlock()

	resolved, rerr := b.lookupDestination(ctx, code)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.intents[id] != it {
		// El intento se descartó con la llamada en vuelo: el resultado se
		// ignora sin tocar el estado descartado.
		return Snapshot{}, errGone()
	}
	it.inFlight = false
	it.state = StateDestinationEntry

	if rerr != nil {
		return snapshot(it), rerr
	}
	if resolved.AbsEntry == it.lot.BinAbsEntry {
		return snapshot(it), sap.Validation("La ubicación origen y destino son iguales. Por favor, selecciona una ubicación destino diferente.")
	}
	if it.lot.State.Restricted() && b.restricted[resolved.Warehouse] {
		return snapshot(it), sap.Validation(
			"No se puede realizar el movimiento. El lote está %s y no se permiten movimientos al almacén %s (almacén de producción/nave de consumo).",
			it.lot.State, resolved.Warehouse)
	}

	it.dest = resolved
	it.state = StateReady
	return snapshot(it), nil
}

func (b *Builder) lookupDestination(ctx context.Context, code string) (*ResolvedBin, *sap.Error) {
	if !b.gate.Valid() && !b.gate.Refresh(ctx) {
		return nil, sap.SessionExpired()
	}
	resolved, err := b.resolver.ResolveBin(ctx, code)
	if err != nil {
		return nil, sap.AsError(err)
	}
	if resolved == nil {
		return nil, sap.Validation("No se encontró la ubicación destino")
	}
	return resolved, nil
}

// Submit entrega el comando al inventario. Tras un fallo reintentable el
// intento vuelve a Ready (se reintenta sin re-introducir el destino);
// tras un fallo de sesión vuelve a la entrada de destino.
func (b *Builder) Submit(ctx context.Context, id uuid.UUID) (Snapshot, error) {
	b.mu.Lock()
	it, ok := b.intents[id]
	if !ok {
		b.mu.Unlock()
		return Snapshot{}, errGone()
	}
	if it.inFlight {
		b.mu.Unlock()
		return snapshot(it), errBusy()
	}
	if it.state != StateReady {
		b.mu.Unlock()
		return snapshot(it), sap.Validation("Por favor, confirma primero la ubicación destino")
	}
	cmd := newCommand(it, b.operator())
	it.state = StateSubmitting
	it.inFlight = true
	b.mu.Unlock()

	ack, err := b.submitter.Submit(ctx, cmd)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.intents[id] != it {
		return Snapshot{}, errGone()
	}
	it.inFlight = false

	if err != nil {
		se := sap.AsError(err)
		if se.Kind == sap.KindSession {
			// El operador debe re-confirmar el destino tras re-autenticarse.
			it.dest = nil
			it.state = StateDestinationEntry
		} else {
			it.state = StateReady
		}
		return snapshot(it), se
	}

	// El intento se consume exactamente una vez.
	it.state = StateSucceeded
	delete(b.intents, id)
	b.log.Info("stock transfer submitted",
		"item", it.lot.ItemCode, "lot", it.lot.LotNumber,
		"from", cmd.FromWarehouse, "to", cmd.ToWarehouse, "qty", it.qty.String())
	snap := snapshot(it)
	snap.Ack = ack
	snap.Requery = true
	return snap, nil
}

// Cancel descarta un intento. Es idempotente: cancelar un intento ya
// consumido o inexistente no hace nada. Solo se rechaza con un envío en
// curso.
func (b *Builder) Cancel(id uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	it, ok := b.intents[id]
	if !ok {
		return nil
	}
	if it.state == StateSubmitting {
		return errBusy()
	}
	delete(b.intents, id)
	return nil
}

func snapshot(it *intent) Snapshot {
	s := Snapshot{
		ID:              it.id,
		State:           it.state,
		Mode:            it.mode,
		Lot:             it.lot,
		HasFactor:       it.hasFactor,
		Factor:          it.factor,
		Cases:           it.cases,
		Quantity:        it.qty,
		DestinationText: it.destText,
		Destination:     it.dest,
	}
	if it.hasFactor && it.factor.IsPositive() {
		s.MaxCases = it.lot.OnHand.Div(it.factor).IntPart()
	}
	return s
}

func errGone() *sap.Error {
	return sap.Validation("El movimiento ya no existe")
}

func errBusy() *sap.Error {
	return sap.Validation("Hay una operación en curso. Espera a que termine.")
}
