package server

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Nestorcanpac/pda-app/internal/infra/metrics"
	"github.com/Nestorcanpac/pda-app/internal/sap"
	"github.com/Nestorcanpac/pda-app/internal/scan"
	"github.com/Nestorcanpac/pda-app/internal/transfer"
)

// scannerRegistry mantiene un clasificador por pantalla activa: la
// continuidad temporal entre lotes de teclas importa para distinguir
// escaneo de tecleo.
type scannerRegistry struct {
	mu       sync.Mutex
	byScreen map[string]*screenScanner
}

// screenScanner serializa los lotes de teclas de una misma pantalla: el
// clasificador y su lista de lecturas pendientes solo se tocan bajo mu.
type screenScanner struct {
	mu      sync.Mutex
	cls     *scan.Classifier
	pending []string
}

// feed procesa un lote completo de eventos y devuelve las disposiciones y
// las lecturas emitidas durante el lote.
func (sc *screenScanner) feed(events []keyEvent) (dispositions []string, scans []string) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.pending = nil
	dispositions = make([]string, 0, len(events))
	for _, ev := range events {
		d := sc.cls.Key(scan.Event{
			Key:           ev.Key,
			At:            time.UnixMilli(ev.TsMs),
			EditableFocus: ev.EditableFocus,
		})
		if d == scan.Suppress {
			dispositions = append(dispositions, "suppress")
		} else {
			dispositions = append(dispositions, "pass")
		}
	}
	scans = sc.pending
	sc.pending = nil
	return dispositions, scans
}

func newScannerRegistry() *scannerRegistry {
	return &scannerRegistry{byScreen: make(map[string]*screenScanner)}
}

func (r *scannerRegistry) get(screen string, threshold time.Duration) *screenScanner {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, found := r.byScreen[screen]
	if !found {
		sc = &screenScanner{}
		sc.cls = scan.New(func(value string) {
			sc.pending = append(sc.pending, value)
		}, scan.WithThreshold(threshold))
		r.byScreen[screen] = sc
	}
	return sc
}

func (r *scannerRegistry) detach(screen string) {
	r.mu.Lock()
	delete(r.byScreen, screen)
	r.mu.Unlock()
}

// detachIntent limpia los clasificadores ligados a un intento cancelado.
func (r *scannerRegistry) detachIntent(id uuid.UUID) {
	r.mu.Lock()
	delete(r.byScreen, "transfer:"+id.String())
	r.mu.Unlock()
}

type keyEvent struct {
	Key           string `json:"key"`
	TsMs          int64  `json:"tsMs"`
	EditableFocus bool   `json:"editableFocus"`
}

type scanKeysRequest struct {
	Screen      string     `json:"screen" binding:"required"`
	IntentID    string     `json:"intentId"`
	ThresholdMs int        `json:"thresholdMs"`
	Events      []keyEvent `json:"events"`
}

type routedScan struct {
	Value  string             `json:"value"`
	Target string             `json:"target"` // quantity | destination | none
	Intent *transfer.Snapshot `json:"intent,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// handleScanKeys alimenta el clasificador de la pantalla con un lote de
// pulsaciones y enruta cada lectura completada al campo que la espera: en
// modo palet sin cantidad, la lectura es la cantidad; en cualquier otro
// caso, la ubicación destino.
func (s *Server) handleScanKeys(c *gin.Context) {
	var req scanKeysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errBadRequest(err))
		return
	}

	threshold := s.scanThreshold
	if req.ThresholdMs > 0 {
		threshold = time.Duration(req.ThresholdMs) * time.Millisecond
	}

	sc := s.scanners.get(req.Screen, threshold)
	dispositions, scans := sc.feed(req.Events)

	routed := make([]routedScan, 0, len(scans))
	for _, value := range scans {
		metrics.ScansTotal.Inc()
		routed = append(routed, s.routeScan(c, req.IntentID, value))
	}

	ok(c, gin.H{"dispositions": dispositions, "scans": routed})
}

func (s *Server) routeScan(c *gin.Context, intentID, value string) routedScan {
	if intentID == "" {
		return routedScan{Value: value, Target: "none"}
	}
	id, err := uuid.Parse(intentID)
	if err != nil {
		return routedScan{Value: value, Target: "none", Error: "Identificador de movimiento inválido"}
	}

	snap, gerr := s.builder.Get(id)
	if gerr != nil {
		return routedScan{Value: value, Target: "none", Error: sap.AsError(gerr).Message}
	}

	// Misma regla que la pantalla original de mover stock.
	if snap.Mode == transfer.ModePallet && !snap.Quantity.IsPositive() {
		next, serr := s.builder.SetQuantity(id, value)
		return routedResult(value, "quantity", next, serr)
	}
	next, serr := s.builder.SetDestinationText(id, value)
	return routedResult(value, "destination", next, serr)
}

func routedResult(value, target string, snap transfer.Snapshot, err error) routedScan {
	out := routedScan{Value: value, Target: target, Intent: &snap}
	if err != nil {
		out.Error = sap.AsError(err).Message
	}
	return out
}

func (s *Server) handleScanDetach(c *gin.Context) {
	s.scanners.detach(c.Param("screen"))
	ok(c, gin.H{"detached": true})
}
