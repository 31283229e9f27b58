package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransfersTotal cuenta los envíos de traslado por resultado
	// (ok, validation, session, network, rejected).
	TransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pda_transfers_total",
			Help: "Stock transfers submitted, by outcome",
		},
		[]string{"outcome"},
	)

	// LotLookupsTotal cuenta las búsquedas de lote/bin por resultado
	// (found, not_found, error).
	LotLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pda_lot_lookups_total",
			Help: "Lot and bin lookups, by outcome",
		},
		[]string{"outcome"},
	)

	// ScansTotal cuenta las lecturas de escáner completadas.
	ScansTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pda_scans_total",
			Help: "Completed barcode scans",
		},
	)

	// ServiceLayerDuration mide la duración de las llamadas al Service Layer.
	ServiceLayerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pda_service_layer_request_duration_seconds",
			Help:    "Service Layer request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// BreakerState expone el estado del circuit breaker
	// (0=closed, 1=open, 2=half-open).
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pda_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"circuit"},
	)
)
