package transfer

import (
	"context"
	"log/slog"

	"github.com/Nestorcanpac/pda-app/internal/infra/metrics"
	"github.com/Nestorcanpac/pda-app/internal/sap"
)

// Poster da de alta un documento de traslado en el inventario.
type Poster interface {
	CreateStockTransfer(ctx context.Context, payload any) (map[string]any, error)
}

// ServiceSubmitter entrega comandos al Service Layer y clasifica el
// resultado. El mensaje de error ya llega normalizado desde la frontera
// del cliente; aquí solo se cuenta y se propaga.
type ServiceSubmitter struct {
	poster Poster
	log    *slog.Logger
}

func NewSubmitter(poster Poster, log *slog.Logger) *ServiceSubmitter {
	return &ServiceSubmitter{poster: poster, log: log}
}

func (s *ServiceSubmitter) Submit(ctx context.Context, cmd Command) (map[string]any, error) {
	ack, err := s.poster.CreateStockTransfer(ctx, cmd)
	if err != nil {
		se := sap.AsError(err)
		metrics.TransfersTotal.WithLabelValues(string(se.Kind)).Inc()
		s.log.Warn("stock transfer rejected",
			"kind", string(se.Kind), "from", cmd.FromWarehouse, "to", cmd.ToWarehouse,
			"qty", cmd.Quantity().String(), "msg", se.Message)
		return nil, se
	}
	metrics.TransfersTotal.WithLabelValues("ok").Inc()
	s.log.Info("stock transfer accepted",
		"from", cmd.FromWarehouse, "to", cmd.ToWarehouse, "qty", cmd.Quantity().String())
	return ack, nil
}
