package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/subosito/gotenv"

	"github.com/Nestorcanpac/pda-app/internal/config"
	"github.com/Nestorcanpac/pda-app/internal/infra/logger"
	"github.com/Nestorcanpac/pda-app/internal/picking"
	"github.com/Nestorcanpac/pda-app/internal/sap"
	"github.com/Nestorcanpac/pda-app/internal/server"
	"github.com/Nestorcanpac/pda-app/internal/session"
	"github.com/Nestorcanpac/pda-app/internal/stock"
	"github.com/Nestorcanpac/pda-app/internal/transfer"
)

func main() {
	_ = gotenv.Load()

	cfg, err := config.Load("config/example.yaml")
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env)

	client := sap.NewClient(sap.Config{
		BaseURL:   cfg.ServiceLayer.BaseURL,
		ODataURL:  cfg.ServiceLayer.ODataURL,
		CompanyDB: cfg.ServiceLayer.CompanyDB,
		Timeout:   cfg.ServiceLayer.Timeout,
	}, log)

	sessions := session.NewManager(client, cfg.ServiceLayer.CompanyDB, log)
	locator := stock.NewLocator(client, client, sessions, log)

	builder := transfer.NewBuilder(
		transfer.NewQueryBinResolver(client),
		transfer.NewSubmitter(client, log),
		sessions,
		log,
		transfer.WithRestrictedWarehouses(cfg.Transfer.RestrictedWarehouses),
		transfer.WithOperatorTag(func() string { return sessions.Current().UserName }),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.ServiceLayer.UserName != "" {
		if err := sessions.Login(ctx, cfg.ServiceLayer.UserName, cfg.ServiceLayer.Password); err != nil {
			log.Warn("initial login failed", "err", err)
		} else {
			log.Info("service layer session opened", "companyDB", cfg.ServiceLayer.CompanyDB)
		}
	}

	srv := server.New(server.Options{
		Addr:          cfg.HTTP.Addr,
		Metrics:       cfg.Metrics.Enabled,
		ScanThreshold: time.Duration(cfg.Scanner.ThresholdMs) * time.Millisecond,
	}, log, sessions, locator, builder, picking.NewBoard(seedPickings()), client, client, client, client)

	go func() {
		if err := srv.Start(); err != nil && err.Error() != "http: Server closed" {
			log.Error("http server error", "err", err)
		}
	}()
	log.Info("HTTP server started", "addr", cfg.HTTP.Addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	client.Logout(shutdownCtx)
	log.Info("graceful shutdown complete")
}

// seedPickings carga el tablero de picking de arranque. Mientras no exista
// la integración con los documentos de venta, el tablero se alimenta aquí.
func seedPickings() []picking.Document {
	q := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }
	return []picking.Document{
		{
			ID: "PK-1001", Customer: "ACME Pharma", Priority: "alta",
			Lines: []picking.Line{
				{ID: 1, ItemCode: "7001", Lot: "L-240901", BinCode: "01-A-01", Quantity: q("120")},
				{ID: 2, ItemCode: "7003", Lot: "L-240822", BinCode: "01-B-04", Quantity: q("40")},
			},
		},
		{
			ID: "PK-1002", Customer: "Laboratorios Sur", Priority: "normal",
			Lines: []picking.Line{
				{ID: 1, ItemCode: "7010", Lot: "L-240830", BinCode: "02-C-02", Quantity: q("500")},
			},
		},
	}
}
