package logger

import (
	"io"
	"log/slog"
	"os"
)

// New crea el logger JSON del proceso. Todas las entradas llevan el nombre
// del servicio, para filtrarlas en el agregado junto al resto de equipos
// del almacén.
func New(env string) *slog.Logger {
	return slog.New(handler(env, os.Stdout)).With("service", "pda")
}

func handler(env string, w io.Writer) slog.Handler {
	level := slog.LevelInfo
	if env == "dev" {
		level = slog.LevelDebug
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}
