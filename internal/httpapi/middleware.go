// v1
// internal/httpapi/middleware.go
package httpapi

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/rs/cors"
)

// Wrap adds panic recovery, access logging and, when origins are given,
// CORS handling around h.
func Wrap(h http.Handler, origins []string, log *slog.Logger) http.Handler {
	out := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{log: log}),
		handlers.PrintRecoveryStack(false),
	)(h)
	out = handlers.LoggingHandler(accessWriter{log: log}, out)
	if len(origins) == 0 {
		return out
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(out)
}

// accessWriter turns Apache-style access lines into slog records.
type accessWriter struct {
	log *slog.Logger
}

func (a accessWriter) Write(p []byte) (int, error) {
	a.log.Debug("http_access", "line", string(bytes.TrimSpace(p)))
	return len(p), nil
}

type recoveryLogger struct {
	log *slog.Logger
}

func (r recoveryLogger) Println(v ...interface{}) {
	r.log.Error("http_handler_panic", "err", fmt.Sprint(v...))
}
