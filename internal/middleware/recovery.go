package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/2beens/notesapp/internal/telemetry/metrics"
	"github.com/2beens/notesapp/pkg"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const internalErrorMessage = "internal server error"

// PanicRecovery turns a handler panic into a 500. The panic is logged with its stack,
// counted and recorded on the request span. API clients get a JSON body.
func PanicRecovery(metricsManager *metrics.Manager) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					// the server drops the connection quietly for this one
					panic(rec)
				}

				ip, _ := pkg.ReadUserIP(r)
				log.WithFields(log.Fields{
					"method": r.Method,
					"path":   r.URL.Path,
					"ip":     ip,
				}).Errorf("http: panic serving request: %v\n%s", rec, debug.Stack())

				if metricsManager != nil {
					metricsManager.CounterHandleRequestPanic.Inc()
				}

				span := trace.SpanFromContext(r.Context())
				span.SetAttributes(attribute.Bool("http.panic", true))
				span.RecordError(fmt.Errorf("panic: %v", rec))
				span.SetStatus(codes.Error, "panic")

				if strings.HasPrefix(r.URL.Path, "/api/") {
					pkg.WriteResponseBytes(w, pkg.ContentType.JSON, []byte(`{"error":"`+internalErrorMessage+`"}`), http.StatusInternalServerError)
					return
				}
				pkg.WriteResponseBytes(w, pkg.ContentType.Text, []byte(internalErrorMessage), http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
