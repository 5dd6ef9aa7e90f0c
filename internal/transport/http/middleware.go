package httptransport

import (
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "coach",
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency by route prefix, method and status code.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route", "method", "code"})

func init() {
	prometheus.MustRegister(requestDuration)
}

// Middleware decorates an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares so that the first one listed is the outermost.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// RequestLogger logs each request with its status and latency and records the latency histogram.
func RequestLogger(logger *log.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			elapsed := time.Since(started)
			requestDuration.WithLabelValues(routeOf(r.URL.Path), r.Method, strconv.Itoa(rec.status)).Observe(elapsed.Seconds())
			logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rec.status, elapsed.Round(time.Microsecond))
		})
	}
}

// CORS allows browser clients served from origin. An empty origin disables the headers.
func CORS(origin string) Middleware {
	return func(next http.Handler) http.Handler {
		if origin == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key")
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// routeOf collapses ids out of the path to keep label cardinality bounded.
func routeOf(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 3 && parts[0] == "v1" && parts[1] == "sessions" {
		switch {
		case parts[2] == "latest" || parts[2] == "history":
			return "/v1/sessions/" + parts[2]
		case len(parts) >= 4:
			return "/v1/sessions/{id}/" + parts[3]
		default:
			return "/v1/sessions/{id}"
		}
	}
	return "/" + strings.Join(parts, "/")
}
