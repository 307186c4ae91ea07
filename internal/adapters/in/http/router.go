// internal/adapters/in/http/router.go
package httpin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"candymint/internal/adapters/in/http/handlers"
	"candymint/internal/adapters/in/http/middleware"
)

// RouterDeps collects all handlers (and other dependencies) injected from main.go.
// nil のものはマウントしない。
type RouterDeps struct {
	Minter   handlers.Minter
	Issuance handlers.IssuanceStates
	Events   http.Handler

	// nil なら /metrics は DefaultGatherer
	Gatherer prometheus.Gatherer

	AllowedOrigins []string
	Logger         *zap.Logger
}

// NewRouter sets up HTTP routing for all endpoints.
func NewRouter(deps RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// ---- Global Middleware ----
	// CORS は最外周（panic 時の 500 にもヘッダを付ける）
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           600,
	}))
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recover(logger))

	// Health check (always on)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/v1", func(v chi.Router) {
		if deps.Minter != nil {
			mh := handlers.NewMintHandler(deps.Minter)
			v.Post("/mints", mh.Mint)
			v.Post("/identity/prefetch", mh.Prefetch)
		}

		if deps.Issuance != nil {
			ih := handlers.NewIssuanceHandler(deps.Issuance)
			v.Get("/issuance", ih.Get)
			v.Post("/issuance/refresh", ih.Refresh)
		}

		if deps.Events != nil {
			v.Handle("/events", deps.Events)
		}
	})

	return r
}
