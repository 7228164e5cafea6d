package tracker

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"PricePulse/pkg/kit"
)

type HTTPDeps struct {
	Log      *zap.Logger
	App      string
	Registry *prometheus.Registry

	MetricsEnabled bool
	MetricsToken   string

	// SPAIndex is the single-page app entry document served for any
	// non-API GET. Empty disables the fallback.
	SPAIndex string
}

func NewHandler(s *Server, deps HTTPDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(kit.Recoverer)
	r.Use(kit.Logging(deps.Log))

	if deps.Registry != nil {
		metrics := kit.NewMetrics(deps.Registry)
		r.Use(metrics.Middleware(deps.App, kit.ChiRoutePatternOrPath))

		if deps.MetricsEnabled {
			r.With(kit.MetricsAuth(deps.MetricsToken)).
				Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
		}
	}

	r.NotFound(spaFallback(deps.SPAIndex))
	r.Mount("/", s.Routes())

	return r
}

// spaFallback serves the SPA entry document for anything the API does not
// claim, so client-side routes survive a refresh. API misses stay JSON.
func spaFallback(index string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api") || index == "" || r.Method != http.MethodGet {
			kit.WriteError(w, r, http.StatusNotFound, "Not found", nil)
			return
		}
		http.ServeFile(w, r, index)
	}
}
