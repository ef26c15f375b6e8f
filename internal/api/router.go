package api

import (
	"net/http"

	"github.com/ashureev/opsbot/internal/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouterOptions wires the ops HTTP surface. Nil handlers leave their routes
// unmounted.
type RouterOptions struct {
	Health         *HealthHandler
	Records        *RecordsHandler
	OpsToken       string
	AllowedOrigins []string
	Webhook        http.Handler
	Console        http.Handler
	// ConsolePage serves the console's static page under ConsolePagePath.
	ConsolePage    http.Handler
}

// Paths of the mounted transports.
const (
	WebhookPath     = "/telegram/webhook"
	ConsolePath     = "/ws/console"
	ConsolePagePath = "/console"
)

// NewRouter builds the ops HTTP router.
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(opts.AllowedOrigins))

	if opts.Health != nil {
		opts.Health.RegisterHealth(r)
	}
	if opts.Records != nil {
		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.BearerToken(opts.OpsToken))
			opts.Records.RegisterRoutes(r)
		})
	}
	if opts.Webhook != nil {
		r.Method(http.MethodPost, WebhookPath, opts.Webhook)
	}
	if opts.Console != nil {
		r.Method(http.MethodGet, ConsolePath, opts.Console)
	}
	if opts.ConsolePage != nil {
		r.Get(ConsolePagePath, func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, ConsolePagePath+"/", http.StatusMovedPermanently)
		})
		r.Handle(ConsolePagePath+"/*", http.StripPrefix(ConsolePagePath, opts.ConsolePage))
	}

	return r
}
