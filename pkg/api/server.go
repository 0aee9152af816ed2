package api

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/gatekeeper/pkg/gate"
	"github.com/platinummonkey/gatekeeper/pkg/httputil"
	"github.com/platinummonkey/gatekeeper/pkg/observability"
	"github.com/platinummonkey/gatekeeper/pkg/rbac"
	"github.com/platinummonkey/gatekeeper/pkg/session"
)

//go:embed templates/*.html
var templateFiles embed.FS

// maxBodyBytes bounds evaluate and explain request bodies
const maxBodyBytes = 1 << 20

// Option configures a Server
type Option func(*Server)

// WithLogger sets the server logger
func WithLogger(logger *observability.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics instruments requests with Prometheus metrics
func WithMetrics(metrics *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = metrics
	}
}

// WithResolver sets how the session user is resolved. Without it every
// request is anonymous.
func WithResolver(resolver session.Resolver) Option {
	return func(s *Server) {
		s.resolver = resolver
	}
}

// WithTracerProvider records a server span per request
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) {
		s.tracerProvider = tp
	}
}

// WithCORS allows browser calls from the given origins
func WithCORS(origins []string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

// Server represents the decision API server
type Server struct {
	model    *rbac.RuleModel
	access   *rbac.AccessLayer
	gate     *gate.Gate
	router   *mux.Router
	console  *template.Template
	logger   *observability.Logger
	metrics  *observability.Metrics
	resolver session.Resolver
	handler  http.Handler

	corsOrigins    []string
	tracerProvider trace.TracerProvider
}

// NewServer creates a new API server
func NewServer(model *rbac.RuleModel, access *rbac.AccessLayer, opts ...Option) *Server {
	s := &Server{
		model:    model,
		access:   access,
		gate:     gate.New(access),
		router:   mux.NewRouter(),
		logger:   observability.NopLogger(),
		resolver: session.Anonymous,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.console = template.Must(template.New("console.html").
		Funcs(s.gate.FuncMap()).
		ParseFS(templateFiles, "templates/console.html"))

	s.setupRoutes()
	s.handler = s.buildHandler()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	if s.metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.metrics, routeTemplate))
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Decision routes
	api.HandleFunc("/permissions/evaluate", s.evaluate).Methods(http.MethodPost)
	api.HandleFunc("/permissions/actions", s.allowedActions).Methods(http.MethodGet)
	api.HandleFunc("/permissions/explain", s.explain).Methods(http.MethodPost)
	api.HandleFunc("/me", s.me).Methods(http.MethodGet)

	// Rule catalogue, for users who may read roles
	canReadRoles := s.gate.RequirePermission(rbac.Check(rbac.ResourceRole, rbac.ActionRead), nil)
	api.Handle("/roles", canReadRoles(http.HandlerFunc(s.listRoles))).Methods(http.MethodGet)
	api.Handle("/roles/{role}", canReadRoles(http.HandlerFunc(s.getRole))).Methods(http.MethodGet)
	api.Handle("/permissions/stats", canReadRoles(http.HandlerFunc(s.memoStats))).Methods(http.MethodGet)

	// Server-rendered console
	s.router.HandleFunc("/console", s.renderConsole).Methods(http.MethodGet)
}

// Router returns the bare router, without session or request middleware
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) buildHandler() http.Handler {
	h := httputil.Chain(
		observability.RecoveryMiddleware(s.logger),
		httputil.RequestIDMiddleware(s.logger),
		httputil.ContentTypeMiddleware,
		httputil.MaxBytesMiddleware(maxBodyBytes),
		session.Middleware(s.resolver, s.logger),
	)(s.router)

	if len(s.corsOrigins) > 0 {
		h = cors.New(cors.Options{
			AllowedOrigins:   s.corsOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost},
			AllowedHeaders:   []string{"Authorization", "Content-Type", httputil.RequestIDHeader},
			ExposedHeaders:   []string{httputil.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           3600,
		}).Handler(h)
	}
	if s.tracerProvider != nil {
		h = otelhttp.NewHandler(h, "gatekeeper",
			otelhttp.WithTracerProvider(s.tracerProvider),
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}
	return h
}

// ServeHTTP makes Server an http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// routeTemplate labels metrics with the matched route rather than the raw path
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}
