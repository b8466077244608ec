package httpx

import (
	"io/fs"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	storefront "github.com/target/storefront-admin"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Sessions SessionLocator      // Required: one session store per browser visitor
	Visitors VisitorCodec        // Required: signs the visitor cookie
	Cookie   VisitorCookieConfig // Visitor cookie attributes
	Admins   AdminChecker        // Optional: enables bootstrap mode, /api/session/bootstrap and the login hint
	Gate     GateMetrics         // Optional
	Metrics  http.Handler        // Optional: serves GET /metrics when set
	CORS     CORSConfig          // Storefront origins allowed to call the session API

	LandingPath string
	WaitTimeout time.Duration
	IsDev       bool         // Load templates from disk instead of the embedded copy
	Logger      *slog.Logger // Logger for template and HTTP errors (optional)
}

// NewRouter creates and configures a new HTTP router with browser middleware.
// Order: BrowserDetection -> CORS -> Mux. Session and page routes additionally run
// behind VisitorSessions. Logging and Recover are added by the caller.
func NewRouter(services RouterServices) http.Handler {
	if services.Sessions == nil || services.Visitors == nil {
		panic("NewRouter requires Sessions and Visitors")
	}
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))
	if services.Metrics != nil {
		mux.Handle("GET /metrics", services.Metrics)
	}

	app := http.NewServeMux()
	registerSessionRoutes(app, &SessionHandlers{
		Admins:      services.Admins,
		WaitTimeout: services.WaitTimeout,
		Logger:      logger,
	})

	tr, err := NewTemplateRenderer(TemplateRendererConfig{
		TemplateFS: templateFS(services.IsDev),
		Logger:     logger,
	})
	if err != nil {
		logger.Error("templates unavailable; HTML pages disabled", "error", err)
	} else {
		gate := RequireSession(SessionGateOptions{
			Metrics:     services.Gate,
			LandingPath: services.LandingPath,
		})
		registerPageRoutes(app, &PageHandlers{
			T:      tr,
			Admins: services.Admins,
			Logger: logger,
		}, gate)
	}

	mux.Handle("/", VisitorSessions(VisitorOptions{
		Sessions: services.Sessions,
		Codec:    services.Visitors,
		Cookie:   services.Cookie,
		Logger:   logger,
	})(app))

	return BrowserDetection()(newCORS(services.CORS).Handler(mux))
}

func registerSessionRoutes(mux *http.ServeMux, h *SessionHandlers) {
	mux.HandleFunc("GET /api/session", h.Get)
	mux.HandleFunc("POST /api/session/modal", h.Modal)
	mux.HandleFunc("POST /api/session/sign-out", h.SignOut)
	mux.HandleFunc("GET /api/session/bootstrap", h.Bootstrap)
}

func registerPageRoutes(mux *http.ServeMux, h *PageHandlers, gate func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /{$}", h.Landing)
	mux.HandleFunc("GET "+PathLogin, h.LoginPage)
	mux.HandleFunc("POST "+PathLogin, h.LoginSubmit)
	mux.HandleFunc("POST "+PathLogout, h.Logout)
	mux.Handle("GET "+PathAdmin, gate(RequireAdmin()(http.HandlerFunc(h.AdminDashboard))))
}

// templateFS returns the template filesystem.
// Dev mode: read from disk for hot reloading. Prod mode: the embedded copy.
func templateFS(isDev bool) fs.FS {
	if isDev {
		return os.DirFS(TemplatePathFromRoot)
	}
	sub, err := fs.Sub(storefront.TemplateFS, TemplatePathFromRoot)
	if err != nil {
		log.Printf("failed to create sub-filesystem for templates: %v; falling back to disk", err)
		return os.DirFS(TemplatePathFromRoot)
	}
	return sub
}
