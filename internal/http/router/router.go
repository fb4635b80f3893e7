package router

import (
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/diagnosis/parcel-bookings/internal/http/handlers"
	mw "github.com/diagnosis/parcel-bookings/internal/http/middleware"
	"github.com/diagnosis/parcel-bookings/internal/service"
	"github.com/diagnosis/parcel-bookings/pkg/auth"
	pkgmw "github.com/diagnosis/parcel-bookings/pkg/middleware"
)

// RateLimit is the per-route budget for the public endpoints.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

type Deps struct {
	Accounts       service.AccountService
	Reservations   service.ReservationService
	Tokens         *auth.TokenManager
	FrontendURL    string
	AllowedOrigins []string

	// Optional. Without a limiter the public routes are unthrottled; without
	// an idempotency store Idempotency-Key is ignored.
	Limiter     mw.Limiter
	Limits      map[string]RateLimit
	Idempotency pkgmw.IdempotencyStore

	// TrustedProxies may set X-Forwarded-For; everyone else is limited by
	// their socket address.
	TrustedProxies []netip.Prefix
}

var DefaultLimits = map[string]RateLimit{
	"login":           {Requests: 10, Window: time.Minute},
	"forget-password": {Requests: 5, Window: 15 * time.Minute},
	"contact":         {Requests: 5, Window: 15 * time.Minute},
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(pkgmw.RequestID)
	r.Use(pkgmw.ServiceName("parcel-bookings"))
	r.Use(pkgmw.Logging)
	r.Use(chimw.Recoverer)
	r.Use(pkgmw.CORS(d.AllowedOrigins...))
	r.Use(pkgmw.Health)

	authH := handlers.NewAuthHandler(d.Accounts, d.Tokens, d.FrontendURL)
	if d.Limiter != nil {
		limits := d.Limits
		if limits == nil {
			limits = DefaultLimits
		}
		authH.Limit = func(name string) handlers.Middleware {
			l, ok := limits[name]
			if !ok {
				return func(next http.Handler) http.Handler { return next }
			}
			return mw.NewRateLimiter(d.Limiter, mw.RateLimitConfig{
				Name:           name,
				Requests:       l.Requests,
				Window:         l.Window,
				TrustedProxies: d.TrustedProxies,
			}).Middleware()
		}
	}
	authH.Routes(r)

	resH := handlers.NewReservationHandler(d.Reservations, d.Tokens)
	if d.Idempotency != nil {
		resH.Idempotency = pkgmw.IdempotencyMiddleware(d.Idempotency)
	}
	resH.Routes(r)

	return r
}
