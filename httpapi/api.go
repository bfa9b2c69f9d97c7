// Package httpapi exposes the engine over REST. Handlers are thin glue:
// decode, delegate, map errors. The refresh token travels in an HttpOnly
// cookie or the X-Refresh-Token header, never in Authorization.
package httpapi

import (
	"context"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	authvault "github.com/mkhalaf/authvault"
	"github.com/mkhalaf/authvault/middleware"
)

// Sender delivers one-time secrets out of band. The API never returns a
// plaintext OTP or reset secret in a response body.
type Sender interface {
	SendOTP(ctx context.Context, email, code string) error
	SendResetSecret(ctx context.Context, email, secret string) error
}

type discardSender struct{}

func (discardSender) SendOTP(context.Context, string, string) error         { return nil }
func (discardSender) SendResetSecret(context.Context, string, string) error { return nil }

// API holds the dependencies needed by the REST handlers.
type API struct {
	engine *authvault.Engine
	sender Sender
	logger *zap.Logger
}

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger. Defaults to a nop logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *API) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithSender sets the out-of-band delivery channel for OTP codes and
// reset secrets. Without one the secrets are generated and stored but
// never delivered, which only makes sense in tests.
func WithSender(sender Sender) Option {
	return func(a *API) {
		if sender != nil {
			a.sender = sender
		}
	}
}

// New creates an API over the engine.
func New(engine *authvault.Engine, opts ...Option) *API {
	a := &API{
		engine: engine,
		sender: discardSender{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Router returns a chi.Router with all routes mounted.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(a.withClientIP)

	r.Post("/auth/register", a.Register)
	r.Post("/auth/login", a.Login)
	r.Post("/auth/refresh", a.Refresh)
	r.Post("/auth/logout", a.Logout)

	r.Post("/auth/otp/request", a.RequestOTP)
	r.Post("/auth/verify", a.VerifyAccount)

	r.Post("/auth/reset/request", a.RequestReset)
	r.Post("/auth/reset/confirm", a.ConfirmReset)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Guard(a.engine))
		r.Get("/me", a.Me)
		r.Post("/me/password", a.ChangePassword)
	})

	return r
}

// withClientIP threads the caller's address into the request context as
// the rate-gate identity.
func (a *API) withClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := authvault.WithClientIP(r.Context(), ip)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
