package middleware

import (
	"net/http"

	airbrake "github.com/your-org/roadrunner-airbrake"
)

// Recoverer reports handler panics with the request context and answers 500.
// http.ErrAbortHandler is passed through untouched.
func Recoverer(reporter airbrake.Reporter, opts ...ContextOption) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler { //nolint:errorlint
					panic(v)
				}

				hc := NewRequestContext(r, opts...)
				_ = reporter.Notify(airbrake.NewPanicError(v, 1),
					airbrake.WithSeverity(airbrake.SeverityCritical),
					airbrake.WithHTTPContext(hc))

				w.WriteHeader(http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

// Report sends err with the request context of r. Handlers use it for errors
// they handle themselves.
func Report(reporter airbrake.Reporter, r *http.Request, err error, opts ...ContextOption) error {
	return reporter.Notify(err, airbrake.WithHTTPContext(NewRequestContext(r, opts...)))
}
