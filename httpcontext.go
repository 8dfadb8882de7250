package airbrake

// HTTPContext is a read-only snapshot of the request an error happened in.
// Framework adapters implement it; see the middleware package for net/http.
type HTTPContext interface {
	Session() map[string]string
	Parameters() map[string]string
	EnvironmentVars() map[string]string

	UserAgent() string
	URL() string

	UserID() string
	UserName() string
	UserEmail() string

	// Action and Component override the backtrace-derived values only when
	// both are non-empty.
	Action() string
	Component() string
}

// RequestOrigin is optionally implemented by an HTTPContext that knows the
// client address and the application root.
type RequestOrigin interface {
	UserAddr() string
	RootDirectory() string
}
