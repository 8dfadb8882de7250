package airbrake

import (
	"fmt"
	"strings"
)

const (
	notifierName    = "roadrunner-airbrake"
	notifierVersion = "1.0.0"
	notifierURL     = "https://github.com/your-org/roadrunner-airbrake"
)

// Notice is a single error report sent to Airbrake
type Notice struct {
	Errors          []*ErrorEntry     `json:"errors,omitempty"`
	Context         *Context          `json:"context,omitempty"`
	EnvironmentVars map[string]string `json:"environment,omitempty"`
	Session         map[string]string `json:"session,omitempty"`
	Params          map[string]string `json:"params,omitempty"`

	// Exception and HTTPContext are kept for in-process filters only and are
	// never serialized.
	Exception   error       `json:"-"`
	HTTPContext HTTPContext `json:"-"`
}

// NewNotice returns an empty notice with the notifier identity filled in
func NewNotice() *Notice {
	return &Notice{
		Context: &Context{Notifier: newNotifierInfo()},
	}
}

// ErrorEntry is one level of an error chain
type ErrorEntry struct {
	Type      string   `json:"type,omitempty"`
	Message   string   `json:"message,omitempty"`
	Backtrace []*Frame `json:"backtrace,omitempty"`
}

// Frame is one stack location. Line and Column are always emitted since the
// fallback frame relies on explicit zeros.
type Frame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Function string `json:"function,omitempty"`
}

// NotifierInfo identifies this library to the server
type NotifierInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	URL     string `json:"url"`
}

func newNotifierInfo() *NotifierInfo {
	return &NotifierInfo{
		Name:    notifierName,
		Version: notifierVersion,
		URL:     notifierURL,
	}
}

// User describes the user affected by the error
type User struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Context carries ambient metadata about where and when the error happened
type Context struct {
	Notifier *NotifierInfo `json:"notifier,omitempty"`

	OS       string `json:"os,omitempty"`
	Hostname string `json:"hostname,omitempty"`
	Language string `json:"language,omitempty"`

	Environment string `json:"environment,omitempty"`
	Version     string `json:"version,omitempty"`

	Action    string `json:"action,omitempty"`
	Component string `json:"component,omitempty"`

	URL           string `json:"url,omitempty"`
	UserAddr      string `json:"userAddr,omitempty"`
	UserAgent     string `json:"userAgent,omitempty"`
	RootDirectory string `json:"rootDirectory,omitempty"`

	User     *User  `json:"user,omitempty"`
	Severity string `json:"severity,omitempty"`
}

// Severity of a notice
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityNotice
	SeverityWarning
	SeverityError
	SeverityCritical
	SeverityAlert
	SeverityEmergency
)

var severityNames = [...]string{
	SeverityDebug:     "debug",
	SeverityInfo:      "info",
	SeverityNotice:    "notice",
	SeverityWarning:   "warning",
	SeverityError:     "error",
	SeverityCritical:  "critical",
	SeverityAlert:     "alert",
	SeverityEmergency: "emergency",
}

func (s Severity) String() string {
	if s < SeverityDebug || s > SeverityEmergency {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

// ParseSeverity maps a case-insensitive name onto a Severity
func ParseSeverity(name string) (Severity, error) {
	for i, n := range severityNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return Severity(i), nil
		}
	}
	return SeverityError, fmt.Errorf("unknown severity %q", name)
}

// ResponseStatus is the outcome class of a delivery attempt
type ResponseStatus int

const (
	StatusSuccess ResponseStatus = iota
	StatusIgnored
	StatusRequestError
)

func (s ResponseStatus) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusIgnored:
		return "Ignored"
	case StatusRequestError:
		return "RequestError"
	default:
		return fmt.Sprintf("ResponseStatus(%d)", int(s))
	}
}

// MarshalText encodes the status by name so RPC clients see a readable value
func (s ResponseStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a status name
func (s *ResponseStatus) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "success":
		*s = StatusSuccess
	case "ignored":
		*s = StatusIgnored
	case "requesterror":
		*s = StatusRequestError
	default:
		return fmt.Errorf("unknown response status %q", text)
	}
	return nil
}

// Response represents the result of one delivery attempt
type Response struct {
	ID     string         `json:"id,omitempty"`
	URL    string         `json:"url,omitempty"`
	Status ResponseStatus `json:"status"`
}
