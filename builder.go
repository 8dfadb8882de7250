package airbrake

import (
	"reflect"
	"strings"
)

// NoticeBuilder assembles a Notice step by step. ToNotice always returns the
// same instance.
type NoticeBuilder struct {
	notice *Notice
}

// NewNoticeBuilder creates a builder around an empty notice
func NewNoticeBuilder() *NoticeBuilder {
	return &NoticeBuilder{notice: NewNotice()}
}

// SetErrorEntries records err and its first causes (at most four entries).
// Action and component default to the first frame of the first entry.
func (b *NoticeBuilder) SetErrorEntries(err error) {
	b.notice.Exception = err
	if err == nil {
		return
	}

	levels := errorChain(err, maxErrorEntries)
	entries := make([]*ErrorEntry, 0, len(levels))
	for _, level := range levels {
		entries = append(entries, newErrorEntry(level))
	}
	b.notice.Errors = entries

	if len(entries) > 0 && len(entries[0].Backtrace) > 0 {
		frame := entries[0].Backtrace[0]
		b.notice.Context.Action = frame.Function
		b.notice.Context.Component = frame.File
	}
}

// SetConfigurationContext copies the environment name and app version
func (b *NoticeBuilder) SetConfigurationContext(cfg *Config) {
	if cfg == nil {
		return
	}
	b.notice.Context.Environment = cfg.Environment
	b.notice.Context.Version = cfg.AppVersion
}

// SetEnvironmentContext sets host, OS and language together. It is skipped only
// when all three are empty.
func (b *NoticeBuilder) SetEnvironmentContext(hostName, osVersion, langVersion string) {
	if hostName == "" && osVersion == "" && langVersion == "" {
		return
	}
	b.notice.Context.Hostname = hostName
	b.notice.Context.OS = osVersion
	b.notice.Context.Language = langVersion
}

// SetSeverity stores the lowercase severity name
func (b *NoticeBuilder) SetSeverity(severity Severity) {
	b.notice.Context.Severity = strings.ToLower(severity.String())
}

// SetHTTPContext copies request data into the notice. Parameters, environment
// variables and session values go through filter when it is non-nil. A nil
// context, including a nil pointer stored in the interface, is ignored.
func (b *NoticeBuilder) SetHTTPContext(hc HTTPContext, filter *ParameterFilter) {
	if isNilContext(hc) {
		return
	}

	n := b.notice
	n.HTTPContext = hc

	n.Context.URL = hc.URL()
	n.Context.UserAgent = hc.UserAgent()

	if origin, ok := hc.(RequestOrigin); ok {
		n.Context.UserAddr = origin.UserAddr()
		n.Context.RootDirectory = origin.RootDirectory()
	}

	if action, component := hc.Action(), hc.Component(); action != "" && component != "" {
		n.Context.Action = action
		n.Context.Component = component
	}

	n.Context.User = &User{
		ID:    hc.UserID(),
		Name:  hc.UserName(),
		Email: hc.UserEmail(),
	}

	if filter == nil {
		n.Params = hc.Parameters()
		n.EnvironmentVars = hc.EnvironmentVars()
		n.Session = hc.Session()
		return
	}

	n.Params = filter.Apply(hc.Parameters())
	n.EnvironmentVars = filter.Apply(hc.EnvironmentVars())
	n.Session = filter.Apply(hc.Session())
}

func isNilContext(hc HTTPContext) bool {
	if hc == nil {
		return true
	}
	switch v := reflect.ValueOf(hc); v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// ToNotice returns the notice being built
func (b *NoticeBuilder) ToNotice() *Notice {
	return b.notice
}
