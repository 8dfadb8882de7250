package airbrake

import (
	"encoding/xml"
	"net/http"
	"sort"
	"strconv"
)

const (
	legacyAPIVersion = "2.3"
	xmlContentType   = "text/xml"
	xmlIndent        = "  "
)

// XMLSerializer speaks the legacy v2 XML protocol. Only the first error entry
// is sent since the schema has room for one.
type XMLSerializer struct {
	APIKey string
}

type xmlNotice struct {
	XMLName           xml.Name              `xml:"notice"`
	Version           string                `xml:"version,attr"`
	APIKey            string                `xml:"api-key"`
	Notifier          *xmlNotifier          `xml:"notifier"`
	Error             *xmlError             `xml:"error"`
	Request           *xmlRequest           `xml:"request,omitempty"`
	ServerEnvironment *xmlServerEnvironment `xml:"server-environment"`
}

type xmlNotifier struct {
	Name    string `xml:"name"`
	Version string `xml:"version"`
	URL     string `xml:"url"`
}

type xmlError struct {
	Class     string     `xml:"class"`
	Message   string     `xml:"message,omitempty"`
	Backtrace []*xmlLine `xml:"backtrace>line"`
}

type xmlLine struct {
	File   string `xml:"file,attr"`
	Number string `xml:"number,attr"`
	Method string `xml:"method,attr,omitempty"`
}

type xmlRequest struct {
	URL       string    `xml:"url"`
	Component string    `xml:"component"`
	Action    string    `xml:"action,omitempty"`
	CGIData   []*xmlVar `xml:"cgi-data>var,omitempty"`
	Params    []*xmlVar `xml:"params>var,omitempty"`
	Session   []*xmlVar `xml:"session>var,omitempty"`
}

type xmlVar struct {
	Key   string `xml:"key,attr"`
	Value string `xml:",chardata"`
}

type xmlServerEnvironment struct {
	ProjectRoot     string `xml:"project-root,omitempty"`
	EnvironmentName string `xml:"environment-name"`
	AppVersion      string `xml:"app-version,omitempty"`
	Hostname        string `xml:"hostname,omitempty"`
}

type xmlResponse struct {
	XMLName xml.Name `xml:"notice"`
	ID      string   `xml:"id"`
	URL     string   `xml:"url"`
}

func (XMLSerializer) ContentType() string {
	return xmlContentType
}

// Serialize writes the notice without an XML declaration or namespace
// attributes, indented by two spaces.
func (s XMLSerializer) Serialize(n *Notice) ([]byte, error) {
	return xml.MarshalIndent(s.toXML(n), "", xmlIndent)
}

// ParseResponse treats 200 OK as success, as the v2 endpoint does
func (XMLSerializer) ParseResponse(statusCode int, body []byte) *Response {
	resp := &Response{Status: StatusRequestError}
	if statusCode == http.StatusOK {
		resp.Status = StatusSuccess
	}

	var payload xmlResponse
	if len(body) > 0 && xml.Unmarshal(body, &payload) == nil {
		resp.ID = payload.ID
		resp.URL = payload.URL
	}
	return resp
}

func (s XMLSerializer) toXML(n *Notice) *xmlNotice {
	ctx := n.Context
	if ctx == nil {
		ctx = &Context{}
	}
	info := ctx.Notifier
	if info == nil {
		info = newNotifierInfo()
	}

	out := &xmlNotice{
		Version:  legacyAPIVersion,
		APIKey:   s.APIKey,
		Notifier: &xmlNotifier{Name: info.Name, Version: info.Version, URL: info.URL},
		Error:    &xmlError{},
		ServerEnvironment: &xmlServerEnvironment{
			ProjectRoot:     ctx.RootDirectory,
			EnvironmentName: ctx.Environment,
			AppVersion:      ctx.Version,
			Hostname:        ctx.Hostname,
		},
	}

	if len(n.Errors) > 0 {
		e := n.Errors[0]
		out.Error.Class = e.Type
		out.Error.Message = e.Message
		for _, f := range e.Backtrace {
			out.Error.Backtrace = append(out.Error.Backtrace, &xmlLine{
				File:   f.File,
				Number: strconv.Itoa(f.Line),
				Method: f.Function,
			})
		}
	}
	if len(out.Error.Backtrace) == 0 {
		for _, f := range fallbackBacktrace() {
			out.Error.Backtrace = append(out.Error.Backtrace, &xmlLine{File: f.File, Number: strconv.Itoa(f.Line)})
		}
	}

	if ctx.URL != "" || len(n.Params) > 0 || len(n.Session) > 0 || len(n.EnvironmentVars) > 0 {
		out.Request = &xmlRequest{
			URL:       ctx.URL,
			Component: ctx.Component,
			Action:    ctx.Action,
			CGIData:   xmlVars(n.EnvironmentVars),
			Params:    xmlVars(n.Params),
			Session:   xmlVars(n.Session),
		}
	}

	return out
}

func xmlVars(m map[string]string) []*xmlVar {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	vars := make([]*xmlVar, 0, len(keys))
	for _, k := range keys {
		vars = append(vars, &xmlVar{Key: k, Value: m[k]})
	}
	return vars
}
