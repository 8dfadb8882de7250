package airbrake

import (
	"net/url"
	"strings"

	"github.com/roadrunner-server/errors"
)

// DefaultHost is the public Airbrake endpoint used when no host is configured
const DefaultHost = "https://api.airbrake.io"

// NoticesURL builds the v3 notices endpoint:
// {host}/api/v3/projects/{projectID}/notices?key={projectKey}
func NoticesURL(host, projectID, projectKey string) (string, error) {
	const op = errors.Op("airbrake_notices_url")

	if projectID == "" {
		return "", errors.E(op, ErrProjectIDRequired)
	}
	if projectKey == "" {
		return "", errors.E(op, ErrProjectKeyRequired)
	}

	return normalizeHost(host) + "/api/v3/projects/" + url.PathEscape(projectID) +
		"/notices?key=" + url.QueryEscape(projectKey), nil
}

// LegacyNoticesURL builds the v2 XML endpoint; the API key travels in the body
func LegacyNoticesURL(host string) string {
	return normalizeHost(host) + "/notifier_api/v2/notices"
}

func normalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		host = DefaultHost
	}
	return strings.TrimSuffix(host, "/")
}
