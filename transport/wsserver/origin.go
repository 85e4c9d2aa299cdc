package wsserver

import (
	"net/http"
	"net/url"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/AntonStoeckl/nostr-relay-go/eventstore"
)

const (
	allowAllOrigins = "*"
	headerOrigin    = "Origin"
)

// originValidator returns the CheckOrigin function of the upgrader.
//
// An empty allow-list or "*" accepts every origin. Requests without an Origin header are accepted,
// only browsers are bound by it.
func originValidator(allowedOrigins []string, logger eventstore.Logger) func(*http.Request) bool {
	origins := mapset.NewSet[string]()
	allowAll := len(allowedOrigins) == 0

	for _, origin := range allowedOrigins {
		if origin == allowAllOrigins {
			allowAll = true
		}
		if origin != "" {
			origins.Add(strings.ToLower(origin))
		}
	}

	return func(req *http.Request) bool {
		if _, ok := req.Header[headerOrigin]; !ok {
			return true
		}

		origin := strings.ToLower(req.Header.Get(headerOrigin))
		if allowAll || originIsAllowed(origins, origin) {
			return true
		}

		if logger != nil {
			logger.Warn(logMsgOriginRejected, logAttrOrigin, origin)
		}

		return false
	}
}

func originIsAllowed(allowedOrigins mapset.Set[string], browserOrigin string) bool {
	for _, origin := range allowedOrigins.ToSlice() {
		if ruleAllowsOrigin(origin, browserOrigin) {
			return true
		}
	}

	return false
}

// ruleAllowsOrigin compares scheme, hostname and port, a part missing from the rule matches anything.
func ruleAllowsOrigin(allowedOrigin string, browserOrigin string) bool {
	allowedScheme, allowedHostname, allowedPort, err := parseOriginURL(allowedOrigin)
	if err != nil {
		return false
	}

	browserScheme, browserHostname, browserPort, err := parseOriginURL(browserOrigin)
	if err != nil {
		return false
	}

	if allowedScheme != "" && allowedScheme != browserScheme {
		return false
	}

	if allowedHostname != "" && allowedHostname != browserHostname {
		return false
	}

	if allowedPort != "" && allowedPort != browserPort {
		return false
	}

	return true
}

func parseOriginURL(origin string) (string, string, string, error) {
	parsedURL, err := url.Parse(strings.ToLower(origin))
	if err != nil {
		return "", "", "", err
	}

	if strings.Contains(origin, "://") {
		return parsedURL.Scheme, parsedURL.Hostname(), parsedURL.Port(), nil
	}

	hostname := parsedURL.Scheme
	if hostname == "" {
		hostname = origin
	}

	return "", hostname, parsedURL.Opaque, nil
}
