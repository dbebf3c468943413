package uploader

import (
	"net/http"

	"github.com/plugsite/plugsite/pkg/catalog"
)

// Authenticator applies credentials to an outgoing HTTPTransport request.
type Authenticator interface {
	Apply(req *http.Request)
}

// BasicAuth authenticates with HTTP Basic credentials.
type BasicAuth struct {
	Username string
	Password string
}

func (b BasicAuth) Apply(req *http.Request) { req.SetBasicAuth(b.Username, b.Password) }

// HeaderAuth authenticates by setting fixed header values, for upload
// endpoints fronted by a reverse proxy that checks a bearer token or an
// API key header instead of Basic auth.
type HeaderAuth struct {
	Headers map[string]string
}

func (h HeaderAuth) Apply(req *http.Request) {
	for k, v := range h.Headers {
		req.Header.Set(k, v)
	}
}

// AuthenticatorFor builds the Authenticator implied by a Site's upload
// credentials, or nil if none are configured.
func AuthenticatorFor(site *catalog.Site) Authenticator {
	if site == nil {
		return nil
	}
	if site.AuthUsername != "" || site.AuthPassword != "" {
		return BasicAuth{Username: site.AuthUsername, Password: site.AuthPassword}
	}
	if site.AuthHeaderName != "" {
		return HeaderAuth{Headers: map[string]string{site.AuthHeaderName: site.AuthHeaderValue}}
	}
	return nil
}
