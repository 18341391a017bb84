package client

import (
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// authTransport adds the bearer token of the stored session to
// requests sent to the API origin. Other hosts never see the token.
type authTransport struct {
	base   http.RoundTripper
	origin *url.URL
	store  SessionStore
	logger *zap.Logger
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.sameOrigin(req.URL) {
		return t.base.RoundTrip(req)
	}
	session, err := t.store.Load()
	if err != nil {
		t.logger.Warn("failed to load session", zap.Error(err))
		return t.base.RoundTrip(req)
	}
	if !session.LoggedIn() {
		return t.base.RoundTrip(req)
	}
	// a RoundTripper must not modify the caller request.
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+session.Token)
	return t.base.RoundTrip(r)
}

func (t *authTransport) sameOrigin(u *url.URL) bool {
	return strings.EqualFold(u.Scheme, t.origin.Scheme) && strings.EqualFold(u.Host, t.origin.Host)
}
