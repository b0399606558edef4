package testutil

import (
	"net/http"
	"time"

	id "whitelist/pkg/domain"
	"whitelist/pkg/requestcontext"
)

// WithCaller attaches an authenticated caller to the request, as the session
// middleware would. Identities that do not parse are ignored.
func WithCaller(req *http.Request, raw string) *http.Request {
	caller, err := id.ParseIdentity(raw)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithCaller(req.Context(), caller))
}

// WithSession attaches a caller and the network its session was opened on.
func WithSession(req *http.Request, raw string, chainID int64) *http.Request {
	req = WithCaller(req, raw)
	return req.WithContext(requestcontext.WithChainID(req.Context(), chainID))
}

// WithRequestTime pins the request clock.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
