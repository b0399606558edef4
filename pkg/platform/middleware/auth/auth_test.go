package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	id "whitelist/pkg/domain"
	audit "whitelist/pkg/platform/audit"
	"whitelist/pkg/requestcontext"
)

type stubValidator struct {
	claims *SessionClaims
	err    error
}

func (s stubValidator) ValidateToken(string) (*SessionClaims, error) {
	return s.claims, s.err
}

func newProtected(t *testing.T, v SessionValidator, chainID int64) (http.Handler, *id.Identity) {
	t.Helper()
	var seen id.Identity
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := RequireCaller(v, chainID, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.Caller(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	return h, &seen
}

func TestRequireCaller(t *testing.T) {
	const address = "0x5aaeb6053f3e94c9b9a09f33669435e7ef1beaed"

	t.Run("missing header is unauthorized", func(t *testing.T) {
		h, _ := newProtected(t, stubValidator{}, 5)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("invalid token is unauthorized", func(t *testing.T) {
		h, _ := newProtected(t, stubValidator{err: errors.New("bad signature")}, 5)
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer nope")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong chain is rejected with wrong_network", func(t *testing.T) {
		h, _ := newProtected(t, stubValidator{claims: &SessionClaims{Address: address, ChainID: 1}}, 5)
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer token")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "wrong_network")
	})

	t.Run("valid session injects canonical caller", func(t *testing.T) {
		h, seen := newProtected(t, stubValidator{claims: &SessionClaims{Address: address, ChainID: 5}}, 5)
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer token")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, id.Identity("0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"), *seen)
	})

	t.Run("zero expected chain accepts any network", func(t *testing.T) {
		h, _ := newProtected(t, stubValidator{claims: &SessionClaims{Address: "alice", ChainID: 1337}}, 0)
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer token")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}

type recordingEmitter struct {
	events []audit.Event
}

func (r *recordingEmitter) Emit(_ context.Context, event audit.Event) error {
	r.events = append(r.events, event)
	return nil
}

func TestRequireCaller_AuditsWrongNetwork(t *testing.T) {
	emitter := &recordingEmitter{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	v := stubValidator{claims: &SessionClaims{Address: "alice", ChainID: 1}}
	h := RequireCaller(v, 5, logger, WithAuditEmitter(emitter))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for a wrong network")
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	if assert.Len(t, emitter.events, 1) {
		assert.Equal(t, string(audit.EventWrongNetwork), emitter.events[0].Action)
		assert.Equal(t, "alice", emitter.events[0].Subject)
	}
}
