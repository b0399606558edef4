// Package handler exposes the whitelist over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"whitelist/internal/admission/models"
	id "whitelist/pkg/domain"
	dErrors "whitelist/pkg/domain-errors"
	"whitelist/pkg/platform/httputil"
	request "whitelist/pkg/platform/middleware/request"
	"whitelist/pkg/requestcontext"
)

const maxBodyBytes = 64 << 10

// Service defines the registry operations the HTTP layer needs.
type Service interface {
	Registry(ctx context.Context) (models.Registry, error)
	Status(ctx context.Context, caller id.Identity) (models.Status, error)
	IsMember(ctx context.Context, identity id.Identity) (bool, error)
	Membership(ctx context.Context, identities []id.Identity) (map[id.Identity]bool, error)
	Register(ctx context.Context, caller id.Identity) (models.Admission, error)
}

// Handler handles whitelist endpoints.
type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the whitelist routes. Reads are public; /me and /register
// sit behind requireCaller, which establishes the session identity.
func (h *Handler) Register(r chi.Router, requireCaller func(http.Handler) http.Handler) {
	r.Route("/v1/whitelist", func(r chi.Router) {
		r.Get("/", h.handleRegistry)
		r.Get("/members/{identity}", h.handleMember)
		r.Post("/members/lookup", h.handleLookup)

		r.Group(func(r chi.Router) {
			r.Use(requireCaller)
			r.Get("/me", h.handleMe)
			r.Post("/register", h.handleRegister)
		})
	})
}

func (h *Handler) handleRegistry(w http.ResponseWriter, r *http.Request) {
	reg, err := h.svc.Registry(r.Context())
	if err != nil {
		h.writeError(r.Context(), w, "get whitelist", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRegistryResponse(reg))
}

func (h *Handler) handleMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw, err := pathParam(r, "identity")
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed identity in path"))
		return
	}
	identity, err := id.ParseIdentity(raw)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	member, err := h.svc.IsMember(ctx, identity)
	if err != nil {
		h.writeError(ctx, w, "check member", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MemberResponse{Identity: identity.String(), Member: member})
}

// pathParam returns the decoded value of a route parameter. chi matches on
// RawPath when the request carries one, leaving escapes such as %2F in place.
func pathParam(r *http.Request, key string) (string, error) {
	v := chi.URLParam(r, key)
	if r.URL.RawPath == "" {
		return v, nil
	}
	return url.PathUnescape(v)
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LookupRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "invalid lookup request",
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	identities, err := req.Parse()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	members, err := h.svc.Membership(ctx, identities)
	if err != nil {
		h.writeError(ctx, w, "lookup members", err)
		return
	}
	resp := LookupResponse{Members: make(map[string]bool, len(members))}
	for identity, ok := range members {
		resp.Members[identity.String()] = ok
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.requireCaller(ctx, w)
	if !ok {
		return
	}

	status, err := h.svc.Status(ctx, caller)
	if err != nil {
		h.writeError(ctx, w, "get status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toStatusResponse(caller, requestcontext.ChainID(ctx), status))
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	caller, ok := h.requireCaller(ctx, w)
	if !ok {
		return
	}

	adm, err := h.svc.Register(ctx, caller)
	if err != nil {
		h.writeError(ctx, w, "register", err)
		return
	}

	status := http.StatusOK
	if adm.Created {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, toRegisterResponse(adm))
}

func (h *Handler) requireCaller(ctx context.Context, w http.ResponseWriter) (id.Identity, bool) {
	caller := requestcontext.Caller(ctx)
	if caller.IsNil() {
		// only reachable when the route is mounted without the session middleware
		h.logger.ErrorContext(ctx, "caller missing from context despite session middleware",
			"request_id", request.GetRequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "a connected identity is required"))
		return "", false
	}
	return caller, true
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	de, ok := dErrors.As(err)
	if !ok || de.Code == dErrors.CodeInternal || de.Code == dErrors.CodeTimeout {
		h.logger.ErrorContext(ctx, "failed to "+op,
			"request_id", request.GetRequestID(ctx),
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}

// RegistryResponse is the public view of the whitelist.
type RegistryResponse struct {
	Capacity  int       `json:"capacity"`
	Count     int       `json:"count"`
	Remaining int       `json:"remaining"`
	Full      bool      `json:"full"`
	CreatedAt time.Time `json:"created_at"`
}

func toRegistryResponse(reg models.Registry) RegistryResponse {
	return RegistryResponse{
		Capacity:  reg.Capacity,
		Count:     reg.Count,
		Remaining: reg.Remaining(),
		Full:      reg.Full(),
		CreatedAt: reg.CreatedAt,
	}
}

type MemberResponse struct {
	Identity string `json:"identity"`
	Member   bool   `json:"member"`
}

type LookupRequest struct {
	Identities []string `json:"identities"`
}

// Parse canonicalises every identity, failing on the first invalid one.
func (r LookupRequest) Parse() ([]id.Identity, error) {
	out := make([]id.Identity, 0, len(r.Identities))
	for _, raw := range r.Identities {
		identity, err := id.ParseIdentity(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, identity)
	}
	return out, nil
}

type LookupResponse struct {
	Members map[string]bool `json:"members"`
}

// StatusResponse is what a connected client renders: how many have joined and
// whether the caller is one of them.
type StatusResponse struct {
	Identity  string `json:"identity"`
	ChainID   int64  `json:"chain_id,omitempty"`
	Capacity  int    `json:"capacity"`
	Count     int    `json:"count"`
	Remaining int    `json:"remaining"`
	Joined    bool   `json:"joined"`
}

func toStatusResponse(caller id.Identity, chainID int64, s models.Status) StatusResponse {
	return StatusResponse{
		Identity:  caller.String(),
		ChainID:   chainID,
		Capacity:  s.Capacity,
		Count:     s.Count,
		Remaining: s.Remaining,
		Joined:    s.Joined,
	}
}

type RegisterResponse struct {
	Identity   string    `json:"identity"`
	Seq        int       `json:"seq"`
	AdmittedAt time.Time `json:"admitted_at"`
	Created    bool      `json:"created"`
	Count      int       `json:"count"`
}

func toRegisterResponse(adm models.Admission) RegisterResponse {
	return RegisterResponse{
		Identity:   adm.Member.Identity.String(),
		Seq:        adm.Member.Seq,
		AdmittedAt: adm.Member.AdmittedAt,
		Created:    adm.Created,
		Count:      adm.Count,
	}
}
