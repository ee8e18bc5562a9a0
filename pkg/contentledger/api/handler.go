package api

import (
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"
	"github.com/tendant/content-ledger/pkg/contentledger"
)

// Handler serves the ledger over HTTP
type Handler struct {
	service        contentledger.Service
	auth           *jwtauth.JWTAuth
	headerIdentity bool
	logger         *slog.Logger
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithJWTAuth accepts bearer tokens verified by auth
func WithJWTAuth(auth *jwtauth.JWTAuth) HandlerOption {
	return func(h *Handler) {
		h.auth = auth
	}
}

// WithHeaderIdentity trusts the X-Identity header as the caller
func WithHeaderIdentity(enabled bool) HandlerOption {
	return func(h *Handler) {
		h.headerIdentity = enabled
	}
}

// WithLogger sets the handler logger
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		h.logger = logger
	}
}

// NewHandler creates a new ledger handler
func NewHandler(service contentledger.Service, opts ...HandlerOption) *Handler {
	h := &Handler{service: service}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return h
}

// Routes returns the ledger routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		if h.auth != nil {
			r.Use(jwtauth.Verifier(h.auth))
		}
		r.Use(h.Authenticator)

		r.Post("/contents", h.CreateContent)
		r.Get("/contents", h.ListContent)
		r.Get("/contents/{key}", h.GetContent)
		r.Post("/contents/{key}/leases", h.LeaseContent)
		r.Delete("/contents/{key}/leases/{subject}", h.RevokeLease)

		r.Get("/policies/{subject}/{key}", h.GetAccessPolicy)

		// Routes for the counter
		r.Put("/counter", h.StoreValue)
		r.Post("/counter/increment", h.IncrementValue)
		r.Get("/counter", h.GetValue)
	})

	return r
}

// ContentResponse is the response body for a content item
type ContentResponse struct {
	ContentKey       string `json:"content_key"`
	Fingerprint      []byte `json:"fingerprint"`
	Sequence         uint64 `json:"sequence"`
	SequenceMarker   string `json:"sequence_marker"`
	CreatedTimestamp string `json:"created_timestamp"`
}

func newContentResponse(item *contentledger.ContentItem) ContentResponse {
	seq, _ := item.Sequence()
	return ContentResponse{
		ContentKey:       contentledger.FormatContentKey(item.ContentKey),
		Fingerprint:      item.Fingerprint,
		Sequence:         seq,
		SequenceMarker:   hex.EncodeToString(item.SequenceMarker),
		CreatedTimestamp: item.CreatedTimestamp.String(),
	}
}

// CreateContentRequest is the request body for registering content
type CreateContentRequest struct {
	Fingerprint []byte `json:"fingerprint"`
}

// LeaseRequest is the request body for granting a lease
type LeaseRequest struct {
	Subject string `json:"subject"`
}

// PolicyResponse is the response body for an access policy lookup
type PolicyResponse struct {
	Subject    string                     `json:"subject"`
	ContentKey string                     `json:"content_key"`
	Policy     contentledger.AccessPolicy `json:"policy"`
	HasAccess  bool                       `json:"has_access"`
}

// CounterRequest is the request body for storing the counter
type CounterRequest struct {
	Value *uint32 `json:"value"`
}

// CounterResponse is the response body for counter operations
type CounterResponse struct {
	Value uint32 `json:"value"`
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

// CreateContent registers content for the caller
func (h *Handler) CreateContent(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())

	var req CreateContentRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: invalid request body: %v", errBadRequest, err))
		return
	}

	item, err := h.service.CreateContent(r.Context(), contentledger.CreateContentRequest{
		Caller:      caller,
		Fingerprint: req.Fingerprint,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, newContentResponse(item))
}

// ListContent lists the caller's content
func (h *Handler) ListContent(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())

	items, err := h.service.ListContent(r.Context(), caller)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := make([]ContentResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, newContentResponse(item))
	}
	render.JSON(w, r, resp)
}

// GetContent retrieves one of the caller's content items
func (h *Handler) GetContent(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())
	key, err := contentledger.ParseContentKey(chi.URLParam(r, "key"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	item, err := h.service.GetContent(r.Context(), contentledger.GetContentRequest{Owner: caller, ContentKey: key})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, newContentResponse(item))
}

// LeaseContent grants a lease on the caller's content
func (h *Handler) LeaseContent(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())
	key, err := contentledger.ParseContentKey(chi.URLParam(r, "key"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var req LeaseRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: invalid request body: %v", errBadRequest, err))
		return
	}

	err = h.service.LeaseContent(r.Context(), contentledger.LeaseContentRequest{
		Caller:     caller,
		ContentKey: key,
		Subject:    contentledger.Identity(req.Subject),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevokeLease revokes a lease on the caller's content
func (h *Handler) RevokeLease(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())
	key, err := contentledger.ParseContentKey(chi.URLParam(r, "key"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	err = h.service.RevokeLease(r.Context(), contentledger.RevokeLeaseRequest{
		Caller:     caller,
		ContentKey: key,
		Subject:    contentledger.Identity(chi.URLParam(r, "subject")),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAccessPolicy reports a subject's policy on a content key
func (h *Handler) GetAccessPolicy(w http.ResponseWriter, r *http.Request) {
	subject := chi.URLParam(r, "subject")
	key, err := contentledger.ParseContentKey(chi.URLParam(r, "key"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	policy, err := h.service.GetAccessPolicy(r.Context(), contentledger.AccessPolicyRequest{
		Subject:    contentledger.Identity(subject),
		ContentKey: key,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	render.JSON(w, r, PolicyResponse{
		Subject:    subject,
		ContentKey: contentledger.FormatContentKey(key),
		Policy:     policy,
		HasAccess:  policy.GrantsAccess(),
	})
}

// StoreValue stores the counter
func (h *Handler) StoreValue(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())

	var req CounterRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: invalid request body: %v", errBadRequest, err))
		return
	}
	if req.Value == nil {
		h.writeError(w, r, fmt.Errorf("%w: value is required", errBadRequest))
		return
	}

	if err := h.service.StoreValue(r.Context(), caller, *req.Value); err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, CounterResponse{Value: *req.Value})
}

// IncrementValue increments the counter
func (h *Handler) IncrementValue(w http.ResponseWriter, r *http.Request) {
	caller, _ := IdentityFromContext(r.Context())

	v, err := h.service.IncrementValue(r.Context(), caller)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, CounterResponse{Value: v})
}

// GetValue reads the counter
func (h *Handler) GetValue(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.GetValue(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	render.JSON(w, r, CounterResponse{Value: v})
}
