package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/render"
	"github.com/tendant/content-ledger/pkg/contentledger"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{contentledger.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
	{contentledger.ErrInvalidContentKey, http.StatusBadRequest, "invalid_content_key"},
	{contentledger.ErrInvalidSubject, http.StatusBadRequest, "invalid_subject"},
	{contentledger.ErrContentNotFound, http.StatusNotFound, "content_not_found"},
	{contentledger.ErrContentNotAccessible, http.StatusForbidden, "content_not_accessible"},
	{contentledger.ErrContentAlreadyAccessibleByAccount, http.StatusConflict, "content_already_accessible"},
	{contentledger.ErrInvalidPolicyTransition, http.StatusConflict, "invalid_policy_transition"},
	{contentledger.ErrContentKeyExists, http.StatusConflict, "content_key_exists"},
	{contentledger.ErrValueAbsent, http.StatusNotFound, "value_absent"},
	{contentledger.ErrOverflow, http.StatusConflict, "overflow"},
	{errBadRequest, http.StatusBadRequest, "bad_request"},
}

var errBadRequest = errors.New("bad request")

// StatusFor returns the HTTP status and error code for err
func StatusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
		message = "internal error"
	} else {
		h.logger.WarnContext(r.Context(), "Request rejected", "path", r.URL.Path, "code", code, "error", err)
	}
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: message, Code: code})
}
