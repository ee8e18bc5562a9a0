package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/content-ledger/pkg/contentledger"
	"github.com/tendant/content-ledger/pkg/contentledger/repo/memory"
)

const testSecret = "test-secret"

func setupHandlerTest(t *testing.T) (http.Handler, contentledger.Service) {
	t.Helper()
	svc, err := contentledger.New(
		contentledger.WithRepository(memory.New()),
		contentledger.WithClock(contentledger.NewSteppingClock(1, 1)),
		contentledger.WithRandomness(contentledger.RandomnessFunc(func(subject []byte) []byte {
			// the stepping clock gives every subject a distinct seed
			return append([]byte(nil), subject[8:12]...)
		})),
	)
	require.NoError(t, err)

	handler := NewHandler(svc, WithJWTAuth(NewJWTAuth(testSecret)), WithHeaderIdentity(true))
	return handler.Routes(), svc
}

func do(t *testing.T, router http.Handler, method, path, who string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if who != "" {
		req.Header.Set(IdentityHeader, who)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createContent(t *testing.T, router http.Handler, who string) ContentResponse {
	t.Helper()
	w := do(t, router, http.MethodPost, "/contents", who, CreateContentRequest{Fingerprint: []byte("OMG")})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp ContentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealth(t *testing.T) {
	router, _ := setupHandlerTest(t)
	w := do(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestCreateAndGetContent(t *testing.T) {
	router, _ := setupHandlerTest(t)

	created := createContent(t, router, "alice")
	assert.Len(t, created.ContentKey, 36)
	assert.Equal(t, []byte("OMG"), created.Fingerprint)
	assert.Equal(t, uint64(1), created.Sequence)
	assert.Equal(t, "0000000000000001", created.SequenceMarker)
	assert.Equal(t, "1", created.CreatedTimestamp)

	w := do(t, router, http.MethodGet, "/contents/"+created.ContentKey, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got ContentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, created, got)

	w = do(t, router, http.MethodGet, "/contents/"+created.ContentKey, "bob", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "content_not_found", decodeError(t, w).Code)

	w = do(t, router, http.MethodGet, "/contents/not-a-key", "alice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateContentLogsOnce(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	svc, err := contentledger.New(
		contentledger.WithRepository(memory.New()),
		contentledger.WithLogger(logger),
	)
	require.NoError(t, err)
	router := NewHandler(svc, WithHeaderIdentity(true), WithLogger(logger)).Routes()

	createContent(t, router, "alice")
	assert.Equal(t, 1, strings.Count(logs.String(), "Content created"), logs.String())
}

func TestListContent(t *testing.T) {
	router, _ := setupHandlerTest(t)
	first := createContent(t, router, "alice")
	second := createContent(t, router, "alice")
	createContent(t, router, "bob")

	w := do(t, router, http.MethodGet, "/contents", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var items []ContentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	require.Len(t, items, 2)
	assert.Equal(t, first.ContentKey, items[0].ContentKey)
	assert.Equal(t, second.ContentKey, items[1].ContentKey)

	w = do(t, router, http.MethodGet, "/contents", "carol", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestLeaseLifecycle(t *testing.T) {
	router, _ := setupHandlerTest(t)
	item := createContent(t, router, "alice")
	leases := "/contents/" + item.ContentKey + "/leases"
	policy := "/policies/bob/" + item.ContentKey

	w := do(t, router, http.MethodPost, leases, "alice", LeaseRequest{Subject: "bob"})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	w = do(t, router, http.MethodGet, policy, "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp PolicyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, contentledger.ContentLeaseAssigned, resp.Policy)
	assert.True(t, resp.HasAccess)

	w = do(t, router, http.MethodPost, leases, "alice", LeaseRequest{Subject: "bob"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "content_already_accessible", decodeError(t, w).Code)

	w = do(t, router, http.MethodDelete, leases+"/bob", "alice", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, router, http.MethodGet, policy, "alice", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, contentledger.ContentLeaseRevoked, resp.Policy)
	assert.False(t, resp.HasAccess)

	w = do(t, router, http.MethodDelete, leases+"/bob", "alice", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_policy_transition", decodeError(t, w).Code)

	w = do(t, router, http.MethodDelete, leases+"/carol", "alice", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLeaseValidation(t *testing.T) {
	router, _ := setupHandlerTest(t)
	item := createContent(t, router, "alice")

	w := do(t, router, http.MethodPost, "/contents/"+item.ContentKey+"/leases", "alice", LeaseRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_subject", decodeError(t, w).Code)

	w = do(t, router, http.MethodPost, "/contents/"+item.ContentKey+"/leases", "bob", LeaseRequest{Subject: "carol"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCounter(t *testing.T) {
	router, _ := setupHandlerTest(t)

	w := do(t, router, http.MethodGet, "/counter", "alice", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "value_absent", decodeError(t, w).Code)

	w = do(t, router, http.MethodPut, "/counter", "alice", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, router, http.MethodPut, "/counter", "alice", map[string]any{"value": 4294967294})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, router, http.MethodPost, "/counter/increment", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"value":4294967295}`, w.Body.String())

	w = do(t, router, http.MethodPost, "/counter/increment", "alice", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "overflow", decodeError(t, w).Code)

	w = do(t, router, http.MethodGet, "/counter", "alice", nil)
	assert.JSONEq(t, `{"value":4294967295}`, w.Body.String())
}

func TestAuthentication(t *testing.T) {
	router, _ := setupHandlerTest(t)

	t.Run("missing identity", func(t *testing.T) {
		w := do(t, router, http.MethodGet, "/contents", "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "unauthenticated", decodeError(t, w).Code)
	})

	t.Run("bearer token", func(t *testing.T) {
		token, err := IssueToken(testSecret, "dave", time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/contents", bytes.NewReader([]byte(`{"fingerprint":"T01H"}`)))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set(IdentityHeader, "mallory")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		w = do(t, router, http.MethodGet, "/contents", "dave", nil)
		var items []ContentResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
		assert.Len(t, items, 1, "token subject owns the content")
	})

	t.Run("token signed with another secret", func(t *testing.T) {
		token, err := IssueToken("other-secret", "dave", time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/contents", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("header identity disabled", func(t *testing.T) {
		svc, err := contentledger.New(contentledger.WithRepository(memory.New()))
		require.NoError(t, err)
		strict := NewHandler(svc, WithJWTAuth(NewJWTAuth(testSecret))).Routes()

		w := do(t, strict, http.MethodGet, "/contents", "alice", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("issue token requires subject", func(t *testing.T) {
		_, err := IssueToken(testSecret, "", time.Hour)
		assert.Error(t, err)
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{&contentledger.LedgerError{Op: "x", Err: contentledger.ErrContentNotFound}, http.StatusNotFound},
		{contentledger.ErrContentNotAccessible, http.StatusForbidden},
		{contentledger.ErrContentAlreadyAccessibleByAccount, http.StatusConflict},
		{contentledger.ErrInvalidPolicyTransition, http.StatusConflict},
		{contentledger.ErrContentKeyExists, http.StatusConflict},
		{contentledger.ErrOverflow, http.StatusConflict},
		{contentledger.ErrValueAbsent, http.StatusNotFound},
		{contentledger.ErrUnauthenticated, http.StatusUnauthorized},
		{contentledger.ErrInvalidContentKey, http.StatusBadRequest},
		{contentledger.ErrInvalidSubject, http.StatusBadRequest},
		{assert.AnError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			status, _ := StatusFor(tt.err)
			assert.Equal(t, tt.status, status)
		})
	}
}
