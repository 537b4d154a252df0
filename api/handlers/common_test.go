package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiser/queryengine/types"
)

func TestWriteJSON_SetsHeadersAndStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusCreated, map[string]string{"a": "b"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "b", body["a"])
}

func TestWriteJSON_NilDataWritesNoBody(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusNoContent, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.Bytes())
}

func TestWriteSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccess(rec, map[string]bool{"ok": true})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWriteError_MapsCodeToStatus(t *testing.T) {
	cases := []struct {
		code types.ErrorCode
		want int
	}{
		{types.ErrInvalidRequest, http.StatusBadRequest},
		{types.ErrUnauthorized, http.StatusUnauthorized},
		{types.ErrForbidden, http.StatusForbidden},
		{types.ErrModelNotFound, http.StatusNotFound},
		{types.ErrRateLimited, http.StatusTooManyRequests},
		{types.ErrQuotaExceeded, http.StatusTooManyRequests},
		{types.ErrContextTooLong, http.StatusRequestEntityTooLarge},
		{types.ErrUpstreamTimeout, http.StatusGatewayTimeout},
		{types.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{types.ErrUpstreamError, http.StatusBadGateway},
		{types.ErrInternalError, http.StatusInternalServerError},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		WriteError(rec, types.NewError(c.code, "boom"), nil)
		assert.Equal(t, c.want, rec.Code, "code %s", c.code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, false, body["success"])
		errBody, ok := body["error"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "boom", errBody["message"])
	}
}

func TestWriteError_HonorsExplicitHTTPStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	err := types.NewError(types.ErrInternalError, "weird")
	err.HTTPStatus = http.StatusTeapot
	WriteError(rec, err, nil)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestWriteErrorMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteErrorMessage(rec, types.ErrInvalidRequest, "bad input", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDecodeJSONBody_RejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"query":"x","bogus":1}`))
	rec := httptest.NewRecorder()
	var dst struct {
		Query string `json:"query"`
	}
	err := DecodeJSONBody(rec, req, &dst)
	require.Error(t, err)
}

func TestDecodeJSONBody_RejectsTrailingData(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"query":"x"}{"query":"y"}`))
	rec := httptest.NewRecorder()
	var dst struct {
		Query string `json:"query"`
	}
	err := DecodeJSONBody(rec, req, &dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "single JSON object")
}

func TestDecodeJSONBody_DecodesValidBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"query":"x"}`))
	rec := httptest.NewRecorder()
	var dst struct {
		Query string `json:"query"`
	}
	err := DecodeJSONBody(rec, req, &dst)
	require.NoError(t, err)
	assert.Equal(t, "x", dst.Query)
}

func TestResponseWriter_CapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)
	assert.Equal(t, http.StatusOK, rw.Status, "defaults to 200 until WriteHeader is called")

	rw.WriteHeader(http.StatusBadGateway)
	assert.Equal(t, http.StatusBadGateway, rw.Status)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestResponseWriter_FlushForwardsWhenSupported(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)
	rw.Flush() // must not panic even though httptest.ResponseRecorder implements Flusher
	assert.True(t, rec.Flushed)
}

func TestDecodeJSONBody_OversizedBodyErrors(t *testing.T) {
	huge := bytes.Repeat([]byte("a"), (1<<20)+1)
	body := append([]byte(`{"query":"`), append(huge, []byte(`"}`)...)...)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	var dst struct {
		Query string `json:"query"`
	}
	err := DecodeJSONBody(rec, req, &dst)
	require.Error(t, err)
}
