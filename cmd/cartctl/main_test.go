package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	UserID string
	Body   map[string]any
}

func newTestAPI(t *testing.T, status int, payload string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var reqs []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{Method: r.Method, Path: r.URL.EscapedPath(), UserID: r.Header.Get("X-User-ID")}
		if r.ContentLength > 0 {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&rec.Body))
		}
		reqs = append(reqs, rec)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(payload))
	}))
	t.Cleanup(srv.Close)
	return srv, &reqs
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

const cartPayload = `{"data":{"lines":[{"product_id":"venue-1","name":"Garden venue","unit_price":150000,"quantity":2}],
"total_quantity":1,"total_price":300000,"status":"idle","version":3,"recently_added":["venue-1"]}}`

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func TestShow(t *testing.T) {
	srv, reqs := newTestAPI(t, http.StatusOK, cartPayload)

	out, err := runCLI(t, "show", "--api-url", srv.URL, "--user", "bride-1")
	require.NoError(t, err)

	require.Len(t, *reqs, 1)
	assert.Equal(t, http.MethodGet, (*reqs)[0].Method)
	assert.Equal(t, "/api/v1/cart", (*reqs)[0].Path)
	assert.Equal(t, "bride-1", (*reqs)[0].UserID)

	assert.Contains(t, out, "Garden venue")
	assert.Contains(t, out, "1500.00")
	assert.Contains(t, out, "3000.00")
	assert.Contains(t, out, "added")
	assert.Contains(t, out, "version 3")
}

func TestShow_EmptyCart(t *testing.T) {
	srv, _ := newTestAPI(t, http.StatusOK, `{"data":{"lines":[],"total_quantity":0,"total_price":0,"status":"idle","version":0}}`)

	out, err := runCLI(t, "show", "--api-url", srv.URL, "-u", "bride-1")
	require.NoError(t, err)
	assert.Equal(t, "cart is empty (status idle, version 0)\n", out)
}

func TestAdd(t *testing.T) {
	srv, reqs := newTestAPI(t, http.StatusOK, cartPayload)

	_, err := runCLI(t, "add", "venue-1", "--api-url", srv.URL, "--user", "bride-1",
		"--name", "Garden venue", "--price", "150000", "-q", "2", "--category", "venues")
	require.NoError(t, err)

	require.Len(t, *reqs, 1)
	r := (*reqs)[0]
	assert.Equal(t, http.MethodPost, r.Method)
	assert.Equal(t, "/api/v1/cart/items", r.Path)
	assert.Equal(t, "venue-1", r.Body["product_id"])
	assert.Equal(t, "Garden venue", r.Body["name"])
	assert.Equal(t, "venues", r.Body["category"])
	assert.EqualValues(t, 150000, r.Body["unit_price"])
	assert.EqualValues(t, 2, r.Body["quantity"])
}

func TestAdd_NameDefaultsToProductID(t *testing.T) {
	srv, reqs := newTestAPI(t, http.StatusOK, cartPayload)

	_, err := runCLI(t, "add", "dj-7", "--api-url", srv.URL, "--user", "bride-1")
	require.NoError(t, err)
	assert.Equal(t, "dj-7", (*reqs)[0].Body["name"])
	assert.EqualValues(t, 1, (*reqs)[0].Body["quantity"])
}

func TestRemove_EscapesProductID(t *testing.T) {
	srv, reqs := newTestAPI(t, http.StatusOK, cartPayload)

	_, err := runCLI(t, "rm", "cake/2", "--api-url", srv.URL, "--user", "bride-1")
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, (*reqs)[0].Method)
	assert.Equal(t, "/api/v1/cart/items/cake%2F2", (*reqs)[0].Path)
}

func TestClear(t *testing.T) {
	srv, reqs := newTestAPI(t, http.StatusOK, `{"data":{"lines":[],"status":"idle","version":4}}`)

	out, err := runCLI(t, "clear", "--api-url", srv.URL, "--user", "bride-1")
	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, (*reqs)[0].Method)
	assert.Equal(t, "/api/v1/cart", (*reqs)[0].Path)
	assert.Contains(t, out, "version 4")
}

func TestCheckout_Pending(t *testing.T) {
	srv, reqs := newTestAPI(t, http.StatusAccepted, `{"data":{"payment_id":"pay-1","payment_status":"pending",
"checkout_url":"https://pay.example/pay-1","cart":{"lines":[],"status":"paying","version":5}}}`)

	out, err := runCLI(t, "checkout", "--api-url", srv.URL, "--user", "bride-1")
	require.NoError(t, err)
	assert.Equal(t, "/api/v1/cart/checkout", (*reqs)[0].Path)
	assert.Contains(t, out, "payment pay-1: pending")
	assert.Contains(t, out, "https://pay.example/pay-1")
	assert.Contains(t, out, "status paying")
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func TestAPIErrorIsReported(t *testing.T) {
	srv, _ := newTestAPI(t, http.StatusBadRequest, `{"error":{"code":"INVALID_INPUT","message":"cart is empty"}}`)

	_, err := runCLI(t, "checkout", "--api-url", srv.URL, "--user", "bride-1")
	require.Error(t, err)

	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "INVALID_INPUT", apiErr.Code)
	assert.Equal(t, "cart is empty", apiErr.Message)
}

func TestMissingUser(t *testing.T) {
	t.Setenv("CARTCTL_USER_ID", "")

	_, err := runCLI(t, "show", "--api-url", "http://localhost:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no user")
}

func TestUserFromEnvironment(t *testing.T) {
	srv, reqs := newTestAPI(t, http.StatusOK, cartPayload)
	t.Setenv("CARTCTL_USER_ID", "groom-2")
	t.Setenv("CARTCTL_API_URL", srv.URL)

	_, err := runCLI(t, "show")
	require.NoError(t, err)
	assert.Equal(t, "groom-2", (*reqs)[0].UserID)
}

func TestInvalidAPIURL(t *testing.T) {
	_, err := runCLI(t, "show", "--api-url", "not a url", "--user", "bride-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid API URL")
}

func TestFormatCents(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0.00"},
		{5, "0.05"},
		{1000, "10.00"},
		{123456, "1234.56"},
		{-250, "-2.50"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatCents(tt.in))
	}
}
