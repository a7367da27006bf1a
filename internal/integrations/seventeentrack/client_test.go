package seventeentrack

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, status int, body string, check func(r *http.Request, body []byte)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if check != nil {
			check(r, b)
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Request_HeadersAndEmptyBody(t *testing.T) {
	srv := newTestServer(t, 200, `{"code":0,"data":[]}`, func(r *http.Request, body []byte) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/gettrackinfo", r.URL.Path)
		require.Equal(t, "secret-key", r.Header.Get("17token"))
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.JSONEq(t, `[]`, string(body))
	})

	pkgs, err := New(srv.URL, "secret-key").GetPackages(context.Background())
	require.NoError(t, err)
	require.Empty(t, pkgs)
}

func TestClient_Request_CodeZeroReturnsData(t *testing.T) {
	srv := newTestServer(t, 200, `{"code":0,"data":[1,2,3]}`, nil)

	got, err := New(srv.URL, "k").request(context.Background(), EndpointGetTrackInfo, nil)
	require.NoError(t, err)
	require.Equal(t, []any{float64(1), float64(2), float64(3)}, got)
}

func TestClient_Request_ObjectWithoutDataReturnedWhole(t *testing.T) {
	srv := newTestServer(t, 200, `{"accepted":[]}`, nil)

	got, err := New(srv.URL, "k").request(context.Background(), EndpointGetTrackInfo, nil)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"accepted": []any{}}, got)
}

func TestClient_Request_CodeTwoHundredIsSuccess(t *testing.T) {
	srv := newTestServer(t, 200, `{"code":200,"data":{"ok":true}}`, nil)

	got, err := New(srv.URL, "k").request(context.Background(), EndpointGetTrackInfo, nil)
	require.NoError(t, err)
	require.Equal(t, map[string]any{"ok": true}, got)
}

func TestClient_Request_HTTP500SynthesizedMessage(t *testing.T) {
	srv := newTestServer(t, 500, `{}`, nil)

	_, err := New(srv.URL, "k").request(context.Background(), EndpointGetTrackInfo, nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "API error (HTTP 500)", apiErr.Message)
	require.Equal(t, 500, apiErr.StatusCode)
}

func TestClient_Request_NonZeroCodeUsesNestedErrorMessage(t *testing.T) {
	srv := newTestServer(t, 200, `{"code":401,"message":"outer","data":{"errors":[{"code":-18010012,"message":"Token Invalid"}]}}`, nil)

	_, err := New(srv.URL, "k").request(context.Background(), EndpointGetTrackInfo, nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "Token Invalid", apiErr.Error())
}

func TestClient_Request_NonZeroCodeFallsBackToMessage(t *testing.T) {
	srv := newTestServer(t, 200, `{"code":-1,"message":"Rate limited","data":{"errors":[]}}`, nil)

	_, err := New(srv.URL, "k").request(context.Background(), EndpointGetTrackInfo, nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "Rate limited", apiErr.Message)
}

func TestClient_Request_InvalidJSONIsTransportError(t *testing.T) {
	srv := newTestServer(t, 200, `<html>bad gateway</html>`, nil)

	_, err := New(srv.URL, "k").request(context.Background(), EndpointGetTrackInfo, nil)
	var trErr *TransportError
	require.True(t, errors.As(err, &trErr))
	require.Equal(t, EndpointGetTrackInfo, trErr.Endpoint)
}

func TestClient_Request_ConnectionErrorIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(url, "k").request(context.Background(), EndpointGetTrackInfo, nil)
	var trErr *TransportError
	require.True(t, errors.As(err, &trErr))
}

func TestClient_Request_TimeoutIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "k").WithTimeout(20*time.Millisecond).request(context.Background(), EndpointGetTrackInfo, nil)
	var trErr *TransportError
	require.True(t, errors.As(err, &trErr))
}

func TestClient_ValidateToken(t *testing.T) {
	cases := []struct {
		name string
		code int
		body string
		want bool
	}{
		{"ok", 200, `{"code":0,"data":{"accepted":[],"rejected":[]}}`, true},
		{"token invalid", 401, `{"message":"Token Invalid"}`, false},
		{"rate limited", 429, `{"message":"Rate limited"}`, true},
		{"invalid in nested error", 200, `{"code":1,"data":{"errors":[{"message":"INVALID access"}]}}`, false},
		{"synthesized message", 503, `{}`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, tc.code, tc.body, nil)
			ok, err := New(srv.URL, "k").ValidateToken(context.Background())
			require.NoError(t, err)
			require.Equal(t, tc.want, ok)
		})
	}
}

func TestClient_ValidateToken_TransportErrorPropagates(t *testing.T) {
	srv := newTestServer(t, 200, `not json`, nil)

	ok, err := New(srv.URL, "k").ValidateToken(context.Background())
	require.False(t, ok)
	var trErr *TransportError
	require.True(t, errors.As(err, &trErr))
}

func TestClient_GetPackages_Shapes(t *testing.T) {
	rec := `{"number":"RR123","track_info":{"latest_status":{"status":"InTransit"}}}`
	cases := []struct {
		name string
		body string
	}{
		{"bare array in data", `{"code":0,"data":[` + rec + `,"junk",42]}`},
		{"bare array top level", `[` + rec + `]`},
		{"accepted", `{"code":0,"data":{"accepted":[` + rec + `],"rejected":[]}}`},
		{"items", `{"data":{"items":[` + rec + `]}}`},
		{"empty accepted falls through to items", `{"data":{"accepted":[],"items":[` + rec + `]}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newTestServer(t, 200, tc.body, nil)
			pkgs, err := New(srv.URL, "k").GetPackages(context.Background())
			require.NoError(t, err)
			require.Len(t, pkgs, 1)
			require.Equal(t, "RR123", pkgs[0].TrackingNumber)
			require.Equal(t, "InTransit", pkgs[0].Status)
		})
	}
}

func TestClient_GetPackages_SkipsRecordsWithoutNumber(t *testing.T) {
	srv := newTestServer(t, 200, `{"data":[{"number":"A"},{"number":""},{"title":"no number"},{"number":null},{"number":"B"}]}`, nil)

	pkgs, err := New(srv.URL, "k").GetPackages(context.Background())
	require.NoError(t, err)
	require.Len(t, pkgs, 2)
	require.Equal(t, "A", pkgs[0].TrackingNumber)
	require.Equal(t, "B", pkgs[1].TrackingNumber)
}

func TestClient_GetPackages_UnknownShapeIsEmpty(t *testing.T) {
	srv := newTestServer(t, 200, `{"data":{"accepted":{"number":"A"}}}`, nil)

	pkgs, err := New(srv.URL, "k").GetPackages(context.Background())
	require.NoError(t, err)
	require.Empty(t, pkgs)
}

func TestClient_AddPackage_Body(t *testing.T) {
	srv := newTestServer(t, 200, `{"code":0,"data":{"accepted":[{"number":"RR1"}]}}`, func(r *http.Request, body []byte) {
		require.Equal(t, "/register", r.URL.Path)
		var got []map[string]string
		require.NoError(t, json.Unmarshal(body, &got))
		require.Equal(t, []map[string]string{{"number": "RR1", "title": "Shoes"}}, got)
	})

	require.NoError(t, New(srv.URL, "k").AddPackage(context.Background(), "RR1", "Shoes"))
}

func TestClient_ArchivePackage_Body(t *testing.T) {
	srv := newTestServer(t, 200, `{"code":0,"data":{}}`, func(r *http.Request, body []byte) {
		require.Equal(t, "/delete", r.URL.Path)
		require.JSONEq(t, `[{"number":"RR1"}]`, string(body))
	})

	require.NoError(t, New(srv.URL, "k").ArchivePackage(context.Background(), "RR1"))
}

func TestClient_ArchivePackage_ErrorPropagates(t *testing.T) {
	srv := newTestServer(t, 400, `{"message":"not registered"}`, nil)

	err := New(srv.URL, "k").ArchivePackage(context.Background(), "RR1")
	require.EqualError(t, err, "not registered")
}

func TestAccountID(t *testing.T) {
	require.Equal(t, "89abcdef", AccountID("0123456789abcdef"))
	require.Equal(t, "short", AccountID("short"))
}
