package mindbody

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kennangle/studio-insights-api/pkg/config"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := NewClient(config.MindbodyConfig{
		BaseURL:        srv.URL,
		APIKey:         "test-key",
		SiteID:         "-99",
		Username:       "owner",
		Password:       "secret",
		PageSize:       2,
		RequestTimeout: 2 * time.Second,
		TokenTTL:       time.Hour,
	}, nil)
	client.retryWait = time.Millisecond
	return client, srv
}

func tokenHandler(issued *int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(issued, 1)
		json.NewEncoder(w).Encode(map[string]string{"AccessToken": fmt.Sprintf("token-%d", atomic.LoadInt32(issued))})
	}
}

func TestClientReusesCachedToken(t *testing.T) {
	var issued int32
	mux := http.NewServeMux()
	mux.HandleFunc("/usertoken/issue", tokenHandler(&issued))
	mux.HandleFunc("/client/clients", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Clients": []}`))
	})
	client, _ := newTestClient(t, mux)

	var out map[string]json.RawMessage
	require.NoError(t, client.Get(context.Background(), "/client/clients", nil, &out))
	require.NoError(t, client.Get(context.Background(), "/client/clients", nil, &out))
	require.Equal(t, int32(1), atomic.LoadInt32(&issued))
	// one token issue plus two data calls
	require.Equal(t, int64(3), client.CallCount())
}

func TestClientRefreshesTokenOnceOn401(t *testing.T) {
	var issued int32
	var dataCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/usertoken/issue", tokenHandler(&issued))
	mux.HandleFunc("/client/clients", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&dataCalls, 1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"Clients": []}`))
	})
	client, _ := newTestClient(t, mux)

	var out map[string]json.RawMessage
	require.NoError(t, client.Get(context.Background(), "/client/clients", nil, &out))
	require.Equal(t, int32(2), atomic.LoadInt32(&issued))
	require.Equal(t, int32(2), atomic.LoadInt32(&dataCalls))
}

func TestClientPersistent401IsAuthFailure(t *testing.T) {
	var issued int32
	mux := http.NewServeMux()
	mux.HandleFunc("/usertoken/issue", tokenHandler(&issued))
	mux.HandleFunc("/client/clients", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	client, _ := newTestClient(t, mux)

	err := client.Get(context.Background(), "/client/clients", nil, nil)
	require.Error(t, err)
	require.Equal(t, KindAuth, KindOf(err))
}

func TestClientRetriesServerErrorsWithBackoff(t *testing.T) {
	var issued int32
	var dataCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/usertoken/issue", tokenHandler(&issued))
	mux.HandleFunc("/class/classes", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&dataCalls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"Classes": []}`))
	})
	client, _ := newTestClient(t, mux)

	var out map[string]json.RawMessage
	require.NoError(t, client.Get(context.Background(), "/class/classes", nil, &out))
	require.Equal(t, int32(3), atomic.LoadInt32(&dataCalls))
}

func TestClientExhaustedRetriesSurfaceServerKind(t *testing.T) {
	var issued int32
	mux := http.NewServeMux()
	mux.HandleFunc("/usertoken/issue", tokenHandler(&issued))
	mux.HandleFunc("/class/classes", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	client, _ := newTestClient(t, mux)

	err := client.Get(context.Background(), "/class/classes", nil, nil)
	require.Error(t, err)
	require.Equal(t, KindServer, KindOf(err))
}

func TestClientDoesNotRetryRateLimit(t *testing.T) {
	var issued int32
	var dataCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/usertoken/issue", tokenHandler(&issued))
	mux.HandleFunc("/sale/sales", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&dataCalls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	})
	client, _ := newTestClient(t, mux)

	err := client.Get(context.Background(), "/sale/sales", nil, nil)
	require.Error(t, err)
	require.Equal(t, KindRateLimit, KindOf(err))
	require.Equal(t, int32(1), atomic.LoadInt32(&dataCalls))
}

func TestFetchPageAdvancesByAtLeastPageSize(t *testing.T) {
	var issued int32
	mux := http.NewServeMux()
	mux.HandleFunc("/usertoken/issue", tokenHandler(&issued))
	mux.HandleFunc("/client/clients", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "2", r.URL.Query().Get("Limit"))
		require.Equal(t, "0", r.URL.Query().Get("Offset"))
		// page under-filled relative to the reported total
		w.Write([]byte(`{"PaginationResponse": {"TotalResults": 10}, "Clients": [{"Id": "a"}]}`))
	})
	client, _ := newTestClient(t, mux)

	page, err := client.FetchPage(context.Background(), "/client/clients", "Clients", nil, 0)
	require.NoError(t, err)
	require.Len(t, page.Results, 1)
	require.Equal(t, 10, page.TotalResults)
	require.Equal(t, 2, page.NextOffset)
	require.True(t, page.HasMore)
}

func TestFetchPageEmptyPageTerminatesDespiteTotal(t *testing.T) {
	var issued int32
	mux := http.NewServeMux()
	mux.HandleFunc("/usertoken/issue", tokenHandler(&issued))
	mux.HandleFunc("/client/clients", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"PaginationResponse": {"TotalResults": 500}, "Clients": []}`))
	})
	client, _ := newTestClient(t, mux)

	page, err := client.FetchPage(context.Background(), "/client/clients", "Clients", nil, 40)
	require.NoError(t, err)
	require.Empty(t, page.Results)
	require.False(t, page.HasMore)
	require.Equal(t, 40, page.NextOffset)
}

func TestFetchPageLastPageHasNoMore(t *testing.T) {
	var issued int32
	mux := http.NewServeMux()
	mux.HandleFunc("/usertoken/issue", tokenHandler(&issued))
	mux.HandleFunc("/client/clients", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"PaginationResponse": {"TotalResults": 4}, "Clients": [{"Id": "c"}, {"Id": "d"}]}`))
	})
	client, _ := newTestClient(t, mux)

	page, err := client.FetchPage(context.Background(), "/client/clients", "Clients", nil, 2)
	require.NoError(t, err)
	require.False(t, page.HasMore)
	require.Equal(t, 4, page.NextOffset)
}

func TestClientResetCallCount(t *testing.T) {
	var issued int32
	mux := http.NewServeMux()
	mux.HandleFunc("/usertoken/issue", tokenHandler(&issued))
	mux.HandleFunc("/client/clients", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Clients": []}`))
	})
	client, _ := newTestClient(t, mux)

	require.NoError(t, client.Get(context.Background(), "/client/clients", nil, nil))
	require.Greater(t, client.CallCount(), int64(0))
	client.ResetCallCount()
	require.Equal(t, int64(0), client.CallCount())
}
