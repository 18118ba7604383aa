package firecrawl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-api-key", WithBaseURL(srv.URL))
}

func TestScrape(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantErr    bool
		wantStatus int
		wantJSON   string
	}{
		{
			name: "json extraction",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/scrape", r.URL.Path)
				assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				var req ScrapeRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				assert.Equal(t, "https://www.apartments.com/omaha-ne/", req.URL)
				assert.Equal(t, []string{FormatJSON}, req.Formats)
				require.NotNil(t, req.JSONOptions)
				assert.Equal(t, "list apartments", req.JSONOptions.Prompt)
				assert.Equal(t, "object", req.JSONOptions.Schema["type"])

				w.Write([]byte(`{"success":true,"data":{"json":{"listings":[{"name":"The Duo"}]},"metadata":{"title":"Omaha","sourceURL":"https://www.apartments.com/omaha-ne/","statusCode":200}}}`)) //nolint:errcheck
			},
			wantJSON: `{"listings":[{"name":"The Duo"}]}`,
		},
		{
			name: "unsuccessful body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"success":false}`)) //nolint:errcheck
			},
			wantErr: true,
		},
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`)) //nolint:errcheck
			},
			wantErr:    true,
			wantStatus: 429,
		},
		{
			name: "auth error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"Unauthorized"}`)) //nolint:errcheck
			},
			wantErr:    true,
			wantStatus: 401,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, tt.handler)
			resp, err := c.Scrape(context.Background(), ScrapeRequest{
				URL:     "https://www.apartments.com/omaha-ne/",
				Formats: []string{FormatJSON},
				JSONOptions: &JSONOptions{
					Schema: map[string]any{"type": "object"},
					Prompt: "list apartments",
				},
			})

			if tt.wantErr {
				require.Error(t, err)
				if tt.wantStatus != 0 {
					var apiErr *APIError
					require.ErrorAs(t, err, &apiErr)
					assert.Equal(t, tt.wantStatus, apiErr.StatusCode)
					assert.Equal(t, tt.wantStatus, apiErr.HTTPStatus())
				}
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.wantJSON, string(resp.Data.JSON))
			assert.Equal(t, 200, resp.Data.Metadata.StatusCode)
		})
	}
}

func TestScrape_MalformedResponse(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`)) //nolint:errcheck
	})
	_, err := c.Scrape(context.Background(), ScrapeRequest{URL: "https://example.com"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestExtract(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/extract", r.URL.Path)
		var req ExtractRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"https://www.apartments.com/the-duo/"}, req.URLs)
		assert.NotEmpty(t, req.Prompt)
		json.NewEncoder(w).Encode(ExtractResponse{Success: true, ID: "ext-1"}) //nolint:errcheck
	})

	resp, err := c.Extract(context.Background(), ExtractRequest{
		URLs:   []string{"https://www.apartments.com/the-duo/"},
		Prompt: "extract units",
	})
	require.NoError(t, err)
	assert.Equal(t, "ext-1", resp.ID)
}

func TestGetExtractStatus(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/extract/ext-1", r.URL.Path)
		w.Write([]byte(`{"success":true,"status":"completed","data":{"units":[]}}`)) //nolint:errcheck
	})

	resp, err := c.GetExtractStatus(context.Background(), "ext-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", resp.Status)
	assert.JSONEq(t, `{"units":[]}`, string(resp.Data))
}

func TestWithBaseURL_EmptyKeepsDefault(t *testing.T) {
	c := NewClient("k", WithBaseURL("")).(*httpClient)
	assert.Equal(t, defaultBaseURL, c.baseURL)
}

func TestWithHTTPClient(t *testing.T) {
	hc := &http.Client{}
	c := NewClient("k", WithHTTPClient(hc)).(*httpClient)
	assert.Same(t, hc, c.http)
}
