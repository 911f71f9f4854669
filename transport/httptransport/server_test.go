package httptransport

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/go-merkle-sync/hlc"
	"github.com/c0deZ3R0/go-merkle-sync/merkle"
	"github.com/c0deZ3R0/go-merkle-sync/metrics"
	"github.com/c0deZ3R0/go-merkle-sync/replica"
	"github.com/c0deZ3R0/go-merkle-sync/storage/memory"
	"github.com/c0deZ3R0/go-merkle-sync/synckit"
)

func newTestServer(t *testing.T, opts ...ServerOption) (*httptest.Server, *synckit.Aggregator) {
	t.Helper()
	agg := synckit.NewAggregator(memory.New())
	srv, err := NewServer(agg, opts...)
	require.NoError(t, err)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts, agg
}

func message(node string, logical int64, column, value string) replica.Message {
	return replica.Message{
		GroupID:   "g1",
		Table:     "todos",
		Row:       "r1",
		Column:    column,
		Value:     value,
		Timestamp: hlc.Pack(hlc.Clock{Logical: logical, NodeID: node}),
	}
}

func syncBody(t *testing.T, clientID string, msgs ...replica.Message) []byte {
	t.Helper()
	if msgs == nil {
		msgs = []replica.Message{}
	}
	body, err := json.Marshal(synckit.SyncRequest{
		ClientID: clientID,
		GroupID:  "g1",
		Merkle:   merkle.New(),
		Messages: msgs,
	})
	require.NoError(t, err)
	return body
}

func decodeResponse(t *testing.T, resp *http.Response) synckit.SyncResponse {
	t.Helper()
	var out synckit.SyncResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestServer_Healthz(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestServer_SyncRoundTrip(t *testing.T) {
	ts, agg := newTestServer(t)
	now := time.Now().UnixMilli()

	resp, err := http.Post(ts.URL+"/sync", "application/json",
		bytes.NewReader(syncBody(t, "A1", message("A1", now, "title", "milk"))))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeResponse(t, resp)
	assert.Equal(t, synckit.StatusOK, out.Status)
	require.NotNil(t, out.Data)
	assert.Empty(t, out.Data.Messages, "own messages are never echoed back")

	state, err := agg.State(context.Background(), "g1")
	require.NoError(t, err)
	assert.Equal(t, 1, state.Len())

	// A second client is missing the message and gets it back.
	resp2, err := http.Post(ts.URL+"/sync", "application/json", bytes.NewReader(syncBody(t, "B2")))
	require.NoError(t, err)
	defer resp2.Body.Close()
	out2 := decodeResponse(t, resp2)
	require.NotNil(t, out2.Data)
	require.Len(t, out2.Data.Messages, 1)
	assert.Equal(t, "milk", out2.Data.Messages[0].Value)
}

func TestServer_RejectedRequestStillAnswers200(t *testing.T) {
	ts, _ := newTestServer(t)

	body := []byte(`{"clientId":"","groupId":"g1","merkle":{"hash":0},"messages":[]}`)
	resp, err := http.Post(ts.URL+"/sync", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeResponse(t, resp)
	assert.Equal(t, synckit.StatusError, out.Status)
	assert.NotEmpty(t, out.Reason)
}

func TestServer_BodyErrors(t *testing.T) {
	var gzipped bytes.Buffer
	gw := gzip.NewWriter(&gzipped)
	_, _ = gw.Write(bytes.Repeat([]byte(" "), 4096))
	require.NoError(t, gw.Close())

	tests := []struct {
		name        string
		contentType string
		encoding    string
		body        []byte
		opts        []ServerOption
		wantStatus  int
	}{
		{
			name:        "malformed json",
			contentType: "application/json",
			body:        []byte(`{"clientId":`),
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "non-json content type",
			contentType: "text/plain",
			body:        []byte(`hello`),
			wantStatus:  http.StatusUnsupportedMediaType,
		},
		{
			name:        "unsupported encoding",
			contentType: "application/json",
			encoding:    "br",
			body:        []byte(`{}`),
			wantStatus:  http.StatusUnsupportedMediaType,
		},
		{
			name:        "invalid gzip",
			contentType: "application/json",
			encoding:    "gzip",
			body:        []byte("not gzip at all"),
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "body over request limit",
			contentType: "application/json",
			body:        bytes.Repeat([]byte(" "), 2048),
			opts:        []ServerOption{WithMaxRequestSize(1024)},
			wantStatus:  http.StatusRequestEntityTooLarge,
		},
		{
			name:        "gzip bomb over decompressed limit",
			contentType: "application/json",
			encoding:    "gzip",
			body:        gzipped.Bytes(),
			opts:        []ServerOption{WithMaxDecompressedSize(1024)},
			wantStatus:  http.StatusRequestEntityTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _ := newTestServer(t, tt.opts...)

			req, err := http.NewRequest(http.MethodPost, ts.URL+"/sync", bytes.NewReader(tt.body))
			require.NoError(t, err)
			req.Header.Set("Content-Type", tt.contentType)
			if tt.encoding != "" {
				req.Header.Set("Content-Encoding", tt.encoding)
			}

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			out := decodeResponse(t, resp)
			assert.Equal(t, synckit.StatusError, out.Status)
		})
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/sync")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_GzipResponse(t *testing.T) {
	ts, agg := newTestServer(t, WithCompressionThreshold(64))
	now := time.Now().UnixMilli()

	var msgs []replica.Message
	for i := 0; i < 20; i++ {
		msgs = append(msgs, message("A1", now+int64(i), "title", strings.Repeat("v", 50)))
	}
	resp := agg.Handle(context.Background(), synckit.SyncRequest{
		ClientID: "A1", GroupID: "g1", Merkle: merkle.New(), Messages: msgs,
	})
	require.Equal(t, synckit.StatusOK, resp.Status)

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/sync", bytes.NewReader(syncBody(t, "B2")))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")

	client := &http.Client{Transport: &http.Transport{DisableCompression: true}}
	httpResp, err := client.Do(req)
	require.NoError(t, err)
	defer httpResp.Body.Close()

	require.Equal(t, "gzip", httpResp.Header.Get("Content-Encoding"))
	gr, err := gzip.NewReader(httpResp.Body)
	require.NoError(t, err)
	var out synckit.SyncResponse
	require.NoError(t, json.NewDecoder(gr).Decode(&out))
	require.NotNil(t, out.Data)
	assert.Len(t, out.Data.Messages, 20)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	agg := synckit.NewAggregator(memory.New(), synckit.WithAggregatorMetrics(collector))

	srv, err := NewServer(agg, WithMetricsGatherer(reg))
	require.NoError(t, err)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/sync", "application/json", bytes.NewReader(syncBody(t, "A1")))
	require.NoError(t, err)
	resp.Body.Close()

	mresp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer mresp.Body.Close()
	body, _ := io.ReadAll(mresp.Body)
	assert.Contains(t, string(body), "merklesync_operation_duration_seconds")
}

func TestServer_NoMetricsWithoutGatherer(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(nil)
	assert.Error(t, err)

	_, err = NewServer(synckit.NewAggregator(memory.New()), WithMaxRequestSize(-1))
	assert.Error(t, err)
}

func TestServer_ServeShutsDownOnCancel(t *testing.T) {
	srv, err := NewServer(synckit.NewAggregator(memory.New()), WithShutdownTimeout(time.Second))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not shut down")
	}
}
