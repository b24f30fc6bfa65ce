package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/sha3"

	"github.com/viant/sqlite-minhash/engine"
	"github.com/viant/sqlite-minhash/index/lsh"
	"github.com/viant/sqlite-minhash/proof"
	"github.com/viant/sqlite-minhash/service"
	"github.com/viant/sqlite-minhash/signature"
	"github.com/viant/sqlite-minhash/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	numPerm    = 128
	apiKey     = "test-key"
	exportLink = "https://export-bucket.s3.amazonaws.com/req/Your%20Orders.zip"
	brokenLink = "https://export-bucket.s3.amazonaws.com/req/All%20Data%20Categories.zip"
	zipLink    = "https://export-bucket.s3.amazonaws.com/req2/Your%20Orders.zip"
	appOrigin  = "http://localhost:5173"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubFetcher map[string]string

func (f stubFetcher) Fetch(_ context.Context, locator string) (io.ReadCloser, error) {
	body, ok := f[locator]
	if !ok {
		return nil, &proof.FetchError{Locator: locator, StatusCode: http.StatusForbidden}
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

type fixture struct {
	svc      *service.Service
	server   *Server
	registry *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	db, err := engine.OpenStore(filepath.Join(t.TempDir(), "minhash.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st, err := store.NewSQLiteStore(ctx, db, numPerm)
	require.NoError(t, err)
	ix, err := lsh.New(numPerm, 0.7)
	require.NoError(t, err)
	svc, err := service.New(st, ix, numPerm, service.WithLogger(quietLogger))
	require.NoError(t, err)

	proofs, err := proof.NewSQLiteStore(ctx, db)
	require.NoError(t, err)
	issuer, err := proof.NewIssuer(proofs,
		proof.WithFetcher(stubFetcher{exportLink: "orders", zipLink: "PK-archive"}),
		proof.WithIssuerLogger(quietLogger))
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	srv, err := New(svc, issuer, Options{
		APIKey:      apiKey,
		Logger:      quietLogger,
		CORSOrigins: []string{appOrigin},
		Registry:    reg,
	})
	require.NoError(t, err)
	return &fixture{svc: svc, server: srv, registry: reg}
}

func (f *fixture) rehydrate(t *testing.T) {
	t.Helper()
	_, err := f.svc.Rehydrate(context.Background())
	require.NoError(t, err)
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(APIKeyHeader, apiKey)
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	return w
}

func encodedSignature(seed int64) (string, *signature.Signature) {
	rng := rand.New(rand.NewSource(seed))
	values := make([]uint64, numPerm)
	for i := range values {
		values[i] = rng.Uint64()
	}
	sig := signature.New(signature.DefaultSeed, values)
	return base64.StdEncoding.EncodeToString(signature.Encode(sig)), sig
}

func TestServer_HealthAndReadiness(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	sig, _ := encodedSignature(1)
	w = f.do(t, http.MethodPost, "/v1/minhash", gin.H{"user_id": "alice", "signature": sig})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	f.rehydrate(t)
	w = f.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_SaveAndQuery(t *testing.T) {
	f := newFixture(t)
	f.rehydrate(t)

	sig, _ := encodedSignature(1)
	w := f.do(t, http.MethodPost, "/v1/minhash", gin.H{"user_id": "alice", "signature": sig})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var saved saveResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &saved))
	assert.Positive(t, saved.ID)

	w = f.do(t, http.MethodPost, "/v1/minhash/query", gin.H{"signature": sig})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res queryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.Len(t, res.Candidates, 1)
	assert.Equal(t, saved.ID, res.Candidates[0].ID)
	assert.Equal(t, "alice", res.Candidates[0].UserID)
	assert.Equal(t, sig, res.Candidates[0].Signature)
	assert.Equal(t, 1.0, res.Candidates[0].Similarity)

	w = f.do(t, http.MethodPost, "/v1/minhash/scan", gin.H{"signature": sig, "min_similarity": 0.5})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Len(t, res.Candidates, 1)

	other, _ := encodedSignature(2)
	w = f.do(t, http.MethodPost, "/v1/minhash/query", gin.H{"signature": other})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"candidates":[]}`, w.Body.String())
}

func TestServer_SignatureErrors(t *testing.T) {
	f := newFixture(t)
	f.rehydrate(t)
	sig, _ := encodedSignature(1)
	short := base64.StdEncoding.EncodeToString(signature.Encode(signature.New(1, []uint64{1, 2})))

	testCases := []struct {
		description string
		path        string
		body        any
		want        int
	}{
		{description: "missing user", path: "/v1/minhash", body: gin.H{"signature": sig}, want: http.StatusBadRequest},
		{description: "bad base64", path: "/v1/minhash", body: gin.H{"user_id": "a", "signature": "%%%"}, want: http.StatusBadRequest},
		{description: "wrong length", path: "/v1/minhash", body: gin.H{"user_id": "a", "signature": short}, want: http.StatusBadRequest},
		{description: "owner with separator", path: "/v1/minhash", body: gin.H{"user_id": "a_b", "signature": sig}, want: http.StatusBadRequest},
		{description: "query wrong length", path: "/v1/minhash/query", body: gin.H{"signature": short}, want: http.StatusBadRequest},
		{description: "query bad similarity", path: "/v1/minhash/query", body: gin.H{"signature": sig, "min_similarity": 2}, want: http.StatusBadRequest},
		{description: "malformed json", path: "/v1/minhash/query", body: "not an object", want: http.StatusBadRequest},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			w := f.do(t, http.MethodPost, testCase.path, testCase.body)
			assert.Equal(t, testCase.want, w.Code, w.Body.String())
			var body errorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestServer_Proofs(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/v1/proofs", gin.H{"link": exportLink})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var issued proofResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issued))
	assert.Equal(t, proof.KeyOf(exportLink), issued.ProofKey)
	assert.Equal(t, issued.ProofKey, w.Header().Get("X-Proof-Key"))

	w = f.do(t, http.MethodPost, "/v1/proofs", gin.H{"link": exportLink})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, "/v1/proofs", gin.H{"link": "https://example.com/x.zip"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/v1/proofs", gin.H{"link": brokenLink})
	assert.Equal(t, http.StatusBadGateway, w.Code)

	w = f.do(t, http.MethodGet, "/v1/proofs/"+issued.ProofKey, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got proofResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, issued, got)

	w = f.do(t, http.MethodGet, "/v1/proofs/"+proof.KeyOf(brokenLink), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.server.metrics.proofs.WithLabelValues("issued")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.server.metrics.proofs.WithLabelValues("conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.server.metrics.proofs.WithLabelValues("fetch_failed")))
}

func TestServer_ProofContent(t *testing.T) {
	f := newFixture(t)

	data, err := json.Marshal(gin.H{"link": zipLink})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/proofs", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/zip")
	req.Header.Set(APIKeyHeader, apiKey)
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.Equal(t, "PK-archive", w.Body.String())
	assert.Equal(t, proof.KeyOf(zipLink), w.Header().Get(ProofKeyHeader))

	w = f.do(t, http.MethodGet, "/v1/proofs/"+proof.KeyOf(zipLink), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got proofResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	sum := sha3.Sum256([]byte("PK-archive"))
	assert.Equal(t, hex.EncodeToString(sum[:]), got.DataHash)
}

func TestServer_CORS(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/v1/proofs", nil)
	req.Header.Set("Origin", appOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "content-type,x-api-key")
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, appOrigin, w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
	assert.Contains(t, strings.ToLower(w.Header().Get("Access-Control-Allow-Headers")), "x-api-key")

	data, err := json.Marshal(gin.H{"link": exportLink})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/v1/proofs", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", appOrigin)
	req.Header.Set(APIKeyHeader, apiKey)
	w = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, appOrigin, w.Header().Get("Access-Control-Allow-Origin"))
	exposed := strings.ToLower(w.Header().Get("Access-Control-Expose-Headers"))
	assert.Contains(t, exposed, "x-proof-key")
	assert.Contains(t, exposed, "x-request-id")

	req = httptest.NewRequest(http.MethodOptions, "/v1/proofs", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestNew_InvalidCORSOrigin(t *testing.T) {
	f := newFixture(t)
	_, err := New(f.svc, f.server.proofs, Options{Logger: quietLogger, CORSOrigins: []string{"localhost:5173"}})
	assert.Error(t, err)
}

func TestServer_Logs(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/v1/logs", gin.H{"proof_key": "k", "log_content": "done"})
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = f.do(t, http.MethodPost, "/v1/logs", gin.H{"proof_key": "k"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_APIKey(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/proofs/abc", nil)
	w := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/proofs/abc", nil)
	req.Header.Set(APIKeyHeader, "wrong")
	w = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodOptions, "/v1/proofs/abc", nil)
	w = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	assert.NotEqual(t, http.StatusForbidden, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	w = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_RequestID(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/health", nil)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	w = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))
}

func TestServer_Metrics(t *testing.T) {
	f := newFixture(t)
	f.rehydrate(t)
	sig, _ := encodedSignature(3)
	w := f.do(t, http.MethodPost, "/v1/minhash", gin.H{"user_id": "alice", "signature": sig})
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.server.metrics.requests.WithLabelValues("/v1/minhash", http.MethodPost, "200")))

	w = f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "minhash_index_keys 1")
	assert.Contains(t, body, "minhash_ready 1")
	assert.Contains(t, body, "minhash_index_failures_total 0")
	assert.Contains(t, body, "minhash_http_request_duration_seconds")
}

func TestStatusFor(t *testing.T) {
	testCases := []struct {
		err  error
		want int
	}{
		{err: &signature.FormatError{Length: 3}, want: http.StatusBadRequest},
		{err: &signature.ConfigMismatchError{Want: 128, Got: 64}, want: http.StatusBadRequest},
		{err: &service.InvalidOwnerError{Owner: ""}, want: http.StatusBadRequest},
		{err: &proof.InvalidLocatorError{}, want: http.StatusBadRequest},
		{err: &proof.ConflictError{Key: "k"}, want: http.StatusConflict},
		{err: &proof.FetchError{StatusCode: 500}, want: http.StatusBadGateway},
		{err: proof.ErrNotFound, want: http.StatusNotFound},
		{err: store.ErrNotFound, want: http.StatusNotFound},
		{err: service.ErrNotReady, want: http.StatusServiceUnavailable},
		{err: io.ErrUnexpectedEOF, want: http.StatusInternalServerError},
	}
	for _, testCase := range testCases {
		assert.Equal(t, testCase.want, statusFor(testCase.err), testCase.err.Error())
	}
}
