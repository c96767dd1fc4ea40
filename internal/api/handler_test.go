package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mobility/m/internal/auth"
	"mobility/m/internal/database"
	"mobility/m/internal/geodata"
	"mobility/m/internal/metrics"
	"mobility/m/internal/migrations"
	"mobility/m/internal/report"
	"mobility/m/internal/reviews"
	"mobility/m/internal/seed"
	"mobility/m/internal/store"
	"mobility/m/internal/translate"
)

type fakeGeodata struct {
	calls int
	got   geodata.BBox
	body  json.RawMessage
	err   error
}

func (f *fakeGeodata) Fetch(_ context.Context, b geodata.BBox) (json.RawMessage, error) {
	f.calls++
	f.got = b
	return f.body, f.err
}

type fakeTranslator struct {
	calls int
	res   *translate.Result
	err   error
}

func (f *fakeTranslator) Translate(_ context.Context, text, target string) (*translate.Result, error) {
	f.calls++
	return f.res, f.err
}

type testEnv struct {
	server     *httptest.Server
	client     *http.Client
	exportPath string
	geodata    *fakeGeodata
	translator *fakeTranslator
}

type envOption func(*Options)

func setupEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	dir := t.TempDir()
	ctx := context.Background()

	db, err := database.Connect(filepath.Join(dir, "reviews.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrations.Run(ctx, db))
	require.NoError(t, seed.EnsureAdmin(ctx, db, "admin", "1234"))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	users := store.NewUserRepository(db)
	reviewRepo := store.NewReviewRepository(db)
	exportPath := filepath.Join(dir, "DATABASE_LOG.txt")
	exporter := report.NewExporter(users, reviewRepo, exportPath, m)

	geo := &fakeGeodata{body: json.RawMessage(`{"elements":[]}`)}
	tr := &fakeTranslator{res: &translate.Result{Text: "Hello", SourceLanguage: "fr"}}

	o := Options{
		Auth:          auth.NewService(users, exporter),
		Sessions:      auth.NewSessions("test-secret", time.Hour, auth.NewMemoryRevocations()),
		Reviews:       reviews.NewService(reviewRepo, exporter),
		Users:         users,
		Geodata:       geo,
		Translator:    tr,
		Metrics:       m,
		Gatherer:      reg,
		AdminUsername: "admin",
	}
	for _, opt := range opts {
		opt(&o)
	}

	srv := httptest.NewServer(New(o).Router())
	t.Cleanup(srv.Close)

	client := srv.Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	return &testEnv{server: srv, client: client, exportPath: exportPath, geodata: geo, translator: tr}
}

func (e *testEnv) postForm(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	resp, err := e.client.PostForm(e.server.URL+path, form)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *testEnv) get(t *testing.T, path string, cookies ...*http.Cookie) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.server.URL+path, nil)
	require.NoError(t, err)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *testEnv) login(t *testing.T, username, password string) *http.Cookie {
	t.Helper()
	resp := e.postForm(t, "/", url.Values{"username": {username}, "password": {password}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	for _, c := range resp.Cookies() {
		if c.Name == sessionCookie {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func decodeResult(t *testing.T, resp *http.Response) result {
	t.Helper()
	var out result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestHealth(t *testing.T) {
	env := setupEnv(t)
	resp := env.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, readBody(t, resp))
}

func TestLoginPage(t *testing.T) {
	env := setupEnv(t)
	resp := env.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	body := readBody(t, resp)
	assert.Contains(t, body, `id="login-form"`)
	assert.Contains(t, body, `id="register-form"`)
}

func TestLogin_SeededAdmin(t *testing.T) {
	env := setupEnv(t)
	resp := env.postForm(t, "/", url.Values{"username": {"admin"}, "password": {"1234"}})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeResult(t, resp)
	assert.True(t, out.Success)
	assert.Equal(t, "/dashboard", out.Redirect)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	env := setupEnv(t)
	tests := []struct {
		name     string
		username string
		password string
	}{
		{"wrong password", "admin", "nope"},
		{"unknown user", "ghost", "1234"},
		{"empty fields", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.postForm(t, "/", url.Values{"username": {tt.username}, "password": {tt.password}})
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			out := decodeResult(t, resp)
			assert.False(t, out.Success)
			assert.Equal(t, "Invalid username or password", out.Error)
		})
	}
}

func TestRegister_ThenLogin(t *testing.T) {
	env := setupEnv(t)

	resp := env.postForm(t, "/register", url.Values{"username": {"walker"}, "password": {"s3cret"}, "email": {"w@example.com"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeResult(t, resp)
	assert.True(t, out.Success)
	assert.Equal(t, "Registration successful! Redirecting to login...", out.Message)
	assert.Equal(t, "/", out.Redirect)

	env.login(t, "walker", "s3cret")

	data, err := os.ReadFile(env.exportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "walker")
	assert.Contains(t, string(data), "w@example.com")
	assert.NotContains(t, string(data), "s3cret")
}

func TestRegister_Errors(t *testing.T) {
	env := setupEnv(t)

	resp := env.postForm(t, "/register", url.Values{"username": {"admin"}, "password": {"other"}})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "Username already exists", decodeResult(t, resp).Error)

	resp = env.postForm(t, "/register", url.Values{"username": {"nopass"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Username and password required", decodeResult(t, resp).Error)

	// The seeded admin password still works.
	env.login(t, "admin", "1234")
}

func TestProtectedPages_RedirectWithoutSession(t *testing.T) {
	env := setupEnv(t)
	for _, path := range []string{"/dashboard", "/navigation", "/admin/data"} {
		resp := env.get(t, path)
		assert.Equal(t, http.StatusFound, resp.StatusCode, path)
		assert.Equal(t, "/", resp.Header.Get("Location"), path)
	}

	resp := env.get(t, "/dashboard", &http.Cookie{Name: sessionCookie, Value: "garbage"})
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestDashboardAndNavigation_WithSession(t *testing.T) {
	env := setupEnv(t)
	env.postForm(t, "/register", url.Values{"username": {"walker"}, "password": {"pw"}})
	cookie := env.login(t, "walker", "pw")

	resp := env.get(t, "/dashboard", cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, "Welcome, walker")
	assert.NotContains(t, body, "/admin/data")

	resp = env.get(t, "/navigation", cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "/api/wheelmap")
}

func TestLogout_RevokesSession(t *testing.T) {
	env := setupEnv(t)
	cookie := env.login(t, "admin", "1234")

	resp := env.get(t, "/logout", cookie)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	resp = env.get(t, "/dashboard", cookie)
	assert.Equal(t, http.StatusFound, resp.StatusCode)
}

func TestAdminData(t *testing.T) {
	env := setupEnv(t)
	env.postForm(t, "/register", url.Values{"username": {"walker"}, "password": {"pw"}, "email": {"w@example.com"}})
	env.postForm(t, "/reviews", url.Values{"username": {"walker"}, "message": {"first ramp"}})
	env.postForm(t, "/reviews", url.Values{"message": {"second ramp"}})

	resp := env.get(t, "/admin/data", env.login(t, "walker", "pw"))
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.get(t, "/admin/data", env.login(t, "admin", "1234"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Contains(t, body, "w@example.com")
	assert.Contains(t, body, "Anonymous")
	assert.NotContains(t, body, "$2a$")
	assert.Less(t, strings.Index(body, "first ramp"), strings.Index(body, "second ramp"))
}

func TestReviews_PostAndList(t *testing.T) {
	env := setupEnv(t)

	resp := env.get(t, "/reviews")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "No reviews yet.")

	resp = env.postForm(t, "/reviews", url.Values{"username": {"ann"}, "message": {"Step-free entrance"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Step-free entrance")

	resp = env.postForm(t, "/reviews", url.Values{"username": {""}, "message": {"Lift works"}})
	body := readBody(t, resp)
	assert.Contains(t, body, "<strong>Anonymous</strong>: Lift works")
	assert.Less(t, strings.Index(body, "Lift works"), strings.Index(body, "Step-free entrance"))

	resp = env.postForm(t, "/reviews", url.Values{"username": {"ann"}, "message": {"   "}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, strings.Count(readBody(t, resp), "<li><strong>"))

	data, err := os.ReadFile(env.exportPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Step-free entrance")
}

func TestReviews_EscapesMarkup(t *testing.T) {
	env := setupEnv(t)
	resp := env.postForm(t, "/reviews", url.Values{"message": {"<script>alert(1)</script>"}})
	body := readBody(t, resp)
	assert.NotContains(t, body, "<script>alert(1)</script>")
	assert.Contains(t, body, "&lt;script&gt;")
}

func TestWheelmap_BBoxValidation(t *testing.T) {
	env := setupEnv(t)

	resp := env.get(t, "/api/wheelmap")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"No bbox provided"}`, readBody(t, resp))

	for _, bbox := range []string{"1,2,3", "not,a,bbox", "a,b,c,d", "1,2,3,4,5"} {
		resp = env.get(t, "/api/wheelmap?bbox="+bbox)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, bbox)
		assert.JSONEq(t, `{"error":"Invalid bbox format"}`, readBody(t, resp))
	}
	assert.Zero(t, env.geodata.calls)
}

func TestWheelmap_Passthrough(t *testing.T) {
	env := setupEnv(t)
	env.geodata.body = json.RawMessage(`{"elements":[{"type":"node","id":1}]}`)

	resp := env.get(t, "/api/wheelmap?bbox=2.0,48.8,2.1,48.9")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"elements":[{"type":"node","id":1}]}`, readBody(t, resp))
	assert.Equal(t, geodata.BBox{MinLon: 2.0, MinLat: 48.8, MaxLon: 2.1, MaxLat: 48.9}, env.geodata.got)
}

func TestWheelmap_UpstreamFailures(t *testing.T) {
	env := setupEnv(t)

	env.geodata.err = &geodata.UpstreamError{Status: http.StatusTooManyRequests}
	resp := env.get(t, "/api/wheelmap?bbox=2.0,48.8,2.1,48.9")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Overpass API failed","status":429}`, readBody(t, resp))

	env.geodata.err = &geodata.UpstreamError{Err: errors.New("dial tcp: connection refused")}
	resp = env.get(t, "/api/wheelmap?bbox=2.0,48.8,2.1,48.9")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.JSONEq(t, `{"error":"dial tcp: connection refused"}`, readBody(t, resp))
}

func postJSON(t *testing.T, env *testEnv, path, body string) *http.Response {
	t.Helper()
	resp, err := env.client.Post(env.server.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestTranslate(t *testing.T) {
	env := setupEnv(t)

	resp := postJSON(t, env, "/api/translate", `{"text":"Bonjour"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":true,"original_text":"Bonjour","translated_text":"Hello","src_lang":"fr"}`, readBody(t, resp))
	assert.Equal(t, 1, env.translator.calls)
}

func TestTranslate_IgnoresExtraFields(t *testing.T) {
	env := setupEnv(t)

	resp := postJSON(t, env, "/api/translate", `{"text":"Bonjour","lang":"es"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, env.translator.calls)
}

func TestTranslate_BodyTooLarge(t *testing.T) {
	env := setupEnv(t)

	body := `{"text":"` + strings.Repeat("a", maxJSONBody) + `"}`
	resp := postJSON(t, env, "/api/translate", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.False(t, decodeResult(t, resp).Success)
	assert.Zero(t, env.translator.calls)
}

func TestTranslate_RejectsEmptyText(t *testing.T) {
	env := setupEnv(t)

	resp := postJSON(t, env, "/api/translate", `{"text":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "No text provided", decodeResult(t, resp).Error)

	resp = postJSON(t, env, "/api/translate", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, env, "/api/translate", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Zero(t, env.translator.calls)
}

func TestTranslate_UpstreamError(t *testing.T) {
	env := setupEnv(t)
	env.translator.err = errors.New("translate returned status 503")

	resp := postJSON(t, env, "/api/translate", `{"text":"Hola"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	out := decodeResult(t, resp)
	assert.False(t, out.Success)
	assert.Equal(t, "translate returned status 503", out.Error)
}

func TestRateLimit_API(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	env := setupEnv(t, func(o *Options) {
		o.Redis = rdb
		o.RateLimit = 2
		o.RateWindow = time.Minute
	})

	for i := 0; i < 2; i++ {
		resp := env.get(t, "/api/wheelmap?bbox=2.0,48.8,2.1,48.9")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp := env.get(t, "/api/wheelmap?bbox=2.0,48.8,2.1,48.9")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Too many requests"}`, readBody(t, resp))

	// Pages outside /api are not limited.
	resp = env.get(t, "/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	mr.FastForward(time.Minute)
	resp = env.get(t, "/api/wheelmap?bbox=2.0,48.8,2.1,48.9")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func withRedisLimit(rdb *redis.Client, limit int) envOption {
	return func(o *Options) {
		o.Redis = rdb
		o.RateLimit = limit
		o.RateWindow = time.Minute
	}
}

func getWithHeader(t *testing.T, env *testEnv, path, header, value string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, env.server.URL+path, nil)
	require.NoError(t, err)
	req.Header.Set(header, value)
	resp, err := env.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestRateLimit_IgnoresForwardingHeadersByDefault(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	env := setupEnv(t, withRedisLimit(rdb, 2))

	var statuses []int
	for i := 0; i < 5; i++ {
		for _, header := range []string{"X-Real-IP", "X-Forwarded-For", "True-Client-IP"} {
			resp := getWithHeader(t, env, "/api/wheelmap?bbox=2.0,48.8,2.1,48.9", header, fmt.Sprintf("10.0.0.%d", i))
			statuses = append(statuses, resp.StatusCode)
		}
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK}, statuses[:2])
	for _, st := range statuses[2:] {
		assert.Equal(t, http.StatusTooManyRequests, st)
	}
	assert.Equal(t, []string{"ratelimit:127.0.0.1"}, mr.Keys())
}

func TestRateLimit_TrustedProxyKeysOnForwardedIP(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	env := setupEnv(t, withRedisLimit(rdb, 1), func(o *Options) { o.TrustProxy = true })

	resp := getWithHeader(t, env, "/api/wheelmap?bbox=2.0,48.8,2.1,48.9", "X-Real-IP", "10.0.0.1")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = getWithHeader(t, env, "/api/wheelmap?bbox=2.0,48.8,2.1,48.9", "X-Real-IP", "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.True(t, mr.Exists("ratelimit:10.0.0.1"))
}

func TestRateLimit_WindowAlwaysExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	env := setupEnv(t, withRedisLimit(rdb, 5))

	env.get(t, "/api/wheelmap?bbox=2.0,48.8,2.1,48.9")
	assert.Equal(t, time.Minute, mr.TTL("ratelimit:127.0.0.1"))

	// A counter left without expiry is given one on the next hit.
	mr.Del("ratelimit:127.0.0.1")
	require.NoError(t, mr.Set("ratelimit:127.0.0.1", "9"))
	assert.Zero(t, mr.TTL("ratelimit:127.0.0.1"))
	resp := env.get(t, "/api/wheelmap?bbox=2.0,48.8,2.1,48.9")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, time.Minute, mr.TTL("ratelimit:127.0.0.1"))

	mr.FastForward(time.Minute)
	resp = env.get(t, "/api/wheelmap?bbox=2.0,48.8,2.1,48.9")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORS_SameOriginByDefault(t *testing.T) {
	env := setupEnv(t)

	resp := getWithHeader(t, env, "/health", "Origin", "https://evil.example")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Credentials"))
}

func TestCORS_ConfiguredOrigins(t *testing.T) {
	env := setupEnv(t, func(o *Options) { o.CORSOrigins = []string{"https://app.example"} })

	resp := getWithHeader(t, env, "/health", "Origin", "https://app.example")
	assert.Equal(t, "https://app.example", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))

	resp = getWithHeader(t, env, "/health", "Origin", "https://evil.example")
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRateLimit_RedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	env := setupEnv(t, func(o *Options) {
		o.Redis = rdb
		o.RateLimit = 5
		o.RateWindow = time.Minute
	})

	resp := env.get(t, "/api/wheelmap?bbox=2.0,48.8,2.1,48.9")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Rate limiting error"}`, readBody(t, resp))
	assert.Zero(t, env.geodata.calls)
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupEnv(t)
	env.get(t, "/health")

	resp := env.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), `route="/health"`)
}
