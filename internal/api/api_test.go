// WorldMap - Collaborative Geolocated Marker Map
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/worldmap

package api

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	gorillaws "github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/tomtom215/worldmap/internal/auth"
	"github.com/tomtom215/worldmap/internal/cluster"
	"github.com/tomtom215/worldmap/internal/config"
	"github.com/tomtom215/worldmap/internal/gateway"
	"github.com/tomtom215/worldmap/internal/logging"
	"github.com/tomtom215/worldmap/internal/models"
	"github.com/tomtom215/worldmap/internal/store"
	"github.com/tomtom215/worldmap/internal/uploads"
	"github.com/tomtom215/worldmap/internal/upstream"
	"github.com/tomtom215/worldmap/internal/websocket"
)

func init() {
	logging.Init(logging.Config{Level: "error", Output: io.Discard})
}

type fakeGeocoder struct {
	mu     sync.Mutex
	places []upstream.Place
	err    error
}

func (f *fakeGeocoder) set(places []upstream.Place, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.places, f.err = places, err
}

func (f *fakeGeocoder) Search(_ context.Context, q string) ([]upstream.Place, error) {
	if strings.TrimSpace(q) == "" {
		return nil, models.NewValidationError("q", "required", "q is required")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.places, f.err
}

type fakeRoutes struct {
	routes []upstream.Route
	err    error
}

func (f *fakeRoutes) Route(context.Context, models.Position, models.Position) ([]upstream.Route, error) {
	return f.routes, f.err
}

type testServer struct {
	srv *httptest.Server
	hub *websocket.Hub
	cfg *config.Config
}

type option func(*config.Config, *Dependencies)

func newTestServer(t *testing.T, opts ...option) *testServer {
	t.Helper()

	cfg := &config.Config{
		Security: config.SecurityConfig{
			JWTSecret:         "0123456789abcdef0123456789abcdef",
			TokenTTL:          time.Hour,
			CORSOrigins:       []string{"*"},
			RateLimitDisabled: true,
		},
		Uploads: config.UploadsConfig{MaxBytes: 1 << 20},
		Cluster: config.ClusterConfig{HeatRadiusPx: 30},
	}

	db, err := store.Open(store.Options{InMemory: true})
	if err != nil {
		t.Fatalf("store.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	hub := websocket.NewHub(websocket.Options{
		PongWait:   5 * time.Second,
		PingPeriod: 4 * time.Second,
		WriteWait:  time.Second,
	})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.RunWithContext(ctx) }()
	t.Cleanup(cancel)

	photos, err := uploads.New(filepath.Join(t.TempDir(), "uploads"), "/uploads", cfg.Uploads.MaxBytes)
	if err != nil {
		t.Fatal(err)
	}

	jwt, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		t.Fatal(err)
	}
	authSvc, err := auth.NewService(store.NewUserStore(db), jwt, auth.WithBcryptCost(bcrypt.MinCost))
	if err != nil {
		t.Fatal(err)
	}

	deps := Dependencies{
		Config:   cfg,
		Gateway:  gateway.New(store.NewMarkerStore(db), photos, hub),
		Hub:      hub,
		Auth:     authSvc,
		Clusters: cluster.NewMemo(cluster.DefaultParams(), 16),
		Uploads:  photos,
		Store:    db,
	}
	for _, opt := range opts {
		opt(cfg, &deps)
	}

	router := NewRouter(NewHandler(deps), ChiMiddlewareConfigFromSecurity(cfg.Security))
	srv := httptest.NewServer(router.SetupChi())
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, hub: hub, cfg: cfg}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}, header http.Header) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s status = %d, want %d: %s", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want, body)
	}
}

// dialWS connects a websocket client and waits until the hub counts it.
func (ts *testServer) dialWS(t *testing.T) *gorillaws.Conn {
	t.Helper()
	before := ts.hub.Count()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for ts.hub.Count() <= before {
		if time.Now().After(deadline) {
			t.Fatal("websocket client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

type wsEvent struct {
	Type string        `json:"type"`
	Data models.Marker `json:"data"`
}

func readEvent(t *testing.T, conn *gorillaws.Conn) wsEvent {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var e wsEvent
	if err := conn.ReadJSON(&e); err != nil {
		t.Fatalf("read websocket event: %v", err)
	}
	return e
}

func expectNoEvent(t *testing.T, conn *gorillaws.Conn) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("unexpected websocket message: %s", data)
	}
	var netErr interface{ Timeout() bool }
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Fatalf("read error = %v, want timeout", err)
	}
}

func createMarker(t *testing.T, ts *testServer, title string, lat, lng float64) models.Marker {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/markers", map[string]interface{}{"title": title, "lat": lat, "lng": lng}, nil)
	expectStatus(t, resp, http.StatusCreated)
	return decode[models.Marker](t, resp)
}

func TestCafeScenario(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dialWS(t)

	a := createMarker(t, ts, "Cafe", 10, 10)
	if a.ID == 0 || a.Title != "Cafe" || a.Lat != 10 || a.Lng != 10 || a.Version != 1 {
		t.Errorf("created = %+v", a)
	}

	e := readEvent(t, conn)
	if e.Type != "marker:created" || e.Data.ID != a.ID || e.Data.Title != "Cafe" {
		t.Errorf("event = %+v", e)
	}

	resp := ts.do(t, http.MethodGet, "/markers", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	list := decode[[]models.Marker](t, resp)
	if len(list) != 1 || list[0].ID != a.ID {
		t.Errorf("GET /markers = %+v", list)
	}
}

func TestListMarkersEmptyArray(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodGet, "/markers", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	body, _ := io.ReadAll(resp.Body)
	if strings.TrimSpace(string(body)) != "[]" {
		t.Errorf("body = %s, want []", body)
	}
}

func TestListMarkersNewestFirst(t *testing.T) {
	ts := newTestServer(t)
	first := createMarker(t, ts, "first", 1, 1)
	second := createMarker(t, ts, "second", 2, 2)

	list := decode[[]models.Marker](t, ts.do(t, http.MethodGet, "/markers", nil, nil))
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Errorf("order = %+v", list)
	}
}

func TestCreateMarkerValidation(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dialWS(t)

	resp := ts.do(t, http.MethodPost, "/markers", map[string]interface{}{"title": "x", "lat": 100, "lng": 0}, nil)
	expectStatus(t, resp, http.StatusBadRequest)
	env := decode[APIResponse](t, resp)
	if env.Error == nil || env.Error.Code != "VALIDATION_ERROR" || len(env.Error.Fields) == 0 || env.Error.Fields[0].Field != "lat" {
		t.Errorf("error = %+v", env.Error)
	}
	expectNoEvent(t, conn)

	bad := ts.do(t, http.MethodPost, "/markers", nil, http.Header{"Content-Type": {"application/json"}})
	expectStatus(t, bad, http.StatusBadRequest)
}

func TestUpdateMarker(t *testing.T) {
	ts := newTestServer(t)
	a := createMarker(t, ts, "Cafe", 10, 10)
	conn := ts.dialWS(t)

	resp := ts.do(t, http.MethodPatch, "/markers/"+itoa(a.ID), map[string]interface{}{"description": "great coffee"}, nil)
	expectStatus(t, resp, http.StatusOK)
	got := decode[models.Marker](t, resp)
	if got.Description != "great coffee" || got.Title != "Cafe" || got.Version != 2 {
		t.Errorf("updated = %+v", got)
	}

	e := readEvent(t, conn)
	if e.Type != "marker:updated" || e.Data.Version != 2 {
		t.Errorf("event = %+v", e)
	}
}

func TestUpdateUnknownMarker(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dialWS(t)

	resp := ts.do(t, http.MethodPatch, "/markers/999", map[string]interface{}{"title": "x"}, nil)
	expectStatus(t, resp, http.StatusNotFound)
	env := decode[APIResponse](t, resp)
	if env.Error == nil || env.Error.Code != "NOT_FOUND" {
		t.Errorf("error = %+v", env.Error)
	}
	expectNoEvent(t, conn)

	expectStatus(t, ts.do(t, http.MethodPatch, "/markers/abc", map[string]interface{}{"title": "x"}, nil), http.StatusBadRequest)
	expectStatus(t, ts.do(t, http.MethodGet, "/markers/999", nil, nil), http.StatusNotFound)
}

func pngBytes(size int) []byte {
	b := make([]byte, size)
	copy(b, "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	return b
}

func TestAttachPhoto(t *testing.T) {
	ts := newTestServer(t)
	a := createMarker(t, ts, "Cafe", 10, 10)
	conn := ts.dialWS(t)
	data := pngBytes(2048)

	resp := postMultipart(t, ts, "/markers/"+itoa(a.ID)+"/photo", "photo", "cafe.png", data)
	expectStatus(t, resp, http.StatusOK)
	got := decode[models.Marker](t, resp)
	if !strings.HasPrefix(got.Photo, "/uploads/") || !strings.HasSuffix(got.Photo, "-cafe.png") {
		t.Fatalf("photo = %q", got.Photo)
	}

	e := readEvent(t, conn)
	if e.Type != "marker:updated" || e.Data.Photo != got.Photo {
		t.Errorf("event = %+v", e)
	}

	list := decode[[]models.Marker](t, ts.do(t, http.MethodGet, "/markers", nil, nil))
	if list[0].Photo != got.Photo {
		t.Errorf("listed photo = %q", list[0].Photo)
	}

	file := ts.do(t, http.MethodGet, got.Photo, nil, nil)
	expectStatus(t, file, http.StatusOK)
	served, _ := io.ReadAll(file.Body)
	if !bytes.Equal(served, data) {
		t.Errorf("served %d bytes, want %d", len(served), len(data))
	}

	expectStatus(t, ts.do(t, http.MethodGet, "/uploads/", nil, nil), http.StatusNotFound)
}

func TestAttachPhotoURLResolves(t *testing.T) {
	ts := newTestServer(t)
	a := createMarker(t, ts, "Cafe", 10, 10)

	for _, name := range []string{"cafe.png", "menu#2.png", "50%off.png", "a?b&c+d.png", "café au lait.png"} {
		t.Run(name, func(t *testing.T) {
			data := pngBytes(512)
			resp := postMultipart(t, ts, "/markers/"+itoa(a.ID)+"/photo", "photo", name, data)
			expectStatus(t, resp, http.StatusOK)
			got := decode[models.Marker](t, resp)

			file := ts.do(t, http.MethodGet, got.Photo, nil, nil)
			expectStatus(t, file, http.StatusOK)
			served, _ := io.ReadAll(file.Body)
			if !bytes.Equal(served, data) {
				t.Errorf("GET %s served %d bytes, want %d", got.Photo, len(served), len(data))
			}
		})
	}
}

func TestAttachPhotoErrors(t *testing.T) {
	ts := newTestServer(t)
	a := createMarker(t, ts, "Cafe", 10, 10)

	expectStatus(t, postMultipart(t, ts, "/markers/404/photo", "photo", "a.png", pngBytes(64)), http.StatusNotFound)
	expectStatus(t, postMultipart(t, ts, "/markers/"+itoa(a.ID)+"/photo", "file", "a.png", pngBytes(64)), http.StatusBadRequest)
	expectStatus(t, postMultipart(t, ts, "/markers/"+itoa(a.ID)+"/photo", "photo", "a.txt", []byte("plain text")), http.StatusBadRequest)
	expectStatus(t, ts.do(t, http.MethodPost, "/markers/"+itoa(a.ID)+"/photo", map[string]string{"photo": "x"}, nil), http.StatusBadRequest)
}

func postMultipart(t *testing.T, ts *testServer, path, field, name string, data []byte) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("note", "ignored")
	fw, err := mw.CreateFormFile(field, name)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write(data)
	_ = mw.Close()

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestClustersAndHeatmap(t *testing.T) {
	ts := newTestServer(t)
	createMarker(t, ts, "a", 10, 10)
	createMarker(t, ts, "b", 10.5, 10.5)

	low := decode[[]models.Cluster](t, ts.do(t, http.MethodGet, "/markers/clusters?zoom=3", nil, nil))
	if len(low) != 1 || low[0].Count != 2 {
		t.Errorf("zoom 3 clusters = %+v", low)
	}

	high := decode[[]models.Cluster](t, ts.do(t, http.MethodGet, "/markers/clusters?zoom=15", nil, nil))
	if len(high) != 2 || !high[0].IsLeaf() || !high[1].IsLeaf() {
		t.Errorf("zoom 15 clusters = %+v", high)
	}

	none := decode[[]models.Cluster](t, ts.do(t, http.MethodGet, "/markers/clusters?zoom=3&west=-20&south=-20&east=0&north=0", nil, nil))
	if len(none) != 0 {
		t.Errorf("clusters outside viewport = %+v", none)
	}

	heat := decode[[]models.DensityCell](t, ts.do(t, http.MethodGet, "/markers/heatmap?zoom=4", nil, nil))
	if len(heat) == 0 {
		t.Error("heatmap is empty")
	}

	expectStatus(t, ts.do(t, http.MethodGet, "/markers/clusters", nil, nil), http.StatusBadRequest)
	expectStatus(t, ts.do(t, http.MethodGet, "/markers/clusters?zoom=3&north=95", nil, nil), http.StatusBadRequest)

	for _, q := range []string{"zoom=NaN", "zoom=nan", "zoom=-1", "zoom=25", "zoom=abc", "zoom=3&west=NaN"} {
		for _, endpoint := range []string{"/markers/clusters?", "/markers/heatmap?"} {
			expectStatus(t, ts.do(t, http.MethodGet, endpoint+q, nil, nil), http.StatusBadRequest)
		}
	}
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/auth/register", map[string]string{"email": "ada@example.com", "password": "secret1", "name": "Ada"}, nil)
	expectStatus(t, resp, http.StatusCreated)
	reg := decode[auth.Result](t, resp)
	if reg.User.ID == "" || reg.User.Email != "ada@example.com" || reg.Token == "" {
		t.Fatalf("register = %+v", reg)
	}

	expectStatus(t, ts.do(t, http.MethodPost, "/auth/register", map[string]string{"email": "ada@example.com", "password": "secret2"}, nil), http.StatusConflict)
	expectStatus(t, ts.do(t, http.MethodPost, "/auth/register", map[string]string{"email": "not-an-email", "password": "secret2"}, nil), http.StatusBadRequest)
	expectStatus(t, ts.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "ada@example.com", "password": "wrong!"}, nil), http.StatusUnauthorized)

	resp = ts.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "ada@example.com", "password": "secret1"}, nil)
	expectStatus(t, resp, http.StatusOK)
	login := decode[auth.Result](t, resp)
	if login.User != reg.User {
		t.Errorf("login user = %+v", login.User)
	}

	bearer := http.Header{"Authorization": {"Bearer " + login.Token}}
	resp = ts.do(t, http.MethodPost, "/markers", map[string]interface{}{"title": "mine", "lat": 1, "lng": 1}, bearer)
	expectStatus(t, resp, http.StatusCreated)
	if m := decode[models.Marker](t, resp); m.UserID != reg.User.ID {
		t.Errorf("user_id = %q, want %q", m.UserID, reg.User.ID)
	}

	invalid := http.Header{"Authorization": {"Bearer garbage"}}
	expectStatus(t, ts.do(t, http.MethodPost, "/markers", map[string]interface{}{"title": "x", "lat": 1, "lng": 1}, invalid), http.StatusUnauthorized)
}

func TestGeocodeAndRoute(t *testing.T) {
	geo := &fakeGeocoder{places: []upstream.Place{{Name: "Paris", Lat: 48.85, Lng: 2.35}}}
	routes := &fakeRoutes{routes: []upstream.Route{}}
	ts := newTestServer(t, func(_ *config.Config, d *Dependencies) {
		d.Geocoder = geo
		d.Routes = routes
	})

	places := decode[[]upstream.Place](t, ts.do(t, http.MethodGet, "/geocode/search?q=Paris", nil, nil))
	if len(places) != 1 || places[0].Name != "Paris" {
		t.Errorf("places = %+v", places)
	}
	expectStatus(t, ts.do(t, http.MethodGet, "/geocode/search", nil, nil), http.StatusBadRequest)

	geo.set(nil, &upstream.Error{Service: "nominatim", StatusCode: 503})
	resp := ts.do(t, http.MethodGet, "/geocode/search?q=Paris", nil, nil)
	expectStatus(t, resp, http.StatusBadGateway)
	if env := decode[APIResponse](t, resp); env.Error == nil || env.Error.Code != "UPSTREAM_ERROR" {
		t.Errorf("error = %+v", env.Error)
	}

	resp = ts.do(t, http.MethodGet, "/route?from=2.35,48.85&to=-0.12,51.5", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	body, _ := io.ReadAll(resp.Body)
	if strings.TrimSpace(string(body)) != "[]" {
		t.Errorf("no-route body = %s, want []", body)
	}
	expectStatus(t, ts.do(t, http.MethodGet, "/route?from=2.35&to=-0.12,51.5", nil, nil), http.StatusBadRequest)
}

func TestUpstreamNotConfigured(t *testing.T) {
	ts := newTestServer(t)
	expectStatus(t, ts.do(t, http.MethodGet, "/geocode/search?q=x", nil, nil), http.StatusServiceUnavailable)
	expectStatus(t, ts.do(t, http.MethodGet, "/route?from=0,0&to=1,1", nil, nil), http.StatusServiceUnavailable)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	expectStatus(t, ts.do(t, http.MethodGet, "/health/live", nil, nil), http.StatusOK)

	resp := ts.do(t, http.MethodGet, "/health/ready", nil, nil)
	expectStatus(t, resp, http.StatusOK)
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
	expectStatus(t, ts.do(t, http.MethodGet, "/metrics", nil, nil), http.StatusOK)
	expectStatus(t, ts.do(t, http.MethodGet, "/nope", nil, nil), http.StatusNotFound)
}

func TestWebSocketPingPong(t *testing.T) {
	ts := newTestServer(t)
	conn := ts.dialWS(t)

	if err := conn.WriteMessage(gorillaws.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg websocket.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != websocket.MessageTypePong {
		t.Errorf("reply = %+v, want pong", msg)
	}
}

func TestWebSocketOriginCheck(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config, _ *Dependencies) {
		cfg.Security.CORSOrigins = []string{"https://map.example.com"}
	})
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"

	if _, _, err := gorillaws.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example.com"}}); err == nil {
		t.Error("foreign origin accepted")
	}
	if _, _, err := gorillaws.DefaultDialer.Dial(url, nil); err == nil {
		t.Error("missing origin accepted without wildcard")
	}
	conn, _, err := gorillaws.DefaultDialer.Dial(url, http.Header{"Origin": {"https://map.example.com"}})
	if err != nil {
		t.Fatalf("allowed origin rejected: %v", err)
	}
	_ = conn.Close()
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	ts := newTestServer(t)
	conns := []*gorillaws.Conn{ts.dialWS(t), ts.dialWS(t), ts.dialWS(t)}

	a := createMarker(t, ts, "shared", 5, 5)
	for i, c := range conns {
		if e := readEvent(t, c); e.Data.ID != a.ID {
			t.Errorf("client %d got %+v", i, e)
		}
	}
}

func itoa(id uint64) string {
	return strconv.FormatUint(id, 10)
}
