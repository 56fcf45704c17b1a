package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mossy-p/screen-relay/internal/capture"
	"github.com/mossy-p/screen-relay/internal/models"
	"github.com/mossy-p/screen-relay/internal/signaling"
	"github.com/mossy-p/screen-relay/internal/stream"
)

const testSDP = "v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeController struct {
	mu       sync.Mutex
	err      error
	desktop  int
	windowID int
}

func (f *fakeController) CaptureDesktop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.desktop++
	return f.err
}

func (f *fakeController) CaptureWindow(ctx context.Context, windowID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.windowID = windowID
	}
	return f.err
}

type fakeWindows struct {
	windows []models.Window
	err     error
}

func (f fakeWindows) List(ctx context.Context) ([]models.Window, error) {
	return f.windows, f.err
}

type recordingRouter struct {
	events chan models.InputEvent
}

func (r *recordingRouter) Route(ctx context.Context, ev models.InputEvent) error {
	r.events <- ev
	return nil
}

type fakeDisplay struct{}

func (fakeDisplay) DisplayMetrics(ctx context.Context) (models.DisplayMetrics, error) {
	return models.DisplayMetrics{LogicalWidth: 1512, LogicalHeight: 982, PhysicalWidth: 3024, PhysicalHeight: 1964, ScaleFactor: 2}, nil
}

type testEnv struct {
	engine      *gin.Engine
	sessions    *signaling.MemoryStore
	state       *capture.State
	ctrl        *fakeController
	broadcaster *stream.Broadcaster
	router      *recordingRouter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		engine:      gin.New(),
		sessions:    signaling.NewMemoryStore(0),
		state:       capture.NewState(fakeDisplay{}),
		ctrl:        &fakeController{},
		broadcaster: stream.NewBroadcaster(4),
		router:      &recordingRouter{events: make(chan models.InputEvent, 8)},
	}
	t.Cleanup(env.broadcaster.Close)

	Register(env.engine, Deps{
		Sessions:    env.sessions,
		Broadcaster: env.broadcaster,
		Input:       env.router,
		Capture:     env.ctrl,
		Windows: fakeWindows{windows: []models.Window{
			models.Window(`{"cgWindowID":12,"app":"Terminal","title":"zsh","pid":901,"position":{"x":0.5,"y":25}}`),
		}},
		State:       env.state,
		Transform:   capture.HeuristicTransformer{OffsetX: 2, OffsetY: -1},
		DebugCoords: true,
	})
	return env
}

func (env *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	env.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func descriptionBody(typ string) string {
	b, _ := json.Marshal(map[string]string{"type": typ, "sdp": testSDP})
	return string(b)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
}

func TestSignalingFlow(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/offers/latest", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"offer":null}`, w.Body.String())

	w = env.do(http.MethodPost, "/api/sessions", "")
	require.Equal(t, http.StatusCreated, w.Code)
	id, _ := decode(t, w)["sessionId"].(string)
	require.NotEmpty(t, id)

	w = env.do(http.MethodPost, "/api/sessions/"+id+"/offer", descriptionBody("offer"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(http.MethodGet, "/api/offers/latest", "")
	require.Equal(t, http.StatusOK, w.Code)
	latest := decode(t, w)
	assert.Equal(t, id, latest["sessionId"])
	assert.Equal(t, "offer_received", latest["state"])
	offer, _ := latest["offer"].(map[string]interface{})
	assert.Equal(t, "offer", offer["type"])
	assert.Equal(t, testSDP, offer["sdp"])

	w = env.do(http.MethodPost, "/api/sessions/"+id+"/answer", descriptionBody("answer"))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(http.MethodPost, "/api/sessions/"+id+"/ice", `{"candidate":"candidate:1 1 udp 1 127.0.0.1 9 typ host","sdpMid":"0","sdpMLineIndex":0}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(http.MethodGet, "/api/sessions/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	sess := decode(t, w)
	assert.Equal(t, "answer_sent", sess["state"])
	candidates, _ := sess["candidates"].([]interface{})
	require.Len(t, candidates, 1)
	assert.Equal(t, "0", candidates[0].(map[string]interface{})["sdpMid"])
}

func TestSignalingUnknownSession(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/sessions/missing/offer", descriptionBody("offer")).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/sessions/missing/answer", descriptionBody("answer")).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/sessions/missing/ice", `{"candidate":"c"}`).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/sessions/missing", "").Code)
}

func TestSignalingRejectsBadDescriptions(t *testing.T) {
	env := newTestEnv(t)
	id, err := env.sessions.Create(context.Background())
	require.NoError(t, err)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"empty body", "/offer", ""},
		{"not json", "/offer", "{"},
		{"unparseable sdp", "/offer", `{"type":"offer","sdp":"nonsense"}`},
		{"answer posted as offer", "/offer", descriptionBody("answer")},
		{"offer posted as answer", "/answer", descriptionBody("offer")},
		{"unknown sdp type", "/answer", `{"type":"bogus","sdp":"v=0"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/sessions/"+id+tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	sess, err := env.sessions.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCreated, sess.State)
}

func TestSubmitOfferDefaultsType(t *testing.T) {
	env := newTestEnv(t)
	id, _ := env.sessions.Create(context.Background())

	body, _ := json.Marshal(map[string]string{"sdp": testSDP})
	w := env.do(http.MethodPost, "/api/sessions/"+id+"/offer", string(body))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	latest, err := env.sessions.LatestPendingOffer(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id, latest.SessionID)
}

func TestListWindows(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/windows", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t,
		`[{"cgWindowID":12,"app":"Terminal","title":"zsh","pid":901,"position":{"x":0.5,"y":25}}]`,
		w.Body.String())
}

func TestListWindowsErrors(t *testing.T) {
	for _, tc := range []struct {
		err  error
		code int
	}{
		{capture.ErrNoWindowTool, http.StatusNotImplemented},
		{assert.AnError, http.StatusInternalServerError},
	} {
		engine := gin.New()
		engine.GET("/api/windows", ListWindows(fakeWindows{err: tc.err}))

		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/windows", nil))
		assert.Equal(t, tc.code, w.Code)
	}
}

func TestSwitchWindowAndReset(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/capture/window", `{"cgWindowID":42}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 42, env.ctrl.windowID)
	assert.Equal(t, models.CaptureTarget{Mode: models.CaptureWindow, WindowID: 42}, env.state.Current())

	w = env.do(http.MethodGet, "/api/capture/info", "")
	require.Equal(t, http.StatusOK, w.Code)
	var info models.CaptureInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, models.CaptureWindow, info.CaptureMode)
	require.NotNil(t, info.WindowID)
	assert.Equal(t, 42, *info.WindowID)
	assert.Equal(t, 3024, info.DisplayInfo.PhysicalWidth)
	assert.True(t, info.DisplayCached)
	assert.True(t, info.DebugMode)
	assert.Equal(t, models.Point{X: 2, Y: -1}, info.CalibrationOffsets)

	w = env.do(http.MethodPost, "/api/capture/reset", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.CaptureTarget{Mode: models.CaptureDesktop}, env.state.Current())
	assert.Zero(t, env.ctrl.desktop, "reset does not contact the capture process")
}

func TestSwitchWindowValidation(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{``, `{}`, `{"cgWindowID":0}`, `{"cgWindowID":-5}`, `{"cgWindowID":"x"}`, `{"cgWindowID":"0"}`, `{"cgWindowID":null}`} {
		w := env.do(http.MethodPost, "/api/capture/window", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.Equal(t, models.CaptureDesktop, env.state.Current().Mode)
}

func TestSwitchWindowAcceptsNumericString(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/capture/window", `{"cgWindowID":"42"}`)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 42, env.ctrl.windowID)
	assert.Equal(t, 42.0, decode(t, w)["cgWindowID"])
	assert.Equal(t, models.CaptureTarget{Mode: models.CaptureWindow, WindowID: 42}, env.state.Current())
}

func TestSwitchWindowUpstreamFailureKeepsState(t *testing.T) {
	env := newTestEnv(t)
	env.ctrl.err = capture.ErrUpstreamUnavailable

	w := env.do(http.MethodPost, "/api/capture/window", `{"cgWindowID":42}`)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, models.CaptureDesktop, env.state.Current().Mode)
}

func TestCaptureDesktop(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.state.SwitchToWindow(3))

	w := env.do(http.MethodPost, "/api/capture/desktop", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, env.ctrl.desktop)
	assert.Equal(t, models.CaptureDesktop, env.state.Current().Mode)
}

func TestRefreshDisplay(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/capture/display/refresh", "")

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["displayCached"])
	display, _ := body["displayInfo"].(map[string]interface{})
	assert.Equal(t, 1512.0, display["width"])
}

func TestStreamStats(t *testing.T) {
	env := newTestEnv(t)
	env.broadcaster.Join()
	env.broadcaster.Broadcast([]byte{1})

	w := env.do(http.MethodGet, "/api/stream/stats", "")

	require.Equal(t, http.StatusOK, w.Code)
	var stats stream.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, uint64(1), stats.FramesPublished)
	assert.Equal(t, 1, stats.ActiveViewers)
	assert.Equal(t, uint64(1), stats.TotalSent)
}

func TestOriginFilter(t *testing.T) {
	engine := gin.New()
	engine.Use(OriginFilter([]string{"http://allowed.test"}))
	engine.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://allowed.test")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://allowed.test", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://evil.test")
	w = httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, w.Code, "requests without an origin pass")

	wildcard := gin.New()
	wildcard.Use(OriginFilter([]string{"*"}))
	wildcard.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://anything.test")
	w = httptest.NewRecorder()
	wildcard.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
