package server

import (
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colorbot/internal/automation/automationtest"
	"colorbot/internal/config"
	"colorbot/internal/monitor"
	"colorbot/internal/pixel"
	"colorbot/internal/service"
	"colorbot/internal/task"
	"colorbot/internal/websocket"
)

var red = pixel.RGB{R: 255}

type fixture struct {
	bot    *service.Bot
	screen *automationtest.Screen
	input  *automationtest.Input
	srv    *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Config{
		Server:    config.ServerConfig{IP: "127.0.0.1", Port: 8080},
		Keys:      config.KeysConfig{Capture: "F8", Visible: "F9", Missing: "F10"},
		Monitor:   config.MonitorConfig{FailSafe: true, IntervalMs: 10},
		Cooldowns: config.CooldownConfig{File: filepath.Join(t.TempDir(), "cooldowns.toml")},
		Picker:    config.PickerConfig{Radius: 2, Zoom: 4, DPI: 72, Size: 12, Hinting: "none"},
	}
	screen := automationtest.NewScreen()
	input := automationtest.NewInput()
	hub := websocket.NewHub()
	bot, err := service.New(cfg, screen, input, hub)
	require.NoError(t, err)

	srv := httptest.NewServer(New(bot, hub).Handler())
	t.Cleanup(func() {
		srv.Close()
		bot.Close()
	})
	return &fixture{bot: bot, screen: screen, input: input, srv: srv}
}

func (f *fixture) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestPingAndCORS(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/ping", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp = f.do(t, http.MethodOptions, "/script/run", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestScriptRunCompletes(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/script/run", "PRESS a\nLOG done")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var started Response
	decode(t, resp, &started)
	require.NotEmpty(t, started.TaskID)

	tk, ok := f.bot.Runner.Get(started.TaskID)
	require.True(t, ok)
	select {
	case <-tk.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("script did not finish")
	}

	resp = f.do(t, http.MethodGet, "/script/task/"+started.TaskID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var info task.Info
	decode(t, resp, &info)
	assert.Equal(t, task.StatusCompleted, info.Status)
	assert.Equal(t, []string{"Line 1: PRESS a", "Line 2: LOG done"}, info.Trace)
	assert.Equal(t, []string{"a"}, f.input.Presses())
}

func TestScriptRunRejectsWhileBusy(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/script/run", "WAIT 100000")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var started Response
	decode(t, resp, &started)

	resp = f.do(t, http.MethodPost, "/script/run", "LOG second")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/script/state", "")
	var state task.ExecutionState
	decode(t, resp, &state)
	require.NotNil(t, state.Running)
	assert.Equal(t, started.TaskID, state.Running.ID)

	resp = f.do(t, http.MethodPost, "/script/cancel", "")
	var cancelled Response
	decode(t, resp, &cancelled)
	assert.Equal(t, "Script cancel requested", cancelled.Result)

	tk, _ := f.bot.Runner.Get(started.TaskID)
	select {
	case <-tk.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("cancel did not stop the script")
	}
	assert.Equal(t, task.StatusCanceled, tk.Info().Status)

	resp = f.do(t, http.MethodPost, "/script/cancel", "")
	decode(t, resp, &cancelled)
	assert.Equal(t, "No script running", cancelled.Result)
}

func TestScriptRunRequiresBody(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/script/run", "  \n")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestScriptCheck(t *testing.T) {
	f := newFixture(t)

	var result CheckResult
	decode(t, f.do(t, http.MethodPost, "/script/check", "WAIT 10\nPRESS a"), &result)
	assert.True(t, result.Valid)

	result = CheckResult{}
	decode(t, f.do(t, http.MethodPost, "/script/check", "WAIT 10\nJUMP 3"), &result)
	assert.False(t, result.Valid)
	assert.Equal(t, 2, result.Line)
	assert.Equal(t, "Unknown instruction: JUMP 3", result.Reason)
}

func TestScriptExamplesParse(t *testing.T) {
	f := newFixture(t)

	var examples map[string]string
	decode(t, f.do(t, http.MethodGet, "/script/examples", ""), &examples)
	require.Contains(t, examples, "Default")
	for name, src := range examples {
		var result CheckResult
		decode(t, f.do(t, http.MethodPost, "/script/check", src), &result)
		assert.True(t, result.Valid, "%s: %s", name, result.Reason)
	}
}

func TestUnknownTask(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/script/task/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMonitorLifecycle(t *testing.T) {
	f := newFixture(t)
	f.screen.Set(5, 5, red)

	body := `{"sample":{"point":{"X":5,"Y":5},"color":{"r":255,"g":0,"b":0}},"failSafe":false,"intervalMs":10}`
	resp := f.do(t, http.MethodPost, "/monitor/start", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.Eventually(t, func() bool { return len(f.input.Presses()) >= 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "f9", f.input.Presses()[0])

	var state MonitorState
	decode(t, f.do(t, http.MethodGet, "/monitor/state", ""), &state)
	assert.Equal(t, monitor.Running, state.State)
	require.NotNil(t, state.Settings)
	assert.Equal(t, pixel.NewSample(5, 5, red), state.Settings.Sample)

	f.do(t, http.MethodPost, "/monitor/stop", "")
	state = MonitorState{}
	decode(t, f.do(t, http.MethodGet, "/monitor/state", ""), &state)
	assert.Equal(t, monitor.Idle, state.State)
	assert.Nil(t, state.Settings)
}

func TestMonitorStartRejectsUnknownKey(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodPost, "/monitor/start", `{"visibleKey":"NOPE"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, monitor.Idle, f.bot.Monitor.State())
}

func TestTargetCaptureAndSet(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/target", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	f.screen.SetCursor(3, 4)
	f.screen.Set(3, 4, red)
	var got sampleJSON
	decode(t, f.do(t, http.MethodPost, "/target", ""), &got)
	assert.Equal(t, sampleJSON{X: 3, Y: 4, Color: "#FF0000"}, got)

	decode(t, f.do(t, http.MethodPost, "/target", `{"x":7,"y":8,"color":"#00ff00"}`), &got)
	assert.Equal(t, sampleJSON{X: 7, Y: 8, Color: "#00FF00"}, got)

	got = sampleJSON{}
	decode(t, f.do(t, http.MethodGet, "/target", ""), &got)
	assert.Equal(t, sampleJSON{X: 7, Y: 8, Color: "#00FF00"}, got)

	resp = f.do(t, http.MethodPost, "/target", `{"x":1,"y":1,"color":"red"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVerify(t *testing.T) {
	f := newFixture(t)
	f.bot.Library.SetTarget(pixel.NewSample(2, 2, red))

	var resp Response
	decode(t, f.do(t, http.MethodGet, "/verify", ""), &resp)
	assert.Equal(t, "Color is missing", resp.Result)

	f.screen.Set(2, 2, red)
	decode(t, f.do(t, http.MethodGet, "/verify", ""), &resp)
	assert.Equal(t, "Color is visible", resp.Result)
}

func TestCursorAndColor(t *testing.T) {
	f := newFixture(t)
	f.screen.SetCursor(10, 11)
	f.screen.Set(10, 11, red)

	var cursor sampleJSON
	decode(t, f.do(t, http.MethodGet, "/cursor", ""), &cursor)
	assert.Equal(t, sampleJSON{X: 10, Y: 11, Color: "#FF0000"}, cursor)

	var color map[string]interface{}
	decode(t, f.do(t, http.MethodGet, "/color?x=10&y=11&color=FF0000", ""), &color)
	assert.Equal(t, true, color["visible"])

	decode(t, f.do(t, http.MethodGet, "/color?x=10&y=11&color=00FF00", ""), &color)
	assert.Equal(t, false, color["visible"])

	resp := f.do(t, http.MethodGet, "/color?x=a&y=11&color=00FF00", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestScreenshotAndPicker(t *testing.T) {
	f := newFixture(t)
	f.screen.Set(20, 20, red)

	resp := f.do(t, http.MethodGet, "/screenshot", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	img, err := png.Decode(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, 64, img.Bounds().Dx())

	resp = f.do(t, http.MethodGet, "/picker?x=20&y=20", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "20,20", resp.Header.Get("X-Sample-Point"))
	assert.Equal(t, "#FF0000", resp.Header.Get("X-Sample-Color"))
	_, err = png.Decode(resp.Body)
	require.NoError(t, err)

	f.screen.SetCursor(20, 20)
	resp = f.do(t, http.MethodGet, "/picker", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "20,20", resp.Header.Get("X-Sample-Point"))
}

func TestCooldowns(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/cooldowns", `{"name":"FireBoltCD","value":5000}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var saved Response
	decode(t, resp, &saved)
	assert.Equal(t, "Cooldown saved", saved.Result)

	var entries []map[string]interface{}
	decode(t, f.do(t, http.MethodGet, "/cooldowns", ""), &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "fireboltcd", entries[0]["name"])
	assert.EqualValues(t, 5000, entries[0]["value"])

	resp = f.do(t, http.MethodPost, "/cooldowns", `{"value":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestConfig(t *testing.T) {
	f := newFixture(t)

	var cfg config.Config
	decode(t, f.do(t, http.MethodGet, "/config", ""), &cfg)
	assert.Equal(t, "F8", cfg.Keys.Capture)
	assert.Equal(t, 10, cfg.Monitor.IntervalMs)
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	resp := f.do(t, http.MethodGet, "/script/run", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/monitor/start", "{")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
