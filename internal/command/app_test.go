package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colorbot/internal/automation/automationtest"
	"colorbot/internal/config"
	"colorbot/internal/pixel"
	"colorbot/internal/service"
	"colorbot/internal/websocket"
)

var red = pixel.RGB{R: 255}

type harness struct {
	cfg    config.Config
	screen *automationtest.Screen
	input  *automationtest.Input
	out    bytes.Buffer
	served *service.Bot
	serve  func(context.Context, *service.Bot, *websocket.Hub) error
}

func newHarness(t *testing.T) *harness {
	return &harness{
		cfg: config.Config{
			Server:    config.ServerConfig{IP: "127.0.0.1", Port: 8080},
			Screen:    config.ScreenConfig{Backend: "x11"},
			Input:     config.InputConfig{Backend: "robotgo"},
			Keys:      config.KeysConfig{Capture: "F8", Visible: "F9", Missing: "F10"},
			Monitor:   config.MonitorConfig{FailSafe: true, IntervalMs: 10},
			Cooldowns: config.CooldownConfig{File: filepath.Join(t.TempDir(), "cooldowns.toml")},
			Picker:    config.PickerConfig{Radius: 2, Zoom: 4, DPI: 72, Size: 12, Hinting: "none"},
		},
		screen: automationtest.NewScreen(),
		input:  automationtest.NewInput(),
	}
}

func (h *harness) run(ctx context.Context, stdin string, args ...string) error {
	app := BuildApp(Deps{
		LoadConfig: func(string) (config.Config, error) { return h.cfg, nil },
		OpenDevices: func(config.Config) (*Devices, error) {
			return &Devices{Screen: h.screen, Input: h.input}, nil
		},
		RunServer: func(ctx context.Context, bot *service.Bot, hub *websocket.Hub) error {
			h.served = bot
			if h.serve != nil {
				return h.serve(ctx, bot, hub)
			}
			return nil
		},
	})
	app.Reader = strings.NewReader(stdin)
	app.Writer = &h.out
	app.ErrWriter = &h.out
	return app.RunContext(ctx, append([]string{"colorbot"}, args...))
}

func TestCheckFromStdin(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(context.Background(), "WAIT 10\nPRESS a", "check", "-"))
	assert.Equal(t, "OK\n", h.out.String())

	err := newHarness(t).run(context.Background(), "WAIT 10\nJUMP", "check", "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestCheckRequiresFile(t *testing.T) {
	err := newHarness(t).run(context.Background(), "", "check")
	assert.Error(t, err)
}

func TestRunScriptFile(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "macro.txt")
	require.NoError(t, os.WriteFile(path, []byte("PRESS a\nLOG hi"), 0o644))

	require.NoError(t, h.run(context.Background(), "", "run", path))
	assert.Equal(t, []string{"a"}, h.input.Presses())
	assert.Contains(t, h.out.String(), "Script finished (2 steps)")
}

func TestRunScriptFailure(t *testing.T) {
	h := newHarness(t)
	h.input.Fail(errors.New("port gone"))

	err := h.run(context.Background(), "LOG start\nPRESS a", "run", "-")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
	assert.Contains(t, h.out.String(), "Line 2 failed")
}

func TestRunScriptInterrupted(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := h.run(ctx, "WAIT 100000", "run", "-")
	require.Error(t, err)
	assert.Equal(t, "script stopped", err.Error())
	assert.Contains(t, h.out.String(), "Script stopped by request")
}

func TestCapture(t *testing.T) {
	h := newHarness(t)
	h.screen.SetCursor(3, 4)
	h.screen.Set(3, 4, red)

	require.NoError(t, h.run(context.Background(), "", "capture"))
	assert.Equal(t, "3,4 #FF0000\n", h.out.String())
}

func TestVerify(t *testing.T) {
	h := newHarness(t)
	h.screen.Set(1, 2, red)
	require.NoError(t, h.run(context.Background(), "", "verify", "--x", "1", "--y", "2", "--color", "#FF0000"))
	assert.Equal(t, "Color is visible\n", h.out.String())

	h = newHarness(t)
	err := h.run(context.Background(), "", "verify", "--x", "1", "--y", "2", "--color", "#FF0000", "--fail-safe")
	assert.ErrorIs(t, err, service.ErrColorMissing)
	assert.Equal(t, "Color is missing\n", h.out.String())

	err = newHarness(t).run(context.Background(), "", "verify", "--x", "1")
	assert.Error(t, err)
}

func TestMonitorUntilInterrupted(t *testing.T) {
	h := newHarness(t)
	h.screen.Set(5, 5, red)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for len(h.input.Presses()) < 2 {
			time.Sleep(5 * time.Millisecond)
		}
		cancel()
	}()

	err := h.run(ctx, "", "monitor", "--x", "5", "--y", "5", "--color", "FF0000", "--interval", "10")
	require.NoError(t, err)
	assert.Equal(t, "f9", h.input.Presses()[0])
	assert.Contains(t, h.out.String(), "Monitoring started at 5,5 for color #FF0000")
}

func TestMonitorFailSafe(t *testing.T) {
	h := newHarness(t)

	err := h.run(context.Background(), "", "monitor", "--x", "5", "--y", "5", "--color", "FF0000")
	require.Error(t, err)
	assert.Equal(t, []string{"f10"}, h.input.Presses())
	assert.Contains(t, h.out.String(), "(fail-safe)")
}

func TestCooldownCommands(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.run(ctx, "", "cooldown", "set", "FireBoltCD", "5000"))
	assert.Equal(t, "fireboltcd = 5000\n", h.out.String())

	h.out.Reset()
	require.NoError(t, h.run(ctx, "", "cooldown", "get", "fireboltcd"))
	assert.Equal(t, "5000\n", h.out.String())

	h.out.Reset()
	require.NoError(t, h.run(ctx, "", "cooldown", "set", "heal", "now"))
	h.out.Reset()
	require.NoError(t, h.run(ctx, "", "cooldown", "list"))
	lines := strings.Split(strings.TrimSpace(h.out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "fireboltcd = 5000", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "heal = "))

	assert.Error(t, h.run(ctx, "", "cooldown", "get", "missing"))
	assert.Error(t, h.run(ctx, "", "cooldown", "set", "x", "soon"))
}

func TestServeAppliesAddress(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(context.Background(), "", "serve", "--addr", "0.0.0.0:9999"))
	require.NotNil(t, h.served)
	assert.Equal(t, "0.0.0.0:9999", h.served.Config().Addr())

	assert.Error(t, newHarness(t).run(context.Background(), "", "serve", "--addr", "nope"))
}

func TestServeSendsScriptLinesOnce(t *testing.T) {
	h := newHarness(t)
	var logs []string
	h.serve = func(ctx context.Context, bot *service.Bot, hub *websocket.Hub) error {
		hubCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go hub.Run(hubCtx)

		srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
		defer srv.Close()
		conn, _, err := gorillaws.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
		require.NoError(t, err)
		defer conn.Close()
		require.Eventually(t, func() bool { return hub.Len() == 1 }, time.Second, 5*time.Millisecond)

		tk, err := bot.Runner.Submit("LOG hello from script")
		require.NoError(t, err)
		<-tk.Done()

		for {
			require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
			_, data, err := conn.ReadMessage()
			require.NoError(t, err)
			var msg map[string]any
			require.NoError(t, json.Unmarshal(data, &msg))
			switch msg["type"] {
			case "log":
				logs = append(logs, msg["data"].(string))
			case "taskUpdate":
				if msg["status"] == "completed" {
					return nil
				}
			}
		}
	}

	require.NoError(t, h.run(context.Background(), "", "serve"))
	var seen int
	for _, line := range logs {
		if strings.Contains(line, "hello from script") {
			seen++
		}
	}
	assert.Equal(t, 1, seen, "log messages: %q", logs)
}

func TestDefaultActionServes(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(context.Background(), ""))
	assert.NotNil(t, h.served)
}

func TestBackendOverrideIsValidated(t *testing.T) {
	err := newHarness(t).run(context.Background(), "", "--screen", "vnc", "capture")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown screen backend")
}

func TestLogWriterForwardsLines(t *testing.T) {
	var out bytes.Buffer
	var sent []string
	lw := NewLogWriter(&out, func(s string) { sent = append(sent, s) })

	_, err := lw.Write([]byte("2024/01/01 hello\n"))
	require.NoError(t, err)
	_, err = lw.Write([]byte("\n"))
	require.NoError(t, err)

	assert.Equal(t, "2024/01/01 hello\n\n", out.String())
	assert.Equal(t, []string{"2024/01/01 hello"}, sent)
}
