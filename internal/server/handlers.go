package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"colorbot/internal/monitor"
	"colorbot/internal/pixel"
	"colorbot/internal/screenshot"
	"colorbot/internal/script"
	"colorbot/internal/service"
	"colorbot/internal/task"
)

const maxScriptBytes = 1 << 20

type Response struct {
	Result string      `json:"result"`
	TaskID string      `json:"taskId,omitempty"`
	Data   interface{} `json:"data,omitempty"`
}

type TargetRequest struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Color string `json:"color"`
}

type CooldownRequest struct {
	Name  string `json:"name"`
	Value int64  `json:"value"`
}

type CheckResult struct {
	Valid  bool   `json:"valid"`
	Line   int    `json:"line,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type MonitorState struct {
	State    monitor.State     `json:"state"`
	Settings *monitor.Settings `json:"settings,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Failed to encode JSON", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(jsonBytes)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, Response{Result: err.Error()})
}

func readScript(r *http.Request) (string, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxScriptBytes))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// decodeOptional decodes a JSON body into v, accepting an empty body.
func decodeOptional(r *http.Request, v interface{}) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (s *Server) ScriptRunHandler(w http.ResponseWriter, r *http.Request) {
	src, err := readScript(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(src) == "" {
		http.Error(w, "script body is required", http.StatusBadRequest)
		return
	}

	t, err := s.bot.Runner.Submit(src)
	if errors.Is(err, task.ErrBusy) {
		writeError(w, http.StatusConflict, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	log.Printf("Created task %s", t.ID)
	writeJSON(w, http.StatusOK, Response{Result: "Script started", TaskID: t.ID})
}

func (s *Server) ScriptCheckHandler(w http.ResponseWriter, r *http.Request) {
	src, err := readScript(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result := CheckResult{Valid: true}
	if _, err := script.Parse(src); err != nil {
		var pe *script.ParseError
		if errors.As(err, &pe) {
			result = CheckResult{Line: pe.Line, Reason: pe.Reason}
		} else {
			result = CheckResult{Reason: err.Error()}
		}
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) ScriptCancelHandler(w http.ResponseWriter, r *http.Request) {
	if s.bot.Runner.Cancel() {
		writeJSON(w, http.StatusOK, Response{Result: "Script cancel requested"})
		return
	}
	writeJSON(w, http.StatusOK, Response{Result: "No script running"})
}

func (s *Server) ScriptStateHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bot.Runner.State())
}

func (s *Server) ScriptExamplesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bot.Examples())
}

func (s *Server) ScriptTaskHandler(w http.ResponseWriter, r *http.Request) {
	t, ok := s.bot.Runner.Get(r.PathValue("id"))
	if !ok {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, t.Info())
}

func (s *Server) MonitorStartHandler(w http.ResponseWriter, r *http.Request) {
	var request service.MonitorRequest
	if err := decodeOptional(r, &request); err != nil {
		log.Printf("Error decoding monitor request: %v", err)
		http.Error(w, "Invalid JSON request", http.StatusBadRequest)
		return
	}

	settings, err := s.bot.StartMonitor(request, nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Result: "Monitoring started", Data: settings})
}

func (s *Server) MonitorStopHandler(w http.ResponseWriter, r *http.Request) {
	s.bot.Monitor.Stop()
	writeJSON(w, http.StatusOK, Response{Result: "Monitoring stopped"})
}

func (s *Server) MonitorStateHandler(w http.ResponseWriter, r *http.Request) {
	state := MonitorState{State: s.bot.Monitor.State()}
	if settings, ok := s.bot.Monitor.Settings(); ok {
		state.Settings = &settings
	}
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) TargetHandler(w http.ResponseWriter, r *http.Request) {
	target, ok := s.bot.Library.Target()
	if !ok {
		http.Error(w, "no target set", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, sampleView(target))
}

// SetTargetHandler sets an explicit sample from the body, or captures the
// pixel under the pointer when the body is empty.
func (s *Server) SetTargetHandler(w http.ResponseWriter, r *http.Request) {
	var request *TargetRequest
	if err := decodeOptional(r, &request); err != nil {
		http.Error(w, "Invalid JSON request", http.StatusBadRequest)
		return
	}

	if request == nil {
		sample, err := s.bot.CaptureTarget()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, sampleView(sample))
		return
	}

	c, err := pixel.ParseHex(request.Color)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sample := pixel.NewSample(request.X, request.Y, c)
	s.bot.Library.SetTarget(sample)
	writeJSON(w, http.StatusOK, sampleView(sample))
}

func (s *Server) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	visible, message, err := s.bot.Verify(false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, Response{Result: message, Data: map[string]bool{"visible": visible}})
}

func (s *Server) CursorHandler(w http.ResponseWriter, r *http.Request) {
	sample, err := s.bot.Library.CursorPixel()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, sampleView(sample))
}

func (s *Server) ColorHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pt, err := queryPoint(q.Get("x"), q.Get("y"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	c, err := pixel.ParseHex(q.Get("color"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	visible, err := s.bot.CheckColor(pt, c)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"x":       pt.X,
		"y":       pt.Y,
		"color":   c.Hex(),
		"visible": visible,
	})
}

func (s *Server) ScreenshotHandler(w http.ResponseWriter, r *http.Request) {
	img, err := s.bot.Library.Screenshot()
	if err != nil {
		http.Error(w, "Failed to capture screenshot: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writePNG(w, img)
}

// PickerHandler magnifies the area around ?x=&y=, or around the pointer when
// no point is given. The sampled pixel is returned in X-Sample-* headers.
func (s *Server) PickerHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var pt image.Point
	if q.Get("x") == "" && q.Get("y") == "" {
		cursor, err := s.bot.Library.CursorPixel()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		pt = cursor.Point
	} else {
		var err error
		if pt, err = queryPoint(q.Get("x"), q.Get("y")); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	img, err := s.bot.Library.Screenshot()
	if err != nil {
		http.Error(w, "Failed to capture screenshot: "+err.Error(), http.StatusInternalServerError)
		return
	}
	zoomed, sample, err := s.bot.Picker.Render(img, pt)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	w.Header().Set("X-Sample-Point", sample.Location())
	w.Header().Set("X-Sample-Color", sample.Color.Hex())
	writePNG(w, zoomed)
}

func (s *Server) CooldownsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bot.Cooldowns.All())
}

func (s *Server) SetCooldownHandler(w http.ResponseWriter, r *http.Request) {
	var request CooldownRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid JSON request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(request.Name) == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	s.bot.Cooldowns.Put(request.Name, request.Value)
	response := Response{Result: "Cooldown saved"}
	if err := s.bot.Cooldowns.LastError(); err != nil {
		response.Result = "Cooldown kept in memory: " + err.Error()
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) ConfigHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bot.Config())
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type sampleJSON struct {
	X     int    `json:"x"`
	Y     int    `json:"y"`
	Color string `json:"color"`
}

func sampleView(s pixel.Sample) sampleJSON {
	return sampleJSON{X: s.Point.X, Y: s.Point.Y, Color: s.Color.Hex()}
}

func queryPoint(xs, ys string) (image.Point, error) {
	x, err := strconv.Atoi(xs)
	if err != nil {
		return image.Point{}, fmt.Errorf("x must be an integer: %q", xs)
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return image.Point{}, fmt.Errorf("y must be an integer: %q", ys)
	}
	return image.Pt(x, y), nil
}

func writePNG(w http.ResponseWriter, img image.Image) {
	pngBytes, err := screenshot.EncodeToPNG(img)
	if err != nil {
		http.Error(w, "Failed to encode image: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(pngBytes)
}
