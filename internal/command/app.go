// Package command builds the colorbot command line.
package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/urfave/cli/v2"

	"colorbot/internal/config"
	"colorbot/internal/cooldown"
	"colorbot/internal/pixel"
	"colorbot/internal/script"
	"colorbot/internal/server"
	"colorbot/internal/service"
	"colorbot/internal/task"
	"colorbot/internal/websocket"
)

type Deps struct {
	LoadConfig  func(path string) (config.Config, error)
	OpenDevices func(config.Config) (*Devices, error)
	RunServer   func(context.Context, *service.Bot, *websocket.Hub) error
}

func DefaultDeps() Deps {
	return Deps{
		LoadConfig:  config.Load,
		OpenDevices: OpenDevices,
		RunServer: func(ctx context.Context, bot *service.Bot, hub *websocket.Hub) error {
			return server.New(bot, hub).Start(ctx)
		},
	}
}

func BuildApp(deps Deps) *cli.App {
	return &cli.App{
		Name:  "colorbot",
		Usage: "drive keyboard and mouse from on-screen pixel colors",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to a colorbot.yaml file"},
			&cli.StringFlag{Name: "screen", Usage: "screen backend: x11, display or robotgo"},
			&cli.StringFlag{Name: "input", Usage: "input backend: robotgo or arduino"},
		},
		Action: func(c *cli.Context) error {
			return serve(c, deps)
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "start the HTTP and websocket control server",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "addr", Usage: "listen address, host:port"},
				},
				Action: func(c *cli.Context) error {
					return serve(c, deps)
				},
			},
			{
				Name:      "run",
				Usage:     "run a macro script in the foreground",
				ArgsUsage: "<file|->",
				Action: func(c *cli.Context) error {
					return runScript(c, deps)
				},
			},
			{
				Name:      "check",
				Usage:     "parse a macro script without running it",
				ArgsUsage: "<file|->",
				Action:    checkScript,
			},
			{
				Name:  "monitor",
				Usage: "poll a pixel and press keys until interrupted",
				Flags: append(sampleFlags(),
					&cli.StringFlag{Name: "visible", Usage: "key pressed while the color is visible"},
					&cli.StringFlag{Name: "missing", Usage: "key pressed while the color is missing"},
					&cli.IntFlag{Name: "interval", Usage: "poll interval in milliseconds"},
					&cli.BoolFlag{Name: "no-fail-safe", Usage: "keep polling when the color disappears"},
				),
				Action: func(c *cli.Context) error {
					return runMonitor(c, deps)
				},
			},
			{
				Name:  "capture",
				Usage: "print the pixel under the pointer",
				Action: func(c *cli.Context) error {
					return capture(c, deps)
				},
			},
			{
				Name:  "verify",
				Usage: "check once whether a color is at a coordinate",
				Flags: append(sampleFlags(),
					&cli.BoolFlag{Name: "fail-safe", Usage: "exit with an error when the color is missing"},
				),
				Action: func(c *cli.Context) error {
					return verify(c, deps)
				},
			},
			{
				Name:  "cooldown",
				Usage: "inspect and edit stored cooldown timestamps",
				Subcommands: []*cli.Command{
					{
						Name:  "list",
						Usage: "print every stored value",
						Action: func(c *cli.Context) error {
							return cooldownList(c, deps)
						},
					},
					{
						Name:      "get",
						Usage:     "print one stored value",
						ArgsUsage: "<name>",
						Action: func(c *cli.Context) error {
							return cooldownGet(c, deps)
						},
					},
					{
						Name:      "set",
						Usage:     "store a value; \"now\" stores the current time in ms",
						ArgsUsage: "<name> <value|now>",
						Action: func(c *cli.Context) error {
							return cooldownSet(c, deps)
						},
					},
				},
			},
		},
	}
}

func sampleFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{Name: "x", Usage: "sample x coordinate"},
		&cli.IntFlag{Name: "y", Usage: "sample y coordinate"},
		&cli.StringFlag{Name: "color", Usage: "expected color as #RRGGBB"},
	}
}

func loadConfig(c *cli.Context, deps Deps) (config.Config, error) {
	load := deps.LoadConfig
	if load == nil {
		load = config.Load
	}
	cfg, err := load(c.String("config"))
	if err != nil {
		return config.Config{}, err
	}
	if c.IsSet("screen") {
		cfg.Screen.Backend = c.String("screen")
	}
	if c.IsSet("input") {
		cfg.Input.Backend = c.String("input")
	}
	return cfg, cfg.Validate()
}

// openBot opens a Bot on the configured devices. The returned func releases
// both.
func openBot(deps Deps, cfg config.Config, events service.Events) (*service.Bot, func(), error) {
	if deps.OpenDevices == nil {
		return nil, nil, errors.New("device opener is not configured")
	}
	devices, err := deps.OpenDevices(cfg)
	if err != nil {
		return nil, nil, err
	}
	bot, err := service.New(cfg, devices.Screen, devices.Input, events)
	if err != nil {
		devices.Close()
		return nil, nil, err
	}
	return bot, func() {
		bot.Close()
		if err := devices.Close(); err != nil {
			log.Printf("Failed to close devices: %v", err)
		}
	}, nil
}

// sampleArg returns the sample described by --x, --y and --color, or nil
// when --color is not given.
func sampleArg(c *cli.Context) (*pixel.Sample, error) {
	if !c.IsSet("color") {
		return nil, nil
	}
	rgb, err := pixel.ParseHex(c.String("color"))
	if err != nil {
		return nil, err
	}
	s := pixel.NewSample(c.Int("x"), c.Int("y"), rgb)
	return &s, nil
}

func readSource(c *cli.Context) (string, error) {
	name := c.Args().First()
	if name == "" {
		return "", errors.New("script file is required (use - for stdin)")
	}
	var r io.Reader
	if name == "-" {
		r = c.App.Reader
	} else {
		f, err := os.Open(name)
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read script: %w", err)
	}
	return string(data), nil
}

func serve(c *cli.Context, deps Deps) error {
	cfg, err := loadConfig(c, deps)
	if err != nil {
		return err
	}
	if addr := c.String("addr"); addr != "" {
		host, portStr, err := net.SplitHostPort(addr)
		if err != nil {
			return fmt.Errorf("invalid address %q: %w", addr, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return fmt.Errorf("invalid port in %q", addr)
		}
		cfg.Server.IP, cfg.Server.Port = host, port
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if deps.RunServer == nil {
		return errors.New("server runner is not configured")
	}

	wsHub := websocket.NewHub()
	previous := log.Writer()
	log.SetOutput(NewLogWriter(previous, wsHub.SendLog))
	log.SetFlags(log.LstdFlags)
	defer log.SetOutput(previous)

	bot, closeBot, err := openBot(deps, cfg, wsHub)
	if err != nil {
		return err
	}
	defer closeBot()
	// Script lines already reach clients through the hub notifier.
	bot.Runner.SetLineLogger(log.New(previous, "", log.LstdFlags))

	return deps.RunServer(c.Context, bot, wsHub)
}

// printer writes runner and monitor events to the command output.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) println(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, line)
}

func (p *printer) SendLog(line string)             { p.println(line) }
func (p *printer) SendTaskUpdate(task.TaskUpdate)  {}
func (p *printer) SendMonitorStatus(status string) { p.println(status) }

func runScript(c *cli.Context, deps Deps) error {
	src, err := readSource(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c, deps)
	if err != nil {
		return err
	}
	bot, closeBot, err := openBot(deps, cfg, &printer{w: c.App.Writer})
	if err != nil {
		return err
	}
	defer closeBot()

	t, err := bot.Runner.Submit(src)
	if err != nil {
		return err
	}
	select {
	case <-t.Done():
	case <-c.Context.Done():
		bot.Runner.Cancel()
		<-t.Done()
	}

	res := t.Result()
	switch res.Status {
	case script.StatusFailed:
		return fmt.Errorf("script failed at line %d: %w", res.FailedLine, res.Err)
	case script.StatusStopped:
		return errors.New("script stopped")
	}
	return nil
}

func checkScript(c *cli.Context) error {
	src, err := readSource(c)
	if err != nil {
		return err
	}
	if _, err := script.Parse(src); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "OK")
	return nil
}

func runMonitor(c *cli.Context, deps Deps) error {
	cfg, err := loadConfig(c, deps)
	if err != nil {
		return err
	}
	sample, err := sampleArg(c)
	if err != nil {
		return err
	}
	bot, closeBot, err := openBot(deps, cfg, &printer{w: c.App.Writer})
	if err != nil {
		return err
	}
	defer closeBot()

	req := service.MonitorRequest{
		Sample:     sample,
		VisibleKey: c.String("visible"),
		MissingKey: c.String("missing"),
		IntervalMs: c.Int("interval"),
	}
	if c.Bool("no-fail-safe") {
		failSafe := false
		req.FailSafe = &failSafe
	}
	if _, err := bot.StartMonitor(req, nil); err != nil {
		return err
	}

	select {
	case <-bot.Monitor.Done():
		return errors.New("monitoring stopped")
	case <-c.Context.Done():
		bot.Monitor.Stop()
		return nil
	}
}

func capture(c *cli.Context, deps Deps) error {
	cfg, err := loadConfig(c, deps)
	if err != nil {
		return err
	}
	bot, closeBot, err := openBot(deps, cfg, nil)
	if err != nil {
		return err
	}
	defer closeBot()

	s, err := bot.CaptureTarget()
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, s)
	return nil
}

func verify(c *cli.Context, deps Deps) error {
	cfg, err := loadConfig(c, deps)
	if err != nil {
		return err
	}
	sample, err := sampleArg(c)
	if err != nil {
		return err
	}
	if sample == nil {
		return errors.New("--color is required")
	}
	bot, closeBot, err := openBot(deps, cfg, nil)
	if err != nil {
		return err
	}
	defer closeBot()

	bot.Library.SetTarget(*sample)
	_, message, err := bot.Verify(c.Bool("fail-safe"))
	if message != "" {
		fmt.Fprintln(c.App.Writer, message)
	}
	return err
}

func openCooldowns(c *cli.Context, deps Deps) (*cooldown.Store, error) {
	cfg, err := loadConfig(c, deps)
	if err != nil {
		return nil, err
	}
	return cooldown.Open(cfg.Cooldowns.File), nil
}

func cooldownList(c *cli.Context, deps Deps) error {
	store, err := openCooldowns(c, deps)
	if err != nil {
		return err
	}
	for _, e := range store.All() {
		fmt.Fprintf(c.App.Writer, "%s = %d\n", e.Name, e.Value)
	}
	return nil
}

func cooldownGet(c *cli.Context, deps Deps) error {
	name := c.Args().First()
	if name == "" {
		return errors.New("cooldown name is required")
	}
	store, err := openCooldowns(c, deps)
	if err != nil {
		return err
	}
	v, ok := store.Get(name)
	if !ok {
		return fmt.Errorf("cooldown %q is not set", name)
	}
	fmt.Fprintln(c.App.Writer, v)
	return nil
}

func cooldownSet(c *cli.Context, deps Deps) error {
	if c.NArg() != 2 {
		return errors.New("usage: cooldown set <name> <value|now>")
	}
	name, raw := c.Args().Get(0), c.Args().Get(1)
	var value int64
	if strings.EqualFold(raw, "now") {
		value = time.Now().UnixMilli()
	} else {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("cooldown value must be an integer or now: %q", raw)
		}
		value = v
	}

	store, err := openCooldowns(c, deps)
	if err != nil {
		return err
	}
	store.Put(name, value)
	if err := store.LastError(); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "%s = %d\n", strings.ToLower(strings.TrimSpace(name)), value)
	return nil
}
