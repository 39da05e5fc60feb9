package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/linuxmatters/echopedal/internal/cli"
	"github.com/linuxmatters/echopedal/internal/config"
	"github.com/linuxmatters/echopedal/internal/controller"
	"github.com/linuxmatters/echopedal/internal/failure"
	"github.com/linuxmatters/echopedal/internal/logging"
	"github.com/linuxmatters/echopedal/internal/pots"
	"github.com/linuxmatters/echopedal/internal/presets"
	"github.com/linuxmatters/echopedal/internal/report"
	"github.com/linuxmatters/echopedal/internal/service"
	"github.com/linuxmatters/echopedal/internal/ui"
	"github.com/sirupsen/logrus"
)

var (
	version = "0.0.1"
)

const (
	// presetTimeout bounds the one-off preset fetch at startup
	presetTimeout = 10 * time.Second
	// closeTimeout bounds waiting for uploads and cleanups on exit
	closeTimeout = 30 * time.Second
)

// CLI defines the command-line interface
type CLI struct {
	Version  bool   `short:"v" help:"Show version information"`
	Config   string `short:"c" type:"path" help:"Path to YAML config file (optional)"`
	Server   string `short:"s" help:"Processing service base URL"`
	LogLevel string `name:"log-level" help:"Log level: debug, info, warn, error"`
	Logs     bool   `help:"Save a session report next to the downloads"`
	Headless bool   `help:"Process once without the UI, save the result and clean up"`
	Preset   string `short:"p" help:"Preset to apply before processing"`
	Pots     string `placeholder:"30,0,0,50" help:"Pot positions delay,mix,lfo,feedback (0-100)"`
	Output   string `short:"o" type:"path" help:"Where headless mode saves the result"`
	File     string `arg:"" name:"file" help:"Audio file to load" type:"existingfile" optional:""`
}

func main() {
	cliArgs := &CLI{}
	kong.Parse(cliArgs,
		kong.Name("echopedal"),
		kong.Description("Remote echo pedal controller"),
		kong.UsageOnError(),
		kong.Vars{
			"version": version,
		},
		kong.Help(cli.StyledHelpPrinter(helpPage())),
	)

	if cliArgs.Version {
		cli.PrintVersion(os.Stdout, version)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cliArgs, os.Stdout); err != nil {
		stop()
		cli.PrintError(err.Error())
		os.Exit(1)
	}
}

// helpPage adds the pedal keys, env overrides and examples to --help
func helpPage() cli.Help {
	var keyRows []cli.HelpRow
	for _, b := range ui.Bindings() {
		h := b.Help()
		keyRows = append(keyRows, cli.HelpRow{Key: h.Key, Text: h.Desc})
	}

	var envRows []cli.HelpRow
	for _, v := range config.EnvVars {
		envRows = append(envRows, cli.HelpRow{Key: v.Name, Text: v.Help})
	}

	return cli.Help{
		Title:       "Echopedal 🎛",
		Description: "Drive a remote echo pedal: upload, twist the knobs, reprocess",
		Usage:       "[flags] [file]",
		Sections: []cli.HelpSection{
			{Title: "Pedal keys", Rows: keyRows},
			{Title: "Environment", Rows: envRows},
			{Title: "Examples", Rows: []cli.HelpRow{
				{Key: "echopedal take.wav", Text: "Open the pedal with a file loaded"},
				{Key: "echopedal --headless --preset tape take.wav", Text: "Process once with a preset and save take-echo.mp3"},
				{Key: "echopedal --headless --pots 45,20,10,60 -o out.mp3 take.wav", Text: "Process once with explicit pot positions"},
			}},
		},
	}
}

// settings merges the config file, environment and flags
func settings(args *CLI) (*config.Config, error) {
	cfg, err := config.LoadConfig(args.Config)
	if err != nil {
		return nil, err
	}
	if args.Server != "" {
		cfg.Server = args.Server
	}
	if args.LogLevel != "" {
		cfg.LogLevel = args.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, args *CLI, stdout io.Writer) error {
	cfg, err := settings(args)
	if err != nil {
		return err
	}

	logPath := cfg.LogFile
	if args.Headless {
		logPath = ""
	}
	closer, err := logging.Setup(cfg.LogLevel, logPath)
	if err != nil {
		return err
	}
	defer closer.Close()

	initial := cfg.Initial.Controls()
	if args.Pots != "" {
		if initial, err = pots.ParseControls(args.Pots); err != nil {
			return err
		}
	}

	client, err := service.New(cfg.Server, cfg.Timeout)
	if err != nil {
		return err
	}

	presetCtx, cancel := context.WithTimeout(ctx, presetTimeout)
	catalog, _ := presets.Load(presetCtx, client)
	cancel()

	reporter := report.New(cfg.ErrorDismiss)
	ctl := controller.New(controller.Options{
		Service:  client,
		Catalog:  catalog,
		Reporter: reporter,
		Initial:  initial,
	})

	if args.Preset != "" {
		if err := ctl.ApplyPreset(args.Preset); err != nil {
			return err
		}
	}
	if args.File != "" {
		if err := ctl.SelectFile(ctx, args.File); err != nil && args.Headless {
			return errors.New(failure.UserMessage(err))
		}
	}

	started := time.Now()
	if args.Headless {
		err = runHeadless(ctx, ctl, cfg, args, stdout)
	} else {
		err = runUI(ctx, ctl, cfg)
	}

	if args.Logs && ctl.File() != nil {
		writeSessionReport(ctl, catalog, cfg, started)
	}
	if args.Headless || cfg.CleanupOnExit {
		// Best effort; a failed cleanup is logged by the session manager
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		_ = ctl.Close(closeCtx)
		cancel()
	}
	return err
}

func runHeadless(ctx context.Context, ctl *controller.Controller, cfg *config.Config, args *CLI, stdout io.Writer) error {
	if ctl.File() == nil {
		return errors.New("headless mode needs an audio file")
	}

	if err := ctl.Process(ctx); err != nil {
		return errors.New(failure.UserMessage(err))
	}

	out := args.Output
	if out == "" {
		out = filepath.Join(cfg.DownloadDir, controller.OutputName(ctl.File().Name))
	}
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := ctl.Download(ctx, f); err != nil {
		f.Close()
		os.Remove(out)
		return errors.New(failure.UserMessage(err))
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}

	res, _ := ctl.Result()
	controls := ctl.Controls()
	cli.PrintKeyValue(stdout, "File", ctl.File().Name)
	cli.PrintKeyValue(stdout, "Session", res.SessionID)
	for _, kind := range pots.Kinds {
		cli.PrintKeyValue(stdout, kind.String(), pots.Display(kind, controls.Get(kind)))
	}
	cli.PrintKeyValue(stdout, "Processed", res.ProcessedURL)
	cli.PrintKeyValue(stdout, "Saved", out)
	return nil
}

func runUI(ctx context.Context, ctl *controller.Controller, cfg *config.Config) error {
	model := ui.NewModel(ui.Options{
		Controller:  ctl,
		Context:     ctx,
		Server:      cfg.Server,
		DownloadDir: cfg.DownloadDir,
	})

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	// Reporter changes may fire inside Update, so never send synchronously
	ctl.Reporter().OnChange(func() {
		go p.Send(ui.RefreshMsg{})
	})

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("UI error: %w", err)
	}
	return nil
}

func writeSessionReport(ctl *controller.Controller, catalog *presets.Catalog, cfg *config.Config, started time.Time) {
	path := logging.ReportPath(cfg.DownloadDir, ctl.File())
	err := logging.GenerateReport(path, logging.ReportData{
		File:      ctl.File(),
		Server:    cfg.Server,
		SessionID: ctl.SessionID(),
		StartTime: started,
		EndTime:   time.Now(),
		Runs:      ctl.History(),
		Presets:   catalog,
	})
	if err != nil {
		logrus.WithError(err).Warn("Failed to write session report")
		return
	}
	logrus.WithField("path", path).Info("Session report saved")
}
