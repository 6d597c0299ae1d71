// Command keypad-sync keeps a keypad emulator's LEDs and Relay3 in step with
// the presence sensors and the supply voltage by pulsing its keys.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/keypad-sync/internal/adc"
	"github.com/sweeney/keypad-sync/internal/clock"
	"github.com/sweeney/keypad-sync/internal/config"
	"github.com/sweeney/keypad-sync/internal/diag"
	"github.com/sweeney/keypad-sync/internal/gpio"
	"github.com/sweeney/keypad-sync/internal/logic"
	"github.com/sweeney/keypad-sync/internal/mqtt"
	"github.com/sweeney/keypad-sync/internal/status"
	"github.com/sweeney/keypad-sync/internal/supervisor"
	"github.com/sweeney/keypad-sync/internal/watchdog"
	"github.com/sweeney/keypad-sync/internal/web"
)

const defaultConfigPath = "/etc/keypad-sync/config.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type flags struct {
	configPath string
	printState bool
	httpAddr   string
	broker     string
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:          "keypad-sync",
		Short:        "Pulse keypad emulator keys until its LEDs and relay match the sensors",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, f)
			if err != nil {
				return err
			}
			if f.printState {
				return runPrintState(cfg, cmd.OutOrStdout())
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&f.configPath, "config", "c", defaultConfigPath, "YAML config file (missing file = defaults)")
	fs.BoolVar(&f.printState, "print-state", false, "Print current inputs and voltage and exit")
	fs.StringVar(&f.httpAddr, "http", "", "HTTP status address, overrides http.addr (empty to disable)")
	fs.StringVar(&f.broker, "broker", "", "MQTT broker for telemetry, overrides mqtt.broker (empty to disable)")
	return cmd
}

// loadConfig reads the config file and applies flags that were set
// explicitly on the command line.
func loadConfig(cmd *cobra.Command, f flags) (*config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("http") {
		cfg.HTTP.Addr = f.httpAddr
	}
	if cmd.Flags().Changed("broker") {
		cfg.MQTT.Broker = f.broker
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, port, err := diag.New(diag.Options{
		Level:      cfg.Diagnostics.Level,
		SerialPort: cfg.Diagnostics.SerialPort,
		Baud:       cfg.Diagnostics.Baud,
	})
	if err != nil {
		return err
	}
	defer port.Close()

	board, err := gpio.NewRealBoard(cfg.GPIO)
	if err != nil {
		logger.Error().Err(err).Msg("init gpio")
		return fmt.Errorf("init gpio: %w", err)
	}
	defer closeLogged(logger, "gpio", board)

	var wd watchdog.Feeder = watchdog.Noop{}
	if cfg.Watchdog.Enabled {
		dev, err := watchdog.Open(cfg.Watchdog.Device, cfg.Watchdog.Timeout)
		if err != nil {
			logger.Error().Err(err).Msg("init watchdog")
			return fmt.Errorf("init watchdog: %w", err)
		}
		defer closeLogged(logger, "watchdog", dev)
		wd = dev
		logger.Info().Msgf("Watchdog Enabled (%ds timeout)", int(dev.Timeout().Seconds()))
	}

	d, err := newDaemon(cfg, logger, hardware{
		board:      board,
		lowVoltage: board.LowVoltage(),
		vcc:        adc.NewIIO(cfg.Voltage.IIOPath, cfg.Voltage.RefMillivolts),
		wd:         wd,
		sleeper:    clock.Real{},
	}, connectMQTT)
	if err != nil {
		return err
	}
	defer d.close()
	logger.Info().Msg("System Initialized")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	return d.serve(ctx, sig)
}

func connectMQTT(opts mqtt.Options, log zerolog.Logger) (mqtt.Publisher, error) {
	p, err := mqtt.NewRealPublisher(opts, log)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// hardware bundles the device collaborators so tests can substitute fakes.
type hardware struct {
	board      gpio.Board
	lowVoltage <-chan struct{}
	vcc        adc.Reader
	wd         watchdog.Feeder
	sleeper    clock.Sleeper
}

type publisherFunc func(opts mqtt.Options, log zerolog.Logger) (mqtt.Publisher, error)

type daemon struct {
	log      zerolog.Logger
	bootID   string
	tracker  *status.Tracker
	sup      *supervisor.Supervisor
	pub      mqtt.Publisher // nil = telemetry disabled
	web      *web.Server    // nil = disabled
	httpAddr string
}

func newDaemon(cfg *config.Config, log zerolog.Logger, hw hardware, connect publisherFunc) (*daemon, error) {
	d := &daemon{
		log:    log,
		bootID: uuid.NewString(),
	}

	d.tracker = status.NewTracker(time.Now(), d.bootID, status.Config{
		PollMs:       cfg.Timing.PollInterval.Milliseconds(),
		PulseMs:      cfg.Timing.PulseWidth.Milliseconds(),
		ThresholdMV:  cfg.Voltage.ThresholdMillivolts,
		RecheckPolls: cfg.Timing.VoltageRecheckPolls,
		Watchdog:     cfg.Watchdog.Enabled,
		Broker:       cfg.MQTT.Broker,
		HTTPAddr:     cfg.HTTP.Addr,
	})
	observers := supervisor.Observers{d.tracker}

	if cfg.MQTT.Broker != "" {
		pub, err := connect(mqtt.Options{
			Broker:             cfg.MQTT.Broker,
			ClientID:           cfg.MQTT.ClientID,
			BootID:             d.bootID,
			OnConnectionChange: d.tracker.SetMQTTConnected,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("init mqtt: %w", err)
		}
		d.pub = pub
		observers = append(observers, mqtt.NewBridge(pub, d.bootID, log))
	}

	if cfg.HTTP.Addr != "" {
		d.web = web.New(cfg.HTTP.Addr, d.tracker)
		d.httpAddr = cfg.HTTP.Addr
	}

	supLog := log.With().Str("component", "supervisor").Logger()
	d.sup = supervisor.New(cfg.Supervisor(), supervisor.Deps{
		Board:      hw.board,
		VCC:        hw.vcc,
		Watchdog:   hw.wd,
		Sleeper:    hw.sleeper,
		Observer:   observers,
		LowVoltage: hw.lowVoltage,
		Log:        &supLog,
	})
	return d, nil
}

// serve runs the supervisor and the HTTP server until a signal arrives, ctx
// is cancelled or the supervisor fails to start.
func (d *daemon) serve(ctx context.Context, sig <-chan os.Signal) error {
	d.publishSystem(mqtt.EventStartup, "")

	g, gctx := errgroup.WithContext(ctx)
	runCtx, stop := context.WithCancel(gctx)
	defer stop()

	var reason string
	g.Go(func() error {
		select {
		case s := <-sig:
			reason = signalName(s)
			d.log.Info().Str("signal", reason).Msg("shutting down")
			stop()
		case <-runCtx.Done():
		}
		return nil
	})

	g.Go(func() error {
		defer stop()
		return d.sup.Run(runCtx)
	})

	if d.web != nil {
		g.Go(func() error {
			d.log.Info().Str("addr", d.httpAddr).Msg("http status server listening")
			if err := d.web.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				// The status page is optional; keep synchronizing without it.
				d.log.Error().Err(err).Msg("http server")
			}
			return nil
		})
		g.Go(func() error {
			<-runCtx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return d.web.Shutdown(sctx)
		})
	}

	err := g.Wait()
	switch {
	case err != nil:
		d.log.Error().Err(err).Msg("supervisor stopped")
		reason = "ERROR"
	case reason == "":
		reason = "CANCELLED"
	}
	d.publishSystem(mqtt.EventShutdown, reason)
	return err
}

// publishSystem sends a lifecycle event carrying the full status snapshot.
func (d *daemon) publishSystem(event, reason string) {
	if d.pub == nil {
		return
	}
	if event == mqtt.EventShutdown {
		if w, ok := d.pub.(interface{ WaitConnected(time.Duration) bool }); ok {
			w.WaitConnected(2 * time.Second)
		}
	}
	if c, ok := d.pub.(mqtt.ConnectionStatus); ok {
		d.tracker.SetMQTTConnected(c.IsConnected())
	}

	snap := d.tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		BootID:     d.bootID,
		Event:      event,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := d.pub.PublishSystem(ev); err != nil {
		d.log.Warn().Err(err).Str("event", event).Msg("failed to publish system event")
		return
	}
	d.log.Info().Str("event", event).Msg("published system event")
}

func (d *daemon) close() {
	if d.pub != nil {
		closeLogged(d.log, "mqtt", d.pub)
	}
}

func closeLogged(log zerolog.Logger, what string, c io.Closer) {
	if err := c.Close(); err != nil {
		log.Warn().Err(err).Str("resource", what).Msg("close failed")
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return strings.ToUpper(s.String())
}

func runPrintState(cfg *config.Config, out io.Writer) error {
	board, err := gpio.NewRealBoard(cfg.GPIO)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer board.Close()

	return printState(out, board, adc.NewIIO(cfg.Voltage.IIOPath, cfg.Voltage.RefMillivolts), logic.VoltagePolicy{
		ThresholdMillivolts: cfg.Voltage.ThresholdMillivolts,
		ZeroIsLow:           cfg.Voltage.ZeroIsLow,
	})
}

func printState(out io.Writer, board gpio.Board, vcc adc.Reader, policy logic.VoltagePolicy) error {
	parts := make([]string, 0, len(gpio.Inputs))
	for _, in := range gpio.Inputs {
		v, err := board.Read(in)
		if err != nil {
			return fmt.Errorf("read %s: %w", in, err)
		}
		parts = append(parts, fmt.Sprintf("%s: %s", in, stateString(v)))
	}

	level := logic.VoltageUnknown
	mv, err := vcc.ReadVCCMillivolts()
	if err != nil {
		mv = 0
	}
	if next, applied := policy.Apply(logic.VoltageStatus{}, mv); applied {
		level = next.Level()
	}
	_, err = fmt.Fprintf(out, "%s, VCC: %d mV (%s)\n", strings.Join(parts, ", "), mv, level)
	return err
}

func stateString(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
