package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/keypad-sync/internal/adc"
	"github.com/sweeney/keypad-sync/internal/clock"
	"github.com/sweeney/keypad-sync/internal/config"
	"github.com/sweeney/keypad-sync/internal/gpio"
	"github.com/sweeney/keypad-sync/internal/logic"
	"github.com/sweeney/keypad-sync/internal/mqtt"
	"github.com/sweeney/keypad-sync/internal/status"
	"github.com/sweeney/keypad-sync/internal/watchdog"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Timing.SettleDelay = time.Millisecond
	cfg.Timing.PollInterval = time.Millisecond
	cfg.Timing.PulseWidth = time.Millisecond
	cfg.MQTT.Broker = "tcp://broker.test:1883"
	return cfg
}

type fixture struct {
	board *gpio.FakeBoard
	vcc   *adc.FakeReader
	wd    *watchdog.Fake
	pub   *mqtt.FakePublisher
	d     *daemon
}

func newFixture(t *testing.T, cfg *config.Config, levels map[gpio.Input]bool) *fixture {
	t.Helper()
	f := &fixture{
		board: gpio.NewFakeBoard(levels),
		vcc:   adc.NewFakeReader(3300),
		wd:    &watchdog.Fake{},
		pub:   mqtt.NewFakePublisher(),
	}
	connect := func(opts mqtt.Options, _ zerolog.Logger) (mqtt.Publisher, error) {
		assert.Equal(t, cfg.MQTT.Broker, opts.Broker)
		assert.NotEmpty(t, opts.BootID)
		opts.OnConnectionChange(true)
		f.pub.Connected = true
		return f.pub, nil
	}
	d, err := newDaemon(cfg, zerolog.Nop(), hardware{
		board:      f.board,
		lowVoltage: f.board.LowVoltage(),
		vcc:        f.vcc,
		wd:         f.wd,
		sleeper:    clock.Real{},
	}, connect)
	require.NoError(t, err)
	f.d = d
	return f
}

func (f *fixture) serve(t *testing.T, ctx context.Context, sig chan os.Signal) <-chan error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- f.d.serve(ctx, sig) }()
	return done
}

func (f *fixture) waitIterations(t *testing.T, n uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.d.tracker.Snapshot().Iteration >= n
	}, 5*time.Second, time.Millisecond)
}

func decodeStatus(t *testing.T, payload []byte) status.StatusInner {
	t.Helper()
	var sj status.StatusJSON
	require.NoError(t, json.Unmarshal(payload, &sj))
	return sj.Status
}

func TestServeShutdownOnSignal(t *testing.T) {
	f := newFixture(t, testConfig(), map[gpio.Input]bool{gpio.InputHuman: true})
	sig := make(chan os.Signal, 1)
	done := f.serve(t, context.Background(), sig)

	f.waitIterations(t, 5)
	sig <- syscall.SIGTERM

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after SIGTERM")
	}

	assert.Equal(t, []string{mqtt.EventStartup, mqtt.EventVoltage, mqtt.EventShutdown}, f.pub.SystemEventNames())

	startup := decodeStatus(t, f.pub.SystemPayloads[0])
	assert.Equal(t, "STARTUP", startup.Event)
	assert.Equal(t, f.d.bootID, startup.BootID)

	shutdown := decodeStatus(t, f.pub.SystemPayloads[2])
	assert.Equal(t, "SHUTDOWN", shutdown.Event)
	assert.Equal(t, "SIGTERM", shutdown.Reason)
	assert.True(t, shutdown.Ready)
	assert.Equal(t, 1, shutdown.Pulses.Key1)
	assert.Equal(t, "HIGH", shutdown.Voltage.Level)
	assert.True(t, shutdown.MQTT.Connected)
	assert.True(t, f.pub.SystemEvents[2].Retained)

	// Human present with LED1 off: exactly one startup pulse on Key1.
	assert.Equal(t, 1, f.board.Pulses(gpio.OutputKey1))
	assert.Zero(t, f.board.Pulses(gpio.OutputKey2))
	events := f.pub.PulseEvents()
	require.Len(t, events, 1)
	assert.Equal(t, logic.Key1, events[0].Key)
	assert.Equal(t, "startup", events[0].Trigger)

	assert.GreaterOrEqual(t, f.wd.Feeds(), 5)
	assert.True(t, f.board.Output(gpio.OutputPower))
}

func TestServeShutdownOnContextCancel(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := f.serve(t, ctx, make(chan os.Signal))

	f.waitIterations(t, 3)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}

	names := f.pub.SystemEventNames()
	require.NotEmpty(t, names)
	assert.Equal(t, mqtt.EventShutdown, names[len(names)-1])
	assert.Equal(t, "CANCELLED", f.pub.SystemEvents[len(names)-1].Reason)
}

func TestServeStartupFailure(t *testing.T) {
	f := newFixture(t, testConfig(), nil)
	f.board.WriteError = errors.New("line busy")

	done := f.serve(t, context.Background(), make(chan os.Signal))

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorContains(t, err, "enable downstream power")
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after startup failure")
	}

	names := f.pub.SystemEventNames()
	assert.Equal(t, []string{mqtt.EventStartup, mqtt.EventShutdown}, names)
	assert.Equal(t, "ERROR", f.pub.SystemEvents[1].Reason)
}

func TestServeWithHTTP(t *testing.T) {
	cfg := testConfig()
	cfg.HTTP.Addr = "127.0.0.1:0"
	f := newFixture(t, cfg, nil)
	require.NotNil(t, f.d.web)

	sig := make(chan os.Signal, 1)
	done := f.serve(t, context.Background(), sig)
	f.waitIterations(t, 2)
	sig <- syscall.SIGINT

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after SIGINT")
	}
	names := f.pub.SystemEventNames()
	assert.Equal(t, "SIGINT", f.pub.SystemEvents[len(names)-1].Reason)
}

func TestNewDaemonWithoutTelemetry(t *testing.T) {
	cfg := testConfig()
	cfg.MQTT.Broker = ""
	called := false
	connect := func(mqtt.Options, zerolog.Logger) (mqtt.Publisher, error) {
		called = true
		return nil, nil
	}

	board := gpio.NewFakeBoard(nil)
	d, err := newDaemon(cfg, zerolog.Nop(), hardware{board: board, vcc: adc.NewFakeReader(3300)}, connect)
	require.NoError(t, err)

	assert.False(t, called)
	assert.Nil(t, d.pub)
	assert.Nil(t, d.web)
	assert.NotEmpty(t, d.bootID)

	// No publisher: lifecycle events are silently skipped.
	d.publishSystem(mqtt.EventStartup, "")
}

func TestNewDaemonMQTTError(t *testing.T) {
	connect := func(mqtt.Options, zerolog.Logger) (mqtt.Publisher, error) {
		return nil, errors.New("bad broker url")
	}
	_, err := newDaemon(testConfig(), zerolog.Nop(), hardware{board: gpio.NewFakeBoard(nil)}, connect)
	assert.ErrorContains(t, err, "init mqtt")
}

func TestPrintState(t *testing.T) {
	board := gpio.NewFakeBoard(map[gpio.Input]bool{
		gpio.InputHuman:  true,
		gpio.InputLED2:   true,
		gpio.InputRelay3: true,
	})

	tests := []struct {
		name string
		mv   uint16
		pol  logic.VoltagePolicy
		want string
	}{
		{"high", 3300, logic.DefaultVoltagePolicy(), "VCC: 3300 mV (HIGH)"},
		{"low", 2870, logic.DefaultVoltagePolicy(), "VCC: 2870 mV (LOW)"},
		{"unavailable", 0, logic.DefaultVoltagePolicy(), "VCC: 0 mV (UNKNOWN)"},
		{"unavailable fail-safe", 0, logic.VoltagePolicy{ThresholdMillivolts: 3000, ZeroIsLow: true}, "VCC: 0 mV (LOW)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			require.NoError(t, printState(&out, board, adc.NewFakeReader(tt.mv), tt.pol))
			assert.Equal(t,
				"Human: ON, Phone: OFF, LED1: OFF, LED2: ON, LED3: OFF, Relay3: ON, "+tt.want+"\n",
				out.String())
		})
	}
}

func TestPrintStateReadError(t *testing.T) {
	board := gpio.NewFakeBoard(nil)
	board.ReadError = errors.New("bus error")

	err := printState(&bytes.Buffer{}, board, adc.NewFakeReader(3300), logic.DefaultVoltagePolicy())
	assert.ErrorContains(t, err, "read Human")
}

func TestLoadConfigFlagOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  addr: \":8080\"\nmqtt:\n  broker: tcp://a:1883\n"), 0o644))

	tests := []struct {
		name       string
		args       []string
		wantHTTP   string
		wantBroker string
	}{
		{"file only", []string{"--config", path}, ":8080", "tcp://a:1883"},
		{"http override", []string{"--config", path, "--http", ":9090"}, ":9090", "tcp://a:1883"},
		{"disable broker", []string{"-c", path, "--broker", ""}, ":8080", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCmd()
			require.NoError(t, cmd.ParseFlags(tt.args))
			var f flags
			f.configPath, _ = cmd.Flags().GetString("config")
			f.httpAddr, _ = cmd.Flags().GetString("http")
			f.broker, _ = cmd.Flags().GetString("broker")

			cfg, err := loadConfig(cmd, f)
			require.NoError(t, err)
			assert.Equal(t, tt.wantHTTP, cfg.HTTP.Addr)
			assert.Equal(t, tt.wantBroker, cfg.MQTT.Broker)
		})
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timing: [\n"), 0o644))

	cmd := newRootCmd()
	_, err := loadConfig(cmd, flags{configPath: path})
	assert.ErrorContains(t, err, "load config")
}

func TestRootCmdRejectsArgs(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"extra"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}

func TestSignalName(t *testing.T) {
	assert.Equal(t, "SIGINT", signalName(syscall.SIGINT))
	assert.Equal(t, "SIGTERM", signalName(syscall.SIGTERM))
	assert.Equal(t, "HANGUP", signalName(syscall.SIGHUP))
}
