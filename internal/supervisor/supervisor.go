// Package supervisor runs the poll/compare/pulse loop that keeps the keypad
// emulator's LEDs and Relay3 in step with the presence sensors and the
// supply voltage, feeding the watchdog on every iteration.
package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/keypad-sync/internal/adc"
	"github.com/sweeney/keypad-sync/internal/clock"
	"github.com/sweeney/keypad-sync/internal/gpio"
	"github.com/sweeney/keypad-sync/internal/logic"
	"github.com/sweeney/keypad-sync/internal/pulse"
	"github.com/sweeney/keypad-sync/internal/watchdog"
)

const (
	DefaultSettleDelay         = 500 * time.Millisecond
	DefaultPollInterval        = 10 * time.Millisecond
	DefaultVoltageRecheckPolls = 100
)

// Config holds the loop timings and feature toggles.
type Config struct {
	PulseWidth          time.Duration
	SettleDelay         time.Duration
	PollInterval        time.Duration
	VoltageRecheckPolls int // iterations between voltage rechecks
	Voltage             logic.VoltagePolicy
	Watchdog            bool // feed the watchdog every iteration
	Diagnostics         bool // log through Deps.Log; otherwise stay silent
}

// DefaultConfig returns the reference timings with watchdog and diagnostics on.
func DefaultConfig() Config {
	return Config{
		PulseWidth:          pulse.DefaultWidth,
		SettleDelay:         DefaultSettleDelay,
		PollInterval:        DefaultPollInterval,
		VoltageRecheckPolls: DefaultVoltageRecheckPolls,
		Voltage:             logic.DefaultVoltagePolicy(),
		Watchdog:            true,
		Diagnostics:         true,
	}
}

// Deps are the hardware collaborators.
type Deps struct {
	Board    gpio.Board
	VCC      adc.Reader
	Watchdog watchdog.Feeder // nil = Noop
	Sleeper  clock.Sleeper   // nil = clock.Real
	Observer Observer        // nil = NopObserver

	// LowVoltage delivers hardware low-voltage detector events (nil = none).
	LowVoltage <-chan struct{}

	// Log is the diagnostic sink (nil = discard).
	Log *zerolog.Logger
}

// slot binds a rule to the inputs it reads and the key it presses.
type slot struct {
	inputs []gpio.Input
	out    gpio.Output
}

var slots = map[logic.Key]slot{
	logic.Key1: {inputs: []gpio.Input{gpio.InputHuman, gpio.InputLED1}, out: gpio.OutputKey1},
	logic.Key2: {inputs: []gpio.Input{gpio.InputPhone, gpio.InputLED2}, out: gpio.OutputKey2},
	logic.Key3: {inputs: []gpio.Input{gpio.InputRelay3}, out: gpio.OutputKey3},
}

// Supervisor owns all synchronization state. It is not safe for concurrent
// use: Start, Step and Run must be called from one goroutine.
type Supervisor struct {
	cfg        Config
	board      gpio.Board
	vcc        adc.Reader
	wd         watchdog.Feeder
	sleep      clock.Sleeper
	emitter    *pulse.Emitter
	obs        Observer
	lowVoltage <-chan struct{}
	log        zerolog.Logger

	voltage   logic.VoltageStatus
	lastMV    uint16
	prev      logic.Sample // last committed value of each monitored signal
	current   logic.Sample // last successful sample
	led3Fault bool         // LED3 reads are failing; its last value is held
	polls     int
	iteration uint64
	feeds     uint64
}

// New creates a Supervisor. Zero timings in cfg take their defaults.
func New(cfg Config, deps Deps) *Supervisor {
	def := DefaultConfig()
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = def.SettleDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.VoltageRecheckPolls <= 0 {
		cfg.VoltageRecheckPolls = def.VoltageRecheckPolls
	}
	if cfg.Voltage.ThresholdMillivolts == 0 {
		cfg.Voltage.ThresholdMillivolts = def.Voltage.ThresholdMillivolts
	}

	s := &Supervisor{
		cfg:        cfg,
		board:      deps.Board,
		vcc:        deps.VCC,
		wd:         deps.Watchdog,
		sleep:      deps.Sleeper,
		obs:        deps.Observer,
		lowVoltage: deps.LowVoltage,
		log:        zerolog.Nop(),
	}
	if s.wd == nil || !cfg.Watchdog {
		s.wd = watchdog.Noop{}
	}
	if s.sleep == nil {
		s.sleep = clock.Real{}
	}
	if s.obs == nil {
		s.obs = NopObserver{}
	}
	if deps.Log != nil && cfg.Diagnostics {
		s.log = *deps.Log
	}
	s.emitter = pulse.New(s.board, s.sleep, cfg.PulseWidth)
	return s
}

// Run performs Startup and then iterates until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}
	s.log.Info().
		Dur("poll", s.cfg.PollInterval).
		Int("recheck_polls", s.cfg.VoltageRecheckPolls).
		Bool("watchdog", s.cfg.Watchdog).
		Msg("running")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Uint64("iterations", s.iteration).Msg("supervisor stopped")
			return nil
		default:
		}
		s.Step()
	}
}

// Start powers the downstream device, seeds the voltage status and the
// previous snapshot from live inputs, then evaluates every rule once.
// An error here means the hardware is unusable.
func (s *Supervisor) Start() error {
	if err := s.board.Write(gpio.OutputPower, true); err != nil {
		return fmt.Errorf("enable downstream power: %w", err)
	}
	s.sleep.Sleep(s.cfg.SettleDelay)

	s.evaluateVoltage(TriggerStartup)

	cur, err := s.sample()
	if err != nil {
		return fmt.Errorf("seed inputs: %w", err)
	}
	s.prev = cur
	s.current = cur
	s.statusEvent(s.log.Info(), cur).Msg("initial state")

	for _, k := range logic.Keys {
		s.evaluate(k, TriggerStartup)
	}
	return nil
}

// Step runs one Running iteration: apply low-voltage events, detect changes
// and re-evaluate the affected rules, recheck voltage every
// VoltageRecheckPolls iterations, feed the watchdog and sleep.
func (s *Supervisor) Step() {
	s.iteration++
	s.drainLowVoltage()

	cur, err := s.sample()
	if err != nil {
		s.log.Warn().Err(err).Uint64("iteration", s.iteration).Msg("input read failed, skipping change detection")
	} else {
		s.current = cur
		changes := logic.Diff(s.prev, cur)
		for _, k := range logic.Keys {
			if !changes.Group(k) {
				continue
			}
			s.statusEvent(s.log.Info(), cur).
				Str("changed", changes.Names(k)).
				Msg("State change detected")
			// An edge whose rule could not read its signals stays
			// uncommitted and is detected again next iteration.
			if s.evaluate(k, TriggerChange) {
				s.prev.Commit(k, cur)
			}
		}
	}

	s.polls++
	if s.polls >= s.cfg.VoltageRecheckPolls {
		s.polls = 0
		s.evaluateVoltage(TriggerRecheck)
		s.evaluate(logic.Key3, TriggerRecheck)
	}

	if s.cfg.Watchdog {
		if err := s.wd.Feed(); err != nil {
			s.log.Error().Err(err).Msg("watchdog feed failed")
		}
		s.feeds++
	}

	s.obs.StepCompleted(s.State())
	s.sleep.Sleep(s.cfg.PollInterval)
}

// State returns the current view of the supervisor.
func (s *Supervisor) State() State {
	return State{
		Iteration:  s.iteration,
		Sample:     s.current,
		Voltage:    s.voltage.Level(),
		Millivolts: s.lastMV,
		Feeds:      s.feeds,
	}
}

// Voltage returns the current voltage status.
func (s *Supervisor) Voltage() logic.VoltageStatus {
	return s.voltage
}

// Previous returns the committed snapshot used for change detection.
func (s *Supervisor) Previous() logic.Sample {
	return s.prev
}

func (s *Supervisor) drainLowVoltage() {
	for {
		select {
		case <-s.lowVoltage:
			s.applyLowVoltage()
		default:
			return
		}
	}
}

// applyLowVoltage is the hardware detector's path into the same status the
// poll maintains. Key3 is re-evaluated only if the status actually changed.
func (s *Supervisor) applyLowVoltage() {
	wasLow := s.voltage.Low()
	s.voltage.SetLow()
	s.log.Warn().Msg("LVD: Voltage Low")
	s.obs.VoltageEvaluated(VoltageEvent{
		Trigger: TriggerLowVoltage,
		Level:   logic.VoltageLow,
		Applied: true,
	})
	if !wasLow {
		s.evaluate(logic.Key3, TriggerLowVoltage)
	}
}

func (s *Supervisor) evaluateVoltage(trigger Trigger) {
	mv, err := s.vcc.ReadVCCMillivolts()
	if err != nil {
		mv = 0
	}

	var applied bool
	s.voltage, applied = s.cfg.Voltage.Apply(s.voltage, mv)
	if mv != 0 {
		s.lastMV = mv
	}
	level := s.voltage.Level()

	switch {
	case !applied:
		s.log.Warn().Err(err).
			Str("trigger", string(trigger)).
			Str("retained", string(level)).
			Msg("Voltage reading unavailable")
	case level == logic.VoltageLow:
		s.log.Info().Uint16("vcc_mv", mv).Str("trigger", string(trigger)).Msg("Voltage Low detected")
	default:
		s.log.Debug().Uint16("vcc_mv", mv).Str("trigger", string(trigger)).Msg("Voltage High detected")
	}

	s.obs.VoltageEvaluated(VoltageEvent{
		Trigger:    trigger,
		Millivolts: mv,
		Level:      level,
		Applied:    applied,
		Err:        err,
	})
}

// evaluate reads k's signals live, as they are after any pulse already sent
// this iteration, and pulses k's key on a mismatch. It returns false if the
// signals could not be read and no decision was made.
func (s *Supervisor) evaluate(k logic.Key, trigger Trigger) bool {
	ev := RuleEvent{Trigger: trigger}
	live, err := s.readGroup(k)
	if err != nil {
		s.log.Warn().Err(err).Stringer("key", k).Msg("rule skipped")
		ev.Decision = logic.Decision{Key: k}
		ev.Err = err
		s.obs.RuleEvaluated(ev)
		return false
	}

	d := logic.EvaluateKey(k, live, s.voltage)
	ev.Decision = d
	if !d.Fires() {
		s.log.Debug().Str("trigger", string(trigger)).Msgf("%s: %s", k, d.Reason())
		s.obs.RuleEvaluated(ev)
		return true
	}

	s.log.Info().Str("trigger", string(trigger)).Msgf("%s: %s -> Sending pulse", k, d.Reason())
	if err := s.emitter.Emit(slots[k].out); err != nil {
		s.log.Error().Err(err).Stringer("key", k).Msg("pulse failed")
		ev.Err = err
	} else {
		ev.Pulsed = true
	}
	s.obs.RuleEvaluated(ev)
	return true
}

// sample reads every input. A failed rule input fails the sample; LED3 is
// diagnostic only, so a failed LED3 read keeps its last value.
func (s *Supervisor) sample() (logic.Sample, error) {
	out := logic.Sample{LED3: s.current.LED3}
	for _, in := range gpio.Inputs {
		v, err := s.board.Read(in)
		if in == gpio.InputLED3 {
			s.noteLED3(err)
			if err != nil {
				continue
			}
		} else if err != nil {
			return logic.Sample{}, err
		}
		assign(&out, in, v)
	}
	return out, nil
}

// noteLED3 logs LED3 read failures on transition only.
func (s *Supervisor) noteLED3(err error) {
	switch {
	case err != nil && !s.led3Fault:
		s.led3Fault = true
		s.log.Warn().Err(err).Bool("led3", s.current.LED3).Msg("LED3 unreadable, holding last value")
	case err == nil && s.led3Fault:
		s.led3Fault = false
		s.log.Info().Msg("LED3 readable again")
	}
}

func (s *Supervisor) readGroup(k logic.Key) (logic.Sample, error) {
	out := s.current
	for _, in := range slots[k].inputs {
		v, err := s.board.Read(in)
		if err != nil {
			return logic.Sample{}, err
		}
		assign(&out, in, v)
	}
	return out, nil
}

func assign(s *logic.Sample, in gpio.Input, v bool) {
	switch in {
	case gpio.InputHuman:
		s.Human = v
	case gpio.InputPhone:
		s.Phone = v
	case gpio.InputLED1:
		s.LED1 = v
	case gpio.InputLED2:
		s.LED2 = v
	case gpio.InputLED3:
		s.LED3 = v
	case gpio.InputRelay3:
		s.Relay3 = v
	}
}

// statusEvent adds the diagnostic status line fields.
func (s *Supervisor) statusEvent(e *zerolog.Event, cur logic.Sample) *zerolog.Event {
	return e.
		Bool("human", cur.Human).
		Bool("phone", cur.Phone).
		Bool("led1", cur.LED1).
		Bool("led2", cur.LED2).
		Bool("led3", cur.LED3).
		Bool("relay3", cur.Relay3).
		Str("voltage", string(s.voltage.Level()))
}
