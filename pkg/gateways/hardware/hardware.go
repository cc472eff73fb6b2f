// Package hardware abstracts the board a module runs on: its sensors and its deep
// sleep controller.
package hardware

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/janael-pinheiro/trap-module-golang/pkg/task"
	"github.com/sirupsen/logrus"
)

type Sensors interface {
	BatteryVoltage() float64
	TriggerFired() bool
}

// Board performs the terminal sleep calls. DeepSleep returns once the board is awake
// again; SleepIndefinitely only returns when ctx ends.
type Board interface {
	DeepSleep(ctx context.Context, d time.Duration) error
	SleepIndefinitely(ctx context.Context) error
}

// SimulatedSensors drains the battery linearly with elapsed clock time.
type SimulatedSensors struct {
	mu          sync.Mutex
	clock       task.Clock
	start       time.Time
	initial     float64
	drainPerDay float64
	trigger     bool
}

func NewSimulatedSensors(clock task.Clock, initialVolts, drainPerDay float64) *SimulatedSensors {
	return &SimulatedSensors{clock: clock, start: clock.Now(), initial: initialVolts, drainPerDay: drainPerDay}
}

func (s *SimulatedSensors) BatteryVoltage() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	days := s.clock.Now().Sub(s.start).Hours() / 24
	return math.Max(0, s.initial-days*s.drainPerDay)
}

// SetVoltage resets the battery to the given level from now on.
func (s *SimulatedSensors) SetVoltage(volts float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initial = volts
	s.start = s.clock.Now()
}

func (s *SimulatedSensors) TriggerFired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trigger
}

func (s *SimulatedSensors) Fire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trigger = true
}

type processBoard struct {
	log *logrus.Entry
}

// NewProcessBoard sleeps the current process in place of the hardware.
func NewProcessBoard(log *logrus.Entry) Board {
	return &processBoard{log: log}
}

func (b *processBoard) DeepSleep(ctx context.Context, d time.Duration) error {
	b.log.Infof("deep sleep for %s", d)
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *processBoard) SleepIndefinitely(ctx context.Context) error {
	b.log.Warn("sleeping until power cycle")
	<-ctx.Done()
	return ctx.Err()
}

// ManualBoard advances a manual clock instead of sleeping, so simulations cover days
// of cycles in milliseconds. Every call is recorded. Without a clock it only records,
// for nodes sharing a clock that the caller drives.
type ManualBoard struct {
	mu         sync.Mutex
	clock      *task.ManualClock
	Sleeps     []time.Duration
	Indefinite bool
}

func NewManualBoard(clock *task.ManualClock) *ManualBoard {
	return &ManualBoard{clock: clock}
}

func (b *ManualBoard) DeepSleep(ctx context.Context, d time.Duration) error {
	b.mu.Lock()
	b.Sleeps = append(b.Sleeps, d)
	b.mu.Unlock()
	if b.clock != nil {
		b.clock.Advance(d)
	}
	return ctx.Err()
}

func (b *ManualBoard) SleepIndefinitely(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Indefinite = true
	return nil
}

// Slept returns a copy of the recorded sleep segments.
func (b *ManualBoard) Slept() ([]time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]time.Duration(nil), b.Sleeps...), b.Indefinite
}
