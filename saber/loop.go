package saber

import (
	"context"
	"time"

	"saberd/config"
	"saberd/platform"
)

// component is one stage of the per-tick pipeline. Each stage receives
// the read-only previous snapshot and the snapshot being built.
type component interface {
	ProcessTick(old, snap *Snapshot)
}

// Saber is the application context: the platform, the coordinators in
// their fixed tick order, and the current snapshot. Everything runs on
// the single goroutine driving Run.
type Saber struct {
	conf *config.Config
	pf   platform.Platform

	sensors *SensorCoordinator
	psm     *PowerStateMachine
	leds    *LEDCoordinator
	audio   *AudioCoordinator
	tlog    *TransitionLogger

	pipeline []component
	snapshot *Snapshot

	tunables chan config.Tunables

	sleepFn func(d time.Duration)
}

// New wires up all coordinators against the platform and prepares the
// initial snapshot.
func New(conf *config.Config, pf platform.Platform, sinks ...TransitionSink) (*Saber, error) {
	psm := NewPowerStateMachine(conf, pf)
	leds, err := NewLEDCoordinator(conf, pf, psm)
	if err != nil {
		return nil, err
	}
	s := &Saber{
		conf:     conf,
		pf:       pf,
		sensors:  NewSensorCoordinator(conf, pf),
		psm:      psm,
		leds:     leds,
		audio:    NewAudioCoordinator(conf, pf, psm),
		tlog:     NewTransitionLogger(conf, sinks...),
		tunables: make(chan config.Tunables, 1),
		sleepFn:  time.Sleep,
	}
	s.pipeline = []component{s.sensors, s.psm, s.leds, s.audio, s.tlog}

	psm.RestoreState()
	snap := NewSnapshot()
	snap.PowerState = psm.Current()
	s.audio.SeedSnapshot(snap)
	s.leds.SeedSnapshot(snap)
	s.snapshot = snap
	return s, nil
}

// ApplyTunables is the hook for the config watcher. The values take
// effect at the start of the next tick.
func (s *Saber) ApplyTunables(t config.Tunables) {
	select {
	case s.tunables <- t:
	default:
		// An unconsumed update is superseded by the new one.
		select {
		case <-s.tunables:
		default:
		}
		s.tunables <- t
	}
}

// Snapshot returns the snapshot of the last completed tick.
func (s *Saber) Snapshot() *Snapshot {
	return s.snapshot
}

// Run drives the tick loop until the context is canceled. Each tick
// clones the previous snapshot and passes it through the pipeline in
// order; between ticks the loop sleeps for a state-dependent delay, or
// parks on the platform's wake source while the saber sleeps.
func (s *Saber) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-s.tunables:
			s.sensors.SetTunables(t)
			s.psm.SetTunables(t)
		default:
		}

		snap := s.tick()

		if err := s.pause(ctx, snap.PowerState); err != nil {
			return err
		}
	}
}

// tick runs one full pipeline pass and swaps in the new snapshot.
func (s *Saber) tick() *Snapshot {
	old := s.snapshot
	snap := old.Clone()
	for _, c := range s.pipeline {
		c.ProcessTick(old, snap)
	}
	s.snapshot = snap
	return snap
}

func (s *Saber) pause(ctx context.Context, state PowerState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	switch state {
	case PowerSleeping:
		// A press caught by the wake source still needs several ticks
		// to clear the debouncer and the double-press window. Poll
		// fast until the button settles; parking again would swallow
		// every edge after the first and leave the saber asleep.
		if s.sensors.PowerButtonSettling() {
			s.sleepFn(s.conf.Saber.ActiveTickDelay)
			return nil
		}
		// No fast polling otherwise: block on the wake source. A
		// timeout return still runs a tick, which keeps the battery
		// reading fresh.
		s.pf.WaitForWake(s.conf.Saber.SleepWakeTimeout)
	case PowerIdle:
		s.sleepFn(s.conf.Saber.IdleTickDelay)
	default:
		s.sleepFn(s.conf.Saber.ActiveTickDelay)
	}
	return nil
}
