// Package mode implements the chunk-level mode arbiter (spec.md §4.4):
// the state machine that gates opening and closing of the PCM and AC-3
// sinks and routes each capture chunk to the right place. It holds the
// IEC 61937 FSM and the tagged union of "no sink open" / "PCM sink open" /
// "AC-3 sink open" as a structural invariant (spec.md §9 "mode arbiter as
// a sum type"): at most one of pcm/ac3 is non-nil at any time.
package mode

import (
	"log/slog"

	"spdifbridge/bridge/iec61937"
)

// State is the arbiter's mode.
type State int

const (
	Unknown State = iota
	PCM
	IEC61937
)

func (s State) String() string {
	switch s {
	case Unknown:
		return "UNKNOWN"
	case PCM:
		return "PCM"
	case IEC61937:
		return "IEC61937"
	default:
		return "?"
	}
}

// PCMSink is the subset of the PCM sink's API the arbiter drives.
type PCMSink interface {
	Process(chunk []byte) error
	Close() error
}

// AC3Sink is the subset of the AC-3 sink's API the arbiter drives.
type AC3Sink interface {
	Process(payload []byte) error
	Close() error
}

// Arbiter implements spec.md §4.4. It is driven one chunk at a time by
// Step, which is not safe for concurrent use — like the sinks' Process
// calls, it is only ever invoked by the main loop thread.
type Arbiter struct {
	log *slog.Logger

	fsm    *iec61937.FSM
	window int

	state          State
	nonLockedCount int

	pcm PCMSink
	ac3 AC3Sink

	openPCM func() (PCMSink, error)
	openAC3 func() (AC3Sink, error)

	lockedThisChunk bool
}

// New constructs an arbiter in state Unknown. openPCM/openAC3 are called
// on demand to open a fresh sink instance; window is the detection window
// W (spec.md §4.4, default 64).
func New(log *slog.Logger, window int, openPCM func() (PCMSink, error), openAC3 func() (AC3Sink, error)) *Arbiter {
	if log == nil {
		log = slog.Default()
	}
	a := &Arbiter{log: log, window: window, openPCM: openPCM, openAC3: openAC3}
	a.fsm = iec61937.New(a)
	return a
}

// State returns the arbiter's current mode, mainly for tests.
func (a *Arbiter) State() State { return a.state }

// OnBurst implements iec61937.Handler. It is invoked synchronously from
// within Step while feeding the current chunk's samples. Per spec.md
// §4.4: bursts emitted while Unknown are discarded (no sink open yet);
// while IEC61937, non-AC3 data types are discarded and AC-3 bursts are
// forwarded to the open AC-3 sink.
func (a *Arbiter) OnBurst(dataType int, payload []byte) {
	if a.state != IEC61937 || a.ac3 == nil {
		return
	}
	if dataType != iec61937.AC3 {
		return
	}
	if err := a.ac3.Process(payload); err != nil {
		a.log.Warn("ac3 sink process failed", "error", err)
	}
}

// Step feeds one chunk of 16-bit little-endian stereo samples through the
// FSM and, depending on the resulting mode, routes the chunk to the PCM
// sink. chunk must be an even number of bytes (spec.md §6).
func (a *Arbiter) Step(chunk []byte) error {
	a.lockedThisChunk = false
	for i := 0; i+1 < len(chunk); i += 2 {
		sample := uint16(chunk[i]) | uint16(chunk[i+1])<<8
		if a.fsm.Step(iec61937.SwapBytes(sample)) {
			a.lockedThisChunk = true
		}
	}
	locked := a.lockedThisChunk

	switch a.state {
	case Unknown:
		return a.stepUnknown(locked, chunk)
	case PCM:
		return a.stepPCM(locked, chunk)
	case IEC61937:
		return a.stepIEC61937(locked)
	}
	return nil
}

func (a *Arbiter) stepUnknown(locked bool, chunk []byte) error {
	if locked {
		return a.switchToIEC61937()
	}
	a.nonLockedCount++
	if a.nonLockedCount >= a.window {
		return a.switchToPCM()
	}
	return nil
}

func (a *Arbiter) stepPCM(locked bool, chunk []byte) error {
	if locked {
		return a.switchToIEC61937()
	}
	if err := a.pcm.Process(chunk); err != nil {
		a.log.Warn("pcm sink process failed", "error", err)
	}
	return nil
}

func (a *Arbiter) stepIEC61937(locked bool) error {
	if locked {
		a.nonLockedCount = 0
		return nil
	}
	a.nonLockedCount++
	if a.nonLockedCount >= a.window {
		return a.switchToPCM()
	}
	return nil
}

func (a *Arbiter) switchToIEC61937() error {
	if a.pcm != nil {
		if err := a.pcm.Close(); err != nil {
			a.log.Warn("closing pcm sink during mode switch failed", "error", err)
		}
		a.pcm = nil
	}
	a.nonLockedCount = 0

	ac3, err := a.openAC3()
	if err != nil {
		// Per spec.md §7 open question 1: AC-3 sink open failure stays
		// in PCM mode with a warning rather than aborting the process.
		a.log.Warn("opening ac3 sink failed, staying in pcm mode", "error", err)
		return a.switchToPCM()
	}
	a.ac3 = ac3
	a.state = IEC61937
	a.log.Info("mode switch", "to", IEC61937.String())
	return nil
}

func (a *Arbiter) switchToPCM() error {
	if a.ac3 != nil {
		if err := a.ac3.Close(); err != nil {
			a.log.Warn("closing ac3 sink during mode switch failed", "error", err)
		}
		a.ac3 = nil
	}
	a.nonLockedCount = 0

	pcm, err := a.openPCM()
	if err != nil {
		// PCM sink open failure is fatal to the process (spec.md §7 open
		// question 1) — the caller's main loop should treat this error
		// as such.
		return err
	}
	a.pcm = pcm
	a.state = PCM
	a.log.Info("mode switch", "to", PCM.String())
	return nil
}

// Close closes whichever sink is currently open, if any.
func (a *Arbiter) Close() error {
	if a.pcm != nil {
		err := a.pcm.Close()
		a.pcm = nil
		return err
	}
	if a.ac3 != nil {
		err := a.ac3.Close()
		a.ac3 = nil
		return err
	}
	return nil
}
