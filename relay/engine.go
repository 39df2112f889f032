package relay

import (
	"context"
	"fmt"
	"log"
	"time"
)

// State names a step of the RelayEngine's state machine (spec.md §4.6).
type State int

const (
	StateFromReader State = iota
	StateReaderCardHook
	StateTransceiveCard
	StateCardReaderHook
	StateToReader
	StateFromReaderFragment
	stateTerminal
)

func (s State) String() string {
	switch s {
	case StateFromReader:
		return "FromReader"
	case StateReaderCardHook:
		return "ReaderCardHook"
	case StateTransceiveCard:
		return "TransceiveCard"
	case StateCardReaderHook:
		return "CardReaderHook"
	case StateToReader:
		return "ToReader"
	case StateFromReaderFragment:
		return "FromReaderFragment"
	default:
		return "Terminal"
	}
}

// FrameSink receives a copy of every frame the engine logs, for an
// optional, best-effort observer (relaymonitor.Hub). Emit must not block;
// a slow consumer drops frames rather than stalling the relay.
type FrameSink interface {
	Emit(Frame)
}

// DefaultFragmentSize is the chained-send chunk size (Open Question 1):
// 134 bytes, the value the original relay notes works against physical
// point-of-sale terminals.
const DefaultFragmentSize = 134

// RelayEngine is the bidirectional ISO 14443-4 frame pump: single
// threaded and cooperative over blocking driver calls (spec.md §5).
type RelayEngine struct {
	Initiator Initiator
	Target    Target
	Hook      DataHook
	Log       *FrameLog
	Sink      FrameSink
	Logger    *log.Logger
	Clock     Clock

	EasyFraming      bool
	FragmentSize     int
	ChainStartPcb    Pcb
	PerCallTimeoutMs int
	SessionTimeoutMs int // 0 = no deadline
}

// NewRelayEngine returns a RelayEngine with spec-documented defaults:
// easy framing enabled, fragment size 134, chain-start PCB 0x13.
func NewRelayEngine(initiator Initiator, target Target, log *FrameLog) *RelayEngine {
	return &RelayEngine{
		Initiator:     initiator,
		Target:        target,
		Hook:          DefaultDataHook,
		Log:           log,
		Clock:         NewRealClock(),
		EasyFraming:   true,
		FragmentSize:  DefaultFragmentSize,
		ChainStartPcb: PcbChainStart0x13,
	}
}

// RelaySummary is the user-visible outcome of one relay session (spec.md
// §7's "textual summary of the terminal state plus the last-error codes
// of both endpoints and the output log path").
type RelaySummary struct {
	TerminalState       State
	InitiatorLastError  int
	TargetLastError     int
	LogPath             string
	Err                 error
}

func (s RelaySummary) String() string {
	return fmt.Sprintf("relay stopped at %s: initiator_last_error=%d (%s) target_last_error=%d (%s) log=%q",
		s.TerminalState, s.InitiatorLastError, ErrorMessage(s.InitiatorLastError),
		s.TargetLastError, ErrorMessage(s.TargetLastError), s.LogPath)
}

// Run drives the relay loop until termination: a non-positive driver
// result, the session deadline, ctx cancellation, or a hook/assertion
// failure. It always returns a summary and does not set its Err field.
func (e *RelayEngine) Run(ctx context.Context) RelaySummary {
	if e.Clock == nil {
		e.Clock = NewRealClock()
	}
	if e.Hook == nil {
		e.Hook = DefaultDataHook
	}
	if e.FragmentSize <= 0 {
		e.FragmentSize = DefaultFragmentSize
	}
	if e.ChainStartPcb == 0 {
		e.ChainStartPcb = PcbChainStart0x13
	}

	e.Log.Clear()
	e.logf("starting relay")

	_ = e.Target.SetPropertyBool(OptEasyFraming, e.EasyFraming)
	_ = e.Initiator.SetPropertyBool(OptEasyFraming, e.EasyFraming)

	var deadline time.Time
	if e.SessionTimeoutMs > 0 {
		deadline = e.Clock.Now().Add(msDuration(e.SessionTimeoutMs))
	}

	watchCtx, cancelWatch := context.WithCancel(context.Background())
	defer cancelWatch()
	go e.armWatchdog(ctx, watchCtx, deadline)

	state := StateFromReader
	index := 0
	var pending []byte
	var fragmented bool
	var lastTargetResult int

	for {
		if ctx.Err() != nil {
			e.logf("context cancelled, stopping relay")
			state = stateTerminal
			break
		}
		if !deadline.IsZero() && !e.Clock.Now().Before(deadline) {
			e.logf("session deadline reached, stopping relay")
			state = stateTerminal
			break
		}

		switch state {
		case StateFromReader:
			recvd, ret, err := e.Target.Receive(e.PerCallTimeoutMs)
			lastTargetResult = ret
			e.appendFrame(Frame{Index: index, Time: e.now(), Data: recvd, Result: ret, Direction: FromReader, EasyFraming: e.EasyFraming})
			if err != nil || ret <= NFCSuccess {
				e.logf("receive from reader result: (%d) %s", ret, ErrorMessage(ret))
				state = stateTerminal
				continue
			}
			pending = recvd
			state = StateReaderCardHook

		case StateReaderCardHook:
			var hookOK bool
			fragmented, pending, hookOK = e.invokeHook(FromReader, pending)
			if !hookOK {
				state = stateTerminal
				continue
			}
			state = StateTransceiveCard

		case StateTransceiveCard:
			e.appendFrame(Frame{Index: index, Time: e.now(), Data: pending, Result: lastTargetResult, Direction: ToCard, EasyFraming: e.EasyFraming})
			cardResp, ret, err := e.Initiator.Transceive(pending, e.PerCallTimeoutMs)
			index++
			e.appendFrame(Frame{Index: index, Time: e.now(), Data: cardResp, Result: ret, Direction: FromCard, EasyFraming: e.EasyFraming})
			if err != nil || ret <= NFCSuccess {
				e.logf("card transceive result: (%d) %s", ret, ErrorMessage(ret))
				state = stateTerminal
				continue
			}
			pending = cardResp
			state = StateCardReaderHook

		case StateCardReaderHook:
			var hookOK bool
			fragmented, pending, hookOK = e.invokeHook(FromCard, pending)
			if !hookOK {
				state = stateTerminal
				continue
			}
			state = StateToReader

		case StateToReader:
			var ret int
			var err error
			if fragmented {
				ret, err = e.chainedSend(index, pending)
				state = StateFromReaderFragment
			} else {
				ret, err = e.Target.Send(pending, e.PerCallTimeoutMs)
				e.appendFrame(Frame{Index: index, Time: e.now(), Data: pending, Result: ret, Direction: ToReader, EasyFraming: e.EasyFraming})
				state = StateFromReader
			}
			index++
			if err != nil || ret <= NFCSuccess {
				e.logf("send to reader result: (%d) %s", ret, ErrorMessage(ret))
				state = stateTerminal
				continue
			}

		case StateFromReaderFragment:
			reassembled, ret, err := e.chainedReceive(e.PerCallTimeoutMs)
			e.EasyFraming = true
			_ = e.Target.SetPropertyBool(OptEasyFraming, true)
			e.appendFrame(Frame{Index: index, Time: e.now(), Data: reassembled, Result: ret, Direction: FromReader, EasyFraming: true})
			if err != nil || ret <= NFCSuccess {
				e.logf("receive from reader result: (%d) %s", ret, ErrorMessage(ret))
				state = stateTerminal
				continue
			}
			pending = reassembled
			state = StateReaderCardHook

		case stateTerminal:
		}

		if state == stateTerminal {
			break
		}
	}

	if err := e.Log.Save(); err != nil {
		e.logf("failed to save frame log: %v", err)
	}

	return RelaySummary{
		TerminalState:      state,
		InitiatorLastError: e.Initiator.LastError(),
		TargetLastError:    e.Target.LastError(),
		LogPath:            e.Log.Filename(),
	}
}

// armWatchdog issues a driver-level Abort on both endpoints when the
// session context is cancelled or the deadline passes, unblocking any
// in-flight blocking Receive/Send/Transceive call (spec.md §5).
func (e *RelayEngine) armWatchdog(ctx context.Context, stop context.Context, deadline time.Time) {
	var timer <-chan time.Time
	if !deadline.IsZero() {
		timer = e.Clock.After(time.Until(deadline))
	}
	select {
	case <-ctx.Done():
	case <-timer:
	case <-stop.Done():
		return
	}
	_ = e.Initiator.Abort()
	_ = e.Target.Abort()
}

func (e *RelayEngine) invokeHook(dir FrameDirection, data []byte) (fragmented bool, out []byte, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logf("data hook panicked: %v", r)
			fragmented, out, ok = false, data, false
		}
	}()
	fragmented, out = e.Hook(dir, data, e.EasyFraming)
	return fragmented, out, true
}

func (e *RelayEngine) appendFrame(f Frame) {
	e.Log.Append(f)
	if e.Sink != nil {
		e.Sink.Emit(f)
	}
}

func (e *RelayEngine) now() float64 {
	return float64(e.Clock.Now().UnixNano()) / 1e9
}

func (e *RelayEngine) logf(format string, args ...interface{}) {
	if e.Logger != nil {
		e.Logger.Printf(format, args...)
	}
}

// chainedSend performs the chained-send sub-procedure of spec.md §4.6.1.
func (e *RelayEngine) chainedSend(index int, data []byte) (int, error) {
	_ = e.Target.SetPropertyBool(OptEasyFraming, false)

	var chunks [][]byte
	if len(data) > e.FragmentSize {
		for i := 0; i < len(data); i += e.FragmentSize {
			end := i + e.FragmentSize
			if end > len(data) {
				end = len(data)
			}
			chunks = append(chunks, data[i:end])
		}
	} else {
		chunks = [][]byte{data}
	}

	pcb := e.ChainStartPcb
	for i, chunk := range chunks {
		isLast := i == len(chunks)-1
		pcb = pcb.ToggleBlockNumber()
		if isLast {
			pcb = pcb.WithChaining(false)
		}

		frame := append([]byte{byte(pcb)}, chunk...)
		ret, err := e.Target.Send(frame, 0)
		e.appendFrame(Frame{Index: index, Time: e.now(), Data: frame, Result: ret, Direction: ToReader, EasyFraming: false})
		if err != nil || ret <= NFCSuccess {
			return ret, err
		}

		if !isLast {
			recvd, ret2, err2 := e.Target.Receive(0)
			e.appendFrame(Frame{Index: index, Time: e.now(), Data: recvd, Result: ret2, Direction: FromReader, EasyFraming: false})
			if err2 != nil || ret2 <= NFCSuccess {
				return ret2, err2
			}
		}
	}
	return len(chunks), nil
}

// chainedReceive performs the chained-receive reassembly sub-procedure of
// spec.md §4.6.2.
func (e *RelayEngine) chainedReceive(timeoutMs int) ([]byte, int, error) {
	_ = e.Target.SetPropertyBool(OptEasyFraming, false)

	pcbAck := PcbChainAck
	var accumulated []byte
	for {
		recvd, ret, err := e.Target.Receive(timeoutMs)
		if err != nil || ret <= NFCSuccess {
			return nil, ret, err
		}
		if len(recvd) < 1 {
			return nil, 0, errorf(ErrProtocol, "chainedReceive", "zero-length chained frame")
		}
		pcbR := Pcb(recvd[0])
		accumulated = append(accumulated, recvd[1:]...)

		if !pcbR.IBlock().Chaining {
			break
		}
		if _, err := e.Target.Send([]byte{byte(pcbAck)}, 0); err != nil {
			return nil, 0, err
		}
		pcbAck = pcbAck.ToggleBlockNumber()
	}
	return accumulated, len(accumulated), nil
}
