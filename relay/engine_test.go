package relay_test

import (
	"context"
	"testing"

	"github.com/dotside-studios/nfcrelay/relay"
	"github.com/dotside-studios/nfcrelay/relay/relaytest"
)

// TestRelayEngineSimpleRoundTrip exercises one full half-turn (S1/S2-style
// scenario: a single reader command relayed to the card and the card's
// response relayed back) and then termination when the reader goes quiet.
func TestRelayEngineSimpleRoundTrip(t *testing.T) {
	target := relaytest.NewMockTarget()
	target.ReceiveQueue = [][]byte{{0x02, 0x00, 0xA4, 0x04, 0x00}}

	initiator := relaytest.NewMockInitiator()
	initiator.TransceiveData = []byte{0x02, 0x90, 0x00}
	initiator.TransceiveResult = 3

	log := relay.NewFrameLog("")
	engine := relay.NewRelayEngine(initiator, target, log)

	summary := engine.Run(context.Background())

	if summary.TerminalState.String() != "Terminal" {
		t.Fatalf("summary.TerminalState = %v, want Terminal", summary.TerminalState)
	}
	if len(target.SentFrames) != 1 {
		t.Fatalf("target received %d sent frames, want 1", len(target.SentFrames))
	}
	if string(target.SentFrames[0]) != string([]byte{0x02, 0x90, 0x00}) {
		t.Errorf("target.SentFrames[0] = %x, want 029000 (card response relayed verbatim)", target.SentFrames[0])
	}

	frames := log.Frames()
	var sawFromReader, sawToCard, sawFromCard, sawToReader bool
	for _, f := range frames {
		switch f.Direction {
		case relay.FromReader:
			sawFromReader = true
		case relay.ToCard:
			sawToCard = true
		case relay.FromCard:
			sawFromCard = true
		case relay.ToReader:
			sawToReader = true
		}
	}
	if !sawFromReader || !sawToCard || !sawFromCard || !sawToReader {
		t.Errorf("frame log missing a direction: FromReader=%v ToCard=%v FromCard=%v ToReader=%v",
			sawFromReader, sawToCard, sawFromCard, sawToReader)
	}
}

// TestRelayEngineHookIdentityLaw verifies that DefaultDataHook (the hook
// identity law) leaves data byte-for-byte unchanged across both legs.
func TestRelayEngineHookIdentityLaw(t *testing.T) {
	want := []byte{0x01, 0x02, 0x03}
	target := relaytest.NewMockTarget()
	target.ReceiveQueue = [][]byte{want}

	initiator := relaytest.NewMockInitiator()
	initiator.TransceiveData = want
	initiator.TransceiveResult = len(want)

	log := relay.NewFrameLog("")
	engine := relay.NewRelayEngine(initiator, target, log)
	engine.Run(context.Background())

	if string(target.SentFrames[0]) != string(want) {
		t.Errorf("DefaultDataHook altered data: got %x, want %x", target.SentFrames[0], want)
	}
}

// TestRelayEngineCustomHookRewritesData verifies a hook's rewritten bytes
// reach the wire, not the original bytes.
func TestRelayEngineCustomHookRewritesData(t *testing.T) {
	target := relaytest.NewMockTarget()
	target.ReceiveQueue = [][]byte{{0x00}}

	initiator := relaytest.NewMockInitiator()
	initiator.TransceiveData = []byte{0xAA}
	initiator.TransceiveResult = 1

	log := relay.NewFrameLog("")
	engine := relay.NewRelayEngine(initiator, target, log)
	engine.Hook = func(dir relay.FrameDirection, data []byte, easyFraming bool) (bool, []byte) {
		if dir == relay.FromCard {
			return false, []byte{0xBB}
		}
		return false, data
	}
	engine.Run(context.Background())

	if string(target.SentFrames[0]) != string([]byte{0xBB}) {
		t.Errorf("target.SentFrames[0] = %x, want bb (hook rewrite should reach the wire)", target.SentFrames[0])
	}
}

// TestRelayEngineTerminatesOnNonPositiveResult covers the negative-result
// termination invariant: any endpoint reporting result <= 0 stops the loop
// without a panic.
func TestRelayEngineTerminatesOnNonPositiveResult(t *testing.T) {
	target := relaytest.NewMockTarget()
	target.ReceiveResult = 0 // empty queue + zero result -> immediate termination

	initiator := relaytest.NewMockInitiator()
	log := relay.NewFrameLog("")
	engine := relay.NewRelayEngine(initiator, target, log)

	summary := engine.Run(context.Background())
	if summary.TerminalState.String() != "Terminal" {
		t.Fatalf("summary.TerminalState = %v, want Terminal", summary.TerminalState)
	}
	if log.Len() != 1 {
		t.Fatalf("log.Len() = %d, want 1 (only the failed FromReader receive)", log.Len())
	}
}

// TestRelayEngineChainedSend exercises the T=CL chained-send path (§4.6.1):
// a card response larger than FragmentSize must be split into
// PCB-prefixed chunks with toggling block numbers and the chaining bit
// cleared only on the last chunk.
func TestRelayEngineChainedSend(t *testing.T) {
	bigResponse := make([]byte, 300)
	for i := range bigResponse {
		bigResponse[i] = byte(i)
	}

	target := relaytest.NewMockTarget()
	target.ReceiveQueue = [][]byte{
		{0x02, 0x00, 0xA4, 0x04, 0x00}, // initial reader command
		{0xA2},                        // ACK after chunk 1
		{0xA3},                        // ACK after chunk 2
		{0x02},                        // chainedReceive: non-chained I-block, ends reassembly
	}

	callCount := 0
	initiator := relaytest.NewMockInitiator()
	initiator.TransceiveFunc = func(tx []byte, timeoutMs int) ([]byte, int, error) {
		callCount++
		if callCount == 1 {
			return bigResponse, len(bigResponse), nil
		}
		return nil, 0, nil // second half-turn: reader goes quiet, relay terminates
	}

	log := relay.NewFrameLog("")
	engine := relay.NewRelayEngine(initiator, target, log)
	engine.Hook = func(dir relay.FrameDirection, data []byte, easyFraming bool) (bool, []byte) {
		if dir == relay.FromCard && len(data) > engine.FragmentSize {
			return true, data
		}
		return false, data
	}

	engine.Run(context.Background())

	if len(target.SentFrames) < 3 {
		t.Fatalf("chained send produced %d frames, want at least 3 (134+134+32 byte chunks)", len(target.SentFrames))
	}

	first := relay.Pcb(target.SentFrames[0][0])
	if !first.IBlock().Chaining {
		t.Error("first chunk's PCB should have the chaining bit set")
	}
	last := relay.Pcb(target.SentFrames[len(target.SentFrames)-1][0])
	if last.IBlock().Chaining {
		t.Error("last chunk's PCB should have the chaining bit cleared")
	}
	if first.IBlock().BlockNumber == relay.Pcb(target.SentFrames[1][0]).IBlock().BlockNumber {
		t.Error("consecutive chunks should toggle the block number")
	}

	totalPayload := 0
	for _, f := range target.SentFrames {
		totalPayload += len(f) - 1 // minus PCB byte
	}
	if totalPayload != len(bigResponse) {
		t.Errorf("reassembled chunk payload totals %d bytes, want %d", totalPayload, len(bigResponse))
	}
}

// TestRelayEngineSessionDeadline verifies a configured SessionTimeoutMs
// stops the loop rather than blocking forever on a mock that never
// reports failure.
func TestRelayEngineSessionDeadline(t *testing.T) {
	target := relaytest.NewMockTarget()
	target.ReceiveFunc = func(timeoutMs int) ([]byte, int, error) {
		return []byte{0x01}, 1, nil
	}
	initiator := relaytest.NewMockInitiator()
	initiator.TransceiveFunc = func(tx []byte, timeoutMs int) ([]byte, int, error) {
		return []byte{0x01}, 1, nil
	}

	log := relay.NewFrameLog("")
	engine := relay.NewRelayEngine(initiator, target, log)
	engine.SessionTimeoutMs = 1

	summary := engine.Run(context.Background())
	if summary.TerminalState.String() != "Terminal" {
		t.Fatalf("summary.TerminalState = %v, want Terminal", summary.TerminalState)
	}
}
