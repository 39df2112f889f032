package relay

// AppleTransportFrames are the four fixed payloads of the Apple-specific
// transport(travel) card activation pre-sequence (spec.md §4.6.3,
// supplemented from the original relay's apple_frame_sequence). Frame 1 is
// a 7-bit bit-frame; see Discovery.GetTargets for why it is not sent.
var AppleTransportFrames = [][]byte{
	mustHex("6a02c801000300027900000000c2d8"),
	{0x52},
	{0x93, 0x20},
	{0x93, 0x70, 0x00, 0x00, 0x00, 0x00, 0x00, 0x9c, 0xd9},
}

func mustHex(s string) []byte {
	b := make([]byte, len(s)/2)
	for i := range b {
		hi := hexNibble(s[2*i])
		lo := hexNibble(s[2*i+1])
		b[i] = hi<<4 | lo
	}
	return b
}

func hexNibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}

// Discovery drives the reader-side target-discovery subroutine against an
// Initiator: polling for passive targets and selecting one.
type Discovery struct {
	Initiator Initiator
	Modulation Modulation
	// AppleTransport, when true, sends the Apple travel-card activation
	// byte-frame legs before each poll. The 7-bit bit-frame leg
	// (AppleTransportFrames[1]) is never sent: transceive_bits has no
	// stable equivalent over this interface, matching the original
	// relay's own "TODO: fix apple transport activation. Transceive
	// bits is not working" limitation.
	AppleTransport bool
	Clock          Clock
}

// NewDiscovery returns a Discovery against initiator using the default
// ISO14443-A modulation and a real clock.
func NewDiscovery(initiator Initiator) *Discovery {
	return &Discovery{Initiator: initiator, Modulation: DefaultModulation, Clock: NewRealClock()}
}

// GetTargets polls ListPassiveTargets until at least one target appears or
// timeoutMs elapses (0 means no deadline: poll until a target appears).
func (d *Discovery) GetTargets(timeoutMs int) ([]PassiveTarget, error) {
	deadline := d.Clock.Now().Add(msDuration(timeoutMs))
	for {
		if d.AppleTransport {
			_, _, _ = d.Initiator.Transceive(AppleTransportFrames[0], 0)
			// AppleTransportFrames[1] is a 7-bit frame; not sent, see field doc.
			_, _, _ = d.Initiator.Transceive(AppleTransportFrames[2], 0)
			_, _, _ = d.Initiator.Transceive(AppleTransportFrames[3], 0)
		}

		targets, err := d.Initiator.ListPassiveTargets(d.Modulation, 16)
		if err != nil {
			return nil, newError(ErrSelection, "GetTargets", "list_passive_targets failed", err)
		}
		if len(targets) > 0 {
			return targets, nil
		}
		if timeoutMs != 0 && !d.Clock.Now().Before(deadline) {
			return nil, nil
		}
		// timeoutMs == 0 means no deadline: keep polling until a target
		// appears, matching reader_get_targets's own
		// "while (... ) or (timeout_ms == 0)" loop condition.
	}
}

// SelectTarget attempts to select the target at index idx of candidates by
// its UID, retrying once with no UID filter on failure. A second failure
// is a fatal SelectionError.
func (d *Discovery) SelectTarget(candidates []PassiveTarget, idx int) (PassiveTarget, error) {
	if idx < 0 || idx >= len(candidates) {
		return PassiveTarget{}, errorf(ErrSelection, "SelectTarget", "index %d out of range (have %d candidates)", idx, len(candidates))
	}
	uid := candidates[idx].UID

	selected, err := d.Initiator.SelectPassiveTarget(d.Modulation, uid)
	if err == nil && d.Initiator.LastError() >= NFCSuccess {
		return selected, nil
	}

	selected, err = d.Initiator.SelectPassiveTarget(d.Modulation, nil)
	if err == nil && d.Initiator.LastError() >= NFCSuccess {
		return selected, nil
	}
	return PassiveTarget{}, errorf(ErrSelection, "SelectTarget", "NFC error whilst selecting target: %s", ErrorMessage(d.Initiator.LastError()))
}
