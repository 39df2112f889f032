package relay

// DefaultEmulatedTarget returns the fabricated card identity the Target
// frontend presents; it does not depend on the real card that was selected.
// UID[0]=0x08 marks a dynamic UID so PN532-class firmware accepts the
// descriptor; ATS is the fixed four-byte default from spec.md §3.
func DefaultEmulatedTarget() EmulatedTarget {
	return EmulatedTarget{
		Atqa:       [2]byte{0x03, 0x04},
		Uid:        []byte{0x08, 0xba, 0xdf, 0x0d},
		Sak:        0x20,
		Ats:        []byte{0x75, 0x33, 0x92, 0x03},
		Modulation: DefaultModulation,
	}
}

// Bootstrap initializes target in Target role with desc and returns the
// post-init descriptor as the canonical emulated identity: nfc_target_init
// may rewrite portions of the descriptor (e.g. negotiated parameters), and
// the real card is never cloned at the physical layer, so the read-back
// value is authoritative for logging, not desc itself.
func Bootstrap(target Target, desc EmulatedTarget, timeoutMs int) (EmulatedTarget, error) {
	readBack, err := target.InitTarget(desc, timeoutMs)
	if err != nil {
		return EmulatedTarget{}, newError(ErrDriverOpen, "Bootstrap", "target init failed", err)
	}
	if target.LastError() < NFCSuccess {
		return EmulatedTarget{}, errorf(ErrDriverOpen, "Bootstrap", "target init error: %s", ErrorMessage(target.LastError()))
	}
	return readBack, nil
}
