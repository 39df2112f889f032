package relay

// EmulatedInitiator substitutes for a live Initiator, sourcing Transceive
// responses from a pre-recorded FrameLog instead of a physical card. It
// implements the Initiator interface subset the RelayEngine consumes
// (spec.md §4.4): list_passive_targets always reports no targets (tests
// bypass discovery when replaying), property setters are inert, and
// LastError is always zero.
type EmulatedInitiator struct {
	log *FrameLog
}

// NewEmulatedInitiator wraps an already-loaded FrameLog as an Initiator.
func NewEmulatedInitiator(log *FrameLog) *EmulatedInitiator {
	return &EmulatedInitiator{log: log}
}

// LoadEmulatedInitiator loads filename into a fresh FrameLog and wraps it.
func LoadEmulatedInitiator(filename string) (*EmulatedInitiator, error) {
	log := NewFrameLog(filename)
	if err := log.Load(); err != nil {
		return nil, newError(ErrConfiguration, "LoadEmulatedInitiator", "failed to load replay log", err)
	}
	return NewEmulatedInitiator(log), nil
}

// FrameCount returns the number of frames available for replay.
func (e *EmulatedInitiator) FrameCount() int {
	return e.log.Len()
}

func (e *EmulatedInitiator) Close() error                                    { return nil }
func (e *EmulatedInitiator) String() string                                  { return "emulated-initiator" }
func (e *EmulatedInitiator) SetPropertyBool(PropertyOption, bool) error      { return nil }
func (e *EmulatedInitiator) SetPropertyInt(PropertyOption, int) error        { return nil }
func (e *EmulatedInitiator) Abort() error                                    { return nil }
func (e *EmulatedInitiator) LastError() int                                  { return 0 }
func (e *EmulatedInitiator) Init() error                                     { return nil }

// ListPassiveTargets always reports no targets: an emulated initiator has
// no real anti-collision phase to replay.
func (e *EmulatedInitiator) ListPassiveTargets(Modulation, int) ([]PassiveTarget, error) {
	return nil, nil
}

// SelectPassiveTarget is never exercised on the replay path (discovery is
// bypassed); it returns the zero target.
func (e *EmulatedInitiator) SelectPassiveTarget(Modulation, []byte) (PassiveTarget, error) {
	return PassiveTarget{}, nil
}

// Transceive answers from the loaded log via FindResponseFor, fingerprinting
// on the first five bytes of tx. A miss returns (nil, 0, nil): the engine
// reads a non-positive result as relay termination.
func (e *EmulatedInitiator) Transceive(tx []byte, _ int) ([]byte, int, error) {
	resp, ok := e.log.FindResponseFor(tx)
	if !ok {
		return nil, 0, nil
	}
	return resp.Data, resp.Result, nil
}

var _ Initiator = (*EmulatedInitiator)(nil)
