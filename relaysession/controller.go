package relaysession

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/dotside-studios/nfcrelay/relay"
	"github.com/dotside-studios/nfcrelay/relay/libnfcdriver"
)

// Controller runs the top-level session sequence: enumerate devices, set
// up the reader frontend (live device or log replay), discover a card,
// set up the emulator frontend, run the relay, persist the frame log.
// It is the Go counterpart of the original relay's top-level driver
// object, generalized to two independently selectable frontends.
type Controller struct {
	Config Config
	Logger *log.Logger

	// SessionID identifies this run in the controller's log lines. It is
	// not passed to the frame sink, so frames broadcast by a
	// relaymonitor.Hub do not carry it. Assigned by Run if left empty.
	SessionID string
}

// NewController returns a Controller with cfg and a logger writing to the
// standard logger's destination unless overridden.
func NewController(cfg Config, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.Default()
	}
	return &Controller{Config: cfg, Logger: logger}
}

// Run executes one full session: device enumeration through frame log
// persistence. It always attempts to close whatever devices it opened,
// initiator before target, regardless of how it returns.
func (c *Controller) Run(ctx context.Context, sink relay.FrameSink) (relay.RelaySummary, error) {
	if c.SessionID == "" {
		c.SessionID = uuid.NewString()
	}
	c.Logger.Printf("session %s starting", c.SessionID)

	cfg := c.Config
	replaying := cfg.InitiatorIndex < 0

	var devices []string
	if !replaying || cfg.TargetIndex >= 0 {
		var err error
		devices, err = libnfcdriver.ListDevices(cfg.DeviceEnumRetries)
		if err != nil {
			return relay.RelaySummary{}, fmt.Errorf("relaysession: %w", err)
		}
	}

	if replaying && cfg.ReplayPath == "" {
		return relay.RelaySummary{}, configError("replay mode requires ReplayPath")
	}
	if !replaying && cfg.InitiatorIndex >= len(devices) {
		return relay.RelaySummary{}, configError(fmt.Sprintf("initiator index %d out of range (%d devices found)", cfg.InitiatorIndex, len(devices)))
	}
	if cfg.TargetIndex < 0 || cfg.TargetIndex >= len(devices) {
		return relay.RelaySummary{}, configError(fmt.Sprintf("target index %d out of range (%d devices found)", cfg.TargetIndex, len(devices)))
	}
	if !replaying && cfg.InitiatorIndex == cfg.TargetIndex {
		return relay.RelaySummary{}, configError("initiator and target must be distinct devices")
	}

	// reader_setup
	var initiator relay.Initiator
	var initiatorDev *libnfcdriver.Device
	if replaying {
		emulated, err := relay.LoadEmulatedInitiator(cfg.ReplayPath)
		if err != nil {
			return relay.RelaySummary{}, fmt.Errorf("relaysession: %w", err)
		}
		c.Logger.Printf("session %s replaying %d frames from %s", c.SessionID, emulated.FrameCount(), cfg.ReplayPath)
		initiator = emulated
	} else {
		dev, err := libnfcdriver.Open(devices[cfg.InitiatorIndex])
		if err != nil {
			return relay.RelaySummary{}, fmt.Errorf("relaysession: open initiator: %w", err)
		}
		initiatorDev = dev
		if err := dev.Init(); err != nil {
			_ = dev.Close()
			return relay.RelaySummary{}, fmt.Errorf("relaysession: init initiator: %w", err)
		}
		initiator = dev
	}
	targetDev, err := libnfcdriver.Open(devices[cfg.TargetIndex])
	if err != nil {
		if initiatorDev != nil {
			_ = initiatorDev.Close()
		}
		return relay.RelaySummary{}, fmt.Errorf("relaysession: open target: %w", err)
	}
	// Close in explicit, deterministic order (initiator before target, per
	// spec §5) rather than relying on defer's LIFO order, which would
	// close target first since it's deferred second.
	defer func() {
		if initiatorDev != nil {
			_ = initiatorDev.Close()
		}
		_ = targetDev.Close()
	}()

	// card discovery: only meaningful against a live initiator. The
	// fabricated emulated identity does not depend on what was found, so
	// a replay session skips straight to emulator_setup (mirrors the
	// original driver, which only ever presents the default fabricated
	// descriptor regardless of whether a real target was selected).
	if !replaying {
		discovery := relay.NewDiscovery(initiator)
		discovery.AppleTransport = cfg.AppleTransport
		targets, err := discovery.GetTargets(cfg.DiscoveryTimeoutMs)
		if err != nil {
			return relay.RelaySummary{}, fmt.Errorf("relaysession: %w", err)
		}
		if len(targets) == 0 {
			return relay.RelaySummary{}, fmt.Errorf("relaysession: no targets found")
		}
		selected, err := discovery.SelectTarget(targets, 0)
		if err != nil {
			return relay.RelaySummary{}, fmt.Errorf("relaysession: %w", err)
		}
		c.Logger.Printf("session %s selected target uid=%x sak=%#x", c.SessionID, selected.UID, selected.Sak)
	}

	// emulator_setup
	emulatedDesc, err := relay.Bootstrap(targetDev, relay.DefaultEmulatedTarget(), cfg.PerCallTimeoutMs)
	if err != nil {
		return relay.RelaySummary{}, fmt.Errorf("relaysession: %w", err)
	}
	c.Logger.Printf("session %s emulating uid=%x atqa=%x sak=%#x ats=%x", c.SessionID, emulatedDesc.Uid, emulatedDesc.Atqa, emulatedDesc.Sak, emulatedDesc.Ats)

	engine := relay.NewRelayEngine(initiator, targetDev, relay.NewFrameLog(cfg.LogPath))
	engine.Logger = c.Logger
	engine.Sink = sink
	engine.EasyFraming = cfg.EasyFraming
	if cfg.Hook != nil {
		engine.Hook = cfg.Hook
	}
	if cfg.FragmentSize > 0 {
		engine.FragmentSize = cfg.FragmentSize
	}
	engine.PerCallTimeoutMs = cfg.PerCallTimeoutMs
	engine.SessionTimeoutMs = cfg.SessionTimeoutMs

	summary := engine.Run(ctx)
	c.Logger.Printf("session %s finished: %s", c.SessionID, summary.String())
	return summary, nil
}

func configError(message string) error {
	return &relay.RelayError{Code: relay.ErrConfiguration, Op: "relaysession", Message: message}
}
