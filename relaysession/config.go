// Package relaysession implements the top-level sequence spec.md §2 calls
// the SessionController: enumerate devices, set up the reader frontend,
// discover a card, set up the emulator frontend, run the relay, and
// persist the frame log.
package relaysession

import "github.com/dotside-studios/nfcrelay/relay"

// Config is the session controller's configuration, populated by
// cmd/nfcrelay's flag parsing.
type Config struct {
	// InitiatorIndex selects a device from the enumerated list for the
	// Initiator (reader) role. A negative value selects log-replay mode,
	// sourcing responses from ReplayPath instead of a live device.
	InitiatorIndex int
	// TargetIndex selects a device from the enumerated list for the
	// Target (emulated card) role.
	TargetIndex int
	// ReplayPath is the FrameLog file to replay when InitiatorIndex < 0.
	ReplayPath string
	// LogPath is where the session's FrameLog is saved. Empty disables
	// persistence.
	LogPath string

	EasyFraming        bool
	AppleTransport     bool
	Hook               relay.DataHook
	FragmentSize       int
	PerCallTimeoutMs   int
	SessionTimeoutMs   int
	DiscoveryTimeoutMs int
	DeviceEnumRetries  int
}

// DefaultConfig returns a Config matching spec.md's documented defaults.
func DefaultConfig() Config {
	return Config{
		InitiatorIndex:     0,
		TargetIndex:        1,
		EasyFraming:        true,
		Hook:               relay.DefaultDataHook,
		FragmentSize:       relay.DefaultFragmentSize,
		PerCallTimeoutMs:   2000,
		SessionTimeoutMs:   0,
		DiscoveryTimeoutMs: 0,
		DeviceEnumRetries:  3,
	}
}
