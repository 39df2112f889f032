package relay_test

import (
	"testing"

	"github.com/dotside-studios/nfcrelay/relay"
	"github.com/dotside-studios/nfcrelay/relay/relaytest"
)

func TestDefaultEmulatedTargetFixedIdentity(t *testing.T) {
	desc := relay.DefaultEmulatedTarget()
	if desc.Uid[0] != 0x08 {
		t.Errorf("DefaultEmulatedTarget().Uid[0] = %#x, want 0x08 (dynamic UID marker)", desc.Uid[0])
	}
	if desc.Sak != 0x20 {
		t.Errorf("DefaultEmulatedTarget().Sak = %#x, want 0x20", desc.Sak)
	}
	if desc.Atqa != [2]byte{0x03, 0x04} {
		t.Errorf("DefaultEmulatedTarget().Atqa = %x, want 0304", desc.Atqa)
	}
}

func TestBootstrapReturnsReadBackDescriptor(t *testing.T) {
	target := relaytest.NewMockTarget()
	readBack := relay.EmulatedTarget{Atqa: [2]byte{0x00, 0x04}, Uid: []byte{0x08, 0x01, 0x02, 0x03}, Sak: 0x20, Ats: []byte{0x75, 0x33, 0x92, 0x03}}
	target.InitTargetFunc = func(desc relay.EmulatedTarget, timeoutMs int) (relay.EmulatedTarget, error) {
		return readBack, nil
	}

	got, err := relay.Bootstrap(target, relay.DefaultEmulatedTarget(), 1000)
	if err != nil {
		t.Fatalf("Bootstrap() error: %v", err)
	}
	if string(got.Uid) != string(readBack.Uid) {
		t.Errorf("Bootstrap() returned Uid %x, want the driver's read-back %x", got.Uid, readBack.Uid)
	}
}

func TestBootstrapPropagatesDriverOpenError(t *testing.T) {
	target := relaytest.NewMockTarget()
	target.LastErrorValue = relay.NFCEIO
	target.InitTargetFunc = func(desc relay.EmulatedTarget, timeoutMs int) (relay.EmulatedTarget, error) {
		return relay.EmulatedTarget{}, nil
	}

	_, err := relay.Bootstrap(target, relay.DefaultEmulatedTarget(), 1000)
	if err == nil {
		t.Fatal("Bootstrap() should error when the target reports a negative last error")
	}
	if !relay.IsDriverOpenError(err) {
		t.Errorf("Bootstrap() error should be a DriverOpenError, got %v", err)
	}
}
