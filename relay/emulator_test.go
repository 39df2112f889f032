package relay

import (
	"path/filepath"
	"testing"
)

func TestEmulatedInitiatorTransceiveReplaysLoggedResponse(t *testing.T) {
	log := NewFrameLog("")
	log.Append(Frame{Index: 0, Data: []byte{0x02, 0x00, 0xA4, 0x04, 0x00}, Direction: FromReader})
	log.Append(Frame{Index: 1, Data: []byte{0x02, 0x90, 0x00}, Result: 3, Direction: FromCard})

	initiator := NewEmulatedInitiator(log)
	data, result, err := initiator.Transceive([]byte{0x02, 0x00, 0xA4, 0x04, 0x00, 0x00}, 0)
	if err != nil {
		t.Fatalf("Transceive() error: %v", err)
	}
	if result != 3 {
		t.Errorf("Transceive() result = %d, want 3", result)
	}
	if string(data) != string([]byte{0x02, 0x90, 0x00}) {
		t.Errorf("Transceive() data = %x, want 029000", data)
	}
}

func TestEmulatedInitiatorTransceiveMiss(t *testing.T) {
	initiator := NewEmulatedInitiator(NewFrameLog(""))
	data, result, err := initiator.Transceive([]byte{0x01}, 0)
	if err != nil {
		t.Fatalf("Transceive() error: %v", err)
	}
	if result > 0 || data != nil {
		t.Errorf("Transceive() on empty log = (%x, %d), want (nil, <=0)", data, result)
	}
}

func TestLoadEmulatedInitiatorFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "replay.json")
	log := NewFrameLog(path)
	log.Append(Frame{Index: 0, Data: []byte{0x5A}, Direction: FromReader})
	log.Append(Frame{Index: 1, Data: []byte{0x5B}, Result: 1, Direction: FromCard})
	if err := log.Save(); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	initiator, err := LoadEmulatedInitiator(path)
	if err != nil {
		t.Fatalf("LoadEmulatedInitiator() error: %v", err)
	}
	if initiator.FrameCount() != 2 {
		t.Fatalf("FrameCount() = %d, want 2", initiator.FrameCount())
	}
}

func TestLoadEmulatedInitiatorMissingFile(t *testing.T) {
	_, err := LoadEmulatedInitiator(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil {
		t.Fatal("LoadEmulatedInitiator() on a missing file should error")
	}
	if !IsConfigurationError(err) {
		t.Errorf("LoadEmulatedInitiator() error should be a ConfigurationError, got %v", err)
	}
}

func TestEmulatedInitiatorListPassiveTargetsAlwaysEmpty(t *testing.T) {
	initiator := NewEmulatedInitiator(NewFrameLog(""))
	targets, err := initiator.ListPassiveTargets(DefaultModulation, 10)
	if err != nil || len(targets) != 0 {
		t.Errorf("ListPassiveTargets() = (%v, %v), want (nil, nil)", targets, err)
	}
}
