// Package libnfcdriver binds relay.Initiator and relay.Target to real
// hardware through github.com/clausecker/nfc/v2, libnfc's Go binding.
// This is the only package in the module that imports clausecker/nfc
// directly; relay never references it, only through the Initiator/Target
// interfaces (spec.md §9's "Foreign driver layer" requirement).
package libnfcdriver

import (
	"fmt"
	"time"

	"github.com/clausecker/nfc/v2"

	"github.com/dotside-studios/nfcrelay/relay"
)

// Device wraps an open nfc.Device and can act as either a relay.Initiator
// or a relay.Target depending on which role methods are called, mirroring
// how a single libnfc device descriptor may be initialized into either
// role (the teacher's libnfcDevice wrapped the same nfc.Device type for
// its single reader role; this extends that wrapping to both roles the
// relay needs).
type Device struct {
	dev       nfc.Device
	lastError int
}

// Open opens connstring (as returned by ListDevices) and wraps it.
func Open(connstring string) (*Device, error) {
	dev, err := nfc.Open(connstring)
	if err != nil {
		return nil, fmt.Errorf("libnfcdriver: open %q: %w", connstring, err)
	}
	return &Device{dev: dev}, nil
}

// ListDevices enumerates available libnfc connection strings, retrying a
// handful of times as libusb enumeration is occasionally flaky
// immediately after process start (mirrors the teacher's
// defaultManager.ListDevices retry loop).
func ListDevices(retries int) ([]string, error) {
	var (
		devices []string
		err     error
	)
	if retries <= 0 {
		retries = 1
	}
	for i := 0; i < retries; i++ {
		devices, err = nfc.ListDevices()
		if err == nil {
			return devices, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return nil, fmt.Errorf("libnfcdriver: list devices after %d retries: %w", retries, err)
}

func (d *Device) Close() error {
	return d.dev.Close()
}

func (d *Device) String() string {
	return d.dev.String()
}

func (d *Device) LastError() int {
	return d.lastError
}

func (d *Device) Abort() error {
	return d.dev.AbortCommand()
}

func (d *Device) SetPropertyBool(option relay.PropertyOption, value bool) error {
	prop, err := propertyFor(option)
	if err != nil {
		return err
	}
	err = d.dev.SetPropertyBool(prop, value)
	d.record(err)
	return err
}

func (d *Device) SetPropertyInt(option relay.PropertyOption, value int) error {
	prop, err := propertyFor(option)
	if err != nil {
		return err
	}
	err = d.dev.SetPropertyInt(prop, value)
	d.record(err)
	return err
}

// Init initializes the device in Initiator role, matching NfcInitiator's
// timeout defaults (TIMEOUT_COMMAND=5000, TIMEOUT_COM=1000, TIMEOUT_ATR=1000).
func (d *Device) Init() error {
	err := d.dev.InitiatorInit()
	d.record(err)
	if err != nil {
		return err
	}
	_ = d.SetPropertyInt(relay.OptTimeoutCommand, 5000)
	_ = d.SetPropertyInt(relay.OptTimeoutCom, 1000)
	_ = d.SetPropertyInt(relay.OptTimeoutAtr, 1000)
	return nil
}

func (d *Device) ListPassiveTargets(mod relay.Modulation, maxTargets int) ([]relay.PassiveTarget, error) {
	targets, err := d.dev.InitiatorListPassiveTargets(toNFCModulation(mod))
	d.record(err)
	if err != nil {
		return nil, err
	}
	out := make([]relay.PassiveTarget, 0, len(targets))
	for _, t := range targets {
		isoTarget, ok := t.(*nfc.ISO14443aTarget)
		if !ok {
			continue
		}
		pt := relay.PassiveTarget{Sak: isoTarget.Sak}
		pt.Atqa[0], pt.Atqa[1] = isoTarget.Atqa[0], isoTarget.Atqa[1]
		if int(isoTarget.UIDLen) <= len(isoTarget.UID) {
			pt.UID = append([]byte(nil), isoTarget.UID[:isoTarget.UIDLen]...)
		}
		out = append(out, pt)
		if maxTargets > 0 && len(out) >= maxTargets {
			break
		}
	}
	return out, nil
}

func (d *Device) SelectPassiveTarget(mod relay.Modulation, uid []byte) (relay.PassiveTarget, error) {
	target, err := d.dev.InitiatorSelectPassiveTarget(toNFCModulation(mod), uid)
	d.record(err)
	if err != nil {
		return relay.PassiveTarget{}, err
	}
	isoTarget, ok := target.(*nfc.ISO14443aTarget)
	if !ok {
		return relay.PassiveTarget{}, nil
	}
	pt := relay.PassiveTarget{Sak: isoTarget.Sak}
	pt.Atqa[0], pt.Atqa[1] = isoTarget.Atqa[0], isoTarget.Atqa[1]
	if int(isoTarget.UIDLen) <= len(isoTarget.UID) {
		pt.UID = append([]byte(nil), isoTarget.UID[:isoTarget.UIDLen]...)
	}
	return pt, nil
}

func (d *Device) Transceive(tx []byte, timeoutMs int) ([]byte, int, error) {
	var rxBuf [264]byte
	n, err := d.dev.InitiatorTransceiveBytes(tx, rxBuf[:], msDuration(timeoutMs))
	d.record(err)
	if err != nil {
		return nil, translateError(err), err
	}
	return append([]byte(nil), rxBuf[:n]...), n, nil
}

func (d *Device) InitTarget(desc relay.EmulatedTarget, timeoutMs int) (relay.EmulatedTarget, error) {
	nfcTarget := &nfc.ISO14443aTarget{
		Sak:    desc.Sak,
		Atqa:   desc.Atqa,
		UIDLen: uint(len(desc.Uid)),
	}
	copy(nfcTarget.UID[:], desc.Uid)
	copy(nfcTarget.Ats[:], desc.Ats)
	nfcTarget.AtsLen = uint(len(desc.Ats))

	readBack, err := d.dev.TargetInit(nfcTarget, msDuration(timeoutMs))
	d.record(err)
	if err != nil {
		return relay.EmulatedTarget{}, err
	}
	result := desc
	if isoReadBack, ok := readBack.(*nfc.ISO14443aTarget); ok {
		result.Sak = isoReadBack.Sak
		result.Atqa = isoReadBack.Atqa
		if int(isoReadBack.AtsLen) <= len(isoReadBack.Ats) {
			result.Ats = append([]byte(nil), isoReadBack.Ats[:isoReadBack.AtsLen]...)
		}
		if int(isoReadBack.UIDLen) <= len(isoReadBack.UID) {
			result.Uid = append([]byte(nil), isoReadBack.UID[:isoReadBack.UIDLen]...)
		}
	}
	return result, nil
}

func (d *Device) Receive(timeoutMs int) ([]byte, int, error) {
	var rxBuf [264]byte
	n, err := d.dev.TargetReceiveBytes(rxBuf[:], msDuration(timeoutMs))
	d.record(err)
	if err != nil {
		return nil, translateError(err), err
	}
	return append([]byte(nil), rxBuf[:n]...), n, nil
}

func (d *Device) Send(data []byte, timeoutMs int) (int, error) {
	n, err := d.dev.TargetSendBytes(data, msDuration(timeoutMs))
	d.record(err)
	if err != nil {
		return translateError(err), err
	}
	return n, nil
}

func (d *Device) record(err error) {
	d.lastError = translateError(err)
}

func translateError(err error) int {
	if err == nil {
		return relay.NFCSuccess
	}
	if nfcErr, ok := err.(nfc.Error); ok {
		return int(nfcErr)
	}
	return relay.NFCEIO
}

func propertyFor(option relay.PropertyOption) (nfc.Property, error) {
	switch option {
	case relay.OptEasyFraming:
		return nfc.EasyFraming, nil
	case relay.OptTimeoutCommand:
		return nfc.TimeoutCommand, nil
	case relay.OptTimeoutCom:
		return nfc.TimeoutCom, nil
	case relay.OptTimeoutAtr:
		return nfc.TimeoutATR, nil
	default:
		return 0, fmt.Errorf("libnfcdriver: unknown property option %d", option)
	}
}

func toNFCModulation(mod relay.Modulation) nfc.Modulation {
	baud := nfc.Nbr106
	switch mod.BaudRateK {
	case 212:
		baud = nfc.Nbr212
	case 424:
		baud = nfc.Nbr424
	case 847:
		baud = nfc.Nbr847
	}
	return nfc.Modulation{Type: nfc.ISO14443a, BaudRate: baud}
}

func msDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

var (
	_ relay.Initiator = (*Device)(nil)
	_ relay.Target    = (*Device)(nil)
)
