package relay

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// fingerprintLen is the number of leading bytes FindResponseFor compares
// when matching a request to a recorded response.
const fingerprintLen = 5

// FrameLog is an ordered, append-only sequence of Frames bound to an
// optional filename. It is owned exclusively by one RelayEngine instance
// for the duration of a session; there is no internal locking because
// there is no cross-thread access to it.
type FrameLog struct {
	frames   []Frame
	filename string
}

// NewFrameLog returns an empty FrameLog bound to filename. An empty
// filename is valid; Save/Load become no-ops in that case, matching the
// original relay's behavior when no log_fname is configured.
func NewFrameLog(filename string) *FrameLog {
	return &FrameLog{filename: filename}
}

// Clear empties the log in place.
func (l *FrameLog) Clear() {
	l.frames = l.frames[:0]
}

// Append adds frame to the end of the log.
func (l *FrameLog) Append(frame Frame) {
	l.frames = append(l.frames, frame)
}

// Len returns the number of frames currently in the log.
func (l *FrameLog) Len() int {
	return len(l.frames)
}

// Frames returns a copy of the log's frames, safe for the caller to
// iterate or retain without affecting the log.
func (l *FrameLog) Frames() []Frame {
	out := make([]Frame, len(l.frames))
	copy(out, l.frames)
	return out
}

// Filename returns the path this log saves to and loads from by default.
func (l *FrameLog) Filename() string {
	return l.filename
}

// FindResponseFor scans the log for a FromReader frame whose first five
// bytes equal the first five bytes of requestData, and returns the
// FromCard frame immediately following it at index+1. Used by
// EmulatedInitiator to answer a transceive call from a pre-recorded log.
func (l *FrameLog) FindResponseFor(requestData []byte) (Frame, bool) {
	reqFp := fingerprint(requestData)
	for _, req := range l.frames {
		if req.Direction != FromReader {
			continue
		}
		if fingerprint(req.Data) != reqFp {
			continue
		}
		for _, resp := range l.frames {
			if resp.Direction == FromCard && resp.Index == req.Index+1 {
				return resp, true
			}
		}
	}
	return Frame{}, false
}

func fingerprint(data []byte) string {
	n := len(data)
	if n > fingerprintLen {
		n = fingerprintLen
	}
	return string(data[:n])
}

// Save writes the log to its bound filename, pretty-printed, and is a
// no-op if no filename is bound.
func (l *FrameLog) Save() error {
	if l.filename == "" {
		return nil
	}
	return l.SaveTo(l.filename, true)
}

// SaveTo writes the log as a JSON array to path. pretty selects 4-space
// indentation for human review; compact form is acceptable for machine
// use and both are accepted on load.
func (l *FrameLog) SaveTo(path string, pretty bool) error {
	data, err := l.toJSON(pretty)
	if err != nil {
		return fmt.Errorf("relay: marshal frame log: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("relay: write frame log %q: %w", path, err)
	}
	return nil
}

// Load reads the log from its bound filename and is a no-op if no
// filename is bound.
func (l *FrameLog) Load() error {
	if l.filename == "" {
		return nil
	}
	return l.LoadFrom(l.filename)
}

// LoadFrom clears the log and repopulates it from the JSON array at path.
func (l *FrameLog) LoadFrom(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("relay: read frame log %q: %w", path, err)
	}
	var items []frameJSON
	if err := json.Unmarshal(raw, &items); err != nil {
		return fmt.Errorf("relay: parse frame log %q: %w", path, err)
	}
	frames := make([]Frame, 0, len(items))
	for _, item := range items {
		data, err := hex.DecodeString(item.Data)
		if err != nil {
			return fmt.Errorf("relay: decode frame data %q: %w", item.Data, err)
		}
		frames = append(frames, Frame{
			Index:       item.Index,
			Time:        item.Time,
			Data:        data,
			Result:      item.Result,
			Direction:   FrameDirection(item.Direction),
			EasyFraming: item.EasyFraming,
		})
	}
	l.frames = frames
	return nil
}

func (l *FrameLog) toJSON(pretty bool) ([]byte, error) {
	items := make([]frameJSON, len(l.frames))
	for i, f := range l.frames {
		items[i] = frameJSON{
			Index:       f.Index,
			Time:        f.Time,
			Data:        hex.EncodeToString(f.Data),
			Result:      f.Result,
			Direction:   string(f.Direction),
			EasyFraming: f.EasyFraming,
		}
	}
	if pretty {
		return json.MarshalIndent(items, "", "    ")
	}
	return json.Marshal(items)
}
