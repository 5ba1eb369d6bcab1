package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/cuelink/cuelink-go/pkg/log"
)

func TestFrameWriterReader(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
	}{
		{name: "single byte", payload: []byte{0x42}},
		{name: "small message", payload: []byte("hello")},
		{name: "binary data", payload: []byte{0x00, 0xFF, 0x7F, 0x80}},
		{name: "max size message", payload: bytes.Repeat([]byte("y"), DefaultMaxMessageSize)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)

			if err := NewFrameWriter(buf, 0).WriteFrame(tt.payload); err != nil {
				t.Fatalf("WriteFrame failed: %v", err)
			}
			if buf.Len() != FrameSize(len(tt.payload)) {
				t.Errorf("frame size = %d, want %d", buf.Len(), FrameSize(len(tt.payload)))
			}

			got, err := NewFrameReader(buf, 0).ReadFrame()
			if err != nil {
				t.Fatalf("ReadFrame failed: %v", err)
			}
			if !bytes.Equal(got, tt.payload) {
				t.Errorf("payload mismatch: got %d bytes, want %d bytes", len(got), len(tt.payload))
			}
		})
	}
}

func TestFrameWriterRejects(t *testing.T) {
	buf := new(bytes.Buffer)
	writer := NewFrameWriter(buf, 8)

	if err := writer.WriteFrame(nil); !errors.Is(err, ErrMessageEmpty) {
		t.Errorf("expected ErrMessageEmpty, got %v", err)
	}
	if err := writer.WriteFrame(make([]byte, 9)); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("expected ErrMessageTooLarge, got %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("rejected frames must not be written, got %d bytes", buf.Len())
	}
}

func TestFrameReaderErrors(t *testing.T) {
	prefix := func(n uint32) []byte {
		b := make([]byte, LengthPrefixSize)
		binary.BigEndian.PutUint32(b, n)
		return b
	}

	tests := []struct {
		name    string
		input   []byte
		wantErr error
	}{
		{name: "clean eof", input: nil, wantErr: io.EOF},
		{name: "truncated prefix", input: []byte{0x00, 0x00}, wantErr: ErrFrameTruncated},
		{name: "zero length", input: prefix(0), wantErr: ErrMessageEmpty},
		{name: "too large", input: prefix(DefaultMaxMessageSize + 1), wantErr: ErrMessageTooLarge},
		{name: "truncated payload", input: append(prefix(10), []byte("abc")...), wantErr: ErrFrameTruncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFrameReader(bytes.NewReader(tt.input), 0).ReadFrame()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestFramerMultipleFrames(t *testing.T) {
	buf := new(bytes.Buffer)
	framer := NewFramer(buf, 0)

	frames := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	for _, f := range frames {
		if err := framer.WriteFrame(f); err != nil {
			t.Fatalf("WriteFrame failed: %v", err)
		}
	}

	for i, want := range frames {
		got, err := framer.ReadFrame()
		if err != nil {
			t.Fatalf("frame %d: ReadFrame failed: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame %d = %q, want %q", i, got, want)
		}
	}
}

type captureLogger struct {
	mu     sync.Mutex
	events []log.Event
}

func (c *captureLogger) Log(ev log.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureLogger) Events() []log.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]log.Event(nil), c.events...)
}

func TestFramerLogsFrames(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := &captureLogger{}

	framer := NewFramer(buf, 0)
	framer.SetLogger(logger, "conn-1", "192.168.1.5:5505")

	if err := framer.WriteFrame([]byte("abc")); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if _, err := framer.ReadFrame(); err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}

	events := logger.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	out, in := events[0], events[1]
	if out.Direction != log.DirectionOut || in.Direction != log.DirectionIn {
		t.Errorf("directions = %v/%v, want OUT/IN", out.Direction, in.Direction)
	}
	for _, ev := range events {
		if ev.ConnectionID != "conn-1" {
			t.Errorf("ConnectionID = %q, want conn-1", ev.ConnectionID)
		}
		if ev.RemoteAddr != "192.168.1.5:5505" {
			t.Errorf("RemoteAddr = %q", ev.RemoteAddr)
		}
		if ev.Layer != log.LayerTransport || ev.Transport != TransportTCP {
			t.Errorf("unexpected layer/transport %v/%q", ev.Layer, ev.Transport)
		}
		if ev.Frame == nil || ev.Frame.Size != FrameSize(3) {
			t.Errorf("unexpected frame payload %+v", ev.Frame)
		}
	}
}

func TestFramerLogsTruncatedData(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := &captureLogger{}

	writer := NewFrameWriter(buf, 0)
	writer.SetLogger(logger, "conn-2", "")

	payload := bytes.Repeat([]byte{0xAB}, MaxLogFrameDataSize+100)
	if err := writer.WriteFrame(payload); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	events := logger.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	frame := events[0].Frame
	if !frame.Truncated || len(frame.Data) != MaxLogFrameDataSize {
		t.Errorf("expected truncated data of %d bytes, got truncated=%v len=%d",
			MaxLogFrameDataSize, frame.Truncated, len(frame.Data))
	}
	if frame.Size != FrameSize(len(payload)) {
		t.Errorf("Size = %d, want full frame size %d", frame.Size, FrameSize(len(payload)))
	}
}
