package port

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

func writeFrame(buf *bytes.Buffer, payload string) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	buf.Write(lenBuf[:])
	buf.WriteString(payload)
}

func TestReadCommandFraming(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteEvent(Envelope{Type: CmdInit, Data: nil}); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}

	r := NewReader(&buf)
	cmd, err := r.ReadCommand()
	if err != nil {
		t.Fatalf("ReadCommand: %v", err)
	}
	if cmd.Type != CmdInit {
		t.Errorf("cmd.Type = %q, want %q", cmd.Type, CmdInit)
	}
}

func TestReadCommandDecodesFields(t *testing.T) {
	var buf bytes.Buffer
	writeFrame(&buf, `{"type":"backfill","req_id":"r1","symbol":"BTC/USDT","timeframe":"1m","startIso":"2023-11-14T00:00:00Z","endIso":"2023-11-14T01:00:00Z"}`)

	r := NewReader(&buf)
	cmd, err := r.ReadCommand()
	if err != nil {
		t.Fatalf("ReadCommand: %v", err)
	}
	if cmd.Type != CmdBackfill || cmd.ReqID != "r1" || cmd.Symbol != "BTC/USDT" || cmd.EndIso != "2023-11-14T01:00:00Z" {
		t.Errorf("decoded command = %+v", cmd)
	}
}

func TestReadCommandDecodesInitFields(t *testing.T) {
	var buf bytes.Buffer
	writeFrame(&buf, `{"type":"init","req_id":"a","stateDirPath":"/tmp/X","debug":true}`)

	r := NewReader(&buf)
	cmd, err := r.ReadCommand()
	if err != nil {
		t.Fatalf("ReadCommand: %v", err)
	}
	if cmd.Type != CmdInit || cmd.ReqID != "a" || cmd.StateDirPath != "/tmp/X" || !cmd.Debug {
		t.Errorf("decoded command = %+v", cmd)
	}
}

func TestReadCommandUndecodablePayloadYieldsDecodeError(t *testing.T) {
	var buf bytes.Buffer
	// type is a number instead of a string: the frame is well-formed JSON
	// (the length prefix stays honored) but it fails to decode into Command.
	writeFrame(&buf, `{"type":123,"req_id":"r9"}`)

	r := NewReader(&buf)
	_, err := r.ReadCommand()
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("ReadCommand error = %v, want a *DecodeError", err)
	}
	if decodeErr.ReqID != "r9" {
		t.Errorf("decodeErr.ReqID = %q, want %q (extracted leniently despite the malformed payload)", decodeErr.ReqID, "r9")
	}

	// The length prefix was honored, so the stream stays aligned: a
	// well-formed frame right after the bad one still reads cleanly.
	writeFrame(&buf, `{"type":"shutdown","req_id":"r10"}`)
	cmd, err := r.ReadCommand()
	if err != nil {
		t.Fatalf("ReadCommand after a decode error: %v", err)
	}
	if cmd.Type != CmdShutdown || cmd.ReqID != "r10" {
		t.Errorf("decoded command = %+v", cmd)
	}
}

func TestReadCommandRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(maxFrameBytes+1))
	buf.Write(lenBuf[:])

	r := NewReader(&buf)
	if _, err := r.ReadCommand(); err == nil {
		t.Error("expected an error for a frame length exceeding maxFrameBytes")
	}
}

func TestReadCommandZeroLengthFrameRejected(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], 0)
	buf.Write(lenBuf[:])

	r := NewReader(&buf)
	if _, err := r.ReadCommand(); err == nil {
		t.Error("expected an error for a zero-length frame")
	}
}

func TestReadCommandEOFOnEmptyStream(t *testing.T) {
	r := NewReader(&bytes.Buffer{})
	if _, err := r.ReadCommand(); err == nil {
		t.Error("expected an error (EOF) reading from an empty stream")
	}
}

func TestWriteAckEnvelopeShape(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteAck("req-1", map[string]int{"count": 3}); err != nil {
		t.Fatalf("WriteAck: %v", err)
	}

	r := NewReader(&buf)
	cmd, err := r.ReadCommand()
	if err != nil {
		t.Fatalf("reading the ack frame back: %v", err)
	}
	if cmd.Type != EventAck || cmd.ReqID != "req-1" {
		t.Errorf("decoded = %+v", cmd)
	}
}

func TestWriteErrorEnvelopeShape(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteError("req-2", ErrInvalidArg, "bad symbol"); err != nil {
		t.Fatalf("WriteError: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected bytes written for error envelope")
	}
}
