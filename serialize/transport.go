// Wire format for each message, matching the teacher's own migration
// transport framing:
//
//	[4-byte big-endian type][8-byte big-endian payload length][payload bytes]
package serialize

import (
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
)

var (
	errUnknownTLBVersion     = errors.New("serialize: TLB subsection version newer than this core understands")
	errTLBEntryCountMismatch = errors.New("serialize: TLB entry count does not match array size")
	errUnknownMajorVersion   = errors.New("serialize: unknown major version")
)

// MsgType identifies a snapshot protocol message.
type MsgType uint32

const (
	MsgSnapshot MsgType = 1
	MsgDone     MsgType = 2
)

// Sender writes framed snapshot messages to an underlying writer.
type Sender struct {
	w io.Writer
}

func NewSender(w io.Writer) *Sender { return &Sender{w: w} }

func (s *Sender) send(t MsgType, payload []byte) error {
	hdr := make([]byte, 12)
	binary.BigEndian.PutUint32(hdr[0:4], uint32(t))
	binary.BigEndian.PutUint64(hdr[4:12], uint64(len(payload)))

	if _, err := s.w.Write(hdr); err != nil {
		return fmt.Errorf("send header: %w", err)
	}

	if len(payload) > 0 {
		if _, err := s.w.Write(payload); err != nil {
			return fmt.Errorf("send payload: %w", err)
		}
	}

	return nil
}

// SendSnapshot gob-encodes snap and sends it as a MsgSnapshot.
func (s *Sender) SendSnapshot(snap *Snapshot) error {
	if snap.MajorVersion == 0 {
		snap.MajorVersion = MajorVersion
	}

	pr, pw := io.Pipe()
	errCh := make(chan error, 1)

	go func() {
		enc := gob.NewEncoder(pw)
		errCh <- enc.Encode(snap)
		pw.Close()
	}()

	payload, err := io.ReadAll(pr)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	if err := <-errCh; err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	return s.send(MsgSnapshot, payload)
}

func (s *Sender) SendDone() error { return s.send(MsgDone, nil) }

// Receiver reads framed snapshot messages from an underlying reader.
type Receiver struct {
	r io.Reader
}

func NewReceiver(r io.Reader) *Receiver { return &Receiver{r: r} }

func (r *Receiver) Next() (MsgType, []byte, error) {
	hdr := make([]byte, 12)
	if _, err := io.ReadFull(r.r, hdr); err != nil {
		return 0, nil, fmt.Errorf("read header: %w", err)
	}

	t := MsgType(binary.BigEndian.Uint32(hdr[0:4]))
	length := binary.BigEndian.Uint64(hdr[4:12])

	if length == 0 {
		return t, nil, nil
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return 0, nil, fmt.Errorf("read payload (type=%d len=%d): %w", t, length, err)
	}

	return t, payload, nil
}

// DecodeSnapshot decodes and validates a gob-encoded Snapshot,
// rejecting unknown major versions per spec.md §6 ("readers must
// reject unknown major versions and accept additive subsections").
func DecodeSnapshot(payload []byte) (*Snapshot, error) {
	snap := &Snapshot{}
	dec := gob.NewDecoder((*bReader)(&payload))

	if err := dec.Decode(snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}

	if snap.MajorVersion != MajorVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", errUnknownMajorVersion, snap.MajorVersion, MajorVersion)
	}

	return snap, nil
}

type bReader []byte

func (b *bReader) Read(p []byte) (int, error) {
	if len(*b) == 0 {
		return 0, io.EOF
	}

	n := copy(p, *b)
	*b = (*b)[n:]

	return n, nil
}
