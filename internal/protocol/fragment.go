package protocol

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// FrameMagic tags every screen-stream datagram ("MSTR")
const FrameMagic uint32 = 0x4D535452

// FrameVersion is the current fragment header version
const FrameVersion uint8 = 1

// Header: [magic(4)] [version(1)] [frameSeq(4)] [count(2)] [index(2)] = 13 bytes
const FragmentHeaderSize = 13

// Fragment size bounds. Sizes at or below MinFragmentSize are replaced with
// DefaultFragmentSize.
const (
	DefaultFragmentSize = 1100
	MinFragmentSize     = 200
	fallbackFragment    = 1000
	maxFragments        = 1<<16 - 1
)

var (
	// ErrShortFragment is returned when a datagram is smaller than the header
	ErrShortFragment = errors.New("fragment: datagram too short")

	// ErrBadMagic is returned when the header magic does not match
	ErrBadMagic = errors.New("fragment: bad magic")

	// ErrTooManyFragments is returned when a payload needs more than 65535 fragments
	ErrTooManyFragments = errors.New("fragment: payload needs too many fragments")
)

// Fragment is one piece of an encoded frame as it goes on the wire.
//
// Wire format (big-endian):
//
//	magic(4) | version(1) | frameSeq(4) | fragmentCount(2) | fragmentIndex(2) | payload
type Fragment struct {
	Version       uint8
	FrameSeq      uint32
	FragmentCount uint16
	FragmentIndex uint16
	Payload       []byte
}

// NormalizeFragmentSize floors unreasonably small sizes to a sane default.
func NormalizeFragmentSize(size int) int {
	if size > MinFragmentSize {
		return size
	}
	return fallbackFragment
}

// FragmentCount returns ceil(n/size)
func FragmentCount(n, size int) int {
	if n <= 0 || size <= 0 {
		return 0
	}
	return (n + size - 1) / size
}

// EncodeFragments splits payload into index-ascending fragments of at most
// size bytes. Fragment payloads alias the input slice. An empty payload
// yields no fragments.
func EncodeFragments(frameSeq uint32, payload []byte, size int) ([]Fragment, error) {
	if size <= 0 {
		return nil, errors.Errorf("fragment: invalid size %d", size)
	}
	total := FragmentCount(len(payload), size)
	if total > maxFragments {
		return nil, errors.Wrapf(ErrTooManyFragments, "%d bytes at %d per fragment", len(payload), size)
	}

	frags := make([]Fragment, total)
	for i := 0; i < total; i++ {
		off := i * size
		end := off + size
		if end > len(payload) {
			end = len(payload)
		}
		frags[i] = Fragment{
			Version:       FrameVersion,
			FrameSeq:      frameSeq,
			FragmentCount: uint16(total),
			FragmentIndex: uint16(i),
			Payload:       payload[off:end],
		}
	}
	return frags, nil
}

// MarshalBinary serializes a fragment to wire format.
func (f *Fragment) MarshalBinary() ([]byte, error) {
	buf := make([]byte, FragmentHeaderSize+len(f.Payload))
	f.putHeader(buf)
	copy(buf[FragmentHeaderSize:], f.Payload)
	return buf, nil
}

// AppendBinary appends the wire form of f to dst and returns the extended slice.
func (f *Fragment) AppendBinary(dst []byte) []byte {
	n := len(dst)
	dst = append(dst, make([]byte, FragmentHeaderSize)...)
	f.putHeader(dst[n:])
	return append(dst, f.Payload...)
}

func (f *Fragment) putHeader(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], FrameMagic)
	buf[4] = f.Version
	binary.BigEndian.PutUint32(buf[5:9], f.FrameSeq)
	binary.BigEndian.PutUint16(buf[9:11], f.FragmentCount)
	binary.BigEndian.PutUint16(buf[11:13], f.FragmentIndex)
}

// DecodeFragment parses one datagram. The returned payload aliases data.
func DecodeFragment(data []byte) (*Fragment, error) {
	if len(data) < FragmentHeaderSize {
		return nil, ErrShortFragment
	}
	if binary.BigEndian.Uint32(data[0:4]) != FrameMagic {
		return nil, ErrBadMagic
	}
	return &Fragment{
		Version:       data[4],
		FrameSeq:      binary.BigEndian.Uint32(data[5:9]),
		FragmentCount: binary.BigEndian.Uint16(data[9:11]),
		FragmentIndex: binary.BigEndian.Uint16(data[11:13]),
		Payload:       data[FragmentHeaderSize:],
	}, nil
}
