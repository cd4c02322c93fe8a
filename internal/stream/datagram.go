package stream

import (
	"net"
	"sync/atomic"

	"github.com/pkg/errors"

	"gyrodesk/internal/metrics"
	"gyrodesk/internal/protocol"
	"gyrodesk/internal/sockopt"
	"gyrodesk/internal/util"
)

// DatagramTransport splits each frame into fragments and fires them at the
// target as independent UDP datagrams. Nothing is retransmitted.
type DatagramTransport struct {
	fragmentSize int
	conn         *net.UDPConn
	addr         *net.UDPAddr
	buf          []byte
	closed       atomic.Bool
}

// NewDatagramTransport creates a transport using the given fragment payload
// size, floored by protocol.NormalizeFragmentSize.
func NewDatagramTransport(fragmentSize int) *DatagramTransport {
	return &DatagramTransport{fragmentSize: protocol.NormalizeFragmentSize(fragmentSize)}
}

func (d *DatagramTransport) Name() string { return "datagram" }

func (d *DatagramTransport) Open(target Target) error {
	addr, err := net.ResolveUDPAddr("udp", target.String())
	if err != nil {
		return errors.Wrap(err, "resolve stream target")
	}
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return errors.Wrap(err, "open stream socket")
	}

	// 1 MB write buffer for fragment bursts
	conn.SetWriteBuffer(1 << 20)
	if err := sockopt.LowDelay(conn); err != nil {
		util.GetLogger().Debug("Low-delay TOS not applied", "component", "stream", "error", err)
	}

	d.conn = conn
	d.addr = addr
	d.buf = make([]byte, 0, protocol.FragmentHeaderSize+d.fragmentSize)
	return nil
}

// Ready is true while open: datagrams need no attached peer
func (d *DatagramTransport) Ready() bool { return d.conn != nil && !d.closed.Load() }

// Send writes every fragment in index order. All fragments are attempted even
// if one fails; the first error is returned.
func (d *DatagramTransport) Send(frameSeq uint32, payload []byte) error {
	if !d.Ready() {
		return errors.New("datagram transport not open")
	}
	frags, err := protocol.EncodeFragments(frameSeq, payload, d.fragmentSize)
	if err != nil {
		return err
	}

	var first error
	for i := range frags {
		d.buf = frags[i].AppendBinary(d.buf[:0])
		if _, err := d.conn.WriteToUDP(d.buf, d.addr); err != nil {
			if first == nil {
				first = errors.Wrapf(err, "fragment %d/%d", i, len(frags))
			}
			continue
		}
		metrics.Fragments.Inc()
	}
	return first
}

func (d *DatagramTransport) Close() error {
	if d.conn == nil || d.closed.Swap(true) {
		return nil
	}
	return d.conn.Close()
}
