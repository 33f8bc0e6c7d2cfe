package comm

import (
	"bufio"
	"net"
	"sync"
)

// peer is a persistent connection to one other rank. Each peer has one
// reader loop goroutine (started by Comm.addPeer), decoding frames off
// the wire and handing them to the owning Comm's dispatch table.
type peer struct {
	rank   int
	conn   net.Conn
	writer *bufio.Writer
	sendMu sync.Mutex

	closeOnce sync.Once
}

func newPeer(rank int, conn net.Conn) *peer {
	return &peer{
		rank:   rank,
		conn:   conn,
		writer: bufio.NewWriterSize(conn, 32*1024),
	}
}

func (p *peer) send(tag Tag, from int, payload []byte) error {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	if err := writeFrame(p.writer, tag, from, payload); err != nil {
		return err
	}
	return p.writer.Flush()
}

func (p *peer) close() {
	p.closeOnce.Do(func() {
		p.conn.Close()
	})
}

// readLoop decodes frames until the connection closes or a frame fails
// to parse, handing each one to dispatch.
func (p *peer) readLoop(dispatch func(from int, tag Tag, payload []byte)) {
	defer p.close()
	reader := bufio.NewReaderSize(p.conn, 32*1024)
	for {
		tag, from, payload, err := readFrame(reader)
		if err != nil {
			return
		}
		dispatch(from, tag, payload)
	}
}
