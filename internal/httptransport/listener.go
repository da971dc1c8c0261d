package httptransport

import "net"

// boundedListener caps the number of simultaneously open connections
// accepted from the wrapped listener; callers past the cap block in
// Accept until a connection closes.
type boundedListener struct {
	net.Listener
	sem chan struct{}
}

func newBoundedListener(l net.Listener, max int) net.Listener {
	return &boundedListener{Listener: l, sem: make(chan struct{}, max)}
}

func (b *boundedListener) Accept() (net.Conn, error) {
	b.sem <- struct{}{}
	conn, err := b.Listener.Accept()
	if err != nil {
		<-b.sem
		return nil, err
	}
	return &boundedConn{Conn: conn, sem: b.sem}, nil
}

type boundedConn struct {
	net.Conn
	sem chan struct{}
}

func (b *boundedConn) Close() error {
	err := b.Conn.Close()
	<-b.sem
	return err
}
