package reactor

import (
	"net"
	"sync"
)

// perIPConnCounter tracks live connection counts per remote IPv4
// address so the reactor can enforce Config.MaxConnsPerIP at accept
// time. Grounded in fasthttp's peripconn.go, stripped of its TLS
// branch since this package never terminates TLS itself.
type perIPConnCounter struct {
	pool sync.Pool
	m    map[uint32]int
	lock sync.Mutex
}

func (cc *perIPConnCounter) Register(ip uint32) int {
	cc.lock.Lock()
	if cc.m == nil {
		cc.m = make(map[uint32]int)
	}
	n := cc.m[ip] + 1
	cc.m[ip] = n
	cc.lock.Unlock()
	return n
}

func (cc *perIPConnCounter) Unregister(ip uint32) {
	cc.lock.Lock()
	defer cc.lock.Unlock()
	if cc.m == nil {
		panic("BUG: perIPConnCounter.Register() wasn't called")
	}
	n := cc.m[ip] - 1
	if n < 0 {
		n = 0
	}
	cc.m[ip] = n
}

type perIPConn struct {
	net.Conn

	counter *perIPConnCounter
	ip      uint32
}

// acquirePerIPConn wraps conn so that closing it also releases its
// slot in counter, however far down the call stack the close happens.
func acquirePerIPConn(conn net.Conn, ip uint32, counter *perIPConnCounter) net.Conn {
	v := counter.pool.Get()
	if v == nil {
		return &perIPConn{counter: counter, Conn: conn, ip: ip}
	}
	c := v.(*perIPConn)
	c.Conn = conn
	c.ip = ip
	return c
}

func (c *perIPConn) Close() error {
	err := c.Conn.Close()
	c.counter.Unregister(c.ip)
	c.Conn = nil
	c.counter.pool.Put(c)
	return err
}

func getUint32IP(c net.Conn) uint32 {
	return ip2uint32(getConnIP4(c))
}

func getConnIP4(c net.Conn) net.IP {
	addr := c.RemoteAddr()
	ipAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return net.IPv4zero
	}
	return ipAddr.IP.To4()
}

func ip2uint32(ip net.IP) uint32 {
	if len(ip) != 4 {
		return 0
	}
	return uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])
}
