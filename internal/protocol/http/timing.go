package http

import (
	"crypto/tls"
	"net/http/httptrace"
	"time"

	"github.com/sadopc/reqdeck/internal/protocol"
)

// phaseTimer records connection phase durations through httptrace hooks.
// A reused connection leaves the dial phases at zero.
type phaseTimer struct {
	dnsStart, connStart, tlsStart time.Time
	gotConn, firstByte            time.Time

	dns, connect, handshake time.Duration
}

func (p *phaseTimer) trace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		DNSStart:             func(httptrace.DNSStartInfo) { p.dnsStart = time.Now() },
		DNSDone:              func(httptrace.DNSDoneInfo) { p.dns = time.Since(p.dnsStart) },
		ConnectStart:         func(string, string) { p.connStart = time.Now() },
		ConnectDone:          func(string, string, error) { p.connect = time.Since(p.connStart) },
		TLSHandshakeStart:    func() { p.tlsStart = time.Now() },
		TLSHandshakeDone:     func(tls.ConnectionState, error) { p.handshake = time.Since(p.tlsStart) },
		GotConn:              func(httptrace.GotConnInfo) { p.gotConn = time.Now() },
		GotFirstResponseByte: func() { p.firstByte = time.Now() },
	}
}

func (p *phaseTimer) detail(transfer, total time.Duration) *protocol.TimingDetail {
	d := &protocol.TimingDetail{
		DNSLookup:    p.dns,
		TCPConnect:   p.connect,
		TLSHandshake: p.handshake,
		Transfer:     transfer,
		Total:        total,
	}
	if !p.gotConn.IsZero() && !p.firstByte.IsZero() {
		d.TTFB = p.firstByte.Sub(p.gotConn)
	}
	return d
}
