package connectivity

import (
	"context"
	"net"
	"net/url"
	"time"
)

// DefaultTimeout bounds a single reachability check.
const DefaultTimeout = 2 * time.Second

// Probe checks reachability by opening a TCP connection to Address.
type Probe struct {
	Address string // host:port
	Timeout time.Duration
}

// NewProbe returns a probe for the host of endpoint (port 443 unless the URL says otherwise).
func NewProbe(endpoint string) (*Probe, error) {
	addr, err := AddressFor(endpoint)
	if err != nil {
		return nil, err
	}
	return &Probe{Address: addr, Timeout: DefaultTimeout}, nil
}

// AddressFor derives host:port from an http(s) URL.
func AddressFor(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", err
	}
	port := u.Port()
	if port == "" {
		port = "443"
		if u.Scheme == "http" {
			port = "80"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

// IsConnected reports whether Address accepted a TCP connection in time.
func (p *Probe) IsConnected() bool {
	return p.IsConnectedContext(context.Background())
}

// IsConnectedContext is IsConnected that gives up as soon as ctx is done.
func (p *Probe) IsConnectedContext(ctx context.Context) bool {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
