package http

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/proxy"
)

// proxySettings is the outbound proxy and the hosts reached directly.
type proxySettings struct {
	raw    string
	bypass bypassList
}

// bypassList holds lower-cased no_proxy entries. "*" matches every host and
// a leading dot matches any subdomain.
type bypassList []string

func parseBypass(noProxy string) bypassList {
	var list bypassList
	for _, entry := range strings.Split(noProxy, ",") {
		if entry = strings.ToLower(strings.TrimSpace(entry)); entry != "" {
			list = append(list, entry)
		}
	}
	return list
}

func (b bypassList) matches(host string) bool {
	host = strings.ToLower(host)
	for _, entry := range b {
		switch {
		case entry == "*", entry == host:
			return true
		case strings.HasPrefix(entry, ".") && strings.HasSuffix(host, entry):
			return true
		}
	}
	return false
}

// apply routes t through the proxy.
func (p *proxySettings) apply(t *http.Transport) error {
	u, err := url.Parse(p.raw)
	if err != nil {
		return fmt.Errorf("parsing proxy URL: %w", err)
	}

	switch u.Scheme {
	case "http", "https":
		t.Proxy = func(r *http.Request) (*url.URL, error) {
			if p.bypass.matches(r.URL.Hostname()) {
				return nil, nil
			}
			return u, nil
		}
	case "socks5", "socks5h":
		dial, err := socksDialer(u, p.bypass)
		if err != nil {
			return err
		}
		t.Proxy = nil
		t.DialContext = dial
	default:
		return fmt.Errorf("unsupported proxy scheme: %s", u.Scheme)
	}
	return nil
}

type dialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

func socksDialer(u *url.URL, bypass bypassList) (dialFunc, error) {
	var auth *proxy.Auth
	if u.User != nil {
		password, _ := u.User.Password()
		auth = &proxy.Auth{User: u.User.Username(), Password: password}
	}
	socks, err := proxy.SOCKS5("tcp", u.Host, auth, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("creating SOCKS5 dialer: %w", err)
	}

	var direct net.Dialer
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if host, _, _ := net.SplitHostPort(addr); bypass.matches(host) {
			return direct.DialContext(ctx, network, addr)
		}
		if cd, ok := socks.(proxy.ContextDialer); ok {
			return cd.DialContext(ctx, network, addr)
		}
		return socks.Dial(network, addr)
	}, nil
}
