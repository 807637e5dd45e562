// Package fingerprint builds HTTP transports whose TLS ClientHello mimics a
// real browser. The scrape engine uses these for direct page fetches when no
// scraping-proxy key is configured; sites that fingerprint TLS stacks would
// otherwise block the default Go handshake.
package fingerprint

import (
	"context"
	"fmt"
	"net"
	"net/http"

	utls "github.com/refraction-networking/utls"
)

// Profile names a TLS fingerprint to present.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go" // stock Go TLS, no mimicry
)

// Transport returns an http.RoundTripper presenting the given profile.
// ProfileGo returns a plain cloned default transport.
func Transport(p Profile) (http.RoundTripper, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if p == ProfileGo || p == "" {
		return transport, nil
	}

	var helloID utls.ClientHelloID
	switch p {
	case ProfileChrome:
		helloID = utls.HelloChrome_Auto
	case ProfileFirefox:
		helloID = utls.HelloFirefox_Auto
	case ProfileSafari:
		helloID = utls.HelloIOS_Auto
	default:
		return nil, fmt.Errorf("fingerprint: unknown profile %q", p)
	}

	transport.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		tcpConn, err := transport.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		uConn := utls.UClient(tcpConn, &utls.Config{ServerName: host}, helloID)
		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("fingerprint: utls handshake: %w", err)
		}
		return uConn, nil
	}

	return transport, nil
}
