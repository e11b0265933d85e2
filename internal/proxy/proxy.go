// Package proxy parses proxy descriptors and picks one per request.
package proxy

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// ErrInvalidDescriptor is returned for malformed host:port:user:pass strings.
var ErrInvalidDescriptor = errors.New("invalid proxy descriptor")

// Proxy is an HTTP proxy endpoint with optional credentials.
type Proxy struct {
	Host     string
	Port     string
	Username string
	Password string
}

// Parse reads a "host:port[:username[:password]]" descriptor.
func Parse(descriptor string) (Proxy, error) {
	parts := strings.Split(strings.TrimSpace(descriptor), ":")
	if len(parts) < 2 || len(parts) > 4 {
		return Proxy{}, fmt.Errorf("%w: %q", ErrInvalidDescriptor, descriptor)
	}
	p := Proxy{Host: parts[0], Port: parts[1]}
	if p.Host == "" || p.Port == "" {
		return Proxy{}, fmt.Errorf("%w: %q: host and port are required", ErrInvalidDescriptor, descriptor)
	}
	if n, err := strconv.Atoi(p.Port); err != nil || n <= 0 || n > 65535 {
		return Proxy{}, fmt.Errorf("%w: %q: bad port", ErrInvalidDescriptor, descriptor)
	}
	if len(parts) > 2 {
		p.Username = parts[2]
	}
	if len(parts) > 3 {
		p.Password = parts[3]
	}
	return p, nil
}

// Authenticated reports whether credentials are attached.
func (p Proxy) Authenticated() bool {
	return p.Username != ""
}

// Address returns host:port.
func (p Proxy) Address() string {
	return net.JoinHostPort(p.Host, p.Port)
}

// Server returns the proxy server URL without credentials, as browsers expect.
func (p Proxy) Server() string {
	return "http://" + p.Address()
}

// URL returns the proxy URL including credentials for per-request routing.
func (p Proxy) URL() *url.URL {
	u := &url.URL{Scheme: "http", Host: p.Address()}
	switch {
	case p.Username != "" && p.Password != "":
		u.User = url.UserPassword(p.Username, p.Password)
	case p.Username != "":
		u.User = url.User(p.Username)
	}
	return u
}

// String hides the password.
func (p Proxy) String() string {
	if p.Authenticated() {
		return fmt.Sprintf("%s@%s", p.Username, p.Address())
	}
	return p.Address()
}

// Pool holds a fixed set of proxies and picks one uniformly at random.
type Pool struct {
	proxies []Proxy

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewPool copies proxies into a pool.
func NewPool(proxies ...Proxy) *Pool {
	return &Pool{
		proxies: append([]Proxy(nil), proxies...),
		rnd:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// ParseAll builds a pool from descriptors, skipping blank entries.
func ParseAll(descriptors []string) (*Pool, error) {
	proxies := make([]Proxy, 0, len(descriptors))
	for _, d := range descriptors {
		if strings.TrimSpace(d) == "" {
			continue
		}
		p, err := Parse(d)
		if err != nil {
			return nil, err
		}
		proxies = append(proxies, p)
	}
	return NewPool(proxies...), nil
}

// Len returns the number of proxies.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.proxies)
}

// Pick returns a random proxy. ok is false when the pool is nil or empty.
func (p *Pool) Pick() (Proxy, bool) {
	if p.Len() == 0 {
		return Proxy{}, false
	}
	p.mu.Lock()
	idx := p.rnd.IntN(len(p.proxies))
	p.mu.Unlock()
	return p.proxies[idx], true
}

// All returns a copy of the configured proxies.
func (p *Pool) All() []Proxy {
	if p == nil {
		return nil
	}
	return append([]Proxy(nil), p.proxies...)
}
