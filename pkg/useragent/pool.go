// Package useragent rotates User-Agent strings for direct page fetches so
// repeated requests from the scrape engine don't present a single static UA.
package useragent

import "sync/atomic"

// defaults covers current desktop Chrome, Firefox and Safari.
var defaults = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:122.0) Gecko/20100101 Firefox/122.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
}

// Pool hands out User-Agents round-robin. Safe for concurrent use.
type Pool struct {
	uas     []string
	counter atomic.Uint64
}

// NewPool builds a pool from uas, falling back to the defaults when empty.
func NewPool(uas []string) *Pool {
	if len(uas) == 0 {
		uas = defaults
	}
	copied := make([]string, len(uas))
	copy(copied, uas)
	return &Pool{uas: copied}
}

// Next returns the next User-Agent in rotation.
func (p *Pool) Next() string {
	idx := p.counter.Add(1) - 1
	return p.uas[idx%uint64(len(p.uas))]
}

// Len reports the pool size.
func (p *Pool) Len() int { return len(p.uas) }
