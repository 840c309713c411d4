package useragent

import (
	"crypto/rand"
	"math/big"
	"strings"
	"sync/atomic"
)

// DefaultAgent identifies comparison traffic in the access logs of both
// environments under test.
const DefaultAgent = "synapse-compare/1.0"

// Pool hands out User-Agent strings for outgoing comparison fetches. Rotating
// agents lets a run exercise user-agent dependent rendering on both sides.
type Pool struct {
	agents []string
	next   atomic.Uint64
}

// NewPool creates a pool over the given agents. Blank entries are dropped and
// an empty list falls back to DefaultAgent.
func NewPool(agents ...string) *Pool {
	cleaned := make([]string, 0, len(agents))
	for _, a := range agents {
		if a = strings.TrimSpace(a); a != "" {
			cleaned = append(cleaned, a)
		}
	}
	if len(cleaned) == 0 {
		cleaned = append(cleaned, DefaultAgent)
	}
	return &Pool{agents: cleaned}
}

// ParseList splits a "|"-separated flag value into agents. User-Agent strings
// routinely contain commas, so commas are not a usable separator.
func ParseList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, "|")
}

// Next returns agents round-robin. It is safe for concurrent use.
func (p *Pool) Next() string {
	if len(p.agents) == 0 {
		return ""
	}
	idx := p.next.Add(1) - 1
	return p.agents[idx%uint64(len(p.agents))]
}

// Random returns a uniformly chosen agent, falling back to Next if the
// system random source fails.
func (p *Pool) Random() string {
	if len(p.agents) == 0 {
		return ""
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(p.agents))))
	if err != nil {
		return p.Next()
	}
	return p.agents[n.Int64()]
}

// Len reports how many agents the pool rotates through.
func (p *Pool) Len() int {
	return len(p.agents)
}
