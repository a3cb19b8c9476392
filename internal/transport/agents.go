package transport

import "sync"

// defaultUserAgents are cycled across requests so consecutive page fetches
// do not present a single fixed client identity
var defaultUserAgents = []string{
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64)",
	"Mozilla/5.0 (X11; Linux x86_64)",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X)",
}

// agentRing rotates through a fixed list of User-Agent strings
type agentRing struct {
	mu     sync.Mutex
	agents []string
	next   int
}

func newAgentRing(agents []string) *agentRing {
	if len(agents) == 0 {
		agents = defaultUserAgents
	}
	return &agentRing{agents: agents}
}

// Next returns the next User-Agent in rotation
func (r *agentRing) Next() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent := r.agents[r.next%len(r.agents)]
	r.next++
	return agent
}
