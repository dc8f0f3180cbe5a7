package terminal

import (
	"fmt"
	"strings"
	"sync"

	"github.com/noah-isme/pos-terminal/internal/settlement"
)

// Key identifies the current sale of one terminal on one channel.
type Key struct {
	Channel    settlement.Channel
	TerminalID string
}

func (k Key) String() string {
	return string(k.Channel) + ":" + k.TerminalID
}

type slot struct {
	mu   sync.Mutex
	sale *settlement.Sale
}

// Registry holds one sale per terminal. Each sale has its own mutex so
// terminals never block each other.
type Registry struct {
	mu       sync.Mutex
	policies map[settlement.Channel]settlement.Policy
	slots    map[Key]*slot
}

// NewRegistry builds a registry serving the given channel policies.
func NewRegistry(policies ...settlement.Policy) *Registry {
	r := &Registry{
		policies: make(map[settlement.Channel]settlement.Policy, len(policies)),
		slots:    make(map[Key]*slot),
	}
	for _, p := range policies {
		r.policies[p.Channel] = p
	}
	return r
}

// Policy returns the policy configured for channel.
func (r *Registry) Policy(channel settlement.Channel) (settlement.Policy, bool) {
	p, ok := r.policies[channel]
	return p, ok
}

func (r *Registry) slot(key Key) (*slot, error) {
	if strings.TrimSpace(key.TerminalID) == "" {
		return nil, ErrTerminalRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.slots[key]; ok {
		return s, nil
	}
	policy, ok := r.policies[key.Channel]
	if !ok {
		return nil, fmt.Errorf("channel %q: %w", key.Channel, ErrUnknownChannel)
	}
	s := &slot{sale: settlement.NewSale(policy)}
	r.slots[key] = s
	return s, nil
}

// With runs fn with exclusive access to the terminal's sale, creating an
// empty sale on first use.
func (r *Registry) With(key Key, fn func(*settlement.Sale) error) error {
	s, err := r.slot(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.sale)
}

// Len reports how many terminals have a sale.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}
