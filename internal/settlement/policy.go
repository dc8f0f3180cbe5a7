package settlement

import (
	"slices"

	"github.com/noah-isme/pos-terminal/internal/ledger"
)

// Channel identifies the front-end a sale originates from.
type Channel string

const (
	ChannelPOS       Channel = "pos"
	ChannelSelfOrder Channel = "self_order"
)

// Policy parameterises the engine per front-end.
type Policy struct {
	Channel        Channel
	AllowedMethods []ledger.Method
	CashEnabled    bool
	RequireClient  bool
}

// POSPolicy is the staff point-of-sale configuration.
func POSPolicy() Policy {
	return Policy{
		Channel:        ChannelPOS,
		AllowedMethods: ledger.Methods(),
		CashEnabled:    true,
	}
}

// SelfOrderPolicy is the public self-service configuration: electronic
// tenders only and the customer must identify themselves.
func SelfOrderPolicy() Policy {
	return Policy{
		Channel:        ChannelSelfOrder,
		AllowedMethods: []ledger.Method{ledger.Debit, ledger.Credit, ledger.Transfer},
		CashEnabled:    false,
		RequireClient:  true,
	}
}

// Allows reports whether method may be used under this policy.
func (p Policy) Allows(method ledger.Method) bool {
	if method.IsCash() && !p.CashEnabled {
		return false
	}
	return slices.Contains(p.AllowedMethods, method)
}
