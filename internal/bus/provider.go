package bus

import "sort"

// Provider supplies the subscriptions of a process. It is queried once at
// startup.
//
// ProviderID is used as the consumer group id, so processes with different
// subscription sets never share partitions. It must be stable across
// restarts.
type Provider interface {
	ProviderID() string
	Subscriptions() []Subscription
}

// StaticProvider is a Provider over a fixed list of subscriptions.
type StaticProvider struct {
	id   string
	subs []Subscription
}

// NewStaticProvider returns a provider for the given subscriptions. Several
// subscriptions may share a code.
func NewStaticProvider(id string, subs ...Subscription) *StaticProvider {
	return &StaticProvider{id: id, subs: append([]Subscription(nil), subs...)}
}

// NewMapProvider returns a provider with one subscriber per event code.
// Codes mapped to a nil subscriber are left out.
func NewMapProvider(id string, subscribers map[string]Subscriber) *StaticProvider {
	codes := make([]string, 0, len(subscribers))
	for code, s := range subscribers {
		if s != nil {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)

	subs := make([]Subscription, 0, len(codes))
	for _, code := range codes {
		subs = append(subs, NewSubscription(code, subscribers[code]))
	}
	return &StaticProvider{id: id, subs: subs}
}

func (p *StaticProvider) ProviderID() string { return p.id }

// Subscriptions returns nil when the provider has nothing to subscribe to.
func (p *StaticProvider) Subscriptions() []Subscription {
	if len(p.subs) == 0 {
		return nil
	}
	return append([]Subscription(nil), p.subs...)
}
