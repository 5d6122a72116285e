package bus

// Registry is the immutable set of subscriptions a listener dispatches to.
// It is safe for concurrent use.
type Registry struct {
	subs []Subscription
}

func NewRegistry(subs []Subscription) *Registry {
	return &Registry{subs: append([]Subscription(nil), subs...)}
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.subs)
}

// Codes returns the distinct subscribed event codes in registration order.
func (r *Registry) Codes() []string {
	if r == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(r.subs))
	var out []string
	for _, s := range r.subs {
		if _, ok := seen[s.Code()]; ok {
			continue
		}
		seen[s.Code()] = struct{}{}
		out = append(out, s.Code())
	}
	return out
}

// Match returns every subscription interested in code, in registration order.
func (r *Registry) Match(code string) []Subscription {
	if r == nil {
		return nil
	}
	var out []Subscription
	for _, s := range r.subs {
		if s.IsInterestedIn(code) {
			out = append(out, s)
		}
	}
	return out
}
