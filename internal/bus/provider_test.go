package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codesOf(subs []Subscription) []string {
	out := make([]string, len(subs))
	for i, s := range subs {
		out[i] = s.Code()
	}
	return out
}

func TestMapProvider_OneSubscriberPerCode(t *testing.T) {
	p := NewMapProvider("orders.subscriptions", map[string]Subscriber{
		"OrderShipped": noop(),
		"OrderCreated": noop(),
		"OrderVoided":  nil,
	})

	assert.Equal(t, "orders.subscriptions", p.ProviderID())
	assert.Equal(t, []string{"OrderCreated", "OrderShipped"}, codesOf(p.Subscriptions()))
}

func TestMapProvider_Empty(t *testing.T) {
	assert.Nil(t, NewMapProvider("x", nil).Subscriptions())
	assert.Nil(t, NewMapProvider("x", map[string]Subscriber{"a": nil}).Subscriptions())
}

func TestStaticProvider_FanOut(t *testing.T) {
	p := NewStaticProvider("signup",
		NewSubscription("UserRegistered", Named("email", noop())),
		NewSubscription("UserRegistered", Named("audit", noop())),
		NewSubscription("UserDeleted", Named("audit", noop())),
	)

	subs := p.Subscriptions()
	require.Len(t, subs, 3)

	// Callers get a copy.
	subs[0] = NewSubscription("mutated", nil)
	assert.Equal(t, "UserRegistered", p.Subscriptions()[0].Code())
}

func TestRegistry_Match(t *testing.T) {
	r := NewRegistry([]Subscription{
		NewSubscription("UserRegistered", Named("email", noop())),
		NewSubscription("UserDeleted", Named("audit", noop())),
		NewSubscription("UserRegistered", Named("audit", noop())),
	})

	matched := r.Match("UserRegistered")
	require.Len(t, matched, 2)
	assert.Equal(t, "email", SubscriberName(matched[0].Subscriber()))
	assert.Equal(t, "audit", SubscriberName(matched[1].Subscriber()))

	assert.Empty(t, r.Match("UserRegistered2"))
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []string{"UserRegistered", "UserDeleted"}, r.Codes())
}

func TestRegistry_Nil(t *testing.T) {
	var r *Registry
	assert.Zero(t, r.Len())
	assert.Nil(t, r.Match("x"))
	assert.Nil(t, r.Codes())
}
