package broadcast

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/lanchat/message"
	"github.com/cyberinferno/lanchat/registry"
)

var errBrokenPipe = errors.New("broken pipe")

type fakeMember struct {
	id   string
	fail error

	mu       sync.Mutex
	received []message.Message
}

func (f *fakeMember) ID() string { return f.id }

func (f *fakeMember) Send(m message.Message) error {
	if f.fail != nil {
		return f.fail
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, m)
	return nil
}

func (f *fakeMember) Close() error { return nil }

func (f *fakeMember) messages() []message.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]message.Message(nil), f.received...)
}

func setup(t *testing.T, members map[string]*fakeMember) (*registry.Registry, *Engine) {
	t.Helper()
	reg := registry.New()
	for name, m := range members {
		require.True(t, reg.TryAdd(name, m))
	}

	return reg, New(reg, 0, nil)
}

func TestBroadcast(t *testing.T) {
	t.Run("delivers to every member", func(t *testing.T) {
		alice, bob, carol := &fakeMember{id: "a"}, &fakeMember{id: "b"}, &fakeMember{id: "c"}
		_, engine := setup(t, map[string]*fakeMember{"alice": alice, "bob": bob, "carol": carol})

		m := message.New(message.TypeInfo, "S", "hello all")
		result := engine.Broadcast(m, nil)

		assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, result.Delivered)
		assert.Empty(t, result.Failed)
		for _, member := range []*fakeMember{alice, bob, carol} {
			got := member.messages()
			require.Len(t, got, 1)
			assert.True(t, m.Equal(got[0]))
		}
	})

	t.Run("skips the excluded member", func(t *testing.T) {
		alice, bob := &fakeMember{id: "a"}, &fakeMember{id: "b"}
		_, engine := setup(t, map[string]*fakeMember{"alice": alice, "bob": bob})

		result := engine.Broadcast(message.New(message.TypeMessage, "alice", "hi"), alice)

		assert.Equal(t, []string{"bob"}, result.Delivered)
		assert.Empty(t, alice.messages())
		assert.Len(t, bob.messages(), 1)
	})

	t.Run("a failing member does not stop the others", func(t *testing.T) {
		alice := &fakeMember{id: "a"}
		broken := &fakeMember{id: "x", fail: errBrokenPipe}
		carol := &fakeMember{id: "c"}
		reg, engine := setup(t, map[string]*fakeMember{"alice": alice, "broken": broken, "carol": carol})

		var evicted []string
		engine.OnEvict(func(username string, member registry.Member, err error) {
			evicted = append(evicted, username)
			assert.Equal(t, "x", member.ID())
			assert.ErrorIs(t, err, errBrokenPipe)
		})

		result := engine.Broadcast(message.New(message.TypeInfo, "S", "ping"), nil)

		assert.ElementsMatch(t, []string{"alice", "carol"}, result.Delivered)
		require.Contains(t, result.Failed, "broken")
		assert.Len(t, alice.messages(), 1)
		assert.Len(t, carol.messages(), 1)

		assert.Equal(t, []string{"broken"}, evicted)
		assert.Equal(t, []string{"alice", "carol"}, reg.Usernames())
	})

	t.Run("empty registry", func(t *testing.T) {
		_, engine := setup(t, nil)
		result := engine.Broadcast(message.New(message.TypeInfo, "S", "anyone?"), nil)
		assert.Empty(t, result.Delivered)
		assert.Empty(t, result.Failed)
	})

	t.Run("evicts nobody when the failed name was already replaced", func(t *testing.T) {
		broken := &fakeMember{id: "x", fail: errBrokenPipe}
		reg := registry.New()
		require.True(t, reg.TryAdd("dave", broken))
		engine := New(reg, 1, nil)

		called := false
		engine.OnEvict(func(string, registry.Member, error) { called = true })

		// The failing member leaves and a new session claims the name
		// before the eviction pass looks at the registry.
		reg.Remove("dave")
		fresh := &fakeMember{id: "y"}
		require.True(t, reg.TryAdd("dave", fresh))

		engine.evict("dave", broken, errBrokenPipe)
		assert.False(t, called)
		got, ok := reg.Lookup("dave")
		require.True(t, ok)
		assert.Equal(t, "y", got.ID())
	})
}

func TestBroadcast_ManyRecipients(t *testing.T) {
	reg := registry.New()
	members := make([]*fakeMember, 100)
	for i := range members {
		members[i] = &fakeMember{id: string(rune('A' + i))}
		require.True(t, reg.TryAdd(members[i].id, members[i]))
	}

	engine := New(reg, 4, nil)
	result := engine.Broadcast(message.New(message.TypeMessage, "S", "load"), nil)

	assert.Len(t, result.Delivered, 100)
	for _, m := range members {
		assert.Len(t, m.messages(), 1)
	}
}

func TestNew_DefaultConcurrency(t *testing.T) {
	engine := New(registry.New(), 0, nil)
	assert.Equal(t, DefaultConcurrency, engine.concurrency)

	engine = New(registry.New(), 3, nil)
	assert.Equal(t, 3, engine.concurrency)
}
