package registry

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test types for registry tests
type testInterface interface {
	DoSomething()
}

type testImplementation struct{}

func (t *testImplementation) DoSomething() {}

var interfaceType = reflect.TypeOf((*testInterface)(nil)).Elem()

func newBinding(id string, provider interface{}) *Binding {
	return &Binding{
		Key:      Key{Type: interfaceType, ID: id},
		Provider: provider,
	}
}

func TestNew(t *testing.T) {
	reg := New()
	require.NotNil(t, reg)
	assert.NotNil(t, reg.bindings)
	assert.Zero(t, reg.Len())
}

func TestKey_Equality(t *testing.T) {
	a := Key{Type: interfaceType, ID: "file"}
	b := Key{Type: reflect.TypeOf((*testInterface)(nil)).Elem(), ID: "file"}

	assert.Equal(t, a, b)

	m := map[Key]int{a: 1}
	assert.Equal(t, 1, m[b])
	assert.NotEqual(t, a, Key{Type: interfaceType})
}

func TestKey_String(t *testing.T) {
	assert.Equal(t, "registry.testInterface", Key{Type: interfaceType}.String())
	assert.Equal(t, "registry.testInterface[id=file]", Key{Type: interfaceType, ID: "file"}.String())
	assert.Equal(t, "<nil>", Key{}.String())
}

func TestRegister_Success(t *testing.T) {
	reg := New()

	require.NoError(t, reg.Register(newBinding("", "p1")))
	assert.True(t, reg.Has(Key{Type: interfaceType}))
	assert.False(t, reg.Has(Key{Type: interfaceType, ID: "other"}))
}

func TestRegister_InvalidBindings(t *testing.T) {
	reg := New()

	assert.Error(t, reg.Register(nil))
	assert.Error(t, reg.Register(&Binding{Provider: "p"}))
	assert.Error(t, reg.Register(&Binding{Key: Key{Type: interfaceType}}))
	assert.Zero(t, reg.Len())
}

func TestRegister_SameKeyKeepsOrder(t *testing.T) {
	reg := New()

	require.NoError(t, reg.Register(newBinding("", "p1")))
	require.NoError(t, reg.Register(newBinding("", "p2")))
	require.NoError(t, reg.Register(newBinding("", "p3")))

	bindings := reg.Get(Key{Type: interfaceType})
	require.Len(t, bindings, 3)
	for i, want := range []string{"p1", "p2", "p3"} {
		assert.Equal(t, want, bindings[i].Provider)
		assert.Equal(t, uint64(i+1), bindings[i].Seq)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register(newBinding("", "p1")))

	bindings := reg.Get(Key{Type: interfaceType})
	bindings[0] = nil

	again := reg.Get(Key{Type: interfaceType})
	require.Len(t, again, 1)
	assert.NotNil(t, again[0])
}

func TestGet_Missing(t *testing.T) {
	reg := New()
	assert.Nil(t, reg.Get(Key{Type: interfaceType}))
}

func TestFreeze(t *testing.T) {
	reg := New()
	require.NoError(t, reg.Register(newBinding("", "p1")))

	reg.Freeze()
	reg.Freeze()
	assert.True(t, reg.Frozen())

	err := reg.Register(newBinding("", "p2"))
	assert.True(t, errors.Is(err, ErrFrozen))
	assert.Equal(t, 1, reg.Len())
}

func TestNonLazy(t *testing.T) {
	reg := New()

	b1 := newBinding("a", "p1")
	b1.NonLazy = true
	b2 := newBinding("b", "p2")
	b3 := newBinding("c", "p3")
	b3.NonLazy = true

	for _, b := range []*Binding{b1, b2, b3} {
		require.NoError(t, reg.Register(b))
	}

	roots := reg.NonLazy()
	require.Len(t, roots, 2)
	assert.Same(t, b1, roots[0])
	assert.Same(t, b3, roots[1])
}

func TestKeysAndAll(t *testing.T) {
	reg := New()

	require.NoError(t, reg.Register(newBinding("b", "p1")))
	require.NoError(t, reg.Register(newBinding("a", "p2")))
	require.NoError(t, reg.Register(newBinding("b", "p3")))

	keys := reg.Keys()
	require.Len(t, keys, 2)
	assert.Equal(t, "b", keys[0].ID)
	assert.Equal(t, "a", keys[1].ID)

	all := reg.All()
	require.Len(t, all, 3)
	assert.Equal(t, "p3", all[2].Provider)
}

func TestConcurrentAccess(t *testing.T) {
	reg := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = reg.Register(newBinding(fmt.Sprintf("id-%d", i), i))
		}(i)
		go func(i int) {
			defer wg.Done()
			_ = reg.Get(Key{Type: interfaceType, ID: fmt.Sprintf("id-%d", i)})
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, reg.Len())
	assert.Len(t, reg.Keys(), 50)
}
