//go:build linux && amd64

package detour

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//go:noinline
func a() string {
	return "a"
}

func b() string {
	return "b"
}

func TestFunc(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("a", a())
	assert.NoError(Func(a, b))
	assert.Equal("b", a())

	assert.NoError(Restore(a))
	assert.Equal("a", a())
	assert.Empty(Active())
}

func TestFunc_Twice(t *testing.T) {
	assert := assert.New(t)

	assert.NoError(Func(a, b))
	assert.NoError(Func(a, func() string { return "c" }))
	assert.Equal("c", a())

	assert.NoError(Restore(a))
	assert.Equal("a", a())

	// Restoring something that isn't redefined is fine.
	assert.NoError(Restore(a))
}

func TestFunc_NotAFunction(t *testing.T) {
	t.Run("first arg not a function", func(t *testing.T) {
		err := Func("not a function", b)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not a function")
	})

	t.Run("second arg not a function", func(t *testing.T) {
		err := Func(a, 42)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not a function")
	})

	t.Run("nil first arg", func(t *testing.T) {
		err := Func(nil, b)
		assert.Error(t, err)
	})

	t.Run("nil second arg", func(t *testing.T) {
		err := Func(a, nil)
		assert.Error(t, err)
	})

	t.Run("restore", func(t *testing.T) {
		assert.ErrorIs(t, Restore(42), ErrInvalidAddress)
	})
}

func TestFunc_SignatureMismatch(t *testing.T) {
	t.Run("different number of inputs", func(t *testing.T) {
		fn1 := func(x int) int { return x }
		fn2 := func(x, y int) int { return x + y }
		err := Func(fn1, fn2)
		assert.ErrorIs(t, err, ErrSignature)
		assert.Contains(t, err.Error(), "signatures do not match")
	})

	t.Run("different output types", func(t *testing.T) {
		fn1 := func() int { return 1 }
		fn2 := func() string { return "1" }
		err := Func(fn1, fn2)
		assert.ErrorIs(t, err, ErrSignature)
	})
}

//go:noinline
func multipleReturns(x int) (int, string, error) {
	return x * 2, "original", nil
}

func multipleReturnsReplacement(x int) (int, string, error) {
	return x * 10, "replaced", nil
}

func TestNewFunc(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	d, err := NewFunc(multipleReturns, multipleReturnsReplacement, WithBoundaryCheck())
	require.NoError(err)
	t.Cleanup(func() { d.Close() })

	n, s, _ := multipleReturns(5)
	assert.Equal(10, n)
	assert.Equal("original", s)

	require.NoError(d.Enable())
	n, s, _ = multipleReturns(5)
	assert.Equal(50, n)
	assert.Equal("replaced", s)

	require.NoError(d.Disable())
	n, s, _ = multipleReturns(5)
	assert.Equal(10, n)
	assert.Equal("original", s)

	require.NoError(d.Enable())
	require.NoError(d.Close())
	n, _, _ = multipleReturns(5)
	assert.Equal(10, n)
}

func TestNewFunc_Abs64(t *testing.T) {
	d, err := NewFunc(a, b, WithEncoding(Abs64))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	require.NoError(t, d.Enable())
	assert.Equal(t, "b", a())
	require.NoError(t, d.Disable())
	assert.Equal(t, "a", a())
}

func TestNewFunc_Overlap(t *testing.T) {
	d, err := NewFunc(a, b)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })

	_, err = NewFunc(a, func() string { return "c" })
	assert.ErrorIs(t, err, ErrOverlap)
	assert.ErrorIs(t, Func(a, b), ErrOverlap)
}

type testStruct struct {
	Num int
}

//go:noinline
func (ts *testStruct) Inc() {
	ts.Num++
}

type testStruct2 testStruct

func (ts *testStruct2) Double() {
	ts.Num *= 2
}

func TestMethod(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	ts := &testStruct{}
	ts.Inc()
	ts.Inc()
	assert.Equal(2, ts.Num)

	require.NoError(Method((*testStruct).Inc, (*testStruct2).Double))
	t.Cleanup(func() { Restore((*testStruct).Inc) })

	ts.Inc()
	assert.Equal(4, ts.Num)

	require.NoError(Restore((*testStruct).Inc))
	ts.Inc()
	assert.Equal(5, ts.Num)
}

func TestProcessMemory_Query(t *testing.T) {
	prot, err := ProcessMemory().Query(funcEntry(a))
	require.NoError(t, err)
	assert.Equal(t, ProtRX, prot)
}

func TestArena(t *testing.T) {
	stub, err := stubArena.Allocate(abs64Width)
	require.NoError(t, err)
	t.Cleanup(func() { stubArena.Free(stub) })
	assert.NotZero(t, stub)

	code, err := Abs64.Encode(stub, funcEntry(b))
	require.NoError(t, err)
	require.NoError(t, stubArena.Write(stub, code))

	got := make([]byte, len(code))
	require.NoError(t, ProcessMemory().Read(stub, got))
	assert.Equal(t, code, got)

	prot, err := ProcessMemory().Query(stub)
	require.NoError(t, err)
	assert.NotZero(t, prot&ProtExec)
}

func funcEntry(fn func() string) uintptr {
	return reflect.ValueOf(fn).Pointer()
}
