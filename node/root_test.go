package node_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"github.com/pipelined/pulse/node"
	"github.com/pipelined/pulse/token"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestProcessSampleSum(t *testing.T) {
	r := node.NewRoot(token.SampleRate, 0)
	assert.NoError(t, r.Register(node.NewConstant(1)))
	assert.NoError(t, r.Register(node.NewConstant(2)))
	assert.NoError(t, r.Register(node.NewConstant(3)))

	assert.Equal(t, 6.0, r.ProcessSample())
	// deterministic across cycles
	assert.Equal(t, 6.0, r.ProcessSample())
}

func TestProcessOrder(t *testing.T) {
	r := node.NewRoot(token.SampleRate, 0)
	var order []int
	for i := 0; i < 4; i++ {
		i := i
		assert.NoError(t, r.Register(node.NewFunc(func(float64) float64 {
			order = append(order, i)
			return 0
		})))
	}
	r.ProcessSample()
	r.ProcessSample()
	assert.Equal(t, []int{0, 1, 2, 3, 0, 1, 2, 3}, order)
}

func TestRegisterErrors(t *testing.T) {
	r := node.NewRoot(token.SampleRate, 0)
	assert.Equal(t, node.ErrInvalidNode, r.Register(nil))

	n := node.NewConstant(1)
	assert.NoError(t, r.Register(n))
	assert.Equal(t, node.ErrAlreadyRegistered, r.Register(n))
	assert.Equal(t, 1, r.Len())

	// two wraps of one function are distinct units
	fn := func(float64) float64 { return 0 }
	assert.NoError(t, r.Register(node.NewFunc(fn)))
	assert.NoError(t, r.Register(node.NewFunc(fn)))
	assert.Equal(t, 3, r.Len())
}

func TestMidCycleUnregister(t *testing.T) {
	r := node.NewRoot(token.SampleRate, 0)
	victim := node.NewConstant(2)
	// the first unit removes the victim while the cycle is in flight
	assert.NoError(t, r.Register(node.NewFunc(func(float64) float64 {
		r.Unregister(victim)
		return 1
	})))
	assert.NoError(t, r.Register(victim))
	assert.NoError(t, r.Register(node.NewConstant(3)))

	// in-flight cycle still observes the member set it started with
	assert.Equal(t, 6.0, r.ProcessSample())
	// removal applied at the boundary
	assert.Equal(t, 4.0, r.ProcessSample())
}

func TestMidCycleRegister(t *testing.T) {
	r := node.NewRoot(token.SampleRate, 0)
	newcomer := node.NewConstant(10)
	registered := false
	assert.NoError(t, r.Register(node.NewFunc(func(float64) float64 {
		if !registered {
			registered = true
			assert.NoError(t, r.Register(newcomer))
		}
		return 1
	})))

	assert.Equal(t, 1.0, r.ProcessSample())
	assert.Equal(t, 11.0, r.ProcessSample())
}

func TestNodeFaultIsolated(t *testing.T) {
	r := node.NewRoot(token.SampleRate, 0)
	assert.NoError(t, r.Register(node.NewConstant(1)))
	assert.NoError(t, r.Register(node.NewFunc(func(float64) float64 {
		panic("node fault")
	})))
	assert.NoError(t, r.Register(node.NewConstant(3)))

	// faulting unit contributes zero, siblings keep processing
	assert.Equal(t, 4.0, r.ProcessSample())
	assert.Equal(t, 4.0, r.ProcessSample())
}

func TestProcessBlock(t *testing.T) {
	r := node.NewRoot(token.FrameRate, 1)
	assert.NoError(t, r.Register(node.NewConstant(0.5)))
	block := r.ProcessBlock(4)
	assert.Equal(t, []float64{0.5, 0.5, 0.5, 0.5}, block)
}

type markedNode struct {
	value     float64
	processed bool
	calls     int
}

func (m *markedNode) ProcessSample(float64) float64 {
	m.calls++
	return m.value
}
func (m *markedNode) Processed() bool     { return m.processed }
func (m *markedNode) MarkProcessed()      { m.processed = true }
func (m *markedNode) ResetCycle()         { m.processed = false }
func (m *markedNode) LastOutput() float64 { return m.value }

func TestCycleMarker(t *testing.T) {
	r := node.NewRoot(token.SampleRate, 0)
	shared := &markedNode{value: 2}
	assert.NoError(t, r.Register(shared))
	assert.NoError(t, r.Register(node.NewFunc(func(float64) float64 {
		// marked unit is reused, not re-evaluated, within one cycle
		if shared.Processed() {
			return shared.LastOutput()
		}
		return 0
	})))

	assert.Equal(t, 4.0, r.ProcessSample())
	assert.Equal(t, 1, shared.calls)
	// marks are reset at the boundary, next cycle evaluates fresh
	assert.Equal(t, 4.0, r.ProcessSample())
	assert.Equal(t, 2, shared.calls)
}

func TestManagerRoots(t *testing.T) {
	m := node.NewManager()
	r1 := m.Root(token.SampleRate, 0)
	r2 := m.Root(token.SampleRate, 0)
	assert.Same(t, r1, r2)
	assert.NotSame(t, r1, m.Root(token.SampleRate, 1))
	assert.NotSame(t, r1, m.Root(token.FrameRate, 0))
}

func TestManagerProcess(t *testing.T) {
	m := node.NewManager()
	assert.NoError(t, m.Register(token.SampleRate, 0, node.NewConstant(1)))
	assert.NoError(t, m.Register(token.SampleRate, 1, node.NewConstant(2)))
	assert.NoError(t, m.Register(token.FrameRate, 0, node.NewConstant(5)))

	assert.Equal(t, 1.0, m.ProcessSample(token.SampleRate, 0))
	assert.Equal(t, 2.0, m.ProcessSample(token.SampleRate, 1))
	assert.Equal(t, []float64{5, 5}, m.ProcessChannel(token.FrameRate, 0, 2))
	assert.Equal(t, []uint32{0, 1}, m.Channels(token.SampleRate))

	m.Reset(token.SampleRate)
	assert.Empty(t, m.Channels(token.SampleRate))
	assert.Equal(t, []uint32{0}, m.Channels(token.FrameRate))
	assert.Equal(t, 0.0, m.ProcessSample(token.SampleRate, 0))
}
