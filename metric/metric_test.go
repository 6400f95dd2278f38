package metric_test

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pipelined/pulse/metric"
)

func TestMeter(t *testing.T) {
	tests := []struct {
		component string
		rate      int
		units     int64
		cycles    int
		duration  time.Duration
	}{
		{
			component: "audio-domain",
			rate:      48000,
			units:     480,
			cycles:    100,
			duration:  time.Second,
		},
		{
			component: "graphics-domain",
			rate:      60,
			units:     6,
			cycles:    10,
			duration:  time.Second,
		},
	}

	for _, test := range tests {
		measure := metric.Meter(test.component, test.rate)()
		for i := 0; i < test.cycles; i++ {
			measure(test.units)
		}
		m := metric.Get(test.component)
		cycles, err := strconv.Atoi(m[metric.CycleCounter])
		assert.NoError(t, err)
		assert.Equal(t, test.cycles, cycles)
		units, err := strconv.ParseInt(m[metric.UnitCounter], 10, 64)
		assert.NoError(t, err)
		assert.Equal(t, test.units*int64(test.cycles), units)
		assert.Equal(t, test.duration.String(), m[metric.DurationCounter])
	}

	all := metric.GetAll()
	assert.Contains(t, all, "audio-domain")
	assert.Contains(t, all, "graphics-domain")
}
