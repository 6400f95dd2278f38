// Package metric measures processing domains. Counters are published
// with expvar and capture cycles, processing units and latency per
// measured component.
package metric

import (
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const componentsLabel = "pulse.components"

const (
	// CycleCounter measures number of processed cycles.
	CycleCounter = "Cycles"
	// UnitCounter measures number of processed units.
	UnitCounter = "Units"
	// LatencyCounter measures latency between processing calls.
	LatencyCounter = "Latency"
	// DurationCounter counts the signal duration processed so far.
	DurationCounter = "Duration"
	// ComponentCounter counts number of measured components.
	ComponentCounter = "Components"
)

var (
	components = metrics{
		m: make(map[string]metric),
	}

	counters = []string{
		CycleCounter,
		UnitCounter,
		LatencyCounter,
		DurationCounter,
		ComponentCounter,
	}
)

// Get metrics values for provided component name.
func Get(component string) map[string]string {
	return getCounters(component)
}

// GetAll returns counters for all measured components.
func GetAll() map[string]map[string]string {
	m := make(map[string]map[string]string)
	components.Lock()
	defer components.Unlock()
	for component := range components.m {
		m[component] = getCounters(component)
	}
	return m
}

func getCounters(component string) map[string]string {
	m := make(map[string]string)
	for _, counter := range counters {
		v := expvar.Get(key(component, counter))
		if v != nil {
			m[counter] = v.String()
		}
	}
	return m
}

// ResetFunc returns new Measure closure. This closure is needed to
// postpone metrics capture until the component is actually running.
type ResetFunc func() MeasureFunc

// MeasureFunc captures metrics when a cycle is processed.
type MeasureFunc func(units int64)

// Meter creates new meter closure to capture component counters. The
// rate is used to convert processed units into signal duration.
func Meter(component string, rate int) ResetFunc {
	metric := components.get(component)
	metric.components.Add(1)
	return func() MeasureFunc {
		calledAt := time.Now()
		var (
			unitCount    int64
			unitDuration time.Duration
		)
		return func(units int64) {
			metric.latency.set(time.Since(calledAt))
			metric.cycles.Add(1)
			metric.units.Add(units)
			// recalculate duration only when unit count has changed
			if unitCount != units {
				unitCount = units
				unitDuration = durationOf(rate, units)
			}
			metric.duration.add(unitDuration)
			calledAt = time.Now()
		}
	}
}

// durationOf returns the time represented by n units at provided rate.
func durationOf(rate int, n int64) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(float64(n) / float64(rate) * float64(time.Second))
}

type metrics struct {
	sync.Mutex
	m map[string]metric
}

func (m *metrics) get(component string) metric {
	m.Lock()
	defer m.Unlock()
	if metric, ok := m.m[component]; ok {
		// return existing metric if available
		return metric
	}
	// create new metric
	metric := newMetric(component)
	m.m[component] = metric
	return metric
}

type metric struct {
	key        string
	components *expvar.Int
	cycles     *expvar.Int
	units      *expvar.Int
	latency    *duration
	duration   *duration
}

func newMetric(component string) metric {
	m := metric{
		key:        component,
		components: expvar.NewInt(key(component, ComponentCounter)),
		cycles:     expvar.NewInt(key(component, CycleCounter)),
		units:      expvar.NewInt(key(component, UnitCounter)),
		latency:    &duration{},
		duration:   &duration{},
	}
	expvar.Publish(key(component, LatencyCounter), m.latency)
	expvar.Publish(key(component, DurationCounter), m.duration)
	return m
}

func key(component, counter string) string {
	return fmt.Sprintf("%s.%s.%s", componentsLabel, component, counter)
}

// duration allows to format time.Duration metric values.
type duration struct {
	d int64
}

func (v *duration) String() string {
	return fmt.Sprintf("%v", time.Duration(atomic.LoadInt64(&v.d)))
}

func (v *duration) add(delta time.Duration) {
	atomic.AddInt64(&v.d, int64(delta))
}

func (v *duration) set(value time.Duration) {
	atomic.StoreInt64(&v.d, int64(value))
}
