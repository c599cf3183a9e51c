// Package metrics provides Prometheus metrics for the controller bridge.
package metrics

import (
	"sort"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	samplesPushed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "psmove_bridge",
		Name:      "samples_pushed_total",
		Help:      "Samples pushed to outlets",
	}, []string{"device", "category"})

	pushErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "psmove_bridge",
		Name:      "push_errors_total",
		Help:      "Samples the outlet rejected",
	}, []string{"device", "category"})

	dataGaps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "psmove_bridge",
		Name:      "data_gaps_total",
		Help:      "Sequence number jumps larger than one",
	}, []string{"device"})

	outletsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "psmove_bridge",
		Name:      "outlets_active",
		Help:      "Outlets currently declared",
	})

	phase = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "psmove_bridge",
		Name:      "phase",
		Help:      "Current state machine phase index",
	})

	devicesKnown = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "psmove_bridge",
		Name:      "devices_known",
		Help:      "Controllers in the last device scan",
	})

	// Local counters for the SSE exporter, which needs per-interval rates.
	pushCache   = make(map[DeviceCategory]uint64)
	pushCacheMu sync.RWMutex
)

// DeviceCategory keys per-device push counts.
type DeviceCategory struct {
	DeviceID int
	Category string
}

// RecordPush counts one sample pushed to a device's outlet.
func RecordPush(deviceID int, category string) {
	samplesPushed.WithLabelValues(strconv.Itoa(deviceID), category).Inc()

	pushCacheMu.Lock()
	pushCache[DeviceCategory{DeviceID: deviceID, Category: category}]++
	pushCacheMu.Unlock()
}

// RecordPushError counts one rejected push.
func RecordPushError(deviceID int, category string) {
	pushErrors.WithLabelValues(strconv.Itoa(deviceID), category).Inc()
}

// RecordDataGap counts one sequence gap for a device.
func RecordDataGap(deviceID int) {
	dataGaps.WithLabelValues(strconv.Itoa(deviceID)).Inc()
}

// SetOutletsActive sets the number of declared outlets.
func SetOutletsActive(n int) {
	outletsActive.Set(float64(n))
}

// SetPhase records the state machine phase index.
func SetPhase(index int) {
	phase.Set(float64(index))
}

// SetDevicesKnown records the size of the last device scan.
func SetDevicesKnown(n int) {
	devicesKnown.Set(float64(n))
}

// PushCount returns the total pushes recorded for one device and category.
func PushCount(deviceID int, category string) uint64 {
	pushCacheMu.RLock()
	defer pushCacheMu.RUnlock()
	return pushCache[DeviceCategory{DeviceID: deviceID, Category: category}]
}

// PushCounts returns a copy of all push counters, ordered by device then category.
func PushCounts() ([]DeviceCategory, map[DeviceCategory]uint64) {
	pushCacheMu.RLock()
	defer pushCacheMu.RUnlock()
	counts := make(map[DeviceCategory]uint64, len(pushCache))
	keys := make([]DeviceCategory, 0, len(pushCache))
	for k, v := range pushCache {
		counts[k] = v
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].DeviceID != keys[j].DeviceID {
			return keys[i].DeviceID < keys[j].DeviceID
		}
		return keys[i].Category < keys[j].Category
	})
	return keys, counts
}

// DeleteDeviceMetrics drops the per-device series once a device leaves a session.
func DeleteDeviceMetrics(deviceID int) {
	device := strconv.Itoa(deviceID)
	samplesPushed.DeletePartialMatch(prometheus.Labels{"device": device})
	pushErrors.DeletePartialMatch(prometheus.Labels{"device": device})
	dataGaps.DeleteLabelValues(device)

	pushCacheMu.Lock()
	for k := range pushCache {
		if k.DeviceID == deviceID {
			delete(pushCache, k)
		}
	}
	pushCacheMu.Unlock()
}
