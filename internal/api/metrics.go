package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"github.com/labstreaminglayer/App-PSMove/internal/metrics"
)

// DeviceCounter is the forwarded sample total of one device and category.
type DeviceCounter struct {
	DeviceID string `json:"device_id" example:"0" doc:"Controller id"`
	Category string `json:"category" example:"IMU" doc:"Sensor category"`
	Samples  uint64 `json:"samples" example:"1200" doc:"Samples pushed since start"`
}

// DeviceCountersResponse lists the push counters.
type DeviceCountersResponse struct {
	Body struct {
		Counters []DeviceCounter `json:"counters" doc:"Per device and category totals"`
	}
}

// registerMetricsRoutes registers the JSON view of the push counters
func (s *Server) registerMetricsRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-device-counters",
		Method:      http.MethodGet,
		Path:        "/api/metrics/devices",
		Summary:     "Sample Counters",
		Description: "Samples pushed per controller and category. The same data is exported to Prometheus on /metrics.",
		Tags:        []string{"metrics"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*DeviceCountersResponse, error) {
		keys, counts := metrics.PushCounts()
		resp := &DeviceCountersResponse{}
		resp.Body.Counters = make([]DeviceCounter, 0, len(keys))
		for _, key := range keys {
			resp.Body.Counters = append(resp.Body.Counters, DeviceCounter{
				DeviceID: strconv.Itoa(key.DeviceID),
				Category: key.Category,
				Samples:  counts[key],
			})
		}
		return resp, nil
	})
}
