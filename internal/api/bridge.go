package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/labstreaminglayer/App-PSMove/internal/api/models"
	"github.com/labstreaminglayer/App-PSMove/internal/bridge"
	"github.com/labstreaminglayer/App-PSMove/internal/psmove"
)

// registerBridgeRoutes registers the link, streaming and device endpoints
func (s *Server) registerBridgeRoutes() {
	// Start the worker, or disconnect it when already running
	huma.Register(s.api, huma.Operation{
		OperationID: "toggle-link",
		Method:      http.MethodPost,
		Path:        "/api/link",
		Summary:     "Connect or Disconnect",
		Description: "Start the bridge worker and link to the controller service. When the worker is already running the request disconnects it instead.",
		Tags:        []string{"bridge"},
		Errors:      []int{400, 401, 500},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.LinkRequest) (*models.LinkResponse, error) {
		rate := s.options.SampleRate
		if input.Body.SampleRate != nil {
			rate = *input.Body.SampleRate
		}

		wasRunning := s.bridge.Status().Running
		if err := s.bridge.Start(rate); err != nil {
			return nil, huma.Error400BadRequest(err.Error(), err)
		}

		action := "started"
		if wasRunning {
			action = "stopping"
		}
		s.logger.Info("Link requested", "action", action, "sample_rate", rate)
		return &models.LinkResponse{
			Body: models.LinkData{Action: action, Running: !wasRunning},
		}, nil
	})

	// Stop the worker and wait for shutdown
	huma.Register(s.api, huma.Operation{
		OperationID: "stop-link",
		Method:      http.MethodDelete,
		Path:        "/api/link",
		Summary:     "Disconnect",
		Description: "Stop the bridge worker. Returns once every outlet and subscription has been released.",
		Tags:        []string{"bridge"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.LinkResponse, error) {
		s.bridge.Stop()
		return &models.LinkResponse{
			Body: models.LinkData{Action: "stopped", Running: false},
		}, nil
	})

	// Toggle streaming
	huma.Register(s.api, huma.Operation{
		OperationID: "toggle-stream",
		Method:      http.MethodPost,
		Path:        "/api/streams/toggle",
		Summary:     "Toggle Streaming",
		Description: "Start streaming the selected controllers and sensor categories when idle, or stop the active session. The outcome is reported on the event stream.",
		Tags:        []string{"bridge"},
		Errors:      []int{400, 401, 409, 503},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.ToggleRequest) (*models.ToggleResponse, error) {
		req, err := toStreamRequest(input.Body)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error(), err)
		}
		if err := s.bridge.ToggleStream(req); err != nil {
			return nil, mapBridgeError(err)
		}
		return &models.ToggleResponse{
			Body: models.ToggleData{Queued: true, Devices: req.Devices},
		}, nil
	})

	// List controllers
	huma.Register(s.api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/api/devices",
		Summary:     "List Controllers",
		Description: "Controllers found by the most recent scan, in service order",
		Tags:        []string{"bridge"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.DeviceListResponse, error) {
		devices := s.bridge.Devices()
		if devices == nil {
			devices = []psmove.DeviceDescriptor{}
		}
		return &models.DeviceListResponse{
			Body: models.DeviceListData{Devices: devices, Count: len(devices)},
		}, nil
	})

	// Worker status
	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Bridge Status",
		Description: "Current phase, link state and active session",
		Tags:        []string{"bridge"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, _ *struct{}) (*models.StatusResponse, error) {
		return &models.StatusResponse{Body: s.bridge.Status()}, nil
	})
}

// toStreamRequest converts the API body, accepting "id" and "id:serial" references.
func toStreamRequest(body models.ToggleRequestData) (bridge.StreamRequest, error) {
	req := bridge.StreamRequest{
		FeatureFlags: bridge.FeatureFlags{
			IMU:     body.IMU,
			IMURaw:  body.IMURaw,
			Pose:    body.Pose,
			PoseRaw: body.PoseRaw,
		},
	}
	ids, err := psmove.ParseDeviceRefs(body.Devices)
	if err != nil {
		return bridge.StreamRequest{}, err
	}
	req.Devices = ids
	return req, nil
}

// mapBridgeError maps bridge errors to HTTP errors
func mapBridgeError(err error) error {
	switch {
	case errors.Is(err, bridge.ErrNotRunning):
		return huma.Error409Conflict("bridge is not running; POST /api/link first", err)
	case errors.Is(err, bridge.ErrControlQueueFull):
		return huma.Error503ServiceUnavailable("too many pending requests", err)
	default:
		return huma.Error500InternalServerError("internal server error", err)
	}
}
