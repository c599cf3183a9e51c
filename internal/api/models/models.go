package models

import (
	"time"

	"github.com/labstreaminglayer/App-PSMove/internal/bridge"
	"github.com/labstreaminglayer/App-PSMove/internal/psmove"
)

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"Bridge worker running" doc:"Status message"`
	Phase   string `json:"phase" example:"transfer_data" doc:"Bridge worker phase"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Name      string `json:"name" example:"psmove-bridge" doc:"Application name"`
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go compiler version"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Target platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Link models
type LinkRequestData struct {
	SampleRate *float64 `json:"sample_rate,omitempty" minimum:"0" example:"0" doc:"Nominal outlet rate in Hz; 0 declares irregular-rate outlets. Defaults to the configured rate."`
}

type LinkRequest struct {
	Body LinkRequestData
}

type LinkData struct {
	Action  string `json:"action" enum:"started,stopping,stopped" example:"started" doc:"What the request did"`
	Running bool   `json:"running" example:"true" doc:"Whether a worker is running after the request"`
}

type LinkResponse struct {
	Body LinkData
}

// Toggle models
type ToggleRequestData struct {
	Devices []string `json:"devices,omitempty" example:"[\"0:00:06:f7:c9:a1:fb\"]" doc:"Controllers to stream as id or id:serial; empty streams every known controller"`
	IMU     bool     `json:"imu,omitempty" doc:"Stream calibrated IMU channels"`
	IMURaw  bool     `json:"imu_raw,omitempty" doc:"Stream raw IMU channels"`
	Pose    bool     `json:"pose,omitempty" doc:"Stream fused pose channels"`
	PoseRaw bool     `json:"pose_raw,omitempty" doc:"Stream raw optical position channels"`
}

type ToggleRequest struct {
	Body ToggleRequestData
}

type ToggleData struct {
	Queued  bool  `json:"queued" example:"true" doc:"Whether the request was queued for the worker"`
	Devices []int `json:"devices,omitempty" doc:"Parsed controller ids"`
}

type ToggleResponse struct {
	Body ToggleData
}

// Device models
type DeviceListData struct {
	Devices []psmove.DeviceDescriptor `json:"devices" doc:"Controllers from the most recent scan"`
	Count   int                       `json:"count" example:"2" doc:"Number of controllers"`
}

type DeviceListResponse struct {
	Body DeviceListData
}

// Status models
type StatusResponse struct {
	Body bridge.Status
}

// Log models
type LogEntry struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Buffer sequence number"`
	Timestamp  time.Time      `json:"timestamp" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"bridge" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

type LogListData struct {
	Entries []LogEntry `json:"entries" doc:"Buffered log entries, oldest first"`
	Count   int        `json:"count" example:"100" doc:"Number of entries returned"`
}

type LogListResponse struct {
	Body LogListData
}
