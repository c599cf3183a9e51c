package bridge

import (
	"slices"
)

// StreamRequest is the streaming configuration a caller asks for. Toggling
// while inactive starts a session with it; toggling while active stops.
type StreamRequest struct {
	Devices []int `json:"devices,omitempty" doc:"Controller ids to stream; empty streams every known controller"`
	FeatureFlags
}

// RunConfig is the configuration committed for one session. The worker takes
// it once per session and never shares it.
type RunConfig struct {
	SampleRate float64      `json:"sample_rate"`
	Devices    []int        `json:"devices"`
	Flags      FeatureFlags `json:"flags"`
}

// controlState is the configuration callers change through toggle requests.
// Only the worker touches it: requests arrive on the command queue and are
// applied whole, so a snapshot never mixes old and new fields.
type controlState struct {
	sampleRate float64
	streaming  bool
	devices    []int
	flags      FeatureFlags
}

// applyToggle flips the streaming flag. Starting with no devices resolves to
// known, the latest registry scan.
func (c *controlState) applyToggle(req StreamRequest, known []int) {
	if c.streaming {
		c.devices = nil
	} else {
		devices := req.Devices
		if len(devices) == 0 {
			devices = known
		}
		c.devices = dedupe(devices)
	}
	c.flags = req.FeatureFlags
	c.streaming = !c.streaming
}

func (c *controlState) snapshot() RunConfig {
	return RunConfig{
		SampleRate: c.sampleRate,
		Devices:    slices.Clone(c.devices),
		Flags:      c.flags,
	}
}

// dedupe returns a copy of ids without repeats, keeping first occurrences.
func dedupe(ids []int) []int {
	out := make([]int, 0, len(ids))
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
