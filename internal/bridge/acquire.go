package bridge

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/labstreaminglayer/App-PSMove/internal/psmove"
)

// AcquirePolicy decides when WaitForControllers may advance.
type AcquirePolicy string

// Acquire policies.
const (
	// PolicyAny advances on the first confirmed subscription. Requests still
	// pending keep being observed while data flows.
	PolicyAny AcquirePolicy = "any"
	// PolicyAll waits for every request to complete and streams the devices
	// that were confirmed.
	PolicyAll AcquirePolicy = "all"
)

// ParseAcquirePolicy parses a policy name. Empty selects PolicyAny.
func ParseAcquirePolicy(s string) (AcquirePolicy, error) {
	switch AcquirePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyAny:
		return PolicyAny, nil
	case PolicyAll:
		return PolicyAll, nil
	default:
		return "", fmt.Errorf("unknown acquire policy %q (want any or all)", s)
	}
}

// subscription is the per-device state of one session. lastSeq starts below
// any valid sequence number and never decreases.
type subscription struct {
	deviceID int
	lastSeq  int
	acquired bool
	failed   bool
	result   psmove.Result
	done     chan psmove.Result
}

func (s *subscription) pending() bool {
	return !s.acquired && !s.failed
}

// acquire issues one asynchronous subscribe per device. Every request gets its
// own completion channel; the service callback never blocks.
func acquire(client psmove.Client, devices []int, flags psmove.StreamFlags) []*subscription {
	subs := make([]*subscription, 0, len(devices))
	for _, id := range devices {
		sub := &subscription{
			deviceID: id,
			lastSeq:  -1,
			done:     make(chan psmove.Result, 1),
		}
		subs = append(subs, sub)
		client.Subscribe(id, flags, func(_ int, result psmove.Result) {
			select {
			case sub.done <- result:
			default:
			}
		})
	}
	return subs
}

// collect records every completion that has arrived, without blocking.
func collect(subs []*subscription, logger *slog.Logger) {
	for _, sub := range subs {
		if !sub.pending() {
			continue
		}
		select {
		case result := <-sub.done:
			sub.result = result
			if result == psmove.ResultSuccess {
				sub.acquired = true
				logger.Info("Controller subscribed", "device", sub.deviceID)
			} else {
				sub.failed = true
				logger.Warn("Controller subscription failed", "device", sub.deviceID, "result", result)
			}
		default:
		}
	}
}

type acquireState int

const (
	acquirePending acquireState = iota
	acquireReady
	acquireFailed
)

// evaluate applies policy to the current completions.
func evaluate(policy AcquirePolicy, subs []*subscription) acquireState {
	var acquired, pending int
	for _, sub := range subs {
		switch {
		case sub.acquired:
			acquired++
		case sub.pending():
			pending++
		}
	}

	switch {
	case policy != PolicyAll && acquired > 0:
		return acquireReady
	case pending > 0:
		return acquirePending
	case acquired > 0:
		return acquireReady
	default:
		return acquireFailed
	}
}

func acquiredIDs(subs []*subscription) []int {
	var ids []int
	for _, sub := range subs {
		if sub.acquired {
			ids = append(ids, sub.deviceID)
		}
	}
	return ids
}
