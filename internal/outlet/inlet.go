package outlet

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Received is a decoded sample together with the stream it came from.
type Received struct {
	Source string
	Sample
}

// ResolveStream asks the producer of sourceID for its stream description.
func ResolveStream(conn *nats.Conn, sourceID string, timeout time.Duration) (StreamInfo, error) {
	msg, err := conn.Request(SubjectInfo(sourceID), nil, timeout)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) || errors.Is(err, nats.ErrTimeout) {
			return StreamInfo{}, fmt.Errorf("%w: %s", ErrStreamNotFound, sourceID)
		}
		return StreamInfo{}, err
	}
	var info StreamInfo
	if err := json.Unmarshal(msg.Data, &info); err != nil {
		return StreamInfo{}, fmt.Errorf("failed to parse stream info: %w", err)
	}
	return info, nil
}

// Inlet receives samples from one stream, or from all streams when opened
// with an empty source id.
type Inlet struct {
	sub *nats.Subscription
}

// OpenInlet subscribes to sourceID and calls handler for every decoded
// sample. Undecodable payloads are passed to onError when it is not nil.
func OpenInlet(conn *nats.Conn, sourceID string, handler func(Received), onError func(error)) (*Inlet, error) {
	subject := SubjectData(sourceID)
	if sourceID == "" {
		subject = SubjectPrefix + ".*.data"
	}

	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		s, decodeErr := DecodeSample(msg.Data)
		if decodeErr != nil {
			if onError != nil {
				onError(fmt.Errorf("%s: %w", msg.Subject, decodeErr))
			}
			return
		}
		handler(Received{Source: sourceToken(msg.Subject), Sample: s})
	})
	if err != nil {
		return nil, err
	}
	return &Inlet{sub: sub}, nil
}

// Close stops receiving.
func (in *Inlet) Close() error {
	return in.sub.Unsubscribe()
}

// sourceToken extracts the source token from lsl.streams.<source>.data.
func sourceToken(subject string) string {
	rest := strings.TrimPrefix(subject, SubjectPrefix+".")
	token, _, _ := strings.Cut(rest, ".")
	return token
}
