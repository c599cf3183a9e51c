package outlet

import (
	"fmt"
	"strings"
)

// IrregularRate declares that samples arrive whenever the producer has them.
const IrregularRate = 0.0

// FormatFloat32 is the only channel format the bridge declares.
const FormatFloat32 = "float32"

// StreamInfo describes a declared stream.
type StreamInfo struct {
	Name          string      `json:"name"`
	Type          string      `json:"type"`
	ChannelCount  int         `json:"channel_count"`
	NominalRate   float64     `json:"nominal_srate"`
	ChannelFormat string      `json:"channel_format"`
	SourceID      string      `json:"source_id"`
	Desc          Description `json:"desc"`
	CreatedAt     float64     `json:"created_at,omitempty"`
}

// Description is the static metadata attached to a stream.
type Description struct {
	Acquisition Acquisition   `json:"acquisition"`
	Channels    []ChannelInfo `json:"channels"`
}

// Acquisition identifies the producing hardware.
type Acquisition struct {
	Manufacturer string `json:"manufacturer"`
	Model        string `json:"model"`
}

// ChannelInfo describes one channel of a stream.
type ChannelInfo struct {
	Label string `json:"label"`
	Type  string `json:"type"`
	Unit  string `json:"unit"`
}

// Irregular reports whether the stream has no fixed sampling clock.
func (i StreamInfo) Irregular() bool {
	return i.NominalRate <= IrregularRate
}

// Validate checks the fields every transport relies on.
func (i StreamInfo) Validate() error {
	switch {
	case i.Name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidInfo)
	case i.SourceID == "":
		return fmt.Errorf("%w: empty source id", ErrInvalidInfo)
	case i.ChannelCount <= 0:
		return fmt.Errorf("%w: channel count %d", ErrInvalidInfo, i.ChannelCount)
	case i.NominalRate < 0:
		return fmt.Errorf("%w: negative nominal rate", ErrInvalidInfo)
	case len(i.Desc.Channels) != 0 && len(i.Desc.Channels) != i.ChannelCount:
		return fmt.Errorf("%w: %d channel descriptions for %d channels",
			ErrInvalidInfo, len(i.Desc.Channels), i.ChannelCount)
	case i.ChannelFormat != "" && i.ChannelFormat != FormatFloat32:
		return fmt.Errorf("%w: unsupported channel format %q", ErrInvalidInfo, i.ChannelFormat)
	}
	return nil
}

// Subject prefix for outlet traffic.
const SubjectPrefix = "lsl.streams"

// SubjectInfo returns the subject serving the stream description.
func SubjectInfo(sourceID string) string {
	return fmt.Sprintf("%s.%s.info", SubjectPrefix, subjectToken(sourceID))
}

// SubjectData returns the subject samples are published on.
func SubjectData(sourceID string) string {
	return fmt.Sprintf("%s.%s.data", SubjectPrefix, subjectToken(sourceID))
}

// subjectToken makes a source id safe to use as one subject token.
func subjectToken(sourceID string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, sourceID)
}
