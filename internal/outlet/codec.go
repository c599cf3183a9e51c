package outlet

import (
	"github.com/fxamacker/cbor/v2"
)

// Sample is the wire form of one pushed sample.
type Sample struct {
	Timestamp float64   `cbor:"ts" json:"timestamp"`
	Values    []float32 `cbor:"v" json:"values"`
}

// encMode uses Core Deterministic Encoding so identical samples always
// produce identical bytes. Float32 values stay 32-bit on the wire.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("outlet: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("outlet: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodeSample serializes a sample for the data subject.
func EncodeSample(s Sample) ([]byte, error) {
	return encMode.Marshal(s)
}

// DecodeSample parses a payload received on a data subject.
func DecodeSample(data []byte) (Sample, error) {
	var s Sample
	err := decMode.Unmarshal(data, &s)
	return s, err
}
