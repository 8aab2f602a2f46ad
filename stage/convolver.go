package stage

import (
	dspconv "github.com/cwbudde/algo-dsp/dsp/conv"

	"github.com/entrainlab/entrain/internal/fault"
)

const convPartSize = 256

// RoomConvolver runs partitioned convolution of an interleaved stereo
// program against a stereo room IR, one streaming overlap-add engine per
// channel.
type RoomConvolver struct {
	partSize int

	leftOLA  *dspconv.StreamingOverlapAddT[float32, complex64]
	rightOLA *dspconv.StreamingOverlapAddT[float32, complex64]

	inL, inR   []float32
	outL, outR []float32
}

// NewRoomConvolver builds a convolver for the given stereo IR.
func NewRoomConvolver(irLeft, irRight []float32) (*RoomConvolver, error) {
	if len(irLeft) == 0 || len(irRight) == 0 {
		return nil, fault.Config("room convolver", "empty impulse response")
	}
	leftOLA, err := dspconv.NewStreamingOverlapAdd32(irLeft, convPartSize)
	if err != nil {
		return nil, fault.Config("room convolver", "left engine: %v", err)
	}
	rightOLA, err := dspconv.NewStreamingOverlapAdd32(irRight, convPartSize)
	if err != nil {
		return nil, fault.Config("room convolver", "right engine: %v", err)
	}
	return &RoomConvolver{
		partSize: convPartSize,
		leftOLA:  leftOLA,
		rightOLA: rightOLA,
		inL:      make([]float32, convPartSize),
		inR:      make([]float32, convPartSize),
		outL:     make([]float32, convPartSize),
		outR:     make([]float32, convPartSize),
	}, nil
}

// Process convolves the interleaved stereo input and returns the wet signal,
// same length and layout as the input. The engines carry overlap state, so
// consecutive calls continue the same reverb tail.
func (c *RoomConvolver) Process(input []float32) ([]float32, error) {
	output := make([]float32, len(input))
	frames := len(input) / 2

	for processed := 0; processed < frames; processed += c.partSize {
		blockLen := c.partSize
		if processed+blockLen > frames {
			blockLen = frames - processed
		}
		for i := 0; i < c.partSize; i++ {
			if i < blockLen {
				c.inL[i] = input[(processed+i)*2]
				c.inR[i] = input[(processed+i)*2+1]
			} else {
				c.inL[i] = 0
				c.inR[i] = 0
			}
		}
		if err := c.leftOLA.ProcessBlockTo(c.outL, c.inL); err != nil {
			return nil, fault.Config("room convolver", "left block: %v", err)
		}
		if err := c.rightOLA.ProcessBlockTo(c.outR, c.inR); err != nil {
			return nil, fault.Config("room convolver", "right block: %v", err)
		}
		for i := 0; i < blockLen; i++ {
			output[(processed+i)*2] = c.outL[i]
			output[(processed+i)*2+1] = c.outR[i]
		}
	}
	return output, nil
}

// Reset clears overlap history so a new program starts with a clean tail.
func (c *RoomConvolver) Reset() {
	c.leftOLA.Reset()
	c.rightOLA.Reset()
}
