package audio

import (
	"encoding/binary"
	"math"

	"github.com/neokaiyuan/ask-goodnotes/internal/shared"
)

// PlaybackSampleRate is the fixed rate of inbound synthesized audio.
const PlaybackSampleRate = 24000

// DecodePCM16 interprets the payload as contiguous 16-bit little-endian
// signed samples and returns them normalized to [-1, 1]. An odd-length
// payload is malformed and yields a DecodeError.
func DecodePCM16(payload []byte) ([]float32, error) {
	if len(payload) == 0 {
		return nil, &shared.DecodeError{Reason: "empty payload"}
	}
	if len(payload)%2 != 0 {
		return nil, &shared.DecodeError{Reason: "odd payload length"}
	}
	return Int16ToFloat32(PCMBytesToInt16(payload)), nil
}

// EncodePCM16 is the inverse of DecodePCM16. Samples outside [-1, 1] are
// clipped.
func EncodePCM16(samples []float32) []byte {
	ints := Float32ToInt16(samples)
	out := make([]byte, len(ints)*2)
	for i, s := range ints {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func PCMBytesToInt16(pcm []byte) []int16 {
	samples := make([]int16, len(pcm)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples
}

func Int16ToFloat32(samples []int16) []float32 {
	result := make([]float32, len(samples))
	for i, s := range samples {
		result[i] = float32(s) / 32768.0
	}
	return result
}

func Float32ToInt16(samples []float32) []int16 {
	result := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		result[i] = int16(s * 32767.0)
	}
	return result
}

func Resample(input []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate {
		return input
	}

	ratio := float64(toRate) / float64(fromRate)
	outputLen := int(math.Ceil(float64(len(input)) * ratio))
	output := make([]float32, outputLen)

	for i := 0; i < len(output); i++ {
		srcPos := float64(i) / ratio
		srcIdx := int(srcPos)
		frac := float32(srcPos - float64(srcIdx))

		if srcIdx+1 < len(input) {
			output[i] = input[srcIdx]*(1-frac) + input[srcIdx+1]*frac
		} else if srcIdx < len(input) {
			output[i] = input[srcIdx]
		}
	}
	return output
}
