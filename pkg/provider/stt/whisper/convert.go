package whisper

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// pcmToFloat32 converts s16le PCM to float32 samples in [-1.0, 1.0]. A
// trailing odd byte is ignored.
func pcmToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		samples[i] = float32(sample) / 32768.0
	}
	return samples
}

// pcmToFloat32Mono down-mixes interleaved multi-channel s16le PCM to mono by
// averaging each frame.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels <= 1 {
		return pcmToFloat32(pcm)
	}
	frames := len(pcm) / (2 * channels)
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sample := int16(binary.LittleEndian.Uint16(pcm[idx : idx+2]))
			sum += float32(sample) / 32768.0
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}

// wavInfo describes the PCM payload of a WAV file.
type wavInfo struct {
	sampleRate    int
	channels      int
	bitsPerSample int
	data          []byte
}

// decodeWAV walks the RIFF chunks of a WAV file and returns its fmt
// parameters and data payload. Only uncompressed PCM is accepted.
func decodeWAV(b []byte) (wavInfo, error) {
	var info wavInfo
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return info, errors.New("not a RIFF/WAVE file")
	}

	var haveFmt bool
	off := 12
	for off+8 <= len(b) {
		id := string(b[off : off+4])
		size := int(binary.LittleEndian.Uint32(b[off+4 : off+8]))
		body := off + 8
		end := body + size
		if end > len(b) {
			end = len(b)
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return info, errors.New("fmt chunk too short")
			}
			if format := binary.LittleEndian.Uint16(b[body : body+2]); format != 1 {
				return info, fmt.Errorf("unsupported WAV encoding %d (want PCM)", format)
			}
			info.channels = int(binary.LittleEndian.Uint16(b[body+2 : body+4]))
			info.sampleRate = int(binary.LittleEndian.Uint32(b[body+4 : body+8]))
			info.bitsPerSample = int(binary.LittleEndian.Uint16(b[body+14 : body+16]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return info, errors.New("data chunk before fmt chunk")
			}
			info.data = b[body:end]
			return info, nil
		}

		// Chunks are padded to an even size.
		off = body + size + size%2
	}
	return info, errors.New("missing data chunk")
}
