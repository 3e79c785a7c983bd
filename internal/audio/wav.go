// Package audio buffers candidate audio fragments and merges them for transcription.
package audio

import (
	"encoding/binary"
	"errors"
)

// HeaderSize is the canonical RIFF/WAVE header length.
const HeaderSize = 44

const (
	riffSizeOffset = 4
	dataSizeOffset = 40
)

// ErrShortHeader is returned when the first fragment cannot carry a WAV header.
var ErrShortHeader = errors.New("first audio fragment is shorter than a wav header")

// MergeWAV joins WAV fragments recorded with the same format into one file.
//
// The first fragment's 44-byte header is reused as-is and every fragment
// contributes the bytes after its own header. Fragments whose sample rate,
// channel count or bit depth differ from the first are not detected and yield
// a corrupt file.
func MergeWAV(fragments [][]byte) ([]byte, error) {
	if len(fragments) == 0 {
		return nil, ErrNoAudioData
	}
	if len(fragments[0]) < HeaderSize {
		return nil, ErrShortHeader
	}
	payload := 0
	for _, f := range fragments {
		payload += payloadLen(f)
	}
	out := make([]byte, HeaderSize, HeaderSize+payload)
	copy(out, fragments[0][:HeaderSize])
	for _, f := range fragments {
		if len(f) > HeaderSize {
			out = append(out, f[HeaderSize:]...)
		}
	}
	binary.LittleEndian.PutUint32(out[riffSizeOffset:], uint32(len(out)-8))
	binary.LittleEndian.PutUint32(out[dataSizeOffset:], uint32(payload))
	return out, nil
}

func payloadLen(f []byte) int {
	if len(f) <= HeaderSize {
		return 0
	}
	return len(f) - HeaderSize
}

// EncodeWAV wraps 16-bit little-endian PCM in a canonical WAV header.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	const bitsPerSample = 16
	blockAlign := channels * bitsPerSample / 8
	out := make([]byte, HeaderSize, HeaderSize+len(pcm))
	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(HeaderSize-8+len(pcm)))
	copy(out[8:], "WAVE")
	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 1)
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], bitsPerSample)
	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], uint32(len(pcm)))
	return append(out, pcm...)
}
