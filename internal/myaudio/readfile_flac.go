package myaudio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/tphakala/flac"
)

// decodeFLAC decodes FLAC data into mono float samples and returns the source sample rate.
func decodeFLAC(data []byte) ([]float32, int, error) {
	decoder, err := flac.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("invalid FLAC stream: %w", err)
	}

	divisor, err := getAudioDivisor(decoder.BitsPerSample)
	if err != nil {
		return nil, 0, err
	}
	if decoder.NChannels < 1 {
		return nil, 0, fmt.Errorf("invalid channel count %d", decoder.NChannels)
	}

	bytesPerSample := decoder.BitsPerSample / 8
	var interleaved []float32

	for {
		frame, err := decoder.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, 0, fmt.Errorf("error decoding FLAC frame: %w", err)
		}

		for i := 0; i+bytesPerSample <= len(frame); i += bytesPerSample {
			var sample int32
			switch decoder.BitsPerSample {
			case 8:
				sample = int32(int8(frame[i]))
			case 16:
				sample = int32(int16(binary.LittleEndian.Uint16(frame[i:])))
			case 24:
				sample = int32(frame[i]) | int32(frame[i+1])<<8 | int32(int8(frame[i+2]))<<16
			case 32:
				sample = int32(binary.LittleEndian.Uint32(frame[i:]))
			}
			interleaved = append(interleaved, float32(sample)/divisor)
		}
	}

	if len(interleaved) == 0 {
		return nil, 0, ErrEmptyAudio
	}

	return downmix(interleaved, decoder.NChannels), decoder.SampleRate, nil
}
