package myaudio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/riff"
	"github.com/go-audio/wav"

	"github.com/ycry/ycry-go/internal/errors"
)

const (
	wavFormatPCM        = 0x0001
	wavFormatIEEEFloat  = 0x0003
	wavFormatExtensible = 0xFFFE
)

// Trailing 14 bytes shared by every KSDATAFORMAT_SUBTYPE GUID. The first two
// bytes of the GUID carry the plain format tag.
var wavSubformatSuffix = []byte{0x00, 0x00, 0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0xAA, 0x00, 0x38, 0x9B, 0x71}

// errWAVEncoding marks a valid WAV whose sample encoding has no native decoder.
var errWAVEncoding = errors.NewStd("WAV encoding not supported natively")

// wavFormat is the parsed fmt chunk.
type wavFormat struct {
	tag       uint16
	channels  int
	rate      int
	bits      int
	subformat uint16 // plain tag from the extensible GUID, 0 when unknown
}

// encoding resolves extensible files to their subformat tag.
func (f wavFormat) encoding() uint16 {
	if f.tag == wavFormatExtensible {
		return f.subformat
	}
	return f.tag
}

// decodeWAV decodes integer PCM and IEEE float WAV data into mono float
// samples and returns the source sample rate. Other encodings return an error
// wrapping errWAVEncoding.
func decodeWAV(data []byte) ([]float32, int, error) {
	format, payload, err := scanWAV(data)
	if err != nil {
		return nil, 0, err
	}
	if format.channels < 1 {
		return nil, 0, fmt.Errorf("invalid channel count %d", format.channels)
	}

	switch enc := format.encoding(); enc {
	case wavFormatPCM:
		return decodeIntWAV(data, format.channels)
	case wavFormatIEEEFloat:
		interleaved, err := decodeFloatSamples(payload, format.bits)
		if err != nil {
			return nil, 0, err
		}
		if len(interleaved) == 0 {
			return nil, 0, ErrEmptyAudio
		}
		return downmix(interleaved, format.channels), format.rate, nil
	default:
		return nil, 0, fmt.Errorf("%w: format tag %#04x", errWAVEncoding, enc)
	}
}

// scanWAV walks the RIFF chunks and returns the format and the raw data chunk.
func scanWAV(data []byte) (wavFormat, []byte, error) {
	var format wavFormat

	parser := riff.New(bytes.NewReader(data))
	if err := parser.ParseHeaders(); err != nil {
		return format, nil, fmt.Errorf("input is not a valid WAV audio file: %w", err)
	}
	if parser.Format != riff.WavFormatID {
		return format, nil, fmt.Errorf("input is not a valid WAV audio file")
	}

	haveFormat := false
	for {
		chunk, err := parser.NextChunk()
		if err != nil {
			return format, nil, fmt.Errorf("WAV file has no data chunk")
		}
		switch chunk.ID {
		case riff.FmtID:
			raw, _ := io.ReadAll(io.LimitReader(chunk, int64(min(chunk.Size, len(data)))))
			if len(raw) < 16 {
				return format, nil, fmt.Errorf("truncated WAV fmt chunk")
			}
			format = parseWAVFormat(raw)
			haveFormat = true
		case riff.DataFormatID:
			if !haveFormat {
				return format, nil, fmt.Errorf("WAV data chunk precedes fmt chunk")
			}
			payload, err := io.ReadAll(io.LimitReader(chunk, int64(chunk.Size)))
			if err != nil {
				return format, nil, fmt.Errorf("error reading WAV samples: %w", err)
			}
			return format, payload, nil
		default:
			chunk.Drain()
		}
	}
}

func parseWAVFormat(raw []byte) wavFormat {
	le := binary.LittleEndian
	f := wavFormat{
		tag:      le.Uint16(raw[0:2]),
		channels: int(le.Uint16(raw[2:4])),
		rate:     int(le.Uint32(raw[4:8])),
		bits:     int(le.Uint16(raw[14:16])),
	}
	if f.tag == wavFormatExtensible && len(raw) >= 40 && bytes.Equal(raw[26:40], wavSubformatSuffix) {
		f.subformat = le.Uint16(raw[24:26])
	}
	return f
}

// decodeFloatSamples converts little-endian IEEE float samples. Trailing bytes
// that do not form a whole sample are ignored.
func decodeFloatSamples(payload []byte, bits int) ([]float32, error) {
	le := binary.LittleEndian
	switch bits {
	case 32:
		out := make([]float32, len(payload)/4)
		for i := range out {
			out[i] = math.Float32frombits(le.Uint32(payload[i*4:]))
		}
		return out, nil
	case 64:
		out := make([]float32, len(payload)/8)
		for i := range out {
			out[i] = float32(math.Float64frombits(le.Uint64(payload[i*8:])))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %d-bit float", errWAVEncoding, bits)
	}
}

// decodeIntWAV decodes integer PCM through go-audio.
func decodeIntWAV(data []byte, channels int) ([]float32, int, error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("input is not a valid WAV audio file")
	}

	divisor, err := getAudioDivisor(int(decoder.BitDepth))
	if err != nil {
		return nil, 0, err
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("error reading WAV samples: %w", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, 0, ErrEmptyAudio
	}

	interleaved := make([]float32, len(buf.Data))
	if decoder.BitDepth == 8 {
		// 8-bit WAV is unsigned with a 128 midpoint
		for i, v := range buf.Data {
			interleaved[i] = float32(v-128) / divisor
		}
	} else {
		for i, v := range buf.Data {
			interleaved[i] = float32(v) / divisor
		}
	}

	return downmix(interleaved, channels), int(decoder.SampleRate), nil
}

// getAudioDivisor returns the integer to float scale for a PCM bit depth.
func getAudioDivisor(bitDepth int) (float32, error) {
	switch bitDepth {
	case 8:
		return 128.0, nil
	case 16:
		return 32768.0, nil
	case 24:
		return 8388608.0, nil
	case 32:
		return 2147483648.0, nil
	default:
		return 0, fmt.Errorf("unsupported audio file bit depth: %d", bitDepth)
	}
}
