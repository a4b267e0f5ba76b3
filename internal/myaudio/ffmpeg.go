package myaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// decodeWithFFmpeg converts any container ffmpeg understands into mono float32
// samples at the target rate. When path is empty the data is piped on stdin.
func decodeWithFFmpeg(ctx context.Context, ffmpegPath, path string, data []byte, rate int) ([]float32, error) {
	bin, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("unsupported audio container and ffmpeg is not available: %w", err)
	}

	input := "pipe:0"
	if path != "" {
		input = path
	}

	args := []string{"-hide_banner", "-loglevel", "error"}
	if path != "" {
		args = append(args, "-nostdin")
	}
	args = append(args,
		"-i", input,
		"-vn", "-ac", "1", "-ar", strconv.Itoa(rate),
		"-f", "f32le", "pipe:1",
	)

	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if path == "" {
		cmd.Stdin = bytes.NewReader(data)
	}

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return nil, fmt.Errorf("ffmpeg could not decode input: %w: %s", err, msg)
	}

	raw := stdout.Bytes()
	samples := make([]float32, len(raw)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	if len(samples) == 0 {
		return nil, ErrEmptyAudio
	}
	return samples, nil
}
