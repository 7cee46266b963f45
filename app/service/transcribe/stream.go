package transcribe

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"voicedesk/app/client/speechkit"
)

// Decoder turns an encoded audio clip into raw mono PCM at speechkit.SampleRate.
type Decoder interface {
	Decode(ctx context.Context, audio []byte) (io.ReadCloser, error)
}

// FFmpeg decodes any container ffmpeg understands.
type FFmpeg struct {
	path string
}

func NewFFmpeg(path string) *FFmpeg {
	return &FFmpeg{path: path}
}

func (f *FFmpeg) Decode(ctx context.Context, audio []byte) (io.ReadCloser, error) {
	stream, err := NewFFmpegStream(ctx, f.path, bytes.NewReader(audio))
	if err != nil {
		return nil, err
	}

	if err = stream.Start(); err != nil {
		return nil, err
	}

	return stream, nil
}

// FFmpegStream is a running ffmpeg process. Reading yields PCM, Close reaps the process.
type FFmpegStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser
	mu     sync.Mutex
	closed bool
	logged sync.WaitGroup
}

func NewFFmpegStream(ctx context.Context, path string, input io.Reader) (*FFmpegStream, error) {
	args := []string{
		"-loglevel", "warning",
		"-i", "pipe:0",
		"-vn",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", strconv.Itoa(speechkit.SampleRate),
		"-f", "s16le",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdin = input
	slog.Debug("Running ffmpeg", "cmd", path+" "+strings.Join(args, " "))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	return &FFmpegStream{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
	}, nil
}

func (f *FFmpegStream) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	f.logged.Add(1)
	go f.logStderr()

	return nil
}

func (f *FFmpegStream) Read(p []byte) (int, error) {
	return f.stdout.Read(p)
}

// Close stops ffmpeg if it is still running and waits for it to exit.
func (f *FFmpegStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true

	// drain what is left so ffmpeg is not blocked on a full pipe
	_, _ = io.Copy(io.Discard, f.stdout)
	f.logged.Wait()

	if err := f.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w", err)
	}

	return nil
}

func (f *FFmpegStream) logStderr() {
	defer f.logged.Done()

	scanner := bufio.NewScanner(f.stderr)
	for scanner.Scan() {
		slog.Debug("ffmpeg", "stderr", scanner.Text())
	}
}
