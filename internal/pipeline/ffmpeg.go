package pipeline

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// CommandRunner executes external commands and returns stdout bytes.
type CommandRunner func(ctx context.Context, binary string, args ...string) ([]byte, error)

// TrimJob describes one trim invocation against a source file.
type TrimJob struct {
	Source   string
	Output   string
	Start    float64
	Duration float64
}

// ConcatJob describes one concat invocation driven by a manifest file.
type ConcatJob struct {
	Manifest string
	Output   string
}

// Transcoder abstracts the external transcoding engine. Implementations
// report completion through done, which they must call at least once; the
// orchestrator tolerates duplicate or racing invocations.
type Transcoder interface {
	Trim(ctx context.Context, job TrimJob, done func(error))
	Concat(ctx context.Context, job ConcatJob, done func(error))
}

// FFmpeg shells out to the ffmpeg CLI tool.
type FFmpeg struct {
	Binary  string
	Run     CommandRunner
	Timeout time.Duration
}

// NewFFmpeg constructs a Transcoder that shells out to ffmpeg. The timeout
// bounds each invocation so a hung process cannot stall a request forever.
func NewFFmpeg(binary string, timeout time.Duration) *FFmpeg {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &FFmpeg{
		Binary:  binary,
		Run:     defaultCommandRunner,
		Timeout: timeout,
	}
}

// Trim re-encodes nothing: it seeks to the start offset and copies the
// stream for the requested duration into the output file.
func (f *FFmpeg) Trim(ctx context.Context, job TrimJob, done func(error)) {
	args := []string{
		"-ss", formatSeconds(job.Start),
		"-i", job.Source,
		"-t", formatSeconds(job.Duration),
		"-c", "copy",
		"-y", job.Output,
	}
	done(f.run(ctx, args))
}

// Concat merges the files listed in the manifest, in manifest order, into
// the output file.
func (f *FFmpeg) Concat(ctx context.Context, job ConcatJob, done func(error)) {
	args := []string{
		"-safe", "0",
		"-f", "concat",
		"-i", job.Manifest,
		"-c", "copy",
		"-y", job.Output,
	}
	done(f.run(ctx, args))
}

func (f *FFmpeg) run(ctx context.Context, args []string) error {
	run := f.Run
	if run == nil {
		run = defaultCommandRunner
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := run(execCtx, f.Binary, args...); err != nil {
		return fmt.Errorf("ffmpeg: %w", err)
	}
	return nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func defaultCommandRunner(ctx context.Context, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	return cmd.Output()
}

var _ Transcoder = (*FFmpeg)(nil)
