// Package ffmpeg wraps the ffmpeg and ffprobe binaries for the media
// operations of the video pipeline. All invocations are synchronous child
// processes; errors carry the captured stderr tail.
package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// maxStderrLines bounds the stderr tail kept for error reporting.
const maxStderrLines = 40

// ToolchainError is returned when an ffmpeg or ffprobe invocation fails.
type ToolchainError struct {
	Op     string
	Stderr string
	Err    error
}

func (e *ToolchainError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("ffmpeg %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("ffmpeg %s: %v: %s", e.Op, e.Err, e.Stderr)
}

func (e *ToolchainError) Unwrap() error {
	return e.Err
}

// CommandBuilder builds ffmpeg invocations with a fluent API.
type CommandBuilder struct {
	binary     string
	globalArgs []string
	inputArgs  []string
	inputs     []string
	outputArgs []string
	output     string
	logLevel   string
}

// NewCommandBuilder creates a builder for the given ffmpeg binary.
func NewCommandBuilder(binary string) *CommandBuilder {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &CommandBuilder{binary: binary, logLevel: "error"}
}

// LogLevel sets the ffmpeg log level.
func (b *CommandBuilder) LogLevel(level string) *CommandBuilder {
	b.logLevel = level
	return b
}

// InputArgs appends arguments that apply to the next input.
func (b *CommandBuilder) InputArgs(args ...string) *CommandBuilder {
	b.inputArgs = append(b.inputArgs, args...)
	return b
}

// Input adds an input file, consuming any pending input args.
func (b *CommandBuilder) Input(input string) *CommandBuilder {
	b.inputs = append(b.inputs, input)
	return b
}

// FilterComplex sets a filter graph.
func (b *CommandBuilder) FilterComplex(filter string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-filter_complex", filter)
	return b
}

// VideoFilter sets a simple video filter chain.
func (b *CommandBuilder) VideoFilter(filter string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-vf", filter)
	return b
}

// AudioFilter sets a simple audio filter chain.
func (b *CommandBuilder) AudioFilter(filter string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-af", filter)
	return b
}

// VideoCodec sets the output video codec.
func (b *CommandBuilder) VideoCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:v", codec)
	return b
}

// AudioCodec sets the output audio codec.
func (b *CommandBuilder) AudioCodec(codec string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-c:a", codec)
	return b
}

// AudioBitrate sets the output audio bitrate.
func (b *CommandBuilder) AudioBitrate(bitrate string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-b:a", bitrate)
	return b
}

// Preset sets the encoder preset.
func (b *CommandBuilder) Preset(preset string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-preset", preset)
	return b
}

// CRF sets the constant rate factor.
func (b *CommandBuilder) CRF(crf int) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, "-crf", fmt.Sprintf("%d", crf))
	return b
}

// OutputArgs appends raw output arguments.
func (b *CommandBuilder) OutputArgs(args ...string) *CommandBuilder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// Output sets the output file.
func (b *CommandBuilder) Output(output string) *CommandBuilder {
	b.output = output
	return b
}

// Args assembles the full argument list.
func (b *CommandBuilder) Args() []string {
	args := []string{"-hide_banner", "-loglevel", b.logLevel, "-y"}
	args = append(args, b.globalArgs...)
	for _, in := range b.inputs {
		args = append(args, b.inputArgs...)
		args = append(args, "-i", in)
	}
	args = append(args, b.outputArgs...)
	if b.output != "" {
		args = append(args, b.output)
	}
	return args
}

// Run executes the command, blocking until the child exits. On failure
// the returned ToolchainError carries the last stderr lines.
func (b *CommandBuilder) Run(ctx context.Context, op string) error {
	cmd := exec.CommandContext(ctx, b.binary, b.Args()...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return &ToolchainError{Op: op, Err: fmt.Errorf("attaching stderr: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return &ToolchainError{Op: op, Err: fmt.Errorf("starting ffmpeg: %w", err)}
	}

	// Keep only the tail; ffmpeg puts the useful diagnostics last.
	var lines []string
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if len(lines) > maxStderrLines {
			lines = lines[1:]
		}
	}

	if err := cmd.Wait(); err != nil {
		return &ToolchainError{Op: op, Stderr: strings.Join(lines, "\n"), Err: err}
	}
	return nil
}
