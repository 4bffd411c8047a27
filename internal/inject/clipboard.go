package inject

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// Clipboard wraps the configured copy/paste commands (wl-copy/wl-paste by
// default).
type Clipboard struct {
	copyArgv []string
	readArgv []string
}

func NewClipboard(copyArgv []string, readArgv []string) *Clipboard {
	return &Clipboard{copyArgv: copyArgv, readArgv: readArgv}
}

// Set writes text to the clipboard.
func (c *Clipboard) Set(ctx context.Context, text string) error {
	if err := runCommandWithInput(ctx, c.copyArgv, text); err != nil {
		return fmt.Errorf("set clipboard: %w", err)
	}
	return nil
}

// Get reads the current clipboard contents.
func (c *Clipboard) Get(ctx context.Context) (string, error) {
	out, err := runCommandCapture(ctx, c.readArgv)
	if err != nil {
		return "", fmt.Errorf("read clipboard: %w", err)
	}
	return out, nil
}

// runCommandWithInput executes argv and optionally writes input to stdin.
func runCommandWithInput(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return fmt.Errorf("command argv cannot be empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open stdin for %s: %w", argv[0], err)
	}

	if err := cmd.Start(); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("start command %s: %w", argv[0], err)
	}

	if input != "" {
		if _, err := stdin.Write([]byte(input)); err != nil {
			_ = stdin.Close()
			_ = cmd.Wait()
			return fmt.Errorf("write stdin for %s: %w", argv[0], err)
		}
	}
	_ = stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait for %s: %w", argv[0], err)
	}
	return nil
}

// runCommandCapture executes argv and returns its stdout.
func runCommandCapture(ctx context.Context, argv []string) (string, error) {
	if len(argv) == 0 {
		return "", fmt.Errorf("command argv cannot be empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("run %s: %w", argv[0], err)
	}
	return stdout.String(), nil
}
