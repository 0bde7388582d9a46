package driver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// maxStderr bounds how much driver stderr is kept for error messages.
const maxStderr = 4096

// ExecDriver runs an external driver program and reads JSON lines from its
// stdout.
type ExecDriver struct {
	Manifest *Manifest
}

// NewExecDrivers wraps discovered manifests.
func NewExecDrivers(manifests []*Manifest) []Driver {
	out := make([]Driver, len(manifests))
	for i, m := range manifests {
		out[i] = ExecDriver{Manifest: m}
	}
	return out
}

func (d ExecDriver) Name() string {
	return d.Manifest.Name
}

// Read runs the driver on path. The process is killed when fn fails or ctx
// is cancelled.
func (d ExecDriver) Read(ctx context.Context, path string, fn Handler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	argv := d.Manifest.Command(path)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = d.Manifest.Dir
	stderr := &tailBuffer{limit: maxStderr}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("driver %s: %w", d.Name(), err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("driver %s: start: %w", d.Name(), err)
	}

	readErr := readLines(ctx, stdout, fn)
	if readErr != nil {
		cancel()
	}
	waitErr := cmd.Wait()

	if readErr != nil {
		return fmt.Errorf("driver %s: %w", d.Name(), readErr)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return fmt.Errorf("driver %s: exit %d: %s", d.Name(), exitErr.ExitCode(), stderr.String())
		}
		return fmt.Errorf("driver %s: %w", d.Name(), waitErr)
	}
	return nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(t.buf.String())
}
