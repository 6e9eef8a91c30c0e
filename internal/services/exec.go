package services

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onStdout func(string)) error
}

// CommandExecutor runs binaries with os/exec, streaming stdout line by line.
// A failing command's error carries the last lines of stderr.
type CommandExecutor struct {
	// Dir is the working directory; empty means the current one.
	Dir string
}

const stderrTailLines = 8

func (e CommandExecutor) Run(ctx context.Context, binary string, args []string, onStdout func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Dir = e.Dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", binary, err)
	}

	var (
		wg      sync.WaitGroup
		scanErr error
		once    sync.Once
		tailMu  sync.Mutex
		tail    []string
	)
	scan := func(r io.Reader, forward func(string)) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			forward(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout, func(line string) {
		if onStdout != nil {
			onStdout(line)
		}
	})
	go scan(stderr, func(line string) {
		if strings.TrimSpace(line) == "" {
			return
		}
		tailMu.Lock()
		tail = append(tail, line)
		if len(tail) > stderrTailLines {
			tail = tail[len(tail)-stderrTailLines:]
		}
		tailMu.Unlock()
	})
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s exceeded its deadline", ErrTimeout, binary)
		}
		detail := strings.Join(tail, "; ")
		if detail == "" {
			return fmt.Errorf("%s: %w", binary, err)
		}
		return fmt.Errorf("%s: %w: %s", binary, err, detail)
	}
	return scanErr
}
