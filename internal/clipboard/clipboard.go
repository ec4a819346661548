package clipboard

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// ErrUnavailable is returned when no clipboard helper is installed.
var ErrUnavailable = errors.New("no clipboard command available")

// Clipboard reads and writes the system clipboard as text.
type Clipboard interface {
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, text string) error
}

// Command is one clipboard helper invocation.
type Command struct {
	Name string
	Args []string
}

// Tool pairs the write and read invocations of one helper.
type Tool struct {
	Write Command
	Read  Command
}

type runFunc func(ctx context.Context, cmd Command, stdin string) ([]byte, error)

// Exec shells out to the first clipboard helper found on PATH.
type Exec struct {
	tools    []Tool
	lookPath func(string) (string, error)
	run      runFunc
}

// NewExec returns a clipboard backed by the platform's helpers.
func NewExec() *Exec {
	return &Exec{
		tools:    ToolsFor(runtime.GOOS),
		lookPath: exec.LookPath,
		run:      runCommand,
	}
}

// ToolsFor lists the helpers tried on goos, in order of preference.
func ToolsFor(goos string) []Tool {
	switch goos {
	case "darwin":
		return []Tool{{
			Write: Command{Name: "pbcopy"},
			Read:  Command{Name: "pbpaste"},
		}}
	case "windows":
		return []Tool{{
			Write: Command{Name: "clip"},
			Read:  Command{Name: "powershell", Args: []string{"-NoProfile", "-Command", "Get-Clipboard"}},
		}}
	default:
		return []Tool{
			{
				Write: Command{Name: "wl-copy"},
				Read:  Command{Name: "wl-paste", Args: []string{"--no-newline"}},
			},
			{
				Write: Command{Name: "xclip", Args: []string{"-selection", "clipboard"}},
				Read:  Command{Name: "xclip", Args: []string{"-selection", "clipboard", "-o"}},
			},
			{
				Write: Command{Name: "xsel", Args: []string{"--clipboard", "--input"}},
				Read:  Command{Name: "xsel", Args: []string{"--clipboard", "--output"}},
			},
		}
	}
}

func (c *Exec) Read(ctx context.Context) (string, error) {
	tool, err := c.pick()
	if err != nil {
		return "", err
	}
	out, err := c.run(ctx, tool.Read, "")
	if err != nil {
		return "", fmt.Errorf("read clipboard with %s: %w", tool.Read.Name, err)
	}
	return string(out), nil
}

func (c *Exec) Write(ctx context.Context, text string) error {
	tool, err := c.pick()
	if err != nil {
		return err
	}
	if _, err := c.run(ctx, tool.Write, text); err != nil {
		return fmt.Errorf("write clipboard with %s: %w", tool.Write.Name, err)
	}
	return nil
}

func (c *Exec) pick() (Tool, error) {
	for _, tool := range c.tools {
		if _, err := c.lookPath(tool.Write.Name); err != nil {
			continue
		}
		if _, err := c.lookPath(tool.Read.Name); err != nil {
			continue
		}
		return tool, nil
	}
	return Tool{}, ErrUnavailable
}

func runCommand(ctx context.Context, c Command, stdin string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil && stderr.Len() > 0 {
		return out, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, err
}
