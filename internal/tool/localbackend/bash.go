package localbackend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"syscall"
	"time"

	"github.com/opencode-ai/agentrund/internal/tool"
)

// defaultBashTimeout/maxOutputLength/sigkillTimeout mirror
// telnet2-opencode's bash.go constants; the hard ceiling on a bash call's
// duration lives on the executor (tool.MaxBashTimeout) instead of here,
// since the executor already owns every tool's deadline.
const (
	defaultBashTimeout = 120 * time.Second
	maxOutputLength    = 30000
	sigkillTimeout     = 200 * time.Millisecond
)

const bashDescription = `Executes a bash command in a fresh shell.

Usage:
- command is required
- Optional timeout in milliseconds
- Provide a brief description of what the command does
- Output is captured from stdout and stderr combined
- Commands run in their own process group for proper cleanup`

func bashDefinition() tool.Definition {
	return tool.Definition{
		Name:        "bash",
		Description: bashDescription,
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"command": {"type": "string", "description": "The command to execute"},
				"timeout": {"type": "integer", "description": "Optional timeout in milliseconds"},
				"description": {"type": "string", "description": "Brief description of what this command does"}
			},
			"required": ["command", "description"]
		}`),
		RequiresApproval: true,
	}
}

func (b *Backend) bash(ctx context.Context, parameters map[string]any) (tool.Output, error) {
	command, ok := paramString(parameters, "command")
	if !ok || command == "" {
		return tool.Output{}, &tool.Error{Kind: "invalid_params", Message: "command is required"}
	}
	description, _ := paramString(parameters, "description")

	timeout := defaultBashTimeout
	if ms, ok := paramInt(parameters, "timeout"); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	shell := detectShell()
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(cmdCtx, shell, "/c", command)
	} else {
		cmd = exec.CommandContext(cmdCtx, shell, "-c", command)
	}
	if b.workDir != "" {
		cmd.Dir = b.workDir
	}
	cmd.Env = os.Environ()
	if runtime.GOOS != "windows" {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}

	output, err := cmd.CombinedOutput()
	timedOut := cmdCtx.Err() == context.DeadlineExceeded

	result := string(output)
	if len(result) > maxOutputLength {
		result = result[:maxOutputLength] + "\n\n(Output truncated)"
	}
	if timedOut {
		result += fmt.Sprintf("\n\n(Command timed out after %v)", timeout)
		killProcessGroup(cmd)
	}

	exitCode := 0
	if cmd.ProcessState != nil {
		exitCode = cmd.ProcessState.ExitCode()
	}
	if err != nil && !timedOut {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			result += fmt.Sprintf("\n\nError: %v", err)
		}
	}

	title := description
	if title == "" {
		title = "Run command"
	}

	return tool.Output{
		Title: title,
		Text:  result,
		Structured: map[string]any{
			"exit":        exitCode,
			"description": description,
			"timedOut":    timedOut,
		},
	}, nil
}

func killProcessGroup(cmd *exec.Cmd) {
	if cmd.Process == nil || runtime.GOOS == "windows" {
		return
	}
	pid := cmd.Process.Pid
	syscall.Kill(-pid, syscall.SIGTERM)
	time.Sleep(sigkillTimeout)
	if cmd.ProcessState == nil {
		syscall.Kill(-pid, syscall.SIGKILL)
	}
}

func detectShell() string {
	if s := os.Getenv("SHELL"); s != "" && s != "/bin/fish" && s != "/usr/bin/fish" {
		return s
	}
	if runtime.GOOS == "darwin" {
		return "/bin/zsh"
	}
	if runtime.GOOS == "windows" {
		if comspec := os.Getenv("COMSPEC"); comspec != "" {
			return comspec
		}
		return "cmd.exe"
	}
	if bash, err := exec.LookPath("bash"); err == nil {
		return bash
	}
	return "/bin/sh"
}
