package runner

import (
	"bufio"
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"time"

	"github.com/agentctl/agentctl/internal/errkind"
)

// DefaultExecTimeout bounds one ExecBackend step the way the teacher's
// bash tool bounds one shell command (internal/tool/bash.go
// DefaultBashTimeout), since a coding-agent backend invocation is just
// another long-running external process from the runner's point of view.
const DefaultExecTimeout = 10 * time.Minute

// ExecBackend is the out-of-the-box BackendRunner: it shells out to a
// configured external command once per step, feeding it the step request
// as one JSON line on stdin and treating each stdout line as either plain
// progress text or a JSON StepResult line (the last one printed wins)
// (spec §1 "coding-agent backends are external", §4.2 "Backend
// interface"). Concrete, richer backends may implement BackendRunner
// directly instead of going through a subprocess.
type ExecBackend struct {
	Command []string
	WorkDir string
	Timeout time.Duration
}

// NewExecBackend builds an ExecBackend invoking command (argv form) with
// cwd as its working directory.
func NewExecBackend(command []string, cwd string) *ExecBackend {
	return &ExecBackend{Command: command, WorkDir: cwd, Timeout: DefaultExecTimeout}
}

type execStepRequest struct {
	IssueID string `json:"issue_id"`
	Role    string `json:"role"`
	Prompt  string `json:"prompt"`
}

type execStepResult struct {
	Outcome      StepOutcome  `json:"outcome"`
	ExitCode     int          `json:"exit_code"`
	LogHintPaths []string     `json:"log_hint_paths,omitempty"`
	RecoveryHint RecoveryHint `json:"recovery_hint,omitempty"`
}

// RunStep launches the configured command, writes req as one JSON line to
// its stdin, and streams each stdout line to onLine. A line beginning with
// "{" and parsing as an execStepResult (with an outcome) is taken as the
// result instead of being forwarded as progress text; reading continues
// until the process closes stdout, and the last such line is the result.
func (b *ExecBackend) RunStep(ctx context.Context, req StepRequest, onLine func(line string)) (StepResult, error) {
	if len(b.Command) == 0 {
		return StepResult{}, errkind.New(errkind.InvalidInput, "exec backend has no command configured")
	}

	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(stepCtx, b.Command[0], b.Command[1:]...)
	cmd.Dir = b.WorkDir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return StepResult{}, errkind.Wrap(errkind.BackendError, "open backend stdin", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return StepResult{}, errkind.Wrap(errkind.BackendError, "open backend stdout", err)
	}
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return StepResult{}, errkind.Wrap(errkind.BackendError, "start backend process", err)
	}

	payload, err := json.Marshal(execStepRequest{IssueID: req.IssueID, Role: req.Role, Prompt: req.Prompt})
	if err != nil {
		return StepResult{}, errkind.Wrap(errkind.InvalidInput, "marshal step request", err)
	}
	go func() {
		defer stdin.Close()
		stdin.Write(payload)
		stdin.Write([]byte("\n"))
	}()

	var (
		result     execStepResult
		gotResult  bool
		stdoutTail []string
	)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "{") {
			var r execStepResult
			if err := json.Unmarshal([]byte(line), &r); err == nil && r.Outcome != "" {
				result = r
				gotResult = true
				continue
			}
		}
		onLine(line)
		stdoutTail = append(stdoutTail, line)
	}

	waitErr := cmd.Wait()
	if stepCtx.Err() == context.DeadlineExceeded {
		return StepResult{}, errkind.Newf(errkind.BackendTimeout, "backend step exceeded %s", timeout)
	}
	if !gotResult {
		if waitErr != nil {
			return StepResult{}, errkind.Wrap(errkind.BackendError, "backend process exited without a result", waitErr)
		}
		return StepResult{}, errkind.New(errkind.BackendError, "backend process produced no result line")
	}

	return StepResult{
		Outcome:      result.Outcome,
		ExitCode:     result.ExitCode,
		StdoutLines:  stdoutTail,
		LogHintPaths: result.LogHintPaths,
		RecoveryHint: result.RecoveryHint,
	}, nil
}
