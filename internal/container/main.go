package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"

	"github.com/cristianradulescu/format-ls/internal/logging"
)

const dockerBinary = "docker"

// Command describes one external tool invocation. When Container is set the
// tool runs inside that container through "docker exec".
type Command struct {
	Container string
	Path      string
	Args      []string
	Dir       string
	Stdin     io.Reader
}

type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Err      error
}

type CommandRunner interface {
	Run(ctx context.Context, cmd Command) Result
}

// ExecCommandRunner runs commands with os/exec, locally or through docker.
type ExecCommandRunner struct {
	DockerBinary string
}

func NewCommandRunner() *ExecCommandRunner {
	return &ExecCommandRunner{DockerBinary: dockerBinary}
}

// CommandLine returns the argv that Run executes for cmd.
func (r *ExecCommandRunner) CommandLine(cmd Command) []string {
	if cmd.Container == "" {
		return append([]string{cmd.Path}, cmd.Args...)
	}

	argv := []string{r.dockerBinary(), "exec"}
	if cmd.Stdin != nil {
		argv = append(argv, "-i")
	}
	argv = append(argv, cmd.Container, cmd.Path)
	return append(argv, cmd.Args...)
}

func (r *ExecCommandRunner) Run(ctx context.Context, cmd Command) Result {
	argv := r.CommandLine(cmd)
	log.Printf("%s Running cmd: %s", logging.LogTagContainer, strings.Join(argv, " "))

	c := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if cmd.Container == "" {
		c.Dir = cmd.Dir
	}
	if cmd.Stdin != nil {
		c.Stdin = cmd.Stdin
	}

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	result := Result{}
	err := c.Run()
	result.Stdout = stdout.Bytes()
	result.Stderr = stderr.Bytes()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		result.Err = fmt.Errorf("cmd returned error %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return result
}

func (r *ExecCommandRunner) dockerBinary() string {
	if r.DockerBinary == "" {
		return dockerBinary
	}
	return r.DockerBinary
}

func ValidateContainer(ctx context.Context, containerName string) error {
	if strings.TrimSpace(containerName) == "" {
		return errors.New("container name is empty")
	}

	cmd := exec.CommandContext(ctx, dockerBinary, "ps", "--filter", fmt.Sprintf("name=%s", containerName), "--format", "{{.Names}}")
	cmdOutput, err := cmd.Output()
	if err != nil {
		return err
	}

	for _, name := range strings.Split(strings.TrimSpace(string(cmdOutput)), "\n") {
		if name == containerName {
			return nil
		}
	}

	return fmt.Errorf("container %s is not running; docker output: %s", containerName, cmdOutput)
}

// ValidateBinary checks that binaryPath resolves, either on the local PATH
// or inside containerName.
func ValidateBinary(ctx context.Context, runner CommandRunner, containerName string, binaryPath string) error {
	if binaryPath == "" {
		return errors.New("binary path is empty")
	}

	if containerName == "" {
		if _, err := exec.LookPath(binaryPath); err != nil {
			return fmt.Errorf("binary %s not found: %w", binaryPath, err)
		}
		return nil
	}

	result := runner.Run(ctx, Command{Container: containerName, Path: "which", Args: []string{binaryPath}})
	if result.Err != nil || strings.TrimSpace(string(result.Stdout)) == "" {
		return fmt.Errorf("binary %s not found in container %s; docker output: %s", binaryPath, containerName, result.Stdout)
	}

	return nil
}
