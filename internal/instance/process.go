package instance

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/yourusername/minecraft-server-manager/internal/config"
)

// Process is one spawned server process. The supervisor owns the handle
// exclusively once spawned.
type Process interface {
	// Stdin is the process input stream. Writes go through the instance's
	// guarded sink, never directly.
	Stdin() io.WriteCloser
	// Stdout carries the combined output stream; it reaches EOF when the
	// process exits.
	Stdout() io.Reader
	// Wait blocks until the process has exited and releases its resources.
	Wait() error
	// Kill force-terminates the process.
	Kill() error
}

// Launcher spawns server processes. Abstracted so the supervisor state
// machine can be driven by fakes in tests.
type Launcher interface {
	Launch(cfg *config.InstanceConfig, dir string) (Process, error)
}

// JavaLauncher launches a server jar under a local JVM.
type JavaLauncher struct{}

func NewJavaLauncher() *JavaLauncher {
	return &JavaLauncher{}
}

// Launch spawns `java -Xms<min>M -Xmx<max>M -jar server.jar nogui` with the
// instance directory as working directory. Stdout and stderr are merged into
// one stream so the pump sees every line.
func (jl *JavaLauncher) Launch(cfg *config.InstanceConfig, dir string) (Process, error) {
	java := cfg.JREPath
	if java == "" {
		java = "java"
	}

	jar := filepath.Join(dir, "server.jar")
	if _, err := os.Stat(jar); err != nil {
		return nil, fmt.Errorf("server jar not found: %w", err)
	}

	cmd := exec.Command(java,
		fmt.Sprintf("-Xms%dM", cfg.MinRAMMB),
		fmt.Sprintf("-Xmx%dM", cfg.MaxRAMMB),
		"-jar", "server.jar",
		"nogui",
	)
	cmd.Dir = dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open stdin pipe: %w", err)
	}

	outR, outW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to create output pipe: %w", err)
	}
	cmd.Stdout = outW
	cmd.Stderr = outW

	if err := cmd.Start(); err != nil {
		stdin.Close()
		outR.Close()
		outW.Close()
		return nil, err
	}

	// The parent's copy of the write end must close or the reader never
	// sees EOF after the child exits.
	outW.Close()

	return &javaProcess{cmd: cmd, stdin: stdin, stdout: outR}, nil
}

type javaProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

func (p *javaProcess) Stdin() io.WriteCloser {
	return p.stdin
}

func (p *javaProcess) Stdout() io.Reader {
	return p.stdout
}

func (p *javaProcess) Wait() error {
	err := p.cmd.Wait()
	p.stdout.Close()
	return err
}

func (p *javaProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}
