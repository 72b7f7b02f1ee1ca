package instance

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yourusername/minecraft-server-manager/internal/config"
	"github.com/yourusername/minecraft-server-manager/internal/events"
)

const startupLine = `[12:00:00] [Server thread/INFO]: Done (3.14s)! For help, type "help"`

// stdinRecorder captures everything the instance writes to process input.
type stdinRecorder struct {
	mu     sync.Mutex
	lines  strings.Builder
	closed bool
}

func (r *stdinRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, io.ErrClosedPipe
	}
	r.lines.Write(p)
	return len(p), nil
}

func (r *stdinRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *stdinRecorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lines.String()
}

// fakeProcess feeds the pump from a pipe the test writes into.
type fakeProcess struct {
	stdin *stdinRecorder
	outR  *io.PipeReader
	outW  *io.PipeWriter
}

func newFakeProcess() *fakeProcess {
	r, w := io.Pipe()
	return &fakeProcess{stdin: &stdinRecorder{}, outR: r, outW: w}
}

func (p *fakeProcess) Stdin() io.WriteCloser { return p.stdin }
func (p *fakeProcess) Stdout() io.Reader     { return p.outR }
func (p *fakeProcess) Wait() error           { return nil }
func (p *fakeProcess) Kill() error           { p.outW.Close(); return nil }

func (p *fakeProcess) emit(line string) {
	fmt.Fprintf(p.outW, "%s\n", line)
}

func (p *fakeProcess) exit() {
	p.outW.Close()
}

type fakeLauncher struct {
	mu    sync.Mutex
	fail  bool
	procs []*fakeProcess
}

func (l *fakeLauncher) Launch(*config.InstanceConfig, string) (Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail {
		return nil, errors.New("java not found")
	}
	p := newFakeProcess()
	l.procs = append(l.procs, p)
	return p, nil
}

func (l *fakeLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.procs)
}

func (l *fakeLauncher) last() *fakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.procs) == 0 {
		return nil
	}
	return l.procs[len(l.procs)-1]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestInstance(t *testing.T, mutate func(*config.InstanceConfig)) (*Instance, *fakeLauncher) {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "world"), 0755); err != nil {
		t.Fatalf("failed to create world dir: %v", err)
	}

	cfg := &config.InstanceConfig{
		UUID:    "test-instance",
		Name:    "test",
		Version: "1.20.4",
		Port:    25565,
	}
	cfg.FillDefaults()
	if mutate != nil {
		mutate(cfg)
	}

	launcher := &fakeLauncher{}
	in, err := New(cfg, dir, Options{Launcher: launcher, Tick: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("failed to build instance: %v", err)
	}
	t.Cleanup(in.Shutdown)
	return in, launcher
}

func startRunning(t *testing.T, in *Instance, launcher *fakeLauncher) *fakeProcess {
	t.Helper()
	if err := in.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	proc := launcher.last()
	proc.emit(startupLine)
	waitFor(t, "running state", func() bool { return in.Status() == StateRunning })
	return proc
}

func TestStateMachineRejectsIllegalCalls(t *testing.T) {
	in, launcher := newTestInstance(t, nil)

	if err := in.Stop(); err != ErrNotRunning {
		t.Fatalf("stop while stopped: got %v, want ErrNotRunning", err)
	}
	if err := in.SendLine("list"); err != ErrStdinClosed {
		t.Fatalf("send while stopped: got %v, want ErrStdinClosed", err)
	}

	if err := in.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if in.Status() != StateStarting {
		t.Fatalf("expected Starting, got %s", in.Status())
	}
	if err := in.Start(); err != ErrAlreadyStarting {
		t.Fatalf("start while starting: got %v, want ErrAlreadyStarting", err)
	}
	if err := in.Stop(); err != ErrNotRunning {
		t.Fatalf("stop while starting: got %v, want ErrNotRunning", err)
	}

	proc := launcher.last()
	proc.emit(startupLine)
	waitFor(t, "running state", func() bool { return in.Status() == StateRunning })

	if err := in.Start(); err != ErrAlreadyRunning {
		t.Fatalf("start while running: got %v, want ErrAlreadyRunning", err)
	}

	if err := in.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if in.Status() != StateStopping {
		t.Fatalf("expected Stopping, got %s", in.Status())
	}
	if err := in.Start(); err != ErrAlreadyStopping {
		t.Fatalf("start while stopping: got %v, want ErrAlreadyStopping", err)
	}
	if err := in.Stop(); err != ErrNotRunning {
		t.Fatalf("stop while stopping: got %v, want ErrNotRunning", err)
	}

	proc.exit()
	waitFor(t, "stopped state", func() bool { return in.Status() == StateStopped })
}

func TestSpawnFailureRevertsToStopped(t *testing.T) {
	in, launcher := newTestInstance(t, nil)
	launcher.fail = true

	err := in.Start()
	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("expected SpawnError, got %v", err)
	}
	if in.Status() != StateStopped {
		t.Fatalf("expected Stopped after spawn failure, got %s", in.Status())
	}

	// The instance recovers once spawning works again.
	launcher.fail = false
	if err := in.Start(); err != nil {
		t.Fatalf("start after spawn failure: %v", err)
	}
	launcher.last().exit()
	waitFor(t, "stopped state", func() bool { return in.Status() == StateStopped })
}

func TestStopSendsCommandAndClearsPresence(t *testing.T) {
	in, launcher := newTestInstance(t, nil)
	proc := startRunning(t, in, launcher)

	proc.emit("[12:00:01] [Server thread/INFO]: Steve joined the game")
	waitFor(t, "player join", func() bool { return in.PlayerCount() == 1 })

	if err := in.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if !strings.Contains(proc.stdin.String(), "stop\n") {
		t.Fatalf("stop command not written, stdin: %q", proc.stdin.String())
	}
	if in.PlayerCount() != 0 {
		t.Fatalf("presence not cleared on stop")
	}

	proc.exit()
	waitFor(t, "stopped state", func() bool { return in.Status() == StateStopped })
}

func TestPresenceTracking(t *testing.T) {
	in, launcher := newTestInstance(t, nil)
	proc := startRunning(t, in, launcher)

	proc.emit("[12:00:01] [Server thread/INFO]: Steve joined the game")
	proc.emit("[12:00:02] [Server thread/INFO]: Alex joined the game")
	// Duplicate join is idempotent.
	proc.emit("[12:00:03] [Server thread/INFO]: Steve joined the game")
	waitFor(t, "two players", func() bool { return in.PlayerCount() == 2 })

	// Leaving a name that is not present is a no-op.
	proc.emit("[12:00:04] [Server thread/INFO]: Nobody left the game")
	proc.emit("[12:00:05] [Server thread/INFO]: Steve left the game")
	waitFor(t, "one player", func() bool { return in.PlayerCount() == 1 })

	list := in.PlayerList()
	if len(list) != 1 || list[0] != "Alex" {
		t.Fatalf("unexpected player list: %v", list)
	}

	// Presence resets on shutdown.
	proc.exit()
	waitFor(t, "stopped state", func() bool { return in.Status() == StateStopped })
	if in.PlayerCount() != 0 {
		t.Fatalf("presence survived shutdown")
	}
}

func TestSendLineWritesThrough(t *testing.T) {
	in, launcher := newTestInstance(t, nil)
	proc := startRunning(t, in, launcher)

	if err := in.SendLine("say hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if !strings.Contains(proc.stdin.String(), "say hello\n") {
		t.Fatalf("line not written: %q", proc.stdin.String())
	}

	proc.exit()
	waitFor(t, "stopped state", func() bool { return in.Status() == StateStopped })
	if err := in.SendLine("say too late"); err != ErrStdinClosed {
		t.Fatalf("send after exit: got %v, want ErrStdinClosed", err)
	}
}

func TestCrashRestart(t *testing.T) {
	in, launcher := newTestInstance(t, func(cfg *config.InstanceConfig) {
		enabled := true
		cfg.RestartOnCrash = &enabled
	})
	proc := startRunning(t, in, launcher)

	// Exit without a stop request: crash path, automatic restart.
	proc.exit()
	waitFor(t, "relaunch", func() bool { return launcher.count() == 2 })
	waitFor(t, "starting again", func() bool { return in.Status() == StateStarting })

	// Cleanly stop the replacement so no restart follows.
	second := launcher.last()
	second.emit(startupLine)
	waitFor(t, "running state", func() bool { return in.Status() == StateRunning })
	if err := in.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	second.exit()
	waitFor(t, "stopped state", func() bool { return in.Status() == StateStopped })

	time.Sleep(50 * time.Millisecond)
	if launcher.count() != 2 {
		t.Fatalf("normal shutdown triggered a restart")
	}
}

func TestCrashWithoutRestartStaysStopped(t *testing.T) {
	in, launcher := newTestInstance(t, nil)
	proc := startRunning(t, in, launcher)

	proc.exit()
	waitFor(t, "stopped state", func() bool { return in.Status() == StateStopped })

	time.Sleep(50 * time.Millisecond)
	if launcher.count() != 1 {
		t.Fatalf("crash restarted without restart_on_crash")
	}
}

func TestOperatorStopDetectedIsNotACrash(t *testing.T) {
	in, launcher := newTestInstance(t, func(cfg *config.InstanceConfig) {
		enabled := true
		cfg.RestartOnCrash = &enabled
	})
	proc := startRunning(t, in, launcher)

	// An operator typed "stop" in-game: the log line flips the state.
	proc.emit("[12:00:10] [Server thread/INFO]: Stopping server")
	waitFor(t, "stopping state", func() bool { return in.Status() == StateStopping })

	proc.exit()
	waitFor(t, "stopped state", func() bool { return in.Status() == StateStopped })

	time.Sleep(50 * time.Millisecond)
	if launcher.count() != 1 {
		t.Fatalf("operator stop was treated as a crash")
	}
}

func TestNoActivityWatchdogStopsIdleServer(t *testing.T) {
	in, launcher := newTestInstance(t, func(cfg *config.InstanceConfig) {
		timeout := 3
		cfg.TimeoutNoActivity = &timeout
	})
	proc := startRunning(t, in, launcher)

	waitFor(t, "watchdog stop", func() bool {
		return strings.Contains(proc.stdin.String(), "stop\n")
	})
	if got := strings.Count(proc.stdin.String(), "stop\n"); got != 1 {
		t.Fatalf("expected exactly one stop command, got %d", got)
	}

	proc.exit()
	waitFor(t, "stopped state", func() bool { return in.Status() == StateStopped })
}

func TestNoActivityWatchdogResetsWhilePlayersOnline(t *testing.T) {
	in, launcher := newTestInstance(t, func(cfg *config.InstanceConfig) {
		timeout := 3
		cfg.TimeoutNoActivity = &timeout
	})
	proc := startRunning(t, in, launcher)

	proc.emit("[12:00:01] [Server thread/INFO]: Steve joined the game")
	waitFor(t, "player join", func() bool { return in.PlayerCount() == 1 })

	// Many ticks pass with a player online; the countdown keeps resetting.
	time.Sleep(100 * time.Millisecond)
	if strings.Contains(proc.stdin.String(), "stop\n") {
		t.Fatalf("watchdog fired while a player was online")
	}

	// Once the player leaves the countdown runs out.
	proc.emit("[12:00:09] [Server thread/INFO]: Steve left the game")
	waitFor(t, "watchdog stop", func() bool {
		return strings.Contains(proc.stdin.String(), "stop\n")
	})

	proc.exit()
	waitFor(t, "stopped state", func() bool { return in.Status() == StateStopped })
}

func TestLastPlayerLeftWatchdog(t *testing.T) {
	in, launcher := newTestInstance(t, func(cfg *config.InstanceConfig) {
		timeout := 3
		cfg.TimeoutLastLeft = &timeout
	})
	proc := startRunning(t, in, launcher)

	proc.emit("[12:00:01] [Server thread/INFO]: Steve joined the game")
	waitFor(t, "player join", func() bool { return in.PlayerCount() == 1 })

	proc.emit("[12:00:02] [Server thread/INFO]: Steve left the game")
	waitFor(t, "watchdog stop", func() bool {
		return strings.Contains(proc.stdin.String(), "stop\n")
	})

	proc.exit()
	waitFor(t, "stopped state", func() bool { return in.Status() == StateStopped })
}

func TestAdminChannelNotConnected(t *testing.T) {
	in, _ := newTestInstance(t, nil)

	if _, err := in.SendAdminCommand("list"); err != ErrAdminChannelNotConnected {
		t.Fatalf("got %v, want ErrAdminChannelNotConnected", err)
	}
	// RCON not configured at all.
	if err := in.ConnectAdmin(); err != ErrAdminChannelNotConnected {
		t.Fatalf("got %v, want ErrAdminChannelNotConnected", err)
	}
}

func TestMacroViaChatLine(t *testing.T) {
	in, launcher := newTestInstance(t, nil)

	macroDir := filepath.Join(in.Dir(), "macros")
	if err := os.MkdirAll(macroDir, 0755); err != nil {
		t.Fatalf("failed to create macros dir: %v", err)
	}
	macro := []byte("send say Hello ${arg1}, from ${invoker}\n")
	if err := os.WriteFile(filepath.Join(macroDir, "hello.macro"), macro, 0644); err != nil {
		t.Fatalf("failed to write macro: %v", err)
	}

	proc := startRunning(t, in, launcher)
	proc.emit("[12:00:01] [Server thread/INFO]: <Steve> .macro hello World")

	waitFor(t, "macro output", func() bool {
		return strings.Contains(proc.stdin.String(), "say Hello World, from Steve\n")
	})

	proc.exit()
	waitFor(t, "stopped state", func() bool { return in.Status() == StateStopped })
}

func TestStartOnConnection(t *testing.T) {
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to pick a port: %v", err)
	}
	port := probe.Addr().(*net.TCPAddr).Port
	probe.Close()

	in, launcher := newTestInstance(t, func(cfg *config.InstanceConfig) {
		enabled := true
		cfg.StartOnConnection = &enabled
		cfg.Port = port
	})

	conn, err := net.DialTimeout("tcp", fmt.Sprintf("127.0.0.1:%d", port), 2*time.Second)
	if err != nil {
		t.Fatalf("failed to knock on the listener: %v", err)
	}
	conn.Close()

	waitFor(t, "launch on connection", func() bool { return launcher.count() == 1 })

	proc := launcher.last()
	proc.emit(startupLine)
	waitFor(t, "running state", func() bool { return in.Status() == StateRunning })

	if err := in.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	proc.exit()
	waitFor(t, "stopped state", func() bool { return in.Status() == StateStopped })
}

func TestRunMacroErrors(t *testing.T) {
	in, _ := newTestInstance(t, nil)

	if err := in.RunMacro("missing", nil, "Steve"); err == nil {
		t.Fatalf("expected error for missing macro")
	}
}

func TestUpdateConfigRollsBackOnValidationError(t *testing.T) {
	in, _ := newTestInstance(t, nil)

	err := in.UpdateConfig(func(c *config.InstanceConfig) {
		c.MinRAMMB = 99999
	})
	if err == nil {
		t.Fatalf("expected validation error for min_ram above max_ram")
	}
	if got := in.ConfigSnapshot().MinRAMMB; got != 1000 {
		t.Fatalf("rejected mutation survived: min_ram=%d, want 1000", got)
	}
}

func TestShutdownEventObservesStoppedState(t *testing.T) {
	in, launcher := newTestInstance(t, nil)

	statusAt := make(chan State, 1)
	in.Dispatcher().Register(events.CategoryShutdownComplete, func(events.Event) {
		select {
		case statusAt <- in.Status():
		default:
		}
	})

	proc := startRunning(t, in, launcher)
	proc.exit()
	waitFor(t, "stopped state", func() bool { return in.Status() == StateStopped })

	select {
	case got := <-statusAt:
		if got != StateStopped {
			t.Fatalf("shutdown event observed state %s, want %s", got, StateStopped)
		}
	default:
		t.Fatalf("shutdown event was never dispatched")
	}
}

func TestStopWithDeadStdinStillClearsPresence(t *testing.T) {
	in, launcher := newTestInstance(t, nil)
	proc := startRunning(t, in, launcher)

	proc.emit(`[12:00:00] [Server thread/INFO]: Steve joined the game`)
	waitFor(t, "player joined", func() bool { return in.PlayerCount() == 1 })

	proc.stdin.Close()
	if err := in.Stop(); err == nil {
		t.Fatalf("expected an error when the stop command cannot be written")
	}
	if in.Status() != StateStopping {
		t.Fatalf("expected Stopping after failed stop write, got %s", in.Status())
	}
	if in.PlayerCount() != 0 {
		t.Fatalf("presence not cleared on stop: %d online", in.PlayerCount())
	}

	proc.exit()
	waitFor(t, "stopped state", func() bool { return in.Status() == StateStopped })
}
