package instance

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yourusername/minecraft-server-manager/internal/backup"
	"github.com/yourusername/minecraft-server-manager/internal/config"
	"github.com/yourusername/minecraft-server-manager/internal/events"
	"github.com/yourusername/minecraft-server-manager/internal/macros"
	"github.com/yourusername/minecraft-server-manager/internal/rcon"
)

// Options tune one instance. Zero values select production defaults.
type Options struct {
	Launcher Launcher
	// Tick is the watchdog/backup tick interval, one second in production.
	Tick time.Duration
	// RetainBackups caps how many local snapshots are kept per instance.
	RetainBackups int
	// EventSink, when set, receives a copy of every dispatched event
	// (console streaming, event history).
	EventSink func(events.Event)
	// AfterBackup, when set, runs after each successful snapshot with the
	// snapshot directory path (history recording, offsite upload).
	AfterBackup func(snapshotDir string)
}

// Instance is one supervised server process plus its configuration and
// reactive subsystems: output pump, presence tracker, watchdogs, backup
// scheduler, macro runner and admin channel.
type Instance struct {
	dir      string
	launcher Launcher
	tick     time.Duration

	cfgMu sync.RWMutex
	cfg   *config.InstanceConfig

	stateMu  sync.Mutex
	state    State
	pumpDone chan struct{}

	stdinMu sync.Mutex
	stdin   io.WriteCloser

	dispatcher *events.Dispatcher
	players    *PresenceSet
	backups    *backup.Scheduler
	macros     *macros.Runner

	adminMu sync.Mutex
	admin   *rcon.Client

	listenerMu     sync.Mutex
	listenerCancel func()

	noActivityArmed atomic.Bool
	lastLeftArmed   atomic.Bool
}

// New assembles an instance from a validated config and its working
// directory. The backup scheduler starts immediately; the process does not.
func New(cfg *config.InstanceConfig, dir string, opts Options) (*Instance, error) {
	if opts.Launcher == nil {
		opts.Launcher = NewJavaLauncher()
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.RetainBackups <= 0 {
		opts.RetainBackups = 5
	}

	in := &Instance{
		dir:        dir,
		launcher:   opts.Launcher,
		tick:       opts.Tick,
		cfg:        cfg,
		state:      StateStopped,
		dispatcher: events.NewDispatcher(),
		players:    NewPresenceSet(),
	}

	in.macros = macros.NewRunner(filepath.Join(dir, "macros"), in.SendLine, in.dispatcher)

	in.backups = backup.NewScheduler(backup.Options{
		WorldDir:    filepath.Join(dir, "world"),
		BackupDir:   filepath.Join(dir, "backups"),
		Retain:      opts.RetainBackups,
		Tick:        opts.Tick,
		Eligible:    func() bool { return in.Status() == StateRunning },
		AfterBackup: opts.AfterBackup,
	})
	go in.backups.Run()
	if p := cfg.BackupPeriod; p != nil && *p > 0 {
		if err := in.backups.SetPeriod(*p); err != nil {
			log.Printf("[Instance %s] failed to seed backup period: %v", cfg.Name, err)
		}
	}

	in.dispatcher.Register(events.CategoryPlayerJoined, in.onPlayerJoined)
	in.dispatcher.Register(events.CategoryPlayerLeft, in.onPlayerLeft)
	in.dispatcher.Register(events.CategoryChat, in.onChat)
	in.dispatcher.Register(events.CategoryStartupComplete, in.onStartupComplete)
	in.dispatcher.Register(events.CategoryStoppingDetected, in.onStoppingDetected)

	if opts.EventSink != nil {
		sink := opts.EventSink
		for _, cat := range events.Categories() {
			in.dispatcher.Register(cat, func(e events.Event) { sink(e) })
		}
	}

	in.armListener()

	return in, nil
}

// Start spawns the server process and attaches the output pump.
func (in *Instance) Start() error {
	in.stateMu.Lock()
	switch in.state {
	case StateStarting:
		in.stateMu.Unlock()
		return ErrAlreadyStarting
	case StateStopping:
		in.stateMu.Unlock()
		return ErrAlreadyStopping
	case StateRunning:
		in.stateMu.Unlock()
		return ErrAlreadyRunning
	}
	in.state = StateStarting
	prevPump := in.pumpDone
	in.stateMu.Unlock()

	// One pump per live process; the previous pump finishes its shutdown
	// dispatch before a new process may spawn.
	if prevPump != nil {
		<-prevPump
	}

	in.stopListener()

	log.Printf("[Instance %s] starting", in.Name())
	proc, err := in.launcher.Launch(in.ConfigSnapshot(), in.dir)
	if err != nil {
		in.setState(StateStopped)
		in.armListener()
		return &SpawnError{Err: err}
	}

	in.stdinMu.Lock()
	in.stdin = proc.Stdin()
	in.stdinMu.Unlock()

	done := make(chan struct{})
	in.stateMu.Lock()
	in.pumpDone = done
	in.stateMu.Unlock()

	go in.pump(proc, done)
	return nil
}

// Stop requests a graceful shutdown. The state flips to Stopping before the
// stop command is written so a prompt exit is never misread as a crash.
func (in *Instance) Stop() error {
	in.stateMu.Lock()
	if in.state != StateRunning {
		in.stateMu.Unlock()
		return ErrNotRunning
	}
	in.state = StateStopping
	in.stateMu.Unlock()

	log.Printf("[Instance %s] stopping", in.Name())
	in.players.Clear()
	if err := in.SendLine("stop"); err != nil {
		// A dead stdin means the process is already on its way out; the
		// pump finishes the transition to Stopped.
		log.Printf("[Instance %s] stop command not delivered: %v", in.Name(), err)
		return err
	}
	return nil
}

// SendLine writes one line to the process input stream.
func (in *Instance) SendLine(text string) error {
	in.stdinMu.Lock()
	defer in.stdinMu.Unlock()

	if in.stdin == nil {
		return ErrStdinClosed
	}
	if _, err := io.WriteString(in.stdin, text+"\n"); err != nil {
		return fmt.Errorf("%w: %v", ErrStdinClosed, err)
	}
	return nil
}

// Status returns the current lifecycle state.
func (in *Instance) Status() State {
	in.stateMu.Lock()
	defer in.stateMu.Unlock()
	return in.state
}

// PlayerList returns the online players, sorted.
func (in *Instance) PlayerList() []string {
	return in.players.List()
}

// PlayerCount returns the number of online players.
func (in *Instance) PlayerCount() int {
	return in.players.Count()
}

// UUID returns the instance identifier.
func (in *Instance) UUID() string {
	in.cfgMu.RLock()
	defer in.cfgMu.RUnlock()
	return in.cfg.UUID
}

// Name returns the instance display name.
func (in *Instance) Name() string {
	in.cfgMu.RLock()
	defer in.cfgMu.RUnlock()
	return in.cfg.Name
}

// Dir returns the instance working directory.
func (in *Instance) Dir() string {
	return in.dir
}

// ConfigSnapshot returns a copy of the current configuration.
func (in *Instance) ConfigSnapshot() *config.InstanceConfig {
	in.cfgMu.RLock()
	defer in.cfgMu.RUnlock()
	cp := *in.cfg
	return &cp
}

// UpdateConfig applies a mutation to a copy of the configuration, validates
// and persists it, and only then makes it live. A rejected mutation leaves
// the running configuration untouched.
func (in *Instance) UpdateConfig(mutate func(*config.InstanceConfig)) error {
	in.cfgMu.Lock()
	defer in.cfgMu.Unlock()

	cp := *in.cfg
	mutate(&cp)
	if err := config.ValidateInstance(&cp); err != nil {
		return err
	}
	if err := config.SaveInstance(in.dir, &cp); err != nil {
		return err
	}
	in.cfg = &cp
	return nil
}

// SetBackupPeriod updates the periodic backup interval. A nil or
// non-positive period disables timer-driven backups.
func (in *Instance) SetBackupPeriod(seconds *int) error {
	period := 0
	if seconds != nil && *seconds > 0 {
		period = *seconds
	}
	if err := in.UpdateConfig(func(c *config.InstanceConfig) {
		c.BackupPeriod = &period
	}); err != nil {
		return err
	}
	return in.backups.SetPeriod(period)
}

// TriggerBackupNow requests an immediate backup.
func (in *Instance) TriggerBackupNow() error {
	return in.backups.BackupNow()
}

// PauseBackups suspends the backup scheduler until resumed.
func (in *Instance) PauseBackups() error {
	return in.backups.Pause()
}

// ResumeBackups lifts a previous pause.
func (in *Instance) ResumeBackups() error {
	return in.backups.Resume()
}

// Backups exposes the scheduler for backup listings.
func (in *Instance) Backups() *backup.Scheduler {
	return in.backups
}

// RunMacro executes a named script with positional arguments.
func (in *Instance) RunMacro(name string, args []string, invokedBy string) error {
	return in.macros.Run(name, args, invokedBy)
}

// ConnectAdmin dials the configured RCON endpoint.
func (in *Instance) ConnectAdmin() error {
	cfg := in.ConfigSnapshot()
	if cfg.RconPort == 0 || cfg.RconPassword == "" {
		return ErrAdminChannelNotConnected
	}

	client, err := rcon.Dial(fmt.Sprintf("127.0.0.1:%d", cfg.RconPort), cfg.RconPassword)
	if err != nil {
		return fmt.Errorf("failed to connect admin channel: %w", err)
	}

	in.adminMu.Lock()
	old := in.admin
	in.admin = client
	in.adminMu.Unlock()

	if old != nil {
		old.Close()
	}
	log.Printf("[Instance %s] admin channel connected", cfg.Name)
	return nil
}

// SendAdminCommand runs a command over the admin side-channel and returns the
// server's reply.
func (in *Instance) SendAdminCommand(cmd string) (string, error) {
	in.adminMu.Lock()
	defer in.adminMu.Unlock()

	if in.admin == nil {
		return "", ErrAdminChannelNotConnected
	}
	reply, err := in.admin.Execute(cmd)
	if err != nil {
		return "", fmt.Errorf("admin command failed: %w", err)
	}
	return reply, nil
}

// Dispatcher exposes the event dispatcher for external taps (console
// streaming, event history).
func (in *Instance) Dispatcher() *events.Dispatcher {
	return in.dispatcher
}

// Shutdown tears the instance down: stops the process if running, then the
// scheduler, listener and admin channel.
func (in *Instance) Shutdown() {
	if err := in.Stop(); err != nil && err != ErrNotRunning {
		log.Printf("[Instance %s] shutdown stop failed: %v", in.Name(), err)
	}

	in.stateMu.Lock()
	done := in.pumpDone
	in.stateMu.Unlock()
	if done != nil {
		select {
		case <-done:
		case <-time.After(30 * time.Second):
			log.Printf("[Instance %s] process did not exit in time", in.Name())
		}
	}

	in.stopListener()
	in.disconnectAdmin()
	in.backups.Close()
}

// pump reads process output for the lifetime of one child process, feeds the
// event pipeline, and performs the crash/normal-shutdown branch when the
// stream ends.
func (in *Instance) pump(proc Process, done chan struct{}) {
	scanner := bufio.NewScanner(proc.Stdout())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		in.dispatcher.Dispatch(events.ParseLine(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		log.Printf("[Instance %s] output read error: %v", in.Name(), err)
	}
	if err := proc.Wait(); err != nil {
		log.Printf("[Instance %s] process exited: %v", in.Name(), err)
	}

	in.stdinMu.Lock()
	in.stdin = nil
	in.stdinMu.Unlock()

	// The state flips before the shutdown event goes out so no observer
	// sees shutdown_complete while Status still reads Running.
	in.stateMu.Lock()
	prev := in.state
	in.state = StateStopped
	in.stateMu.Unlock()

	in.disconnectAdmin()
	in.players.Clear()
	in.dispatcher.Dispatch(events.ShutdownComplete())

	crashed := prev == StateRunning
	switch prev {
	case StateStopping:
		log.Printf("[Instance %s] stopped", in.Name())
	case StateRunning:
		log.Printf("[Instance %s] process exited unexpectedly", in.Name())
	case StateStarting:
		log.Printf("[Instance %s] process crashed during startup", in.Name())
	}

	close(done)

	if crashed && in.restartOnCrash() {
		log.Printf("[Instance %s] restarting after crash", in.Name())
		if err := in.Start(); err != nil {
			log.Printf("[Instance %s] crash restart failed: %v", in.Name(), err)
			in.armListener()
		}
		return
	}
	in.armListener()
}

func (in *Instance) onPlayerJoined(e events.Event) {
	if in.players.Add(e.Player) {
		log.Printf("[Instance %s] %s joined (%d online)", in.Name(), e.Player, in.players.Count())
	}
}

func (in *Instance) onPlayerLeft(e events.Event) {
	if !in.players.Remove(e.Player) {
		return
	}
	log.Printf("[Instance %s] %s left (%d online)", in.Name(), e.Player, in.players.Count())

	if in.players.Count() == 0 {
		if d := in.timeoutLastLeft(); d > 0 {
			in.startWatchdog("last-player-left", d, &in.lastLeftArmed)
		}
	}
}

func (in *Instance) onChat(e events.Event) {
	const trigger = ".macro"
	if !strings.HasPrefix(e.Message, trigger+" ") && e.Message != trigger {
		return
	}

	fields := strings.Fields(strings.TrimPrefix(e.Message, trigger))
	if len(fields) == 0 {
		return
	}
	name, args, invoker := fields[0], fields[1:], e.Player

	go func() {
		if err := in.RunMacro(name, args, invoker); err != nil {
			log.Printf("[Instance %s] macro %q failed: %v", in.Name(), name, err)
			if sendErr := in.SendLine(fmt.Sprintf("say macro %s failed: %v", name, err)); sendErr != nil {
				log.Printf("[Instance %s] failed to relay macro error: %v", in.Name(), sendErr)
			}
		}
	}()
}

func (in *Instance) onStartupComplete(events.Event) {
	in.stateMu.Lock()
	if in.state == StateStarting {
		in.state = StateRunning
	}
	in.stateMu.Unlock()
	log.Printf("[Instance %s] startup complete", in.Name())

	go in.connectAdminWithRetry()

	if d := in.timeoutNoActivity(); d > 0 {
		in.startWatchdog("no-activity", d, &in.noActivityArmed)
	}
}

func (in *Instance) onStoppingDetected(events.Event) {
	// An operator typing "stop" in-game bypasses Stop(); the log line is the
	// only signal the shutdown is intentional.
	in.stateMu.Lock()
	if in.state == StateRunning {
		in.state = StateStopping
	}
	in.stateMu.Unlock()
}

func (in *Instance) connectAdminWithRetry() {
	for attempt := 0; attempt < 5; attempt++ {
		if in.Status() != StateRunning {
			return
		}
		err := in.ConnectAdmin()
		if err == nil || err == ErrAdminChannelNotConnected {
			return
		}
		time.Sleep(2 * time.Second)
	}
	log.Printf("[Instance %s] giving up on admin channel", in.Name())
}

func (in *Instance) disconnectAdmin() {
	in.adminMu.Lock()
	defer in.adminMu.Unlock()
	if in.admin != nil {
		in.admin.Close()
		in.admin = nil
	}
}

func (in *Instance) setState(s State) {
	in.stateMu.Lock()
	in.state = s
	in.stateMu.Unlock()
}

func (in *Instance) restartOnCrash() bool {
	in.cfgMu.RLock()
	defer in.cfgMu.RUnlock()
	return in.cfg.RestartOnCrash != nil && *in.cfg.RestartOnCrash
}

func (in *Instance) startOnConnection() bool {
	in.cfgMu.RLock()
	defer in.cfgMu.RUnlock()
	return in.cfg.StartOnConnection != nil && *in.cfg.StartOnConnection
}

func (in *Instance) timeoutLastLeft() int {
	in.cfgMu.RLock()
	defer in.cfgMu.RUnlock()
	if in.cfg.TimeoutLastLeft == nil {
		return -1
	}
	return *in.cfg.TimeoutLastLeft
}

func (in *Instance) timeoutNoActivity() int {
	in.cfgMu.RLock()
	defer in.cfgMu.RUnlock()
	if in.cfg.TimeoutNoActivity == nil {
		return -1
	}
	return *in.cfg.TimeoutNoActivity
}

func (in *Instance) currentPumpDone() <-chan struct{} {
	in.stateMu.Lock()
	defer in.stateMu.Unlock()
	return in.pumpDone
}
