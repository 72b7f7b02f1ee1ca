package backup

import (
	"errors"
	"log"
	"sync"
	"time"
)

// ErrSchedulerStopped is returned from control methods after Close.
var ErrSchedulerStopped = errors.New("backup scheduler is stopped")

type instructionKind int

const (
	instrSetPeriod instructionKind = iota
	instrBackupNow
	instrPause
	instrResume
)

type instruction struct {
	kind   instructionKind
	period int
}

// Options configure one per-instance scheduler.
type Options struct {
	// WorldDir is the live world data directory to snapshot.
	WorldDir string
	// BackupDir receives timestamped snapshot directories.
	BackupDir string
	// Retain caps how many snapshots are kept; older ones are pruned.
	Retain int
	// Tick is the counter interval, one second in production.
	Tick time.Duration
	// Eligible reports whether the instance is in a state worth backing up
	// (running). Ticks while ineligible do not advance the counter.
	Eligible func() bool
	// AfterBackup, when set, runs after each successful snapshot with the
	// snapshot directory path (offsite upload hook).
	AfterBackup func(snapshotDir string)
}

// Scheduler is the per-instance backup actor. It owns an optional period and
// a tick counter; instructions arrive on a channel and take priority over
// tick-driven logic. Pause enters a sub-loop that discards every instruction
// except Resume.
type Scheduler struct {
	opts         Options
	instructions chan instruction
	closed       chan struct{}

	// mu serializes Close against sends so a control method can never
	// enqueue an instruction the actor will no longer consume.
	mu sync.Mutex
}

func NewScheduler(opts Options) *Scheduler {
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.Eligible == nil {
		opts.Eligible = func() bool { return true }
	}
	return &Scheduler{
		opts:         opts,
		instructions: make(chan instruction, 16),
		closed:       make(chan struct{}),
	}
}

// SetPeriod replaces the backup period. Zero or negative disables
// timer-driven backups.
func (s *Scheduler) SetPeriod(seconds int) error {
	return s.send(instruction{kind: instrSetPeriod, period: seconds})
}

// BackupNow requests an immediate backup and resets the counter.
func (s *Scheduler) BackupNow() error {
	return s.send(instruction{kind: instrBackupNow})
}

// Pause suspends timer-driven and explicit backups until Resume.
func (s *Scheduler) Pause() error {
	return s.send(instruction{kind: instrPause})
}

// Resume lifts a previous Pause. A Resume with no pause pending is a no-op.
func (s *Scheduler) Resume() error {
	return s.send(instruction{kind: instrResume})
}

// Close terminates the actor. Control methods fail afterwards.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.closed:
		return
	default:
	}
	close(s.closed)
}

func (s *Scheduler) send(instr instruction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.closed:
		return ErrSchedulerStopped
	default:
	}
	// The actor is guaranteed live here: Close needs the lock we hold, so
	// the channel send cannot be orphaned.
	s.instructions <- instr
	return nil
}

// Run is the actor loop. It exits when Close is called.
func (s *Scheduler) Run() {
	ticker := time.NewTicker(s.opts.Tick)
	defer ticker.Stop()

	period := 0
	counter := 0

	for {
		select {
		case <-s.closed:
			return

		case instr := <-s.instructions:
			switch instr.kind {
			case instrSetPeriod:
				period = instr.period
				counter = 0
				if period > 0 {
					log.Printf("[Backup] period set to %ds", period)
				} else {
					log.Printf("[Backup] periodic backups disabled")
				}
			case instrBackupNow:
				s.backup()
				counter = 0
			case instrPause:
				if !s.pauseLoop() {
					return
				}
			case instrResume:
				// Not paused; nothing to resume.
			}

		case <-ticker.C:
			if period <= 0 || !s.opts.Eligible() {
				continue
			}
			counter++
			if counter >= period {
				s.backup()
				counter = 0
			}
		}
	}
}

// pauseLoop blocks until Resume arrives. Every other instruction received
// while paused is discarded, ticks included. Returns false when the
// scheduler was closed while paused.
func (s *Scheduler) pauseLoop() bool {
	log.Printf("[Backup] paused")
	for {
		select {
		case <-s.closed:
			return false
		case instr := <-s.instructions:
			if instr.kind == instrResume {
				log.Printf("[Backup] resumed")
				return true
			}
			log.Printf("[Backup] instruction discarded while paused")
		}
	}
}

func (s *Scheduler) backup() {
	dir, err := Snapshot(s.opts.WorldDir, s.opts.BackupDir)
	if err != nil {
		log.Printf("[Backup] snapshot failed: %v", err)
		return
	}
	if s.opts.Retain > 0 {
		if err := Prune(s.opts.BackupDir, s.opts.Retain); err != nil {
			log.Printf("[Backup] prune failed: %v", err)
		}
	}
	if s.opts.AfterBackup != nil {
		s.opts.AfterBackup(dir)
	}
}

// List returns the snapshots currently on disk, newest first.
func (s *Scheduler) List() ([]SnapshotInfo, error) {
	return ListSnapshots(s.opts.BackupDir)
}
