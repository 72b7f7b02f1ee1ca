package instance

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/yourusername/minecraft-server-manager/internal/config"
	"github.com/yourusername/minecraft-server-manager/internal/events"
)

// Manager owns the fleet of instances under one root directory.
type Manager struct {
	root string
	opts Options

	// eventSink receives every event from every instance, tagged with the
	// instance id. Set before Restore so restored instances are tapped too.
	eventSink func(instanceID string, e events.Event)

	// backupHook runs after each successful snapshot of any instance.
	backupHook func(instanceID, snapshotDir string)

	mu        sync.RWMutex
	instances map[string]*Instance
}

// NewManager creates a manager rooted at instancesDir.
func NewManager(instancesDir string, opts Options) (*Manager, error) {
	if err := os.MkdirAll(instancesDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create instances directory: %w", err)
	}
	return &Manager{
		root:      instancesDir,
		opts:      opts,
		instances: make(map[string]*Instance),
	}, nil
}

// SetEventSink installs the fleet-wide event tap.
func (m *Manager) SetEventSink(sink func(instanceID string, e events.Event)) {
	m.eventSink = sink
}

// SetBackupHook installs the fleet-wide post-backup hook.
func (m *Manager) SetBackupHook(hook func(instanceID, snapshotDir string)) {
	m.backupHook = hook
}

// Create provisions a new instance: defaults, validation, working directory,
// eula and server.properties, persisted config.
func (m *Manager) Create(cfg *config.InstanceConfig) (*Instance, error) {
	if cfg.UUID == "" {
		cfg.UUID = uuid.New().String()
	}
	cfg.FillDefaults()
	if err := config.ValidateInstance(cfg); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.instances[cfg.UUID]; exists {
		return nil, fmt.Errorf("instance %s already exists", cfg.UUID)
	}
	for _, other := range m.instances {
		if other.Name() == cfg.Name {
			return nil, fmt.Errorf("instance name %q already in use", cfg.Name)
		}
	}

	dir := filepath.Join(m.root, cfg.UUID)
	if err := provisionDirs(dir); err != nil {
		return nil, err
	}
	if err := writeEula(dir); err != nil {
		return nil, err
	}
	if err := writeServerProperties(dir, cfg); err != nil {
		return nil, err
	}
	if err := config.SaveInstance(dir, cfg); err != nil {
		return nil, err
	}

	in, err := m.build(cfg, dir)
	if err != nil {
		return nil, err
	}
	m.instances[cfg.UUID] = in
	log.Printf("[Manager] created instance %s (%s)", cfg.Name, cfg.UUID)
	return in, nil
}

// Restore loads every persisted instance under the root directory. Configs
// are re-applied verbatim, never re-defaulted. Instances with auto_start set
// are started.
func (m *Manager) Restore() error {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return fmt.Errorf("failed to read instances directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(m.root, entry.Name())

		cfg, err := config.LoadInstance(dir)
		if err != nil {
			log.Printf("[Manager] skipping %s: %v", entry.Name(), err)
			continue
		}

		in, err := m.build(cfg, dir)
		if err != nil {
			log.Printf("[Manager] failed to restore %s: %v", cfg.Name, err)
			continue
		}

		m.mu.Lock()
		m.instances[cfg.UUID] = in
		m.mu.Unlock()
		log.Printf("[Manager] restored instance %s (%s)", cfg.Name, cfg.UUID)

		if cfg.AutoStart != nil && *cfg.AutoStart {
			if err := in.Start(); err != nil {
				log.Printf("[Manager] auto-start failed for %s: %v", cfg.Name, err)
			}
		}
	}
	return nil
}

// Get returns an instance by id.
func (m *Manager) Get(id string) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	in, ok := m.instances[id]
	return in, ok
}

// List returns all instances sorted by name.
func (m *Manager) List() []*Instance {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Instance, 0, len(m.instances))
	for _, in := range m.instances {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Remove tears an instance down and deletes its working directory.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	in, ok := m.instances[id]
	if ok {
		delete(m.instances, id)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("instance %s not found", id)
	}

	in.Shutdown()
	if err := os.RemoveAll(in.Dir()); err != nil {
		return fmt.Errorf("failed to delete instance directory: %w", err)
	}
	log.Printf("[Manager] removed instance %s", id)
	return nil
}

// ShutdownAll tears every instance down, leaving data on disk.
func (m *Manager) ShutdownAll() {
	for _, in := range m.List() {
		in.Shutdown()
	}
}

func (m *Manager) build(cfg *config.InstanceConfig, dir string) (*Instance, error) {
	opts := m.opts
	id := cfg.UUID
	if m.eventSink != nil {
		sink := m.eventSink
		opts.EventSink = func(e events.Event) { sink(id, e) }
	}
	if m.backupHook != nil {
		hook := m.backupHook
		opts.AfterBackup = func(snapshotDir string) { hook(id, snapshotDir) }
	}
	return New(cfg, dir, opts)
}

func provisionDirs(dir string) error {
	for _, sub := range []string{"", "world", "backups", "macros"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return fmt.Errorf("failed to create instance directory: %w", err)
		}
	}
	return nil
}

func writeEula(dir string) error {
	path := filepath.Join(dir, "eula.txt")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.WriteFile(path, []byte("eula=true\n"), 0644); err != nil {
		return fmt.Errorf("failed to write eula.txt: %w", err)
	}
	return nil
}

func writeServerProperties(dir string, cfg *config.InstanceConfig) error {
	path := filepath.Join(dir, "server.properties")
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	props := fmt.Sprintf("server-port=%d\nquery.port=%d\n", cfg.Port, cfg.Port)
	if cfg.RconPort != 0 && cfg.RconPassword != "" {
		props += fmt.Sprintf("enable-rcon=true\nrcon.port=%d\nrcon.password=%s\n", cfg.RconPort, cfg.RconPassword)
	}
	if err := os.WriteFile(path, []byte(props), 0644); err != nil {
		return fmt.Errorf("failed to write server.properties: %w", err)
	}
	return nil
}
