package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// InstanceFile is the per-instance configuration file name, stored in the
// instance's working directory.
const InstanceFile = "instance.yaml"

// Flavour kinds
const (
	FlavourVanilla = "vanilla"
	FlavourFabric  = "fabric"
	FlavourPaper   = "paper"
	FlavourSpigot  = "spigot"
	FlavourForge   = "forge"
)

// Flavour identifies the server software variant. Sub-version fields only
// apply to the kinds that carry them.
type Flavour struct {
	Kind                   string `yaml:"kind" json:"kind"`
	FabricLoaderVersion    string `yaml:"fabric_loader_version,omitempty" json:"fabric_loader_version,omitempty"`
	FabricInstallerVersion string `yaml:"fabric_installer_version,omitempty" json:"fabric_installer_version,omitempty"`
	PaperBuildVersion      string `yaml:"paper_build_version,omitempty" json:"paper_build_version,omitempty"`
	ForgeBuildVersion      string `yaml:"forge_build_version,omitempty" json:"forge_build_version,omitempty"`
}

// InstanceConfig holds one managed server's identity and launch parameters.
// Timeouts are in seconds; values <= 0 disable the corresponding watchdog.
type InstanceConfig struct {
	UUID        string  `yaml:"uuid" json:"uuid"`
	Name        string  `yaml:"name" json:"name"`
	Version     string  `yaml:"version" json:"version"`
	Flavour     Flavour `yaml:"flavour" json:"flavour"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`

	Port     int `yaml:"port" json:"port"`
	RconPort int `yaml:"rcon_port,omitempty" json:"rcon_port,omitempty"`

	MinRAMMB int `yaml:"min_ram" json:"min_ram"`
	MaxRAMMB int `yaml:"max_ram" json:"max_ram"`

	AutoStart         *bool `yaml:"auto_start" json:"auto_start"`
	RestartOnCrash    *bool `yaml:"restart_on_crash" json:"restart_on_crash"`
	StartOnConnection *bool `yaml:"start_on_connection" json:"start_on_connection"`

	TimeoutLastLeft   *int `yaml:"timeout_last_left" json:"timeout_last_left"`
	TimeoutNoActivity *int `yaml:"timeout_no_activity" json:"timeout_no_activity"`

	BackupPeriod *int `yaml:"backup_period" json:"backup_period"`

	JREPath      string `yaml:"jre_path,omitempty" json:"jre_path,omitempty"`
	RconPassword string `yaml:"rcon_password,omitempty" json:"rcon_password,omitempty"`
}

// FillDefaults populates unset optional fields. Called exactly once, when an
// instance is first created; restored configs are re-applied verbatim.
func (c *InstanceConfig) FillDefaults() {
	if c.MinRAMMB == 0 {
		c.MinRAMMB = 1000
	}
	if c.MaxRAMMB == 0 {
		c.MaxRAMMB = 3000
	}
	if c.AutoStart == nil {
		c.AutoStart = boolPtr(false)
	}
	if c.RestartOnCrash == nil {
		c.RestartOnCrash = boolPtr(false)
	}
	if c.StartOnConnection == nil {
		c.StartOnConnection = boolPtr(false)
	}
	if c.TimeoutLastLeft == nil {
		c.TimeoutLastLeft = intPtr(-1)
	}
	if c.TimeoutNoActivity == nil {
		c.TimeoutNoActivity = intPtr(-1)
	}
	if c.BackupPeriod == nil {
		c.BackupPeriod = intPtr(0)
	}
	if c.Flavour.Kind == "" {
		c.Flavour.Kind = FlavourVanilla
	}
}

// ValidateInstance checks an instance configuration before it is accepted.
func ValidateInstance(cfg *InstanceConfig) error {
	if cfg.UUID == "" {
		return fmt.Errorf("instance uuid is required")
	}
	if cfg.Name == "" {
		return fmt.Errorf("instance name is required")
	}
	if !isValidName(cfg.Name) {
		return fmt.Errorf("instance name contains invalid characters")
	}
	if cfg.Version == "" {
		return fmt.Errorf("instance version is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("instance port must be between 1 and 65535")
	}
	if cfg.MinRAMMB > cfg.MaxRAMMB {
		return fmt.Errorf("min_ram (%d) exceeds max_ram (%d)", cfg.MinRAMMB, cfg.MaxRAMMB)
	}
	switch cfg.Flavour.Kind {
	case FlavourVanilla, FlavourFabric, FlavourPaper, FlavourSpigot, FlavourForge:
	default:
		return fmt.Errorf("unknown flavour %q", cfg.Flavour.Kind)
	}
	if cfg.JREPath != "" && !isValidPath(cfg.JREPath) {
		return fmt.Errorf("jre_path contains invalid characters")
	}
	return nil
}

// LoadInstance reads an instance configuration from its working directory.
func LoadInstance(instanceDir string) (*InstanceConfig, error) {
	path := filepath.Join(instanceDir, InstanceFile)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read instance config: %w", err)
	}

	var cfg InstanceConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse instance config: %w", err)
	}

	if err := ValidateInstance(&cfg); err != nil {
		return nil, fmt.Errorf("invalid instance config: %w", err)
	}

	return &cfg, nil
}

// SaveInstance persists an instance configuration to its working directory.
// The write goes through a temp file so a crash mid-write never leaves a
// truncated config behind.
func SaveInstance(instanceDir string, cfg *InstanceConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal instance config: %w", err)
	}

	if err := os.MkdirAll(instanceDir, 0755); err != nil {
		return fmt.Errorf("failed to create instance directory: %w", err)
	}

	path := filepath.Join(instanceDir, InstanceFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write instance config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace instance config: %w", err)
	}

	return nil
}

func isValidName(s string) bool {
	if strings.TrimSpace(s) == "" {
		return false
	}
	return !strings.ContainsAny(s, ";|&$`()<>\"'\n/\\")
}

func isValidPath(s string) bool {
	// Block shell metacharacters that could allow command injection
	dangerous := ";|&$`()<>\"'\n"
	return !strings.ContainsAny(s, dangerous)
}

func boolPtr(v bool) *bool { return &v }
func intPtr(v int) *int    { return &v }
