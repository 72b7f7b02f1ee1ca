package config

import (
	"testing"
)

func TestFillDefaultsAppliedOnce(t *testing.T) {
	cfg := &InstanceConfig{
		UUID:    "a2f1",
		Name:    "survival",
		Version: "1.20.4",
		Port:    25565,
	}
	cfg.FillDefaults()

	if cfg.MinRAMMB != 1000 || cfg.MaxRAMMB != 3000 {
		t.Fatalf("unexpected ram defaults: %d/%d", cfg.MinRAMMB, cfg.MaxRAMMB)
	}
	if cfg.AutoStart == nil || *cfg.AutoStart {
		t.Fatalf("auto_start should default to false")
	}
	if cfg.TimeoutLastLeft == nil || *cfg.TimeoutLastLeft != -1 {
		t.Fatalf("timeout_last_left should default to -1")
	}
	if cfg.Flavour.Kind != FlavourVanilla {
		t.Fatalf("flavour should default to vanilla, got %q", cfg.Flavour.Kind)
	}

	// A restored config keeps its stored values.
	*cfg.TimeoutLastLeft = 300
	cfg.MinRAMMB = 512
	cfg.FillDefaults()
	if *cfg.TimeoutLastLeft != 300 || cfg.MinRAMMB != 512 {
		t.Fatalf("defaults were re-applied over stored values")
	}
}

func TestInstanceConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()

	enabled := true
	timeout := 300
	period := 3600
	original := &InstanceConfig{
		UUID:    "7c9e6679-7425-40de-944b-e07fc1f90ae7",
		Name:    "creative",
		Version: "1.20.4",
		Flavour: Flavour{
			Kind:                "fabric",
			FabricLoaderVersion: "0.15.6",
		},
		Port:              25566,
		RconPort:          25575,
		MinRAMMB:          2048,
		MaxRAMMB:          4096,
		AutoStart:         &enabled,
		RestartOnCrash:    &enabled,
		StartOnConnection: &enabled,
		TimeoutLastLeft:   &timeout,
		TimeoutNoActivity: &timeout,
		BackupPeriod:      &period,
		RconPassword:      "hunter2",
	}

	if err := SaveInstance(dir, original); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := LoadInstance(dir)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if loaded.UUID != original.UUID || loaded.Name != original.Name {
		t.Fatalf("identity mismatch: %+v", loaded)
	}
	if loaded.Flavour != original.Flavour {
		t.Fatalf("flavour mismatch: %+v vs %+v", loaded.Flavour, original.Flavour)
	}
	if *loaded.AutoStart != true || *loaded.TimeoutLastLeft != 300 || *loaded.BackupPeriod != 3600 {
		t.Fatalf("optional fields mismatch: %+v", loaded)
	}
	if loaded.MinRAMMB != 2048 || loaded.MaxRAMMB != 4096 {
		t.Fatalf("ram mismatch: %d/%d", loaded.MinRAMMB, loaded.MaxRAMMB)
	}
	if loaded.RconPassword != "hunter2" {
		t.Fatalf("rcon password mismatch")
	}
}

func TestValidateInstance(t *testing.T) {
	base := func() *InstanceConfig {
		cfg := &InstanceConfig{
			UUID:    "id",
			Name:    "lobby",
			Version: "1.20.4",
			Port:    25565,
		}
		cfg.FillDefaults()
		return cfg
	}

	if err := ValidateInstance(base()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cfg := base()
	cfg.Name = "lobby; rm -rf /"
	if err := ValidateInstance(cfg); err == nil {
		t.Fatalf("expected error for shell metacharacters in name")
	}

	cfg = base()
	cfg.Port = 0
	if err := ValidateInstance(cfg); err == nil {
		t.Fatalf("expected error for port 0")
	}

	cfg = base()
	cfg.Flavour.Kind = "bukkit"
	if err := ValidateInstance(cfg); err == nil {
		t.Fatalf("expected error for unknown flavour")
	}

	cfg = base()
	cfg.MinRAMMB = 8192
	if err := ValidateInstance(cfg); err == nil {
		t.Fatalf("expected error for min_ram > max_ram")
	}
}
