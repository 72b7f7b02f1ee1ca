package handlers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/minecraft-server-manager/internal/config"
	"github.com/yourusername/minecraft-server-manager/internal/console"
	"github.com/yourusername/minecraft-server-manager/internal/database"
	"github.com/yourusername/minecraft-server-manager/internal/instance"
)

// InstanceHandler exposes instance lifecycle and console operations
type InstanceHandler struct {
	manager    *instance.Manager
	recorder   *database.Recorder
	scrollback *console.Store
}

// NewInstanceHandler creates a new instance handler
func NewInstanceHandler(manager *instance.Manager, recorder *database.Recorder, scrollback *console.Store) *InstanceHandler {
	return &InstanceHandler{manager: manager, recorder: recorder, scrollback: scrollback}
}

// instanceSummary is the list/detail representation of one instance.
type instanceSummary struct {
	UUID        string   `json:"uuid"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Flavour     string   `json:"flavour"`
	Description string   `json:"description,omitempty"`
	Port        int      `json:"port"`
	Status      string   `json:"status"`
	PlayerCount int      `json:"player_count"`
	Players     []string `json:"players"`
}

func summarize(in *instance.Instance) instanceSummary {
	cfg := in.ConfigSnapshot()
	return instanceSummary{
		UUID:        cfg.UUID,
		Name:        cfg.Name,
		Version:     cfg.Version,
		Flavour:     cfg.Flavour.Kind,
		Description: cfg.Description,
		Port:        cfg.Port,
		Status:      string(in.Status()),
		PlayerCount: in.PlayerCount(),
		Players:     in.PlayerList(),
	}
}

// lifecycleErrorStatus maps instance errors to HTTP status codes.
func lifecycleErrorStatus(err error) int {
	switch {
	case errors.Is(err, instance.ErrAlreadyStarting),
		errors.Is(err, instance.ErrAlreadyStopping),
		errors.Is(err, instance.ErrAlreadyRunning),
		errors.Is(err, instance.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, instance.ErrStdinClosed),
		errors.Is(err, instance.ErrAdminChannelNotConnected):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *InstanceHandler) lookup(c *gin.Context) (*instance.Instance, bool) {
	in, ok := h.manager.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Instance not found"})
		return nil, false
	}
	return in, true
}

// ListInstances returns all instances
func (h *InstanceHandler) ListInstances(c *gin.Context) {
	instances := h.manager.List()
	out := make([]instanceSummary, 0, len(instances))
	for _, in := range instances {
		out = append(out, summarize(in))
	}
	c.JSON(http.StatusOK, gin.H{"instances": out})
}

// CreateInstance provisions a new instance from a JSON config
func (h *InstanceHandler) CreateInstance(c *gin.Context) {
	var cfg config.InstanceConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in, err := h.manager.Create(&cfg)
	if err != nil {
		status := http.StatusBadRequest
		if strings.Contains(err.Error(), "already") {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, summarize(in))
}

// GetInstance returns one instance with its full configuration
func (h *InstanceHandler) GetInstance(c *gin.Context) {
	in, ok := h.lookup(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"instance": summarize(in),
		"config":   in.ConfigSnapshot(),
	})
}

// instanceSettings are the mutable configuration fields.
type instanceSettings struct {
	Description       *string `json:"description"`
	MinRAMMB          *int    `json:"min_ram"`
	MaxRAMMB          *int    `json:"max_ram"`
	AutoStart         *bool   `json:"auto_start"`
	RestartOnCrash    *bool   `json:"restart_on_crash"`
	StartOnConnection *bool   `json:"start_on_connection"`
	TimeoutLastLeft   *int    `json:"timeout_last_left"`
	TimeoutNoActivity *int    `json:"timeout_no_activity"`
	BackupPeriod      *int    `json:"backup_period"`
	JREPath           *string `json:"jre_path"`
}

// UpdateInstance applies a partial settings update
func (h *InstanceHandler) UpdateInstance(c *gin.Context) {
	in, ok := h.lookup(c)
	if !ok {
		return
	}

	var req instanceSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := in.UpdateConfig(func(cfg *config.InstanceConfig) {
		if req.Description != nil {
			cfg.Description = *req.Description
		}
		if req.MinRAMMB != nil {
			cfg.MinRAMMB = *req.MinRAMMB
		}
		if req.MaxRAMMB != nil {
			cfg.MaxRAMMB = *req.MaxRAMMB
		}
		if req.AutoStart != nil {
			cfg.AutoStart = req.AutoStart
		}
		if req.RestartOnCrash != nil {
			cfg.RestartOnCrash = req.RestartOnCrash
		}
		if req.StartOnConnection != nil {
			cfg.StartOnConnection = req.StartOnConnection
		}
		if req.TimeoutLastLeft != nil {
			cfg.TimeoutLastLeft = req.TimeoutLastLeft
		}
		if req.TimeoutNoActivity != nil {
			cfg.TimeoutNoActivity = req.TimeoutNoActivity
		}
		if req.JREPath != nil {
			cfg.JREPath = *req.JREPath
		}
	}); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// The backup period routes through the scheduler, not just the config.
	if req.BackupPeriod != nil {
		if err := in.SetBackupPeriod(req.BackupPeriod); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"instance": summarize(in),
		"config":   in.ConfigSnapshot(),
	})
}

// DeleteInstance shuts an instance down and removes its data
func (h *InstanceHandler) DeleteInstance(c *gin.Context) {
	if _, ok := h.lookup(c); !ok {
		return
	}

	id := c.Param("id")
	if err := h.manager.Remove(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.scrollback.Drop(id)
	c.JSON(http.StatusOK, gin.H{"message": "Instance removed"})
}

// StartInstance spawns the server process
func (h *InstanceHandler) StartInstance(c *gin.Context) {
	in, ok := h.lookup(c)
	if !ok {
		return
	}

	if err := in.Start(); err != nil {
		c.JSON(lifecycleErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": string(in.Status())})
}

// StopInstance requests a graceful shutdown
func (h *InstanceHandler) StopInstance(c *gin.Context) {
	in, ok := h.lookup(c)
	if !ok {
		return
	}

	if err := in.Stop(); err != nil {
		c.JSON(lifecycleErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": string(in.Status())})
}

// RestartInstance stops the server, waits for it to exit, then starts it
func (h *InstanceHandler) RestartInstance(c *gin.Context) {
	in, ok := h.lookup(c)
	if !ok {
		return
	}

	if err := in.Stop(); err != nil {
		c.JSON(lifecycleErrorStatus(err), gin.H{"error": err.Error()})
		return
	}

	deadline := time.Now().Add(60 * time.Second)
	for in.Status() != instance.StateStopped {
		if time.Now().After(deadline) {
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Instance did not stop in time"})
			return
		}
		time.Sleep(250 * time.Millisecond)
	}

	if err := in.Start(); err != nil {
		c.JSON(lifecycleErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": string(in.Status())})
}

// GetStatus returns the current lifecycle state
func (h *InstanceHandler) GetStatus(c *gin.Context) {
	in, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": string(in.Status())})
}

// GetPlayers returns the online player list
func (h *InstanceHandler) GetPlayers(c *gin.Context) {
	in, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"count":   in.PlayerCount(),
		"players": in.PlayerList(),
	})
}

// ExecuteCommand writes one line to the server console
func (h *InstanceHandler) ExecuteCommand(c *gin.Context) {
	in, ok := h.lookup(c)
	if !ok {
		return
	}

	var req struct {
		Command string `json:"command" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := in.SendLine(req.Command); err != nil {
		c.JSON(lifecycleErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Command sent"})
}

// ExecuteAdminCommand runs a command over the RCON side-channel and returns
// the server's reply
func (h *InstanceHandler) ExecuteAdminCommand(c *gin.Context) {
	in, ok := h.lookup(c)
	if !ok {
		return
	}

	var req struct {
		Command string `json:"command" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reply, err := in.SendAdminCommand(req.Command)
	if err != nil {
		c.JSON(lifecycleErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

// GetEvents returns persisted event history for an instance
func (h *InstanceHandler) GetEvents(c *gin.Context) {
	in, ok := h.lookup(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	rows, err := h.recorder.Recent(in.UUID(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": rows})
}

// GetConsole returns recent console scrollback for an instance
func (h *InstanceHandler) GetConsole(c *gin.Context) {
	in, ok := h.lookup(c)
	if !ok {
		return
	}

	lines, _ := strconv.Atoi(c.DefaultQuery("lines", "200"))
	tail := h.scrollback.Tail(in.UUID(), lines)
	if tail == nil {
		tail = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"lines": tail})
}

// ListMacros returns the names of available macro scripts
func (h *InstanceHandler) ListMacros(c *gin.Context) {
	in, ok := h.lookup(c)
	if !ok {
		return
	}

	entries, err := os.ReadDir(filepath.Join(in.Dir(), "macros"))
	if err != nil && !os.IsNotExist(err) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list macros"})
		return
	}

	macros := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if name, found := strings.CutSuffix(entry.Name(), ".macro"); found {
			macros = append(macros, name)
		}
	}
	c.JSON(http.StatusOK, gin.H{"macros": macros})
}

// RunMacro starts a macro script in the background
func (h *InstanceHandler) RunMacro(c *gin.Context) {
	in, ok := h.lookup(c)
	if !ok {
		return
	}

	name := c.Param("name")
	var req struct {
		Args []string `json:"args"`
	}
	_ = c.ShouldBindJSON(&req)

	username, _ := c.Get("username")
	invoker, _ := username.(string)

	// Scripts can block on delay/await_chat, so they run detached. A missing
	// script is the one failure worth reporting synchronously.
	if _, err := os.Stat(filepath.Join(in.Dir(), "macros", name+".macro")); err != nil || strings.ContainsAny(name, "/\\") {
		c.JSON(http.StatusNotFound, gin.H{"error": "Macro not found"})
		return
	}

	go func() {
		if err := in.RunMacro(name, req.Args, invoker); err != nil {
			log.Printf("[API] macro %q failed on %s: %v", name, in.Name(), err)
			if sendErr := in.SendLine(fmt.Sprintf("say macro %s failed: %v", name, err)); sendErr != nil {
				log.Printf("[API] failed to relay macro error for %s: %v", in.Name(), sendErr)
			}
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"message": "Macro started"})
}
