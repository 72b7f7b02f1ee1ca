package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/minecraft-server-manager/internal/backup"
	"github.com/yourusername/minecraft-server-manager/internal/database"
	"github.com/yourusername/minecraft-server-manager/internal/instance"
)

// BackupHandler exposes per-instance backup operations
type BackupHandler struct {
	manager  *instance.Manager
	recorder *database.Recorder
}

// NewBackupHandler creates a new backup handler
func NewBackupHandler(manager *instance.Manager, recorder *database.Recorder) *BackupHandler {
	return &BackupHandler{manager: manager, recorder: recorder}
}

// RegisterRoutes attaches backup routes under the instances group
func (h *BackupHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET(":id/backups", h.ListBackups)
	group.POST(":id/backups", h.CreateBackup)
	group.GET(":id/backups/history", h.GetHistory)
	group.POST(":id/backups/pause", h.PauseBackups)
	group.POST(":id/backups/resume", h.ResumeBackups)
	group.PUT(":id/backups/period", h.SetPeriod)
}

func (h *BackupHandler) lookup(c *gin.Context) (*instance.Instance, bool) {
	in, ok := h.manager.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Instance not found"})
		return nil, false
	}
	return in, true
}

func schedulerErrorStatus(err error) int {
	if errors.Is(err, backup.ErrSchedulerStopped) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// ListBackups returns the local snapshots for an instance, newest first
func (h *BackupHandler) ListBackups(c *gin.Context) {
	in, ok := h.lookup(c)
	if !ok {
		return
	}

	snapshots, err := in.Backups().List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list backups"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"backups": snapshots})
}

// CreateBackup requests an immediate snapshot
func (h *BackupHandler) CreateBackup(c *gin.Context) {
	in, ok := h.lookup(c)
	if !ok {
		return
	}

	if err := in.TriggerBackupNow(); err != nil {
		c.JSON(schedulerErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Backup requested"})
}

// GetHistory returns recorded snapshots from the database
func (h *BackupHandler) GetHistory(c *gin.Context) {
	in, ok := h.lookup(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	history, err := h.recorder.BackupHistory(in.UUID(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load backup history"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

// PauseBackups suspends the scheduler until resumed
func (h *BackupHandler) PauseBackups(c *gin.Context) {
	in, ok := h.lookup(c)
	if !ok {
		return
	}

	if err := in.PauseBackups(); err != nil {
		c.JSON(schedulerErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Backups paused"})
}

// ResumeBackups lifts a previous pause
func (h *BackupHandler) ResumeBackups(c *gin.Context) {
	in, ok := h.lookup(c)
	if !ok {
		return
	}

	if err := in.ResumeBackups(); err != nil {
		c.JSON(schedulerErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Backups resumed"})
}

// SetPeriod updates the periodic backup interval in seconds. Zero disables
// timer-driven backups.
func (h *BackupHandler) SetPeriod(c *gin.Context) {
	in, ok := h.lookup(c)
	if !ok {
		return
	}

	var req struct {
		Seconds *int `json:"seconds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if *req.Seconds < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "seconds must not be negative"})
		return
	}

	if err := in.SetBackupPeriod(req.Seconds); err != nil {
		c.JSON(schedulerErrorStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Backup period updated"})
}
