package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/filedrop/models"
	"github.com/cppla/filedrop/storage"
	"github.com/cppla/filedrop/utils"
)

// HealthController answers liveness checks.
type HealthController struct {
	store *storage.Store
}

// NewHealthController creates a HealthController reporting store's directory.
func NewHealthController(store *storage.Store) *HealthController {
	return &HealthController{store: store}
}

// Health always reports 200.
func (h *HealthController) Health(ctx *gin.Context) {
	utils.Success(ctx, http.StatusOK, gin.H{
		"message":          "Server is running",
		"timestamp":        time.Now().UTC().Format(models.TimeLayout),
		"uploadsDirectory": h.store.Dir(),
	})
}
