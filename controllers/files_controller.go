package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/filedrop/middleware"
	"github.com/cppla/filedrop/storage"
	"github.com/cppla/filedrop/utils"
)

// FilesController lists the uploads directory.
type FilesController struct {
	store  *storage.Store
	logger *zap.Logger
}

// NewFilesController creates a FilesController over store.
func NewFilesController(store *storage.Store, logger *zap.Logger) *FilesController {
	return &FilesController{store: store, logger: logger}
}

// List handles GET /files.
func (f *FilesController) List(ctx *gin.Context) {
	files, err := f.store.List(ctx.Request.Context())
	if err != nil {
		f.logger.Error("list files failed",
			zap.String("request_id", middleware.GetRequestID(ctx)),
			zap.Error(err),
		)
		utils.Fail(ctx, http.StatusInternalServerError, "Could not list files", err.Error(), nil)
		return
	}
	utils.Success(ctx, http.StatusOK, gin.H{"files": files})
}
