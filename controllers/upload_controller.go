package controllers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/filedrop/config"
	"github.com/cppla/filedrop/middleware"
	"github.com/cppla/filedrop/models"
	"github.com/cppla/filedrop/storage"
	"github.com/cppla/filedrop/utils"
)

const (
	fileFieldName = "file"
	pathFieldName = "path"
	previewRunes  = 500

	codeMalformed      = "MALFORMED_MULTIPART"
	codeFileCount      = "LIMIT_FILE_COUNT"
	codeUnexpectedFile = "LIMIT_UNEXPECTED_FILE"
)

// UploadController accepts single-file multipart uploads.
type UploadController struct {
	store  *storage.Store
	logger *zap.Logger
	now    func() time.Time

	maxFileBytes  int64
	maxFieldBytes int64
	maxFileSize   string
	maxFieldSize  string
}

// NewUploadController creates an UploadController writing into store.
func NewUploadController(store *storage.Store, cfg config.AppConfig, logger *zap.Logger) *UploadController {
	return &UploadController{
		store:         store,
		logger:        logger,
		now:           time.Now,
		maxFileBytes:  cfg.MaxFileBytes(),
		maxFieldBytes: cfg.MaxFieldBytes(),
		maxFileSize:   fmt.Sprintf("%dMB", cfg.MaxFileSizeMB),
		maxFieldSize:  fmt.Sprintf("%dMB", cfg.MaxFieldSizeMB),
	}
}

// uploadError is a request failure already mapped onto its response.
type uploadError struct {
	status  int
	err     string
	details string
	extra   gin.H
}

func malformed(details string) *uploadError {
	return &uploadError{http.StatusBadRequest, "Upload error", details, gin.H{"code": codeMalformed}}
}

// Upload handles POST /upload. The body is streamed part by part; the file
// part goes straight to disk.
func (u *UploadController) Upload(ctx *gin.Context) {
	rid := middleware.GetRequestID(ctx)
	log := u.logger.With(zap.String("request_id", rid))

	mr, err := ctx.Request.MultipartReader()
	if err != nil {
		u.fail(ctx, log, malformed(err.Error()))
		return
	}

	var (
		saved        *storage.SavedFile
		originalName string
		mimeType     string
		declaredPath string
		uploadedAt   time.Time
	)
	discard := func() {
		if saved != nil {
			if err := u.store.Remove(saved.Name); err != nil {
				log.Warn("remove partial upload failed", zap.String("savedAs", saved.Name), zap.Error(err))
			}
		}
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			discard()
			u.fail(ctx, log, malformed(err.Error()))
			return
		}

		if part.FileName() == "" {
			value, uerr := u.readField(part)
			part.Close()
			if uerr != nil {
				discard()
				u.fail(ctx, log, uerr)
				return
			}
			if part.FormName() == pathFieldName {
				declaredPath = value
			}
			continue
		}

		switch {
		case part.FormName() != fileFieldName:
			part.Close()
			discard()
			u.fail(ctx, log, &uploadError{http.StatusBadRequest, "Upload error",
				fmt.Sprintf("Unexpected file field %q", part.FormName()), gin.H{"code": codeUnexpectedFile}})
			return
		case saved != nil:
			part.Close()
			discard()
			u.fail(ctx, log, &uploadError{http.StatusBadRequest, "Upload error",
				"Only one file may be uploaded per request", gin.H{"code": codeFileCount}})
			return
		}

		originalName = part.FileName()
		mimeType = part.Header.Get("Content-Type")
		uploadedAt = u.now().UTC().Truncate(time.Millisecond)

		f, err := u.store.Save(originalName, uploadedAt, part, u.maxFileBytes)
		part.Close()
		if err != nil {
			u.fail(ctx, log, u.saveError(err))
			return
		}
		saved = &f
	}

	if saved == nil {
		u.fail(ctx, log, &uploadError{http.StatusBadRequest, "No file uploaded",
			"Expected a multipart file field named \"file\"", nil})
		return
	}

	if mimeType == "" {
		mimeType = storage.DetectMIME(saved.Path)
	}
	if declaredPath == "" {
		declaredPath = originalName
	}

	record := models.UploadedFileRecord{
		OriginalName: originalName,
		SavedAs:      saved.Name,
		Size:         saved.Size,
		MimeType:     mimeType,
		Path:         declaredPath,
		UploadTime:   uploadedAt.Format(models.TimeLayout),
		SavedPath:    saved.Path,
	}

	log.Info("file uploaded",
		zap.String("originalName", record.OriginalName),
		zap.String("savedAs", record.SavedAs),
		zap.Int64("size", record.Size),
		zap.String("mimeType", record.MimeType),
		zap.String("path", utils.Sanitize(record.Path)),
	)
	u.logPreview(log, record)

	utils.Success(ctx, http.StatusOK, gin.H{
		"message": "File uploaded successfully",
		"file":    record,
	})
}

// readField reads a text part, enforcing the per-field limit.
func (u *UploadController) readField(part *multipart.Part) (string, *uploadError) {
	buf, err := io.ReadAll(io.LimitReader(part, u.maxFieldBytes+1))
	if err != nil {
		return "", malformed(err.Error())
	}
	if int64(len(buf)) > u.maxFieldBytes {
		return "", &uploadError{http.StatusRequestEntityTooLarge, "Field too large",
			fmt.Sprintf("Field %q exceeds the maximum size of %s", part.FormName(), u.maxFieldSize),
			gin.H{"maxFieldSize": u.maxFieldSize}}
	}
	return string(buf), nil
}

func (u *UploadController) saveError(err error) *uploadError {
	var srcErr *storage.SourceError
	switch {
	case errors.Is(err, storage.ErrFileTooLarge):
		return &uploadError{http.StatusRequestEntityTooLarge, "File too large",
			fmt.Sprintf("File exceeds the maximum size of %s", u.maxFileSize),
			gin.H{"maxSize": u.maxFileSize}}
	case errors.As(err, &srcErr):
		return malformed(srcErr.Err.Error())
	default:
		return &uploadError{http.StatusInternalServerError, "Upload failed", err.Error(), nil}
	}
}

func (u *UploadController) fail(ctx *gin.Context, log *zap.Logger, e *uploadError) {
	if e.status >= http.StatusInternalServerError {
		log.Error("upload failed", zap.String("error", e.err), zap.String("details", e.details))
	} else {
		log.Warn("upload rejected", zap.String("error", e.err), zap.String("details", e.details))
	}
	utils.Fail(ctx, e.status, e.err, e.details, e.extra)
}

// logPreview logs the head of textual uploads. Failures never affect the response.
func (u *UploadController) logPreview(log *zap.Logger, rec models.UploadedFileRecord) {
	if !storage.IsTextual(rec.MimeType, rec.OriginalName) {
		return
	}
	preview, err := storage.Preview(rec.SavedPath, previewRunes)
	if err != nil {
		log.Warn("could not read file preview", zap.String("savedAs", rec.SavedAs), zap.Error(err))
		return
	}
	log.Debug("file preview", zap.String("savedAs", rec.SavedAs), zap.String("preview", preview))
}
