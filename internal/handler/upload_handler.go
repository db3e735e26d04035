package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/hubtalk/internal/model"
	"github.com/quocanhngo/hubtalk/pkg/storage"
	"go.uber.org/zap"
)

// Max upload size: 50MB
const maxUploadSize = 50 << 20

// Allowed MIME types
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

var allowedAudioTypes = map[string]bool{
	"audio/mpeg": true,
	"audio/mp4":  true,
	"audio/ogg":  true,
	"audio/wav":  true,
	"audio/webm": true,
}

var allowedFileTypes = map[string]bool{
	"application/pdf":               true,
	"application/msword":            true,
	"application/vnd.ms-powerpoint": true,
	"application/zip":               true,
	"text/plain":                    true,
}

// UploadHandler handles file upload endpoints
type UploadHandler struct {
	storage storage.Storage
	log     *zap.Logger
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(store storage.Storage, log *zap.Logger) *UploadHandler {
	return &UploadHandler{storage: store, log: log}
}

// UploadFile godoc
// @Summary Upload an attachment (image, file, audio or voice note)
// @Description Stores the file and returns the URL to send as file_url of a message. Voice notes must be audio.
// @Tags Upload
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "File to upload"
// @Param kind formData string false "Message kind the file will be sent as" Enums(image, file, audio, voice)
// @Success 200 {object} model.UploadResponse
// @Failure 400 {object} model.ErrorResponse
// @Failure 413 {object} model.ErrorResponse
// @Router /upload [post]
func (h *UploadHandler) UploadFile(c *gin.Context) {
	// Limit request body size
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, model.ErrorResponse{Error: "File too large (max 50MB)", Code: "validation_error", Field: "file"})
			return
		}
		badRequest(c, "file", "file is required")
		return
	}
	defer file.Close()

	contentType := strings.ToLower(header.Header.Get("Content-Type"))
	detected := classifyUpload(contentType)
	if detected == "" {
		badRequest(c, "file", "unsupported file type")
		return
	}

	kind := storage.Kind(c.PostForm("kind"))
	switch kind {
	case "":
		kind = detected
	case storage.KindVoice, storage.KindAudio:
		if detected != storage.KindAudio {
			badRequest(c, "kind", "voice and audio uploads must be audio files")
			return
		}
	case storage.KindImage:
		if detected != storage.KindImage {
			badRequest(c, "kind", "image uploads must be images")
			return
		}
	case storage.KindFile:
	default:
		badRequest(c, "kind", "must be image, file, audio or voice")
		return
	}

	result, err := h.storage.Upload(c.Request.Context(), file, header, kind)
	if err != nil {
		h.log.Error("upload failed", zap.String("file_name", header.Filename), zap.Error(err))
		c.JSON(http.StatusBadGateway, model.ErrorResponse{Error: "Failed to upload file", Code: "storage_error"})
		return
	}

	c.JSON(http.StatusOK, model.UploadResponse{
		URL:      result.URL,
		FileName: result.FileName,
		FileSize: result.FileSize,
		MimeType: result.MimeType,
		Kind:     model.MessageKind(result.Kind),
	})
}

// classifyUpload returns the kind implied by an allowed content type, or "" when unsupported
func classifyUpload(contentType string) storage.Kind {
	switch {
	case allowedImageTypes[contentType]:
		return storage.KindImage
	case allowedAudioTypes[contentType]:
		return storage.KindAudio
	case allowedFileTypes[contentType]:
		return storage.KindFile
	}
	return ""
}
