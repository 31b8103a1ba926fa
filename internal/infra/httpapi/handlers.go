package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"audio-blinkshot/internal/application"
	"audio-blinkshot/internal/infra/ratelimit"
)

type handlers struct {
	transcriber  Transcriber
	generator    Generator
	production   bool
	maxBodyBytes int64
	logger       *slog.Logger
}

type generateRequest struct {
	Prompt string `json:"prompt"`
	APIKey string `json:"apiKey"`
}

func (h *handlers) transcribe(c *gin.Context) {
	if !strings.Contains(c.GetHeader("Content-Type"), "multipart/form-data") {
		h.writeError(c, validation("Invalid content-type. Expected multipart/form-data"))
		return
	}
	h.limitBody(c)

	header, err := c.FormFile("audio")
	if err != nil {
		if tooLarge(err) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Audio file too large"})
			return
		}
		h.writeError(c, validation("No audio file provided"))
		return
	}

	file, err := header.Open()
	if err != nil {
		h.writeError(c, validation("No audio file provided"))
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		h.writeError(c, validation("No audio file provided"))
		return
	}

	text, err := h.transcriber.Transcribe(c.Request.Context(), audio, header.Filename)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"text": text})
}

func (h *handlers) generateImage(c *gin.Context) {
	h.limitBody(c)

	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if tooLarge(err) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			return
		}
		h.writeError(c, validation("Invalid request body"))
		return
	}

	imageURL, err := h.generator.Generate(c.Request.Context(), application.GenerateRequest{
		Prompt:   req.Prompt,
		APIKey:   req.APIKey,
		ClientID: ratelimit.ClientIdentifier(c.Request),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"imageUrl": imageURL})
}

func (h *handlers) limits(c *gin.Context) {
	remaining, err := h.generator.Remaining(c.Request.Context(), ratelimit.ClientIdentifier(c.Request))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"remaining": remaining})
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) limitBody(c *gin.Context) {
	if h.maxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	}
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
