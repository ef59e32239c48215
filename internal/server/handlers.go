package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"winescan/internal/api"
	"winescan/internal/logging"
	"winescan/internal/recognition"
	"winescan/internal/services"
)

const degradeVisionUnavailable = "vision unavailable"

func (s *Server) handleScan(c *gin.Context) {
	start := time.Now()
	status := "ok"
	defer func() { s.metrics.ObserveScan(status, time.Since(start)) }()

	debug, err := parseDebug(c.Query("debug"))
	if err != nil {
		status = "bad_request"
		writeError(c, http.StatusBadRequest, "debug must be a boolean")
		return
	}
	if debug && !s.debugEnabled {
		status = "bad_request"
		writeError(c, http.StatusForbidden, "debug output is disabled on this server")
		return
	}

	image, code, msg := s.readImage(c)
	if code != 0 {
		status = "bad_request"
		writeError(c, code, msg)
		return
	}

	imageID := uuid.NewString()
	ctx, cancel := context.WithTimeout(c.Request.Context(), s.requestTimeout)
	defer cancel()
	ctx = services.WithImageID(ctx, imageID)
	logger := logging.WithContext(ctx, s.logger)

	var outcome recognition.Outcome
	det, err := s.detector.Detect(ctx, image)
	switch {
	case err != nil && ctx.Err() != nil:
		outcome, err = recognition.Outcome{}, ctx.Err()
	case err != nil:
		logging.WarnWithContext(logger, "vision detection failed", "vision_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check vision.base_url and the vision service health"),
			logging.String(logging.FieldImpact, "response lists top-rated wines instead of shelf results"))
		outcome, err = s.orchestrator.Degrade(ctx, degradeVisionUnavailable)
	default:
		outcome, err = s.orchestrator.Recognize(ctx, recognition.Input{ImageID: imageID, Detection: det})
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = services.Wrap(services.ErrTimeout, "server", "scan", "request deadline exceeded", err)
		}
		code := services.HTTPStatus(err)
		status = strconv.Itoa(code)
		if errors.Is(err, context.Canceled) {
			status = "canceled"
		}
		logger.Error("scan failed", logging.Error(err), logging.Int("status", code))
		writeError(c, code, publicMessage(err))
		return
	}
	if outcome.Degraded {
		status = "degraded"
	}
	c.JSON(http.StatusOK, api.Assemble(imageID, outcome, debug))
}

// readImage extracts the multipart "image" field, or the raw request body
// when the upload is not multipart. A non-zero code reports a client error.
func (s *Server) readImage(c *gin.Context) ([]byte, int, string) {
	if c.Request.ContentLength > s.maxUploadBytes {
		return nil, http.StatusRequestEntityTooLarge, "image exceeds the upload limit"
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadBytes)

	var data []byte
	if c.ContentType() == gin.MIMEMultipartPOSTForm {
		header, err := c.FormFile("image")
		if err != nil {
			if isTooLarge(err) {
				return nil, http.StatusRequestEntityTooLarge, "image exceeds the upload limit"
			}
			return nil, http.StatusBadRequest, "multipart field \"image\" is required"
		}
		file, err := header.Open()
		if err != nil {
			return nil, http.StatusBadRequest, "image could not be read"
		}
		defer file.Close()
		if data, err = io.ReadAll(file); err != nil {
			return nil, http.StatusBadRequest, "image could not be read"
		}
	} else {
		var err error
		if data, err = io.ReadAll(c.Request.Body); err != nil {
			if isTooLarge(err) {
				return nil, http.StatusRequestEntityTooLarge, "image exceeds the upload limit"
			}
			return nil, http.StatusBadRequest, "image could not be read"
		}
	}
	if len(data) == 0 {
		return nil, http.StatusBadRequest, "image is empty"
	}
	return data, 0, ""
}

func isTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge)
}

func (s *Server) handleHealth(c *gin.Context) {
	resp := api.HealthResponse{
		Status:       "ok",
		LLMEnabled:   s.llmEnabled,
		CacheBackend: s.cacheBackend,
	}
	if s.catalog != nil {
		count, err := s.catalog.Count(c.Request.Context())
		if err != nil {
			resp.Status = "catalog unavailable"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
		resp.CatalogWines = count
		if count == 0 {
			resp.Status = "catalog empty"
		}
	}
	c.JSON(http.StatusOK, resp)
}

func writeError(c *gin.Context, status int, message string) {
	c.JSON(status, api.ErrorResponse{Error: message, RequestID: c.GetString(requestIDKey)})
}

func parseDebug(value string) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return false, nil
	}
	return strconv.ParseBool(value)
}

// publicMessage keeps internal error detail out of responses.
func publicMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrCatalogUnavailable):
		return "catalog unavailable"
	case errors.Is(err, services.ErrTimeout):
		return "request timed out"
	case errors.Is(err, context.Canceled):
		return "request canceled"
	default:
		return "internal error"
	}
}
