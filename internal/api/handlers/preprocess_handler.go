package handlers

import (
	"encoding/base64"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/heliolab/labassist/internal/models"
	"github.com/heliolab/labassist/internal/services"
	"github.com/heliolab/labassist/internal/utils"
)

// Uploads above this are rejected before decoding; phone photos sit well
// under it.
const maxUploadBytes = 20 << 20

type PreprocessHandler struct {
	pre      services.Preprocessor
	selector services.ModelSelector
}

func NewPreprocessHandler(pre services.Preprocessor, selector services.ModelSelector) *PreprocessHandler {
	return &PreprocessHandler{pre: pre, selector: selector}
}

type submitJSONRequest struct {
	AssetID     string `json:"asset_id"`
	ImageBase64 string `json:"image_base64" binding:"required"`
	MIMEType    string `json:"mime_type"`
	FileName    string `json:"file_name"`
}

type submitResponse struct {
	AssetID string `json:"asset_id"`
	Status  string `json:"status"`
}

// Submit accepts one image as multipart form-data (field "image") or as JSON
// with base64 content, kicks off preprocessing and returns 202 immediately.
// An id already settled returns its cached result; one still in flight joins
// the existing run.
func (h *PreprocessHandler) Submit(c *gin.Context) {
	const op = "PreprocessHandler.Submit"

	asset, err := h.readAsset(c)
	if err != nil {
		writeError(c, err)
		return
	}
	if !strings.HasPrefix(asset.MIMEType, "image/") {
		writeError(c, utils.E(utils.CodeInvalidArgument, op, "unsupported content type: "+asset.MIMEType, nil))
		return
	}

	// Resubmitting a settled asset is idempotent: hand back the cached
	// artifact instead of 202ing into a no-op.
	if res, ok := h.pre.Result(asset.ID); ok {
		c.JSON(http.StatusOK, res)
		return
	}

	h.pre.Submit(*asset)
	c.JSON(http.StatusAccepted, submitResponse{AssetID: asset.ID, Status: "processing"})
}

func (h *PreprocessHandler) readAsset(c *gin.Context) (*models.ImageAsset, error) {
	const op = "PreprocessHandler.readAsset"

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, header, err := c.Request.FormFile("image")
		if err != nil {
			return nil, utils.E(utils.CodeInvalidArgument, op, "missing image file", err)
		}
		defer file.Close()

		data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
		if err != nil {
			return nil, utils.E(utils.CodeInternal, op, "failed to read upload", err)
		}
		if len(data) > maxUploadBytes {
			return nil, utils.E(utils.CodeInvalidArgument, op, "image too large", nil)
		}

		id := c.PostForm("asset_id")
		if id == "" {
			id = uuid.NewString()
		}
		mime := header.Header.Get("Content-Type")
		if mime == "" || mime == "application/octet-stream" {
			mime = http.DetectContentType(data)
		}
		return &models.ImageAsset{
			ID:       id,
			MIMEType: mime,
			FileName: header.Filename,
			Data:     data,
		}, nil
	}

	var req submitJSONRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "invalid request body", err)
	}
	data, err := base64.StdEncoding.DecodeString(req.ImageBase64)
	if err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "image_base64 is not valid base64", err)
	}
	if len(data) > maxUploadBytes {
		return nil, utils.E(utils.CodeInvalidArgument, op, "image too large", nil)
	}

	if req.AssetID == "" {
		req.AssetID = uuid.NewString()
	}
	if req.MIMEType == "" {
		req.MIMEType = http.DetectContentType(data)
	}
	return &models.ImageAsset{
		ID:       req.AssetID,
		MIMEType: req.MIMEType,
		FileName: req.FileName,
		Data:     data,
	}, nil
}

// Get returns the settled artifact, 202 while still in flight, 404 for ids
// never submitted or already cleared.
func (h *PreprocessHandler) Get(c *gin.Context) {
	const op = "PreprocessHandler.Get"

	assetID := c.Param("asset_id")
	if res, ok := h.pre.Result(assetID); ok {
		c.JSON(http.StatusOK, res)
		return
	}
	if h.pre.Pending(assetID) {
		c.JSON(http.StatusAccepted, submitResponse{AssetID: assetID, Status: "processing"})
		return
	}
	writeError(c, utils.E(utils.CodeNotFound, op, "unknown asset", nil))
}

// Flush blocks until everything in flight settles. The chat-send path calls
// this so a message never leaves with half-processed attachments.
func (h *PreprocessHandler) Flush(c *gin.Context) {
	if err := h.pre.WaitForPending(c.Request.Context()); err != nil {
		writeError(c, utils.E(utils.CodeTimeout, "PreprocessHandler.Flush", "flush interrupted", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "idle", "results": h.pre.Results()})
}

func (h *PreprocessHandler) Clear(c *gin.Context) {
	h.pre.Clear(c.Param("asset_id"))
	c.Status(http.StatusNoContent)
}

func (h *PreprocessHandler) ClearAll(c *gin.Context) {
	h.pre.ClearAll()
	c.Status(http.StatusNoContent)
}

// VisionModels exposes the ranked candidate list, mostly for debugging which
// models the detector would walk right now.
func (h *PreprocessHandler) VisionModels(c *gin.Context) {
	count, _ := strconv.Atoi(c.DefaultQuery("count", "3"))
	c.JSON(http.StatusOK, gin.H{"models": h.selector.TopFreeVisionModels(c.Request.Context(), count)})
}

func (h *PreprocessHandler) AllModels(c *gin.Context) {
	ids, err := h.selector.AllModelIDs(c.Request.Context())
	if err != nil {
		writeError(c, utils.E(utils.CodeUnavailable, "PreprocessHandler.AllModels", "model catalog unavailable", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": ids})
}
