package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/omadligroup/ai-agent-api/internal/middleware"
	"github.com/omadligroup/ai-agent-api/internal/model"
	"github.com/omadligroup/ai-agent-api/internal/service"
	"github.com/omadligroup/ai-agent-api/internal/store"
	"github.com/omadligroup/ai-agent-api/pkg/logger"
)

// FileHandler handles file storage, sharing and commenting endpoints.
type FileHandler struct {
	fileService   *service.FileService
	logger        *logger.Logger
	maxUploadSize int64
}

// NewFileHandler creates a new file handler.
func NewFileHandler(fileService *service.FileService, maxUploadSize int64, log *logger.Logger) *FileHandler {
	return &FileHandler{
		fileService:   fileService,
		logger:        log,
		maxUploadSize: maxUploadSize,
	}
}

// Upload handles POST /api/v1/files/upload. Multipart fields: file, description,
// tags (comma separated), is_public.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large or malformed")
		return
	}

	_, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}

	var tags []string
	if raw := r.FormValue("tags"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				tags = append(tags, t)
			}
		}
	}

	file, err := h.fileService.Upload(
		r.Context(),
		middleware.GetUserID(r.Context()),
		header,
		r.FormValue("description"),
		tags,
		r.FormValue("is_public") == "true",
	)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, file)
}

// List handles GET /api/v1/files
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	f := store.FileFilter{
		Category:       model.FileCategory(r.URL.Query().Get("category")),
		Status:         model.FileStatus(r.URL.Query().Get("status")),
		Search:         r.URL.Query().Get("search"),
		Tag:            r.URL.Query().Get("tag"),
		IncludeDeleted: r.URL.Query().Get("include_deleted") == "true",
		Limit:          limit,
		Offset:         offset,
	}

	resp, err := h.fileService.List(r.Context(), middleware.GetUserID(r.Context()), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /api/v1/files/{id}
func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, err := h.fileService.Get(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

// Update handles PATCH /api/v1/files/{id}
func (h *FileHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.UpdateFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	file, err := h.fileService.Update(r.Context(), middleware.GetUserID(r.Context()), id, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}

// Delete handles DELETE /api/v1/files/{id}
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.fileService.Delete(r.Context(), middleware.GetUserID(r.Context()), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "file deleted"})
}

// Bulk handles POST /api/v1/files/bulk-action
func (h *FileHandler) Bulk(w http.ResponseWriter, r *http.Request) {
	var req model.BulkFileActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := h.fileService.Bulk(r.Context(), middleware.GetUserID(r.Context()), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Download handles GET /api/v1/files/{id}/download
func (h *FileHandler) Download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	file, rc, err := h.fileService.Open(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer rc.Close()

	h.serveFile(w, r, file, rc)
}

// DownloadURL handles GET /api/v1/files/{id}/download-url
func (h *FileHandler) DownloadURL(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.fileService.SignedDownloadURL(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// DownloadRaw handles GET /api/v1/files/{id}/raw. The request is authorized
// by the HMAC signature minted by DownloadURL, not by a bearer token.
func (h *FileHandler) DownloadRaw(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	if err := h.fileService.VerifySignedURL(id, q.Get("expires"), q.Get("signature")); err != nil {
		writeServiceError(w, err)
		return
	}

	file, rc, err := h.fileService.OpenRaw(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer rc.Close()

	h.serveFile(w, r, file, rc)
}

func (h *FileHandler) serveFile(w http.ResponseWriter, r *http.Request, file *model.File, content io.ReadSeeker) {
	w.Header().Set("Content-Type", file.FileType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.OriginalName))
	http.ServeContent(w, r, file.OriginalName, file.UpdatedAt, content)

	h.logger.Debug("file served",
		zap.String("file_id", file.ID),
		zap.Int64("bytes", file.FileSize))
}

// Share handles POST /api/v1/files/share
func (h *FileHandler) Share(w http.ResponseWriter, r *http.Request) {
	var req model.ShareFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	share, err := h.fileService.Share(r.Context(), middleware.GetUserID(r.Context()), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, share)
}

// Unshare handles DELETE /api/v1/files/shares/{id}
func (h *FileHandler) Unshare(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.fileService.Unshare(r.Context(), middleware.GetUserID(r.Context()), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "share revoked"})
}

// SharedWithMe handles GET /api/v1/files/shared-with-me
func (h *FileHandler) SharedWithMe(w http.ResponseWriter, r *http.Request) {
	files, err := h.fileService.SharedWithMe(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if files == nil {
		files = []model.File{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

// UploadVersion handles POST /api/v1/files/{id}/versions
func (h *FileHandler) UploadVersion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large or malformed")
		return
	}

	_, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}

	version, err := h.fileService.UploadVersion(
		r.Context(),
		middleware.GetUserID(r.Context()),
		id,
		header,
		r.FormValue("change_description"),
	)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, version)
}

// Versions handles GET /api/v1/files/{id}/versions
func (h *FileHandler) Versions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	versions, err := h.fileService.Versions(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if versions == nil {
		versions = []model.FileVersion{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

// AddComment handles POST /api/v1/files/{id}/comments/add
func (h *FileHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.AddCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	comment, err := h.fileService.Comment(r.Context(), middleware.GetUserID(r.Context()), id, &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

// Comments handles GET /api/v1/files/{id}/comments
func (h *FileHandler) Comments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	comments, err := h.fileService.Comments(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if comments == nil {
		comments = []model.FileComment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": comments})
}

// Stats handles GET /api/v1/files/stats
func (h *FileHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.fileService.Stats(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Shares handles GET /api/v1/files/shares
func (h *FileHandler) Shares(w http.ResponseWriter, r *http.Request) {
	overview, err := h.fileService.Shares(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, overview)
}

// FileShares handles GET /api/v1/files/{id}/shares
func (h *FileHandler) FileShares(w http.ResponseWriter, r *http.Request) {
	shares, err := h.fileService.FileShares(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if shares == nil {
		shares = []model.FileShare{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"shares": shares})
}

// AdminAnalytics handles GET /api/v1/files/admin/analytics (admin only)
func (h *FileHandler) AdminAnalytics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.fileService.AdminAnalytics(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
