package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/omadligroup/ai-agent-api/internal/model"
	"github.com/omadligroup/ai-agent-api/internal/storage"
	"github.com/omadligroup/ai-agent-api/internal/store"
	"github.com/omadligroup/ai-agent-api/pkg/logger"
	"github.com/omadligroup/ai-agent-api/pkg/metrics"
)

// FileService handles uploads, sharing, versions and comments.
type FileService struct {
	db            *store.Database
	storage       *storage.Local
	events        EventPublisher
	logger        *logger.Logger
	maxUploadSize int64
	urlSecret     string
	urlTTL        time.Duration
}

// NewFileService creates a new file service.
func NewFileService(db *store.Database, local *storage.Local, events EventPublisher, log *logger.Logger, maxUploadSize int64, urlSecret string, urlTTL time.Duration) *FileService {
	return &FileService{
		db:            db,
		storage:       local,
		events:        events,
		logger:        log,
		maxUploadSize: maxUploadSize,
		urlSecret:     urlSecret,
		urlTTL:        urlTTL,
	}
}

// Upload stores an uploaded file and its metadata.
func (s *FileService) Upload(ctx context.Context, userID string, header *multipart.FileHeader, description string, tags []string, isPublic bool) (*model.File, error) {
	if header.Size > s.maxUploadSize {
		return nil, fmt.Errorf("%w: file exceeds maximum size of %d bytes", ErrInvalidInput, s.maxUploadSize)
	}

	src, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	mimeType := header.Header.Get("Content-Type")

	key, size, err := s.storage.Save(userID, ext, src)
	if err != nil {
		return nil, err
	}

	file := &model.File{
		UserID:        userID,
		OriginalName:  header.Filename,
		FileName:      filepath.Base(key),
		FileSize:      size,
		FileType:      mimeType,
		FileExtension: ext,
		Category:      model.CategoryFromMIME(mimeType),
		ObjectKey:     key,
		Status:        model.FileCompleted,
		Description:   description,
		Tags:          tags,
		IsPublic:      isPublic,
	}
	if err := s.db.CreateFile(file); err != nil {
		s.storage.Delete(key)
		return nil, err
	}

	metrics.FileUploadsTotal.WithLabelValues(string(file.Category)).Inc()
	metrics.FileUploadBytes.Add(float64(size))
	s.db.BumpSessionCounter(userID, "files_uploaded")
	s.publishFileEvent(ctx, model.EventFileUpload, "file_uploaded", userID, file.ID, map[string]any{
		"category":  string(file.Category),
		"file_size": size,
	})

	s.logger.Info("file uploaded",
		zap.String("file_id", file.ID),
		zap.String("user_id", userID),
		zap.Int64("size", size),
		zap.String("category", string(file.Category)))
	return file, nil
}

// Get returns a file if the user owns it, it is public, or it is
// shared with the user through an unexpired share.
func (s *FileService) Get(ctx context.Context, userID, fileID string) (*model.File, error) {
	file, err := s.db.GetFile(fileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if file.UserID == userID || file.IsPublic {
		return file, nil
	}

	share, err := s.db.GetShare(fileID, userID)
	if err != nil || share.IsExpired(time.Now()) || !share.CanView {
		return nil, ErrNotFound
	}
	return file, nil
}

// Open returns the file record and a reader over its content, applying
// the same access rules as Get plus the download permission on shares.
func (s *FileService) Open(ctx context.Context, userID, fileID string) (*model.File, io.ReadSeekCloser, error) {
	file, err := s.db.GetFile(fileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}

	if file.UserID != userID && !file.IsPublic {
		share, err := s.db.GetShare(fileID, userID)
		if err != nil || share.IsExpired(time.Now()) || !share.CanDownload {
			return nil, nil, ErrForbidden
		}
	}

	reader, err := s.storage.Open(file.ObjectKey)
	if err != nil {
		return nil, nil, err
	}

	if err := s.db.RecordDownload(fileID); err != nil {
		s.logger.Warn("failed to record download", zap.Error(err))
	}
	s.publishFileEvent(ctx, model.EventFileDownload, "file_downloaded", userID, fileID, nil)
	return file, reader, nil
}

// List returns the user's files.
func (s *FileService) List(ctx context.Context, userID string, f store.FileFilter) (*model.ListFilesResponse, error) {
	files, total, err := s.db.ListFiles(userID, f)
	if err != nil {
		return nil, err
	}
	if files == nil {
		files = []model.File{}
	}
	return &model.ListFilesResponse{
		Files:   files,
		Total:   total,
		HasMore: f.Offset+len(files) < total,
	}, nil
}

// Update applies metadata changes to an owned file.
func (s *FileService) Update(ctx context.Context, userID, fileID string, req *model.UpdateFileRequest) (*model.File, error) {
	file, err := s.db.GetOwnedFile(fileID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if req.Description != nil {
		file.Description = *req.Description
	}
	if req.Tags != nil {
		file.Tags = req.Tags
	}
	if req.IsPublic != nil {
		file.IsPublic = *req.IsPublic
	}
	if err := s.db.UpdateFile(file); err != nil {
		return nil, err
	}
	return file, nil
}

// Delete soft deletes an owned file. Content stays on disk for
// recovery until a retention job removes it.
func (s *FileService) Delete(ctx context.Context, userID, fileID string) error {
	if err := s.db.SoftDeleteFile(fileID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// Bulk applies one action to several files, reporting per-file results.
func (s *FileService) Bulk(ctx context.Context, userID string, req *model.BulkFileActionRequest) (*model.BulkFileActionResponse, error) {
	results := make(map[string]string, len(req.FileIDs))

	for _, id := range req.FileIDs {
		var err error
		switch req.Action {
		case "delete":
			err = s.Delete(ctx, userID, id)
		case "restore":
			err = s.restore(userID, id)
		case "update_category":
			err = s.recategorize(userID, id, req.Category)
		default:
			return nil, fmt.Errorf("%w: unknown bulk action %q", ErrInvalidInput, req.Action)
		}
		if err != nil {
			results[id] = err.Error()
		} else {
			results[id] = "ok"
		}
	}
	return &model.BulkFileActionResponse{Results: results}, nil
}

func (s *FileService) recategorize(userID, fileID string, category model.FileCategory) error {
	file, err := s.db.GetOwnedFile(fileID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return s.db.UpdateFileCategory(file.ID, category)
}

func (s *FileService) restore(userID, fileID string) error {
	if err := s.db.RestoreFile(fileID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// Share grants another user access to an owned file.
func (s *FileService) Share(ctx context.Context, userID string, req *model.ShareFileRequest) (*model.FileShare, error) {
	file, err := s.db.GetOwnedFile(req.FileID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	target, err := s.db.GetUserByUsername(req.SharedWithUsername)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %q not found", ErrInvalidInput, req.SharedWithUsername)
		}
		return nil, err
	}
	if target.ID == userID {
		return nil, fmt.Errorf("%w: cannot share a file with yourself", ErrInvalidInput)
	}

	share := &model.FileShare{
		FileID:      file.ID,
		SharedBy:    userID,
		SharedWith:  target.ID,
		CanView:     true,
		CanDownload: true,
		ExpiresAt:   req.ExpiresAt,
	}
	if req.CanView != nil {
		share.CanView = *req.CanView
	}
	if req.CanDownload != nil {
		share.CanDownload = *req.CanDownload
	}
	if req.CanComment != nil {
		share.CanComment = *req.CanComment
	}

	if err := s.db.CreateShare(share); err != nil {
		return nil, err
	}

	s.publishFileEvent(ctx, model.EventFileShare, "file_shared", userID, file.ID, map[string]any{
		"shared_with": target.ID,
	})
	return share, nil
}

// Unshare revokes a share the user created.
func (s *FileService) Unshare(ctx context.Context, userID, shareID string) error {
	if err := s.db.DeleteShare(shareID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// SharedWithMe lists live files shared with the user.
func (s *FileService) SharedWithMe(ctx context.Context, userID string) ([]model.File, error) {
	files, err := s.db.ListSharedWithUser(userID, time.Now())
	if err != nil {
		return nil, err
	}
	if files == nil {
		files = []model.File{}
	}
	return files, nil
}

// UploadVersion stores new content for an existing file as the next
// version, keeping the previous content addressable.
func (s *FileService) UploadVersion(ctx context.Context, userID, fileID string, header *multipart.FileHeader, changeDescription string) (*model.FileVersion, error) {
	file, err := s.db.GetOwnedFile(fileID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if header.Size > s.maxUploadSize {
		return nil, fmt.Errorf("%w: file exceeds maximum size of %d bytes", ErrInvalidInput, s.maxUploadSize)
	}

	src, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	key, size, err := s.storage.Save(userID, file.FileExtension, src)
	if err != nil {
		return nil, err
	}

	// Snapshot the current content as a version before switching the
	// file record to the new object.
	version := &model.FileVersion{
		FileID:            file.ID,
		FileName:          file.FileName,
		FileSize:          file.FileSize,
		ObjectKey:         file.ObjectKey,
		ChangeDescription: changeDescription,
		UploadedBy:        userID,
	}
	if err := s.db.CreateVersion(version); err != nil {
		s.storage.Delete(key)
		return nil, err
	}

	file.FileName = filepath.Base(key)
	file.FileSize = size
	file.ObjectKey = key
	if err := s.db.UpdateFile(file); err != nil {
		return nil, err
	}
	return version, nil
}

// Versions lists the version history of an accessible file.
func (s *FileService) Versions(ctx context.Context, userID, fileID string) ([]model.FileVersion, error) {
	if _, err := s.Get(ctx, userID, fileID); err != nil {
		return nil, err
	}
	versions, err := s.db.ListVersions(fileID)
	if err != nil {
		return nil, err
	}
	if versions == nil {
		versions = []model.FileVersion{}
	}
	return versions, nil
}

// Comment adds a comment to an accessible file.
func (s *FileService) Comment(ctx context.Context, userID, fileID string, req *model.AddCommentRequest) (*model.FileComment, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("%w: comment cannot be empty", ErrInvalidInput)
	}

	file, err := s.db.GetFile(fileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if file.UserID != userID && !file.IsPublic {
		share, err := s.db.GetShare(fileID, userID)
		if err != nil || share.IsExpired(time.Now()) || !share.CanComment {
			return nil, ErrForbidden
		}
	}

	comment := &model.FileComment{
		FileID:   fileID,
		UserID:   userID,
		Content:  req.Content,
		ParentID: req.ParentID,
	}
	if err := s.db.CreateComment(comment); err != nil {
		return nil, err
	}
	return comment, nil
}

// Comments lists an accessible file's comments.
func (s *FileService) Comments(ctx context.Context, userID, fileID string) ([]model.FileComment, error) {
	if _, err := s.Get(ctx, userID, fileID); err != nil {
		return nil, err
	}
	comments, err := s.db.ListComments(fileID)
	if err != nil {
		return nil, err
	}
	if comments == nil {
		comments = []model.FileComment{}
	}
	return comments, nil
}

// Stats summarizes the user's storage usage.
func (s *FileService) Stats(ctx context.Context, userID string) (*model.FileStats, error) {
	return s.db.FileStats(userID)
}

// SignedDownloadURL mints a short lived URL for unauthenticated
// download of an accessible file.
func (s *FileService) SignedDownloadURL(ctx context.Context, userID, fileID string) (*model.DownloadURLResponse, error) {
	if _, err := s.Get(ctx, userID, fileID); err != nil {
		return nil, err
	}

	expires := time.Now().Add(s.urlTTL).UTC()
	sig := s.sign(fileID, expires.Unix())
	url := fmt.Sprintf("/api/v1/files/%s/raw?expires=%d&signature=%s", fileID, expires.Unix(), sig)
	return &model.DownloadURLResponse{URL: url, ExpiresAt: expires}, nil
}

// VerifySignedURL checks the expiry and signature on a signed download.
func (s *FileService) VerifySignedURL(fileID, expiresStr, signature string) error {
	expires, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad expiry", ErrInvalidInput)
	}
	if time.Now().Unix() > expires {
		return fmt.Errorf("%w: link expired", ErrForbidden)
	}
	expected := s.sign(fileID, expires)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("%w: bad signature", ErrForbidden)
	}
	return nil
}

// OpenRaw opens file content for a verified signed URL.
func (s *FileService) OpenRaw(fileID string) (*model.File, io.ReadSeekCloser, error) {
	file, err := s.db.GetFile(fileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	reader, err := s.storage.Open(file.ObjectKey)
	if err != nil {
		return nil, nil, err
	}
	if err := s.db.RecordDownload(fileID); err != nil {
		s.logger.Warn("failed to record download", zap.Error(err))
	}
	return file, reader, nil
}

func (s *FileService) sign(fileID string, expires int64) string {
	mac := hmac.New(sha256.New, []byte(s.urlSecret))
	fmt.Fprintf(mac, "%s:%d", fileID, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *FileService) publishFileEvent(ctx context.Context, eventType model.EventType, name, userID, fileID string, props map[string]any) {
	if s.events == nil {
		return
	}
	if props == nil {
		props = map[string]any{}
	}
	props["file_id"] = fileID
	event := &model.AnalyticsEvent{
		EventType:  eventType,
		EventName:  name,
		UserID:     &userID,
		Properties: props,
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := s.events.PublishEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish file event", zap.Error(err))
	}
}

// ShareOverview pairs shares the user created with files shared to them.
type ShareOverview struct {
	SharedByMe   []model.FileShare `json:"shared_by_me"`
	SharedWithMe []model.File      `json:"shared_with_me"`
}

// Shares returns both sides of the user's sharing activity.
func (s *FileService) Shares(ctx context.Context, userID string) (*ShareOverview, error) {
	byMe, err := s.db.ListSharesByUser(userID)
	if err != nil {
		return nil, err
	}
	withMe, err := s.db.ListSharedWithUser(userID, time.Now())
	if err != nil {
		return nil, err
	}
	if byMe == nil {
		byMe = []model.FileShare{}
	}
	if withMe == nil {
		withMe = []model.File{}
	}
	return &ShareOverview{SharedByMe: byMe, SharedWithMe: withMe}, nil
}

// FileShares lists the shares of one owned file.
func (s *FileService) FileShares(ctx context.Context, userID, fileID string) ([]model.FileShare, error) {
	if _, err := s.db.GetOwnedFile(fileID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	shares, err := s.db.ListSharesForFile(fileID, userID)
	if err != nil {
		return nil, err
	}
	if shares == nil {
		shares = []model.FileShare{}
	}
	return shares, nil
}

// AdminAnalytics summarizes storage across all users.
func (s *FileService) AdminAnalytics(ctx context.Context) (*store.AdminFileStats, error) {
	return s.db.AdminFileSummary(time.Now())
}
