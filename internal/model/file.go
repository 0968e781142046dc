package model

import (
	"fmt"
	"strings"
	"time"
)

// FileCategory classifies files by content type.
type FileCategory string

const (
	CategoryDocument FileCategory = "document"
	CategoryImage    FileCategory = "image"
	CategoryVideo    FileCategory = "video"
	CategoryAudio    FileCategory = "audio"
	CategoryArchive  FileCategory = "archive"
	CategoryOther    FileCategory = "other"
)

// FileStatus represents the lifecycle state of a stored file.
type FileStatus string

const (
	FileUploading  FileStatus = "uploading"
	FileProcessing FileStatus = "processing"
	FileCompleted  FileStatus = "completed"
	FileFailed     FileStatus = "failed"
	FileDeleted    FileStatus = "deleted"
)

// File represents an uploaded file on local storage.
type File struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	OriginalName  string       `json:"original_name"`
	FileName      string       `json:"file_name"`
	FileSize      int64        `json:"file_size"`
	FileType      string       `json:"file_type"`
	FileExtension string       `json:"file_extension"`
	Category      FileCategory `json:"category"`
	ObjectKey     string       `json:"object_key"`

	Status FileStatus `json:"status"`

	Description string            `json:"description,omitempty"`
	Tags        []string          `json:"tags"`
	Metadata    map[string]string `json:"metadata,omitempty"`

	IsPublic bool `json:"is_public"`
	IsShared bool `json:"is_shared"`

	DownloadCount int        `json:"download_count"`
	LastAccessed  *time.Time `json:"last_accessed,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the file is soft deleted.
func (f *File) IsDeleted() bool {
	return f.DeletedAt != nil
}

// SizeHuman returns a human readable file size.
func (f *File) SizeHuman() string {
	size := float64(f.FileSize)
	for _, unit := range []string{"B", "KB", "MB", "GB", "TB"} {
		if size < 1024.0 {
			return fmt.Sprintf("%.1f %s", size, unit)
		}
		size /= 1024.0
	}
	return fmt.Sprintf("%.1f PB", size)
}

// CategoryFromMIME determines the file category for a MIME type.
func CategoryFromMIME(mimeType string) FileCategory {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return CategoryImage
	case strings.HasPrefix(mimeType, "video/"):
		return CategoryVideo
	case strings.HasPrefix(mimeType, "audio/"):
		return CategoryAudio
	}

	switch mimeType {
	case "application/pdf", "application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.ms-excel",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.ms-powerpoint",
		"application/vnd.openxmlformats-officedocument.presentationml.presentation",
		"text/plain", "text/csv":
		return CategoryDocument
	case "application/zip", "application/x-rar-compressed",
		"application/x-tar", "application/gzip":
		return CategoryArchive
	}

	return CategoryOther
}

// FileShare grants another user access to a file.
type FileShare struct {
	ID         string `json:"id"`
	FileID     string `json:"file_id"`
	SharedBy   string `json:"shared_by"`
	SharedWith string `json:"shared_with"`

	CanDownload bool `json:"can_download"`
	CanView     bool `json:"can_view"`
	CanComment  bool `json:"can_comment"`

	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsExpired reports whether the share has passed its expiry.
func (s *FileShare) IsExpired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// FileVersion records one version of a file's content.
type FileVersion struct {
	ID                string    `json:"id"`
	FileID            string    `json:"file_id"`
	VersionNumber     int       `json:"version_number"`
	FileName          string    `json:"file_name"`
	FileSize          int64     `json:"file_size"`
	ObjectKey         string    `json:"object_key"`
	ChangeDescription string    `json:"change_description,omitempty"`
	UploadedBy        string    `json:"uploaded_by"`
	CreatedAt         time.Time `json:"created_at"`
}

// FileComment is a comment on a file, optionally a reply.
type FileComment struct {
	ID        string        `json:"id"`
	FileID    string        `json:"file_id"`
	UserID    string        `json:"user_id"`
	Content   string        `json:"content"`
	ParentID  *string       `json:"parent_id,omitempty"`
	Replies   []FileComment `json:"replies,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// ShareFileRequest creates or updates a file share.
type ShareFileRequest struct {
	FileID             string     `json:"file_id"`
	SharedWithUsername string     `json:"shared_with_username"`
	CanDownload        *bool      `json:"can_download,omitempty"`
	CanView            *bool      `json:"can_view,omitempty"`
	CanComment         *bool      `json:"can_comment,omitempty"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
}

// UpdateFileRequest updates file metadata.
type UpdateFileRequest struct {
	Description *string  `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	IsPublic    *bool    `json:"is_public,omitempty"`
}

// BulkFileActionRequest applies one action to multiple files.
type BulkFileActionRequest struct {
	Action   string       `json:"action"`
	FileIDs  []string     `json:"file_ids"`
	Category FileCategory `json:"category,omitempty"`
}

// BulkFileActionResponse reports per-file outcomes.
type BulkFileActionResponse struct {
	Results map[string]string `json:"results"`
}

// ListFilesResponse is the file listing.
type ListFilesResponse struct {
	Files   []File `json:"files"`
	Total   int    `json:"total"`
	HasMore bool   `json:"has_more"`
}

// FileStats summarizes a user's storage usage.
type FileStats struct {
	TotalFiles      int                    `json:"total_files"`
	TotalBytes      int64                  `json:"total_bytes"`
	TotalDownloads  int                    `json:"total_downloads"`
	FilesByCategory map[FileCategory]int   `json:"files_by_category"`
	BytesByCategory map[FileCategory]int64 `json:"bytes_by_category"`
	SharedWithMe    int                    `json:"shared_with_me"`
	SharedByMe      int                    `json:"shared_by_me"`
}

// DownloadURLResponse carries a short-lived signed download link.
type DownloadURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AddCommentRequest adds a comment to a file.
type AddCommentRequest struct {
	Content  string  `json:"content"`
	ParentID *string `json:"parent_id,omitempty"`
}
