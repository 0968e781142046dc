package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/omadligroup/ai-agent-api/internal/model"
)

const fileColumns = `id, user_id, original_name, file_name, file_size, file_type,
	file_extension, category, object_key, status, description, tags, metadata,
	is_public, is_shared, download_count, last_accessed, created_at, updated_at,
	deleted_at`

func scanFile(row interface{ Scan(...any) error }) (*model.File, error) {
	var f model.File
	var tags, metadata string
	var public, shared int
	err := row.Scan(&f.ID, &f.UserID, &f.OriginalName, &f.FileName, &f.FileSize,
		&f.FileType, &f.FileExtension, &f.Category, &f.ObjectKey, &f.Status,
		&f.Description, &tags, &metadata, &public, &shared, &f.DownloadCount,
		&f.LastAccessed, &f.CreatedAt, &f.UpdatedAt, &f.DeletedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	f.Tags = unmarshalStrings(tags)
	f.Metadata = unmarshalStringMap(metadata)
	f.IsPublic = public != 0
	f.IsShared = shared != 0
	return &f, nil
}

// CreateFile inserts a file record.
func (d *Database) CreateFile(f *model.File) error {
	if f.ID == "" {
		f.ID = uuid.Must(uuid.NewV7()).String()
	}
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now
	_, err := d.db.Exec(`
		INSERT INTO files (id, user_id, original_name, file_name, file_size,
			file_type, file_extension, category, object_key, status, description,
			tags, metadata, is_public, is_shared, download_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		f.ID, f.UserID, f.OriginalName, f.FileName, f.FileSize, f.FileType,
		f.FileExtension, f.Category, f.ObjectKey, f.Status, f.Description,
		marshalJSON(f.Tags, "[]"), marshalJSON(f.Metadata, "{}"),
		boolToInt(f.IsPublic), boolToInt(f.IsShared), f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	return nil
}

// GetFile fetches a file by ID without ownership checks. Soft deleted
// files are excluded.
func (d *Database) GetFile(id string) (*model.File, error) {
	row := d.db.QueryRow(`SELECT `+fileColumns+
		` FROM files WHERE id = ? AND deleted_at IS NULL`, id)
	return scanFile(row)
}

// GetOwnedFile fetches a file owned by the user.
func (d *Database) GetOwnedFile(id, userID string) (*model.File, error) {
	row := d.db.QueryRow(`SELECT `+fileColumns+
		` FROM files WHERE id = ? AND user_id = ? AND deleted_at IS NULL`, id, userID)
	return scanFile(row)
}

// FileFilter narrows file listings.
type FileFilter struct {
	Category       model.FileCategory
	Status         model.FileStatus
	Search         string
	Tag            string
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// ListFiles returns the user's live files, newest first.
func (d *Database) ListFiles(userID string, f FileFilter) ([]model.File, int, error) {
	where := []string{"user_id = ?"}
	args := []any{userID}
	if !f.IncludeDeleted {
		where = append(where, "deleted_at IS NULL")
	}

	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, f.Status)
	}
	if f.Search != "" {
		where = append(where, "(original_name LIKE ? OR description LIKE ?)")
		pattern := "%" + f.Search + "%"
		args = append(args, pattern, pattern)
	}
	if f.Tag != "" {
		where = append(where, "tags LIKE ?")
		args = append(args, `%"`+f.Tag+`"%`)
	}

	clause := strings.Join(where, " AND ")

	var total int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM files WHERE `+clause, args...).
		Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count files: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, f.Offset)

	rows, err := d.db.Query(`SELECT `+fileColumns+` FROM files WHERE `+clause+
		` ORDER BY created_at DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var files []model.File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, 0, err
		}
		files = append(files, *file)
	}
	return files, total, rows.Err()
}

// UpdateFile persists file metadata.
func (d *Database) UpdateFile(f *model.File) error {
	f.UpdatedAt = time.Now().UTC()
	res, err := d.db.Exec(`
		UPDATE files SET file_name = ?, file_size = ?, object_key = ?, status = ?,
			description = ?, tags = ?, metadata = ?, is_public = ?, is_shared = ?,
			updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		f.FileName, f.FileSize, f.ObjectKey, f.Status, f.Description,
		marshalJSON(f.Tags, "[]"), marshalJSON(f.Metadata, "{}"),
		boolToInt(f.IsPublic), boolToInt(f.IsShared), f.UpdatedAt, f.ID)
	if err != nil {
		return fmt.Errorf("failed to update file: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateFileCategory reassigns a file's category.
func (d *Database) UpdateFileCategory(id string, category model.FileCategory) error {
	res, err := d.db.Exec(`
		UPDATE files SET category = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		category, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update file category: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDeleteFile marks a file deleted without touching its content.
func (d *Database) SoftDeleteFile(id, userID string) error {
	now := time.Now().UTC()
	res, err := d.db.Exec(`
		UPDATE files SET deleted_at = ?, status = 'deleted', updated_at = ?
		WHERE id = ? AND user_id = ? AND deleted_at IS NULL`,
		now, now, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RestoreFile undoes a soft delete.
func (d *Database) RestoreFile(id, userID string) error {
	res, err := d.db.Exec(`
		UPDATE files SET deleted_at = NULL, status = 'completed', updated_at = ?
		WHERE id = ? AND user_id = ? AND deleted_at IS NOT NULL`,
		time.Now().UTC(), id, userID)
	if err != nil {
		return fmt.Errorf("failed to restore file: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordDownload bumps the download counter and access timestamp.
func (d *Database) RecordDownload(id string) error {
	_, err := d.db.Exec(`
		UPDATE files SET download_count = download_count + 1, last_accessed = ?
		WHERE id = ?`, time.Now().UTC(), id)
	return err
}

// CreateShare inserts a file share. Sharing the same file with the
// same user again updates permissions and expiry on the existing row.
func (d *Database) CreateShare(s *model.FileShare) error {
	if s.ID == "" {
		s.ID = uuid.Must(uuid.NewV7()).String()
	}
	now := time.Now().UTC()
	s.CreatedAt = now
	s.UpdatedAt = now

	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO file_shares (id, file_id, shared_by, shared_with, can_download,
			can_view, can_comment, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_id, shared_with) DO UPDATE SET
			can_download = excluded.can_download,
			can_view = excluded.can_view,
			can_comment = excluded.can_comment,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		s.ID, s.FileID, s.SharedBy, s.SharedWith, boolToInt(s.CanDownload),
		boolToInt(s.CanView), boolToInt(s.CanComment), s.ExpiresAt,
		s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create share: %w", err)
	}
	// The upsert keeps the original row's id and created_at.
	if err := tx.QueryRow(`
		SELECT id, created_at FROM file_shares
		WHERE file_id = ? AND shared_with = ?`,
		s.FileID, s.SharedWith).Scan(&s.ID, &s.CreatedAt); err != nil {
		return fmt.Errorf("failed to read back share: %w", err)
	}

	if _, err := tx.Exec(`UPDATE files SET is_shared = 1 WHERE id = ?`, s.FileID); err != nil {
		return fmt.Errorf("failed to mark file shared: %w", err)
	}
	return tx.Commit()
}

// GetShare fetches the share of a file to a specific user.
func (d *Database) GetShare(fileID, sharedWith string) (*model.FileShare, error) {
	var s model.FileShare
	var download, view, comment int
	err := d.db.QueryRow(`
		SELECT id, file_id, shared_by, shared_with, can_download, can_view,
			can_comment, expires_at, created_at, updated_at
		FROM file_shares WHERE file_id = ? AND shared_with = ?`,
		fileID, sharedWith).Scan(
		&s.ID, &s.FileID, &s.SharedBy, &s.SharedWith, &download, &view, &comment,
		&s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get share: %w", err)
	}
	s.CanDownload = download != 0
	s.CanView = view != 0
	s.CanComment = comment != 0
	return &s, nil
}

// DeleteShare revokes a share created by the owner.
func (d *Database) DeleteShare(id, sharedBy string) error {
	res, err := d.db.Exec(`DELETE FROM file_shares WHERE id = ? AND shared_by = ?`,
		id, sharedBy)
	if err != nil {
		return fmt.Errorf("failed to delete share: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const shareColumns = `id, file_id, shared_by, shared_with, can_download,
	can_view, can_comment, expires_at, created_at, updated_at`

func scanShares(rows *sql.Rows) ([]model.FileShare, error) {
	var shares []model.FileShare
	for rows.Next() {
		var s model.FileShare
		var download, view, comment int
		if err := rows.Scan(&s.ID, &s.FileID, &s.SharedBy, &s.SharedWith,
			&download, &view, &comment, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan share: %w", err)
		}
		s.CanDownload = download != 0
		s.CanView = view != 0
		s.CanComment = comment != 0
		shares = append(shares, s)
	}
	return shares, rows.Err()
}

// ListSharesByUser returns the shares the user has created.
func (d *Database) ListSharesByUser(userID string) ([]model.FileShare, error) {
	rows, err := d.db.Query(`SELECT `+shareColumns+` FROM file_shares
		WHERE shared_by = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list shares: %w", err)
	}
	defer rows.Close()
	return scanShares(rows)
}

// ListSharesForFile returns all shares of one file, owner only.
func (d *Database) ListSharesForFile(fileID, ownerID string) ([]model.FileShare, error) {
	rows, err := d.db.Query(`SELECT `+shareColumns+` FROM file_shares
		WHERE file_id = ? AND shared_by = ? ORDER BY created_at DESC`, fileID, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list file shares: %w", err)
	}
	defer rows.Close()
	return scanShares(rows)
}

// ListSharedWithUser returns live files shared with the user whose
// shares have not expired.
func (d *Database) ListSharedWithUser(userID string, now time.Time) ([]model.File, error) {
	rows, err := d.db.Query(`
		SELECT `+prefixColumns("f", fileColumns)+`
		FROM files f
		JOIN file_shares s ON s.file_id = f.id
		WHERE s.shared_with = ? AND f.deleted_at IS NULL
		  AND (s.expires_at IS NULL OR s.expires_at > ?)
		ORDER BY s.created_at DESC`, userID, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list shared files: %w", err)
	}
	defer rows.Close()

	var files []model.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}
	return files, rows.Err()
}

// prefixColumns qualifies a comma separated column list with a table alias.
func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// CreateVersion inserts a file version with the next version number.
func (d *Database) CreateVersion(v *model.FileVersion) error {
	if v.ID == "" {
		v.ID = uuid.Must(uuid.NewV7()).String()
	}
	v.CreatedAt = time.Now().UTC()

	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := tx.QueryRow(`
		SELECT COALESCE(MAX(version_number), 0) + 1 FROM file_versions WHERE file_id = ?`,
		v.FileID).Scan(&v.VersionNumber); err != nil {
		return fmt.Errorf("failed to compute version number: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO file_versions (id, file_id, version_number, file_name,
			file_size, object_key, change_description, uploaded_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.FileID, v.VersionNumber, v.FileName, v.FileSize, v.ObjectKey,
		v.ChangeDescription, v.UploadedBy, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create version: %w", err)
	}
	return tx.Commit()
}

// ListVersions returns a file's versions, newest first.
func (d *Database) ListVersions(fileID string) ([]model.FileVersion, error) {
	rows, err := d.db.Query(`
		SELECT id, file_id, version_number, file_name, file_size, object_key,
			change_description, uploaded_by, created_at
		FROM file_versions WHERE file_id = ? ORDER BY version_number DESC`, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []model.FileVersion
	for rows.Next() {
		var v model.FileVersion
		if err := rows.Scan(&v.ID, &v.FileID, &v.VersionNumber, &v.FileName,
			&v.FileSize, &v.ObjectKey, &v.ChangeDescription, &v.UploadedBy,
			&v.CreatedAt); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// CreateComment inserts a file comment.
func (d *Database) CreateComment(c *model.FileComment) error {
	if c.ID == "" {
		c.ID = uuid.Must(uuid.NewV7()).String()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	_, err := d.db.Exec(`
		INSERT INTO file_comments (id, file_id, user_id, content, parent_id,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.FileID, c.UserID, c.Content, c.ParentID, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}
	return nil
}

// ListComments returns a file's comments threaded one level deep.
func (d *Database) ListComments(fileID string) ([]model.FileComment, error) {
	rows, err := d.db.Query(`
		SELECT id, file_id, user_id, content, parent_id, created_at, updated_at
		FROM file_comments WHERE file_id = ? ORDER BY created_at`, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var all []model.FileComment
	for rows.Next() {
		var c model.FileComment
		if err := rows.Scan(&c.ID, &c.FileID, &c.UserID, &c.Content, &c.ParentID,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		all = append(all, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	byID := make(map[string]*model.FileComment, len(all))
	var roots []model.FileComment
	for i := range all {
		if all[i].ParentID == nil {
			roots = append(roots, all[i])
			byID[all[i].ID] = &roots[len(roots)-1]
		}
	}
	for i := range all {
		if all[i].ParentID != nil {
			if parent, ok := byID[*all[i].ParentID]; ok {
				parent.Replies = append(parent.Replies, all[i])
			}
		}
	}
	return roots, nil
}

// FileStats aggregates storage usage for a user.
func (d *Database) FileStats(userID string) (*model.FileStats, error) {
	stats := &model.FileStats{
		FilesByCategory: make(map[model.FileCategory]int),
		BytesByCategory: make(map[model.FileCategory]int64),
	}

	if err := d.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(file_size), 0), COALESCE(SUM(download_count), 0)
		FROM files WHERE user_id = ? AND deleted_at IS NULL`, userID).
		Scan(&stats.TotalFiles, &stats.TotalBytes, &stats.TotalDownloads); err != nil {
		return nil, err
	}

	rows, err := d.db.Query(`
		SELECT category, COUNT(*), COALESCE(SUM(file_size), 0)
		FROM files WHERE user_id = ? AND deleted_at IS NULL
		GROUP BY category`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cat model.FileCategory
		var count int
		var bytes int64
		if err := rows.Scan(&cat, &count, &bytes); err != nil {
			return nil, err
		}
		stats.FilesByCategory[cat] = count
		stats.BytesByCategory[cat] = bytes
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := d.db.QueryRow(`SELECT COUNT(*) FROM file_shares WHERE shared_with = ?`, userID).
		Scan(&stats.SharedWithMe); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM file_shares WHERE shared_by = ?`, userID).
		Scan(&stats.SharedByMe); err != nil {
		return nil, err
	}
	return stats, nil
}

// AdminFileStats is the platform-wide storage summary.
type AdminFileStats struct {
	TotalFiles      int                          `json:"total_files"`
	TotalBytes      int64                        `json:"total_bytes"`
	TotalDownloads  int                          `json:"total_downloads"`
	UploadsToday    int                          `json:"uploads_today"`
	ActiveShares    int                          `json:"active_shares"`
	FilesByCategory map[model.FileCategory]int   `json:"files_by_category"`
	BytesByCategory map[model.FileCategory]int64 `json:"bytes_by_category"`
}

// AdminFileSummary aggregates storage across all users.
func (d *Database) AdminFileSummary(now time.Time) (*AdminFileStats, error) {
	stats := &AdminFileStats{
		FilesByCategory: make(map[model.FileCategory]int),
		BytesByCategory: make(map[model.FileCategory]int64),
	}

	if err := d.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(file_size), 0), COALESCE(SUM(download_count), 0)
		FROM files WHERE deleted_at IS NULL`).
		Scan(&stats.TotalFiles, &stats.TotalBytes, &stats.TotalDownloads); err != nil {
		return nil, err
	}

	today := now.UTC().Format("2006-01-02")
	if err := d.db.QueryRow(`
		SELECT COUNT(*) FROM files WHERE date(created_at) = ? AND deleted_at IS NULL`,
		today).Scan(&stats.UploadsToday); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`
		SELECT COUNT(*) FROM file_shares WHERE expires_at IS NULL OR expires_at > ?`,
		now.UTC()).Scan(&stats.ActiveShares); err != nil {
		return nil, err
	}

	rows, err := d.db.Query(`
		SELECT category, COUNT(*), COALESCE(SUM(file_size), 0)
		FROM files WHERE deleted_at IS NULL GROUP BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cat model.FileCategory
		var count int
		var bytes int64
		if err := rows.Scan(&cat, &count, &bytes); err != nil {
			return nil, err
		}
		stats.FilesByCategory[cat] = count
		stats.BytesByCategory[cat] = bytes
	}
	return stats, rows.Err()
}
