package service

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omadligroup/ai-agent-api/internal/model"
	"github.com/omadligroup/ai-agent-api/internal/storage"
	"github.com/omadligroup/ai-agent-api/internal/store"
)

type fileFixture struct {
	svc   *FileService
	db    *store.Database
	owner string
	other string
}

func newFileFixture(t *testing.T) *fileFixture {
	t.Helper()
	db := testStore(t)
	log := testLogger(t)

	local, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)

	svc := NewFileService(db, local, nil, log, 1<<20, "url-secret", time.Minute)

	f := &fileFixture{svc: svc, db: db}
	f.owner = createTestUser(t, db, "owner")
	f.other = createTestUser(t, db, "other")
	return f
}

func createTestUser(t *testing.T, db *store.Database, username string) string {
	t.Helper()
	user := &model.User{
		Username:           username,
		Email:              username + "@example.com",
		PasswordHash:       "x",
		Role:               model.RoleUser,
		SubscriptionType:   model.SubscriptionFree,
		SubscriptionStatus: model.SubscriptionActive,
	}
	require.NoError(t, db.CreateUser(user))
	return user.ID
}

// uploadHeader builds a multipart.FileHeader the way the handler layer
// receives one, by round tripping through a parsed request.
func uploadHeader(t *testing.T, filename, contentType, content string) *multipart.FileHeader {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	return req.MultipartForm.File["file"][0]
}

func TestFileUpload(t *testing.T) {
	f := newFileFixture(t)

	header := uploadHeader(t, "report.pdf", "application/pdf", "pdf bytes here")
	file, err := f.svc.Upload(context.Background(), f.owner, header, "Q3 report", []string{"finance"}, false)
	require.NoError(t, err)

	assert.Equal(t, "report.pdf", file.OriginalName)
	assert.Equal(t, ".pdf", file.FileExtension)
	assert.Equal(t, model.CategoryDocument, file.Category)
	assert.Equal(t, model.FileCompleted, file.Status)
	assert.Equal(t, int64(len("pdf bytes here")), file.FileSize)
	assert.Equal(t, []string{"finance"}, file.Tags)

	got, reader, err := f.svc.Open(context.Background(), f.owner, file.ID)
	require.NoError(t, err)
	defer reader.Close()
	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "pdf bytes here", string(content))
	assert.Equal(t, file.ID, got.ID)
}

func TestFileUploadTooLarge(t *testing.T) {
	f := newFileFixture(t)
	f.svc.maxUploadSize = 4

	header := uploadHeader(t, "big.txt", "text/plain", "way past the limit")
	_, err := f.svc.Upload(context.Background(), f.owner, header, "", nil, false)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestFileAccessControl(t *testing.T) {
	f := newFileFixture(t)

	header := uploadHeader(t, "private.txt", "text/plain", "secret")
	file, err := f.svc.Upload(context.Background(), f.owner, header, "", nil, false)
	require.NoError(t, err)

	// Inaccessible files look like they do not exist.
	_, err = f.svc.Get(context.Background(), f.other, file.ID)
	require.ErrorIs(t, err, ErrNotFound)

	// Public files are visible to everyone.
	header = uploadHeader(t, "public.txt", "text/plain", "open")
	public, err := f.svc.Upload(context.Background(), f.owner, header, "", nil, true)
	require.NoError(t, err)
	_, err = f.svc.Get(context.Background(), f.other, public.ID)
	require.NoError(t, err)
}

func TestShareGrantsAccess(t *testing.T) {
	f := newFileFixture(t)

	header := uploadHeader(t, "shared.txt", "text/plain", "contents")
	file, err := f.svc.Upload(context.Background(), f.owner, header, "", nil, false)
	require.NoError(t, err)

	share, err := f.svc.Share(context.Background(), f.owner, &model.ShareFileRequest{
		FileID:             file.ID,
		SharedWithUsername: "other",
	})
	require.NoError(t, err)
	assert.True(t, share.CanView)
	assert.True(t, share.CanDownload)

	_, err = f.svc.Get(context.Background(), f.other, file.ID)
	require.NoError(t, err)

	shared, err := f.svc.SharedWithMe(context.Background(), f.other)
	require.NoError(t, err)
	require.Len(t, shared, 1)
	assert.Equal(t, file.ID, shared[0].ID)

	require.NoError(t, f.svc.Unshare(context.Background(), f.owner, share.ID))
	_, err = f.svc.Get(context.Background(), f.other, file.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestShareRejections(t *testing.T) {
	f := newFileFixture(t)

	header := uploadHeader(t, "a.txt", "text/plain", "a")
	file, err := f.svc.Upload(context.Background(), f.owner, header, "", nil, false)
	require.NoError(t, err)

	_, err = f.svc.Share(context.Background(), f.owner, &model.ShareFileRequest{
		FileID:             file.ID,
		SharedWithUsername: "owner",
	})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Share(context.Background(), f.owner, &model.ShareFileRequest{
		FileID:             file.ID,
		SharedWithUsername: "ghost",
	})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestShareAgainUpdatesPermissions(t *testing.T) {
	f := newFileFixture(t)

	header := uploadHeader(t, "b.txt", "text/plain", "b")
	file, err := f.svc.Upload(context.Background(), f.owner, header, "", nil, false)
	require.NoError(t, err)

	first, err := f.svc.Share(context.Background(), f.owner, &model.ShareFileRequest{
		FileID:             file.ID,
		SharedWithUsername: "other",
	})
	require.NoError(t, err)
	assert.True(t, first.CanDownload)
	assert.False(t, first.CanComment)

	noDownload := false
	canComment := true
	second, err := f.svc.Share(context.Background(), f.owner, &model.ShareFileRequest{
		FileID:             file.ID,
		SharedWithUsername: "other",
		CanDownload:        &noDownload,
		CanComment:         &canComment,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.False(t, second.CanDownload)
	assert.True(t, second.CanComment)

	shares, err := f.svc.FileShares(context.Background(), f.owner, file.ID)
	require.NoError(t, err)
	require.Len(t, shares, 1)
	assert.False(t, shares[0].CanDownload)
	assert.True(t, shares[0].CanComment)
}

func TestUploadVersionKeepsHistory(t *testing.T) {
	f := newFileFixture(t)

	header := uploadHeader(t, "doc.txt", "text/plain", "version one")
	file, err := f.svc.Upload(context.Background(), f.owner, header, "", nil, false)
	require.NoError(t, err)

	header = uploadHeader(t, "doc.txt", "text/plain", "version two longer")
	version, err := f.svc.UploadVersion(context.Background(), f.owner, file.ID, header, "rewrote intro")
	require.NoError(t, err)
	assert.Equal(t, 1, version.VersionNumber)
	assert.Equal(t, "rewrote intro", version.ChangeDescription)

	// The file record now points at the new content.
	_, reader, err := f.svc.Open(context.Background(), f.owner, file.ID)
	require.NoError(t, err)
	defer reader.Close()
	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "version two longer", string(content))

	versions, err := f.svc.Versions(context.Background(), f.owner, file.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
}

func TestCommentPermissions(t *testing.T) {
	f := newFileFixture(t)

	header := uploadHeader(t, "doc.txt", "text/plain", "x")
	file, err := f.svc.Upload(context.Background(), f.owner, header, "", nil, false)
	require.NoError(t, err)

	// Not shared, not public: no commenting.
	_, err = f.svc.Comment(context.Background(), f.other, file.ID, &model.AddCommentRequest{Content: "hi"})
	require.ErrorIs(t, err, ErrForbidden)

	canComment := true
	_, err = f.svc.Share(context.Background(), f.owner, &model.ShareFileRequest{
		FileID:             file.ID,
		SharedWithUsername: "other",
		CanComment:         &canComment,
	})
	require.NoError(t, err)

	comment, err := f.svc.Comment(context.Background(), f.other, file.ID, &model.AddCommentRequest{Content: "looks good"})
	require.NoError(t, err)

	reply, err := f.svc.Comment(context.Background(), f.owner, file.ID, &model.AddCommentRequest{
		Content:  "thanks",
		ParentID: &comment.ID,
	})
	require.NoError(t, err)
	require.NotNil(t, reply.ParentID)

	comments, err := f.svc.Comments(context.Background(), f.owner, file.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	require.Len(t, comments[0].Replies, 1)

	_, err = f.svc.Comment(context.Background(), f.owner, file.ID, &model.AddCommentRequest{Content: "   "})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestBulkActions(t *testing.T) {
	f := newFileFixture(t)

	header := uploadHeader(t, "a.txt", "text/plain", "a")
	a, err := f.svc.Upload(context.Background(), f.owner, header, "", nil, false)
	require.NoError(t, err)
	header = uploadHeader(t, "b.txt", "text/plain", "b")
	b, err := f.svc.Upload(context.Background(), f.owner, header, "", nil, false)
	require.NoError(t, err)

	resp, err := f.svc.Bulk(context.Background(), f.owner, &model.BulkFileActionRequest{
		Action:   "update_category",
		FileIDs:  []string{a.ID, b.ID},
		Category: model.CategoryArchive,
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Results[a.ID])
	assert.Equal(t, "ok", resp.Results[b.ID])

	resp, err = f.svc.Bulk(context.Background(), f.owner, &model.BulkFileActionRequest{
		Action:  "delete",
		FileIDs: []string{a.ID, "00000000-0000-7000-8000-000000000000"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Results[a.ID])
	assert.NotEqual(t, "ok", resp.Results["00000000-0000-7000-8000-000000000000"])

	resp, err = f.svc.Bulk(context.Background(), f.owner, &model.BulkFileActionRequest{
		Action:  "restore",
		FileIDs: []string{a.ID},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Results[a.ID])
	_, err = f.svc.Get(context.Background(), f.owner, a.ID)
	require.NoError(t, err)

	_, err = f.svc.Bulk(context.Background(), f.owner, &model.BulkFileActionRequest{
		Action:  "rename",
		FileIDs: []string{b.ID},
	})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestSignedDownloadURL(t *testing.T) {
	f := newFileFixture(t)

	header := uploadHeader(t, "doc.txt", "text/plain", "signed content")
	file, err := f.svc.Upload(context.Background(), f.owner, header, "", nil, false)
	require.NoError(t, err)

	resp, err := f.svc.SignedDownloadURL(context.Background(), f.owner, file.ID)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(resp.URL, "/api/v1/files/"+file.ID+"/raw?"))

	u, err := url.Parse(resp.URL)
	require.NoError(t, err)
	q := u.Query()

	require.NoError(t, f.svc.VerifySignedURL(file.ID, q.Get("expires"), q.Get("signature")))

	// Tampered signature fails.
	err = f.svc.VerifySignedURL(file.ID, q.Get("expires"), q.Get("signature")+"ff")
	require.ErrorIs(t, err, ErrForbidden)

	// A signature for another file does not transfer.
	err = f.svc.VerifySignedURL("some-other-id", q.Get("expires"), q.Get("signature"))
	require.ErrorIs(t, err, ErrForbidden)

	// Expired links fail regardless of signature.
	past := time.Now().Add(-time.Minute).Unix()
	err = f.svc.VerifySignedURL(file.ID, strconv.FormatInt(past, 10), f.svc.sign(file.ID, past))
	require.ErrorIs(t, err, ErrForbidden)

	got, reader, err := f.svc.OpenRaw(file.ID)
	require.NoError(t, err)
	defer reader.Close()
	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "signed content", string(content))
	assert.Equal(t, file.ID, got.ID)
}

func TestDeleteRemovesAccess(t *testing.T) {
	f := newFileFixture(t)

	header := uploadHeader(t, "gone.txt", "text/plain", "x")
	file, err := f.svc.Upload(context.Background(), f.owner, header, "", nil, false)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(context.Background(), f.owner, file.ID))

	listing, err := f.svc.List(context.Background(), f.owner, store.FileFilter{})
	require.NoError(t, err)
	assert.Empty(t, listing.Files)
}

func TestShareOverview(t *testing.T) {
	f := newFileFixture(t)

	header := uploadHeader(t, "report.txt", "text/plain", "q3")
	file, err := f.svc.Upload(context.Background(), f.owner, header, "", nil, false)
	require.NoError(t, err)

	share, err := f.svc.Share(context.Background(), f.owner, &model.ShareFileRequest{
		FileID:             file.ID,
		SharedWithUsername: "other",
	})
	require.NoError(t, err)

	byOwner, err := f.svc.Shares(context.Background(), f.owner)
	require.NoError(t, err)
	require.Len(t, byOwner.SharedByMe, 1)
	assert.Equal(t, share.ID, byOwner.SharedByMe[0].ID)
	assert.Empty(t, byOwner.SharedWithMe)

	byOther, err := f.svc.Shares(context.Background(), f.other)
	require.NoError(t, err)
	assert.Empty(t, byOther.SharedByMe)
	require.Len(t, byOther.SharedWithMe, 1)
	assert.Equal(t, file.ID, byOther.SharedWithMe[0].ID)

	shares, err := f.svc.FileShares(context.Background(), f.owner, file.ID)
	require.NoError(t, err)
	require.Len(t, shares, 1)

	// Only the owner can enumerate a file's shares.
	_, err = f.svc.FileShares(context.Background(), f.other, file.ID)
	require.ErrorIs(t, err, ErrNotFound)
}
