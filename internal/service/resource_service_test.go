package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unishare/unishare-api/internal/dto"
	"github.com/unishare/unishare-api/internal/models"
	appErrors "github.com/unishare/unishare-api/pkg/errors"
	"github.com/unishare/unishare-api/pkg/storage"
)

type mockResourceStore struct {
	items       map[string]*models.Resource
	createErr   error
	created     []*models.Resource
	listResult  []models.ResourceView
	latestLimit int
	softDeleted []string
}

func (m *mockResourceStore) CreateTx(ctx context.Context, tx *sqlx.Tx, res *models.Resource) error {
	if m.createErr != nil {
		return m.createErr
	}
	if res.ID == "" {
		res.ID = fmt.Sprintf("res-%d", len(m.created)+1)
	}
	res.CreatedAt = time.Now()
	if m.items == nil {
		m.items = make(map[string]*models.Resource)
	}
	cp := *res
	m.items[res.ID] = &cp
	m.created = append(m.created, &cp)
	return nil
}

func (m *mockResourceStore) GetByID(ctx context.Context, id string) (*models.Resource, error) {
	if res, ok := m.items[id]; ok {
		cp := *res
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockResourceStore) List(ctx context.Context) ([]models.ResourceView, error) {
	return m.listResult, nil
}

func (m *mockResourceStore) Latest(ctx context.Context, limit int) ([]models.ResourceView, error) {
	m.latestLimit = limit
	if len(m.listResult) > limit {
		return m.listResult[:limit], nil
	}
	return m.listResult, nil
}

func (m *mockResourceStore) UpdateTitleDescription(ctx context.Context, id string, title, description *string) error {
	res, ok := m.items[id]
	if !ok || res.IsDeleted {
		return sql.ErrNoRows
	}
	if title != nil {
		res.Title = *title
	}
	if description != nil {
		res.Description = *description
	}
	return nil
}

func (m *mockResourceStore) SoftDelete(ctx context.Context, id string) error {
	res, ok := m.items[id]
	if !ok || res.IsDeleted {
		return sql.ErrNoRows
	}
	res.IsDeleted = true
	m.softDeleted = append(m.softDeleted, id)
	return nil
}

type mockChainResolver struct {
	chain *models.ResolvedChain
	err   error
	calls int
}

func (m *mockChainResolver) ResolveChainTx(ctx context.Context, tx *sqlx.Tx, in ResolveInput) (*models.ResolvedChain, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.chain, nil
}

type mockTxRunner struct{}

func (m *mockTxRunner) RunInTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return fn(nil)
}

// commitFailTxRunner runs the closure to completion and then fails, the way
// a real transaction does when Commit returns an error.
type commitFailTxRunner struct {
	err error
}

func (m *commitFailTxRunner) RunInTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	if err := fn(nil); err != nil {
		return err
	}
	return m.err
}

func pdfFixture(t *testing.T) []byte {
	t.Helper()
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "", 12)
	pdf.Cell(40, 10, "lecture notes")
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

func studentClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleStudent}
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
}

func newTestResourceService(t *testing.T, store *mockResourceStore, resolver *mockChainResolver) *ResourceService {
	t.Helper()
	fs, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", 300*time.Second)
	return NewResourceService(store, resolver, &mockTxRunner{}, fs, signer, nil, nil, nil, ResourceServiceConfig{})
}

func defaultChain() *models.ResolvedChain {
	return &models.ResolvedChain{SubjectID: 1, AcademicYearID: 7, OfferingID: 42, FacultyID: "fac-1"}
}

func linkRequest() dto.CreateLinkResourceRequest {
	return dto.CreateLinkResourceRequest{
		Title:       "Week 1 notes",
		Description: "Intro lecture",
		SubjectCode: "CS101",
		StartYear:   2024,
		EndYear:     2025,
		ExternalURL: "https://example.com/notes",
	}
}

func fileRequest() dto.CreateFileResourceRequest {
	return dto.CreateFileResourceRequest{
		Title:       "Week 1 notes",
		Description: "Intro lecture",
		SubjectCode: "CS101",
		StartYear:   2024,
		EndYear:     2025,
	}
}

func TestCreateLink(t *testing.T) {
	store := &mockResourceStore{}
	resolver := &mockChainResolver{chain: defaultChain()}
	svc := newTestResourceService(t, store, resolver)

	res, err := svc.CreateLink(context.Background(), linkRequest(), studentClaims("user-1"))
	require.NoError(t, err)
	assert.Equal(t, models.KindExternalLink, res.Kind)
	assert.Equal(t, models.TypeOther, res.ResourceType)
	assert.Equal(t, "user-1", res.ContributorID)
	require.NotNil(t, res.OfferingID)
	assert.Equal(t, int64(42), *res.OfferingID)
	assert.Equal(t, 1, resolver.calls)
}

func TestCreateLinkValidationShortCircuits(t *testing.T) {
	store := &mockResourceStore{}
	resolver := &mockChainResolver{chain: defaultChain()}
	svc := newTestResourceService(t, store, resolver)

	req := linkRequest()
	req.Title = ""
	_, err := svc.CreateLink(context.Background(), req, studentClaims("user-1"))
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)
	assert.Equal(t, 0, resolver.calls, "validation failures must never reach entity resolution")
	assert.Empty(t, store.created)
}

func TestCreateLinkResolutionMiss(t *testing.T) {
	store := &mockResourceStore{}
	resolver := &mockChainResolver{err: appErrors.EntityNotFound("offering")}
	svc := newTestResourceService(t, store, resolver)

	_, err := svc.CreateLink(context.Background(), linkRequest(), studentClaims("user-1"))
	require.Error(t, err)
	e := appErrors.FromError(err)
	assert.Equal(t, http.StatusBadRequest, e.Status)
	assert.Contains(t, e.Message, "offering not found")
	assert.Empty(t, store.created)
}

func TestCreateFile(t *testing.T) {
	store := &mockResourceStore{}
	resolver := &mockChainResolver{chain: defaultChain()}
	svc := newTestResourceService(t, store, resolver)

	content := pdfFixture(t)
	upload := FileUpload{
		Filename: "week 1 notes?.pdf",
		Size:     int64(len(content)),
		MimeType: "application/pdf",
		Content:  bytes.NewReader(content),
	}
	res, err := svc.CreateFile(context.Background(), fileRequest(), upload, studentClaims("user-1"))
	require.NoError(t, err)
	require.NotNil(t, res.StoragePath)
	assert.Contains(t, *res.StoragePath, "1/42/")
	assert.Contains(t, *res.StoragePath, "week_1_notes_.pdf")

	stored, err := svc.storage.Open(*res.StoragePath)
	require.NoError(t, err)
	defer stored.Close()
	info, err := stored.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), info.Size())
}

func TestCreateFileRejectsNonPDFBeforeResolution(t *testing.T) {
	store := &mockResourceStore{}
	resolver := &mockChainResolver{chain: defaultChain()}
	svc := newTestResourceService(t, store, resolver)

	upload := FileUpload{
		Filename: "notes.docx",
		Size:     128,
		MimeType: "application/msword",
		Content:  bytes.NewReader([]byte("not a pdf")),
	}
	_, err := svc.CreateFile(context.Background(), fileRequest(), upload, studentClaims("user-1"))
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)
	assert.Equal(t, 0, resolver.calls)
}

func TestCreateFileRejectsOversize(t *testing.T) {
	store := &mockResourceStore{}
	resolver := &mockChainResolver{chain: defaultChain()}
	svc := newTestResourceService(t, store, resolver)

	upload := FileUpload{
		Filename: "huge.pdf",
		Size:     11 * 1024 * 1024,
		MimeType: "application/pdf",
		Content:  bytes.NewReader([]byte("x")),
	}
	_, err := svc.CreateFile(context.Background(), fileRequest(), upload, studentClaims("user-1"))
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)
	assert.Equal(t, 0, resolver.calls)
}

func TestCreateFileCompensatesStorageOnInsertFailure(t *testing.T) {
	store := &mockResourceStore{createErr: errors.New("insert failed")}
	resolver := &mockChainResolver{chain: defaultChain()}

	dir := t.TempDir()
	fs, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", 300*time.Second)
	svc := NewResourceService(store, resolver, &mockTxRunner{}, fs, signer, nil, nil, nil, ResourceServiceConfig{})

	content := pdfFixture(t)
	upload := FileUpload{
		Filename: "notes.pdf",
		Size:     int64(len(content)),
		MimeType: "application/pdf",
		Content:  bytes.NewReader(content),
	}
	_, err = svc.CreateFile(context.Background(), fileRequest(), upload, studentClaims("user-1"))
	require.Error(t, err)
	assert.Empty(t, store.created)

	// The upload that went to disk before the failed insert is removed.
	var remaining []string
	require.NoError(t, filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			remaining = append(remaining, path)
		}
		return nil
	}))
	assert.Empty(t, remaining)
}

func TestCreateFileCompensatesStorageOnCommitFailure(t *testing.T) {
	store := &mockResourceStore{}
	resolver := &mockChainResolver{chain: defaultChain()}

	dir := t.TempDir()
	fs, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", 300*time.Second)
	tx := &commitFailTxRunner{err: errors.New("commit failed")}
	svc := NewResourceService(store, resolver, tx, fs, signer, nil, nil, nil, ResourceServiceConfig{})

	content := pdfFixture(t)
	upload := FileUpload{
		Filename: "notes.pdf",
		Size:     int64(len(content)),
		MimeType: "application/pdf",
		Content:  bytes.NewReader(content),
	}
	_, err = svc.CreateFile(context.Background(), fileRequest(), upload, studentClaims("user-1"))
	require.Error(t, err)

	// The insert succeeded inside the closure but the transaction never
	// committed, so the object written to disk must not survive either.
	var remaining []string
	require.NoError(t, filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			remaining = append(remaining, path)
		}
		return nil
	}))
	assert.Empty(t, remaining)
}

func TestSignedURLAndDownload(t *testing.T) {
	store := &mockResourceStore{}
	resolver := &mockChainResolver{chain: defaultChain()}
	svc := newTestResourceService(t, store, resolver)

	content := pdfFixture(t)
	upload := FileUpload{
		Filename: "notes.pdf",
		Size:     int64(len(content)),
		MimeType: "application/pdf",
		Content:  bytes.NewReader(content),
	}
	res, err := svc.CreateFile(context.Background(), fileRequest(), upload, studentClaims("user-1"))
	require.NoError(t, err)

	url, err := svc.SignedURL(context.Background(), res.ID, studentClaims("user-2"))
	require.NoError(t, err)
	assert.Contains(t, url, "/resources/"+res.ID+"/download?token=")

	token := url[len("/api/v1/resources/"+res.ID+"/download?token="):]
	dl, err := svc.Download(context.Background(), res.ID, token)
	require.NoError(t, err)
	defer dl.File.Close()
	assert.True(t, strings.HasSuffix(dl.Filename, "notes.pdf"))
	assert.Equal(t, int64(len(content)), dl.SizeBytes)
}

func TestSignedURLRejectsLinkResource(t *testing.T) {
	store := &mockResourceStore{}
	resolver := &mockChainResolver{chain: defaultChain()}
	svc := newTestResourceService(t, store, resolver)

	res, err := svc.CreateLink(context.Background(), linkRequest(), studentClaims("user-1"))
	require.NoError(t, err)

	_, err = svc.SignedURL(context.Background(), res.ID, studentClaims("user-1"))
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)
}

func TestSignedURLGoneForDeletedResource(t *testing.T) {
	store := &mockResourceStore{}
	resolver := &mockChainResolver{chain: defaultChain()}
	svc := newTestResourceService(t, store, resolver)

	content := pdfFixture(t)
	upload := FileUpload{
		Filename: "notes.pdf",
		Size:     int64(len(content)),
		MimeType: "application/pdf",
		Content:  bytes.NewReader(content),
	}
	res, err := svc.CreateFile(context.Background(), fileRequest(), upload, studentClaims("user-1"))
	require.NoError(t, err)
	require.NoError(t, svc.Delete(context.Background(), res.ID, studentClaims("user-1")))

	_, err = svc.SignedURL(context.Background(), res.ID, studentClaims("user-1"))
	require.Error(t, err)
	assert.Equal(t, http.StatusGone, appErrors.FromError(err).Status)
}

func TestDownloadRejectsForeignToken(t *testing.T) {
	store := &mockResourceStore{}
	resolver := &mockChainResolver{chain: defaultChain()}
	svc := newTestResourceService(t, store, resolver)

	content := pdfFixture(t)
	for _, name := range []string{"first.pdf", "second.pdf"} {
		upload := FileUpload{
			Filename: name,
			Size:     int64(len(content)),
			MimeType: "application/pdf",
			Content:  bytes.NewReader(content),
		}
		_, err := svc.CreateFile(context.Background(), fileRequest(), upload, studentClaims("user-1"))
		require.NoError(t, err)
	}

	first := store.created[0]
	second := store.created[1]
	token, _, err := svc.signer.Generate(first.ID, *first.StoragePath)
	require.NoError(t, err)

	_, err = svc.Download(context.Background(), second.ID, token)
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, appErrors.FromError(err).Status)
}

func TestUpdateMutationGate(t *testing.T) {
	store := &mockResourceStore{}
	resolver := &mockChainResolver{chain: defaultChain()}
	svc := newTestResourceService(t, store, resolver)

	res, err := svc.CreateLink(context.Background(), linkRequest(), studentClaims("user-1"))
	require.NoError(t, err)

	title := "Renamed"
	_, err = svc.Update(context.Background(), res.ID, dto.UpdateResourceRequest{Title: &title}, studentClaims("user-2"))
	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, appErrors.FromError(err).Status)

	updated, err := svc.Update(context.Background(), res.ID, dto.UpdateResourceRequest{Title: &title}, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)
	assert.Equal(t, "Intro lecture", updated.Description)
}

func TestUpdateRejectsEmptyPatch(t *testing.T) {
	store := &mockResourceStore{}
	svc := newTestResourceService(t, store, &mockChainResolver{chain: defaultChain()})

	_, err := svc.Update(context.Background(), "res-1", dto.UpdateResourceRequest{}, adminClaims())
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, appErrors.FromError(err).Status)
}

func TestUpdateMissingResource(t *testing.T) {
	store := &mockResourceStore{}
	svc := newTestResourceService(t, store, &mockChainResolver{chain: defaultChain()})

	title := "Renamed"
	_, err := svc.Update(context.Background(), "missing", dto.UpdateResourceRequest{Title: &title}, adminClaims())
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, appErrors.FromError(err).Status)
}

func TestDeleteIsSoftAndIdempotencyRejected(t *testing.T) {
	store := &mockResourceStore{}
	resolver := &mockChainResolver{chain: defaultChain()}
	svc := newTestResourceService(t, store, resolver)

	res, err := svc.CreateLink(context.Background(), linkRequest(), studentClaims("user-1"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), res.ID, studentClaims("user-1")))
	assert.Equal(t, []string{res.ID}, store.softDeleted)

	err = svc.Delete(context.Background(), res.ID, studentClaims("user-1"))
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, appErrors.FromError(err).Status)
}

func TestLatestCapsAtThree(t *testing.T) {
	rows := []models.ResourceView{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	store := &mockResourceStore{listResult: rows}
	svc := newTestResourceService(t, store, &mockChainResolver{chain: defaultChain()})

	latest, err := svc.Latest(context.Background())
	require.NoError(t, err)
	assert.Len(t, latest, 3)
	assert.Equal(t, 3, store.latestLimit)
}

func TestCanMutate(t *testing.T) {
	res := &models.Resource{ContributorID: "user-1"}

	assert.True(t, CanMutate(res, studentClaims("user-1")))
	assert.False(t, CanMutate(res, studentClaims("user-2")))
	assert.True(t, CanMutate(res, adminClaims()))
	assert.False(t, CanMutate(res, &models.JWTClaims{UserID: "fac-1", Role: models.RoleFaculty}))
	assert.False(t, CanMutate(nil, adminClaims()))
	assert.False(t, CanMutate(res, nil))
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "my_file__.pdf", sanitizeFilename("my file?!.pdf"))
	assert.Equal(t, "plain-name_v2.pdf", sanitizeFilename("plain-name_v2.pdf"))
	assert.Equal(t, "___.pdf", sanitizeFilename("日本語.pdf"))
}

func TestBuildStoragePath(t *testing.T) {
	now := time.Unix(1700000000, 0)
	chain := defaultChain()

	assert.Equal(t, "1/42/1700000000-notes.pdf", buildStoragePath(chain, "notes.pdf", now))

	unitID := int64(9)
	chain.UnitID = &unitID
	assert.Equal(t, "1/42/9/1700000000-notes.pdf", buildStoragePath(chain, "notes.pdf", now))
}

func TestDownloadOpenMissingFile(t *testing.T) {
	store := &mockResourceStore{items: map[string]*models.Resource{}}
	svc := newTestResourceService(t, store, &mockChainResolver{chain: defaultChain()})

	path := "1/42/1700000000-notes.pdf"
	store.items["res-1"] = &models.Resource{
		ID:          "res-1",
		Kind:        models.KindFile,
		StoragePath: &path,
	}
	token, _, err := svc.signer.Generate("res-1", path)
	require.NoError(t, err)

	_, err = svc.Download(context.Background(), "res-1", token)
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, appErrors.FromError(err).Status)
}
