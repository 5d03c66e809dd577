package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/PaulBabatuyi/PlacementAssets/internal/database"
	"github.com/PaulBabatuyi/PlacementAssets/internal/media"
	"github.com/PaulBabatuyi/PlacementAssets/internal/middleware"
	"github.com/PaulBabatuyi/PlacementAssets/internal/models"
	"github.com/PaulBabatuyi/PlacementAssets/internal/objectstore"
	"github.com/PaulBabatuyi/PlacementAssets/internal/observability"
	"github.com/PaulBabatuyi/PlacementAssets/internal/service"
	"github.com/PaulBabatuyi/PlacementAssets/internal/storage"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

const (
	storeRoot = "/store"
	baseURL   = "http://test"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type apiResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type testAPI struct {
	router *gin.Engine
	fs     afero.Fs
	owners *database.MemoryStore
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	logger := zap.NewNop()
	fs := afero.NewMemMapFs()

	stager, err := storage.NewStager(fs, "/staging", logger)
	require.NoError(t, err)
	driver, err := objectstore.NewLocalDriver(fs, storeRoot, baseURL)
	require.NoError(t, err)
	client := objectstore.NewClient(fs, driver, logger, objectstore.WithNormalizer(media.NewLogoNormalizer(64)))

	reg := prometheus.NewRegistry()
	assetMetrics, err := observability.NewAssetMetrics(reg)
	require.NoError(t, err)
	httpMetrics, err := observability.NewHTTPMetrics(reg)
	require.NoError(t, err)

	owners := database.NewMemoryStore()
	svc := service.NewAssetService(objectstore.NewBackend(stager, client), owners, logger, assetMetrics)

	router := NewRouter(svc, owners, logger, RouterOptions{
		APIKeys:     []string{"dev-key-123"},
		Files:       afero.NewHttpFs(afero.NewBasePathFs(fs, storeRoot)),
		Gatherer:    reg,
		HTTPMetrics: httpMetrics,
	})
	return &testAPI{router: router, fs: fs, owners: owners}
}

func (a *testAPI) addStudent(t *testing.T, userID string) {
	t.Helper()
	_, err := a.owners.CreateOwner(context.Background(), &models.OwnerRecord{UserID: userID, Kind: models.OwnerStudent, Name: "CS-042"})
	require.NoError(t, err)
}

func multipartBody(t *testing.T, field, fileName, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, fileName))
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	return body, w.FormDataContentType()
}

func (a *testAPI) do(req *http.Request, userID, role string) *httptest.ResponseRecorder {
	req.Header.Set(middleware.HeaderAPIKey, "dev-key-123")
	if userID != "" {
		req.Header.Set(middleware.HeaderUserID, userID)
		req.Header.Set(middleware.HeaderUserRole, role)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) upload(t *testing.T, path, field, fileName, contentType string, content []byte, userID, role string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	body, ct := multipartBody(t, field, fileName, contentType, content)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ct)
	w := a.do(req, userID, role)
	return w, decode(t, w)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

func pdf(size int) []byte {
	b := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), size)...)
	return b[:size]
}

func pngImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, x%h, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func objectPath(url string) string {
	return storeRoot + strings.TrimPrefix(url, baseURL+"/files")
}

func TestResumeUploadAndReplace(t *testing.T) {
	api := newTestAPI(t)
	api.addStudent(t, "S1")

	w, first := api.upload(t, "/api/student/resume", "resume", "resume.pdf", models.MimePDF, pdf(3<<10), "S1", "student")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, first.Success)
	assert.Regexp(t, `^http://test/files/portal-uploads/resume-\d+-[0-9a-f]{12}$`, first.URL)

	exists, err := afero.Exists(api.fs, objectPath(first.URL))
	require.NoError(t, err)
	assert.True(t, exists)

	w, second := api.upload(t, "/api/student/resume", "resume", "cv-v2.pdf", models.MimePDF, pdf(4<<10), "S1", "student")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEqual(t, first.URL, second.URL)

	exists, err = afero.Exists(api.fs, objectPath(first.URL))
	require.NoError(t, err)
	assert.False(t, exists, "previous resume should be deleted")

	req := httptest.NewRequest(http.MethodGet, "/api/student/resume", nil)
	w = api.do(req, "S1", "student")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, second.URL, decode(t, w).URL)

	staged, err := afero.ReadDir(api.fs, "/staging/resumes")
	require.NoError(t, err)
	assert.Empty(t, staged)
}

func TestServeStoredResume(t *testing.T) {
	api := newTestAPI(t)
	api.addStudent(t, "S1")
	content := pdf(2048)

	w, resp := api.upload(t, "/api/student/resume", "resume", "resume.pdf", models.MimePDF, content, "S1", "student")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, strings.TrimPrefix(resp.URL, baseURL), nil)
	w = httptest.NewRecorder()
	api.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "attachment", w.Header().Get("Content-Disposition"))
	assert.Equal(t, content, w.Body.Bytes())
}

func TestLogoUploadNormalizes(t *testing.T) {
	api := newTestAPI(t)

	w, resp := api.upload(t, "/api/company/logo", "logo", "brand.png", "image/png", pngImage(t, 256, 128), "C1", "company")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, resp.URL, "/portal-uploads/logo-")

	stored, err := afero.ReadFile(api.fs, objectPath(resp.URL))
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(stored))
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Width)
	assert.Equal(t, 32, cfg.Height)

	company, err := api.owners.FindOwner(context.Background(), models.OwnerCompany, "C1")
	require.NoError(t, err)
	assert.Equal(t, service.PlaceholderCompanyName, company.Name)
}

func TestUploadRejections(t *testing.T) {
	api := newTestAPI(t)
	api.addStudent(t, "S1")

	tests := []struct {
		name        string
		path        string
		field       string
		fileName    string
		contentType string
		content     []byte
		user, role  string
		wantStatus  int
		wantKind    string
	}{
		{"executable resume", "/api/student/resume", "resume", "setup.exe", "application/x-msdownload", []byte("MZ\x90\x00"), "S1", "student", http.StatusBadRequest, "unsupported_type"},
		{"image as resume", "/api/student/resume", "resume", "me.png", "image/png", pngImage(t, 4, 4), "S1", "student", http.StatusBadRequest, "unsupported_type"},
		{"disguised pdf", "/api/student/resume", "resume", "resume.pdf", models.MimePDF, []byte("MZ\x90\x00 not a pdf"), "S1", "student", http.StatusBadRequest, "unsupported_type"},
		{"wrong field", "/api/student/resume", "file", "resume.pdf", models.MimePDF, pdf(64), "S1", "student", http.StatusBadRequest, "missing_file"},
		{"logo over policy", "/api/company/logo", "logo", "big.png", "image/png", append(pngImage(t, 4, 4), make([]byte, 5<<19)...), "C1", "company", http.StatusBadRequest, "file_too_large"},
		{"body over limit", "/api/company/logo", "logo", "huge.png", "image/png", make([]byte, 7<<19), "C1", "company", http.StatusBadRequest, "file_too_large"},
		{"resume without profile", "/api/student/resume", "resume", "resume.pdf", models.MimePDF, pdf(64), "S2", "student", http.StatusNotFound, "not_found"},
		{"company uploading resume", "/api/student/resume", "resume", "resume.pdf", models.MimePDF, pdf(64), "C1", "company", http.StatusForbidden, "forbidden"},
		{"anonymous", "/api/student/resume", "resume", "resume.pdf", models.MimePDF, pdf(64), "", "", http.StatusUnauthorized, "unauthenticated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := api.upload(t, tt.path, tt.field, tt.fileName, tt.contentType, tt.content, tt.user, tt.role)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.False(t, resp.Success)
			assert.Equal(t, tt.wantKind, resp.Error)
			assert.NotEmpty(t, resp.Message)
		})
	}

	// nothing was stored and no placeholder company appeared
	objects, err := afero.ReadDir(api.fs, storeRoot)
	require.NoError(t, err)
	assert.Empty(t, objects)
	_, err = api.owners.FindOwner(context.Background(), models.OwnerCompany, "C1")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMissingAPIKey(t *testing.T) {
	api := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/student/resume", nil)
	req.Header.Set(middleware.HeaderUserID, "S1")
	req.Header.Set(middleware.HeaderUserRole, "student")
	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDeleteResume(t *testing.T) {
	api := newTestAPI(t)
	api.addStudent(t, "S1")

	req := httptest.NewRequest(http.MethodDelete, "/api/student/resume", nil)
	w := api.do(req, "S1", "student")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode(t, w).Error)

	w, uploaded := api.upload(t, "/api/student/resume", "resume", "resume.pdf", models.MimePDF, pdf(512), "S1", "student")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	req = httptest.NewRequest(http.MethodDelete, "/api/student/resume", nil)
	w = api.do(req, "S1", "student")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"success":true}`, w.Body.String())

	exists, err := afero.Exists(api.fs, objectPath(uploaded.URL))
	require.NoError(t, err)
	assert.False(t, exists)

	req = httptest.NewRequest(http.MethodGet, "/api/student/resume", nil)
	w = api.do(req, "S1", "student")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestProbesAndMetrics(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		w := httptest.NewRecorder()
		api.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := httptest.NewRecorder()
	api.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), "portal_http_requests_total")

	down := NewRouter(nil, downPinger{}, zap.NewNop(), RouterOptions{})
	w = httptest.NewRecorder()
	down.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantKind   string
	}{
		{fmt.Errorf("%w: 6 MB", models.ErrFileTooLarge), http.StatusBadRequest, "file_too_large"},
		{models.ErrMissingFile, http.StatusBadRequest, "missing_file"},
		{fmt.Errorf("%w: bad", models.ErrValidation), http.StatusBadRequest, "validation"},
		{errUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{models.ErrForbidden, http.StatusForbidden, "forbidden"},
		{models.ErrNotFound, http.StatusNotFound, "not_found"},
		{models.ErrRemoteUpload, http.StatusInternalServerError, "remote_upload"},
		{models.ErrPersistence, http.StatusInternalServerError, "persistence"},
		{errors.New("boom"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		status, kind := httpStatus(tt.err)
		assert.Equal(t, tt.wantStatus, status, tt.wantKind)
		assert.Equal(t, tt.wantKind, kind)
	}
}

func TestDeclaredType(t *testing.T) {
	assert.Equal(t, models.MimePDF, declaredType("application/pdf; name=x", "a.pdf"))
	assert.Equal(t, models.MimePDF, declaredType("application/octet-stream", "a.pdf"))
	assert.Equal(t, models.MimeDOCX, declaredType("", "a.docx"))
	assert.Equal(t, models.MimeDOC, declaredType("", "a.doc"))
	assert.Equal(t, "application/octet-stream", declaredType("application/octet-stream", "a.bin"))
}

func dialAdmin(t *testing.T, ready Pinger) healthpb.HealthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	admin := NewAdminServer(ready, zap.NewNop(), nil)
	go func() { _ = admin.Serve(lis) }()
	t.Cleanup(func() { admin.Stop(context.Background()) })

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return healthpb.NewHealthClient(conn)
}

func TestAdminHealth(t *testing.T) {
	client := dialAdmin(t, database.NewMemoryStore())
	resp, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	resp, err = client.Check(context.Background(), &healthpb.HealthCheckRequest{Service: AssetsServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.Status)

	down := dialAdmin(t, downPinger{})
	resp, err = down.Check(context.Background(), &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}
