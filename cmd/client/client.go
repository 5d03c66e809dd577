package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// AssetClient talks to the placement assets HTTP API as one user.
type AssetClient struct {
	baseURL string
	apiKey  string
	userID  string
	role    string
	http    *http.Client
	out     io.Writer
}

type assetResponse struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// target maps an asset kind to its route and multipart field.
type target struct {
	path  string
	field string
}

var targets = map[string]target{
	"resume": {path: "/api/student/resume", field: "resume"},
	"logo":   {path: "/api/company/logo", field: "logo"},
}

func NewAssetClient(baseURL, apiKey, userID, role string, out io.Writer) *AssetClient {
	return &AssetClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		userID:  userID,
		role:    role,
		http:    &http.Client{Timeout: 2 * time.Minute},
		out:     out,
	}
}

// UploadFile streams a file as multipart without buffering it in memory.
func (ac *AssetClient) UploadFile(ctx context.Context, kind, filePath string) (string, error) {
	t, err := lookupTarget(kind)
	if err != nil {
		return "", err
	}

	// 1. Open file
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat file: %w", err)
	}

	// 2. Pipe the multipart body
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, t.field, filepath.Base(filePath)))
		h.Set("Content-Type", detectContentType(filePath))
		part, err := mw.CreatePart(h)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, &progressReader{r: file, total: info.Size(), out: ac.out}); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ac.baseURL+t.path, pr)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	// 3. Send and read the stored URL
	resp, err := ac.do(req)
	fmt.Fprintln(ac.out)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(ac.out, "uploaded %s (%s)\n", filepath.Base(filePath), humanize.IBytes(uint64(info.Size())))
	return resp.URL, nil
}

func (ac *AssetClient) Get(ctx context.Context, kind string) (string, error) {
	t, err := lookupTarget(kind)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ac.baseURL+t.path, nil)
	if err != nil {
		return "", err
	}
	resp, err := ac.do(req)
	if err != nil {
		return "", err
	}
	return resp.URL, nil
}

func (ac *AssetClient) Delete(ctx context.Context, kind string) error {
	t, err := lookupTarget(kind)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, ac.baseURL+t.path, nil)
	if err != nil {
		return err
	}
	_, err = ac.do(req)
	return err
}

func (ac *AssetClient) do(req *http.Request) (*assetResponse, error) {
	if ac.apiKey != "" {
		req.Header.Set("X-API-Key", ac.apiKey)
	}
	req.Header.Set("X-User-ID", ac.userID)
	req.Header.Set("X-User-Role", ac.role)

	res, err := ac.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	var body assetResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("unexpected response (%s): %w", res.Status, err)
	}
	if !body.Success {
		return nil, fmt.Errorf("%s: %s (%s)", res.Status, body.Message, body.Error)
	}
	return &body, nil
}

func lookupTarget(kind string) (target, error) {
	t, ok := targets[strings.ToLower(kind)]
	if !ok {
		return target{}, fmt.Errorf("unknown asset kind %q (want resume or logo)", kind)
	}
	return t, nil
}

// detectContentType returns a MIME type based on file extension
func detectContentType(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".svg":
		return "image/svg+xml"
	default:
		return "application/octet-stream"
	}
}

type progressReader struct {
	r     io.Reader
	total int64
	sent  int64
	out   io.Writer
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.sent += int64(n)
	if p.total > 0 {
		fmt.Fprintf(p.out, "\rUploading: %.2f%% of %s", float64(p.sent)/float64(p.total)*100, humanize.IBytes(uint64(p.total)))
	}
	return n, err
}
