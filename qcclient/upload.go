package qcclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	pathUpload       = "/resumable_upload/"
	DefaultChunkSize = 1 << 20
)

var identifierUnsafe = regexp.MustCompile(`[^0-9a-zA-Z_-]`)

// Progress is reported after every chunk.
type Progress struct {
	Filename string
	Loaded   int64
	Total    int64
	Chunk    int
	Chunks   int
}

// Percent is the integer share of bytes transferred, 0-100.
func (p Progress) Percent() int {
	if p.Total <= 0 {
		return 100
	}
	return int(p.Loaded * 100 / p.Total)
}

// UploadResult describes a finished upload.
type UploadResult struct {
	Filename string
	// URL is the storage location announced by the server, if any.
	URL string
	// Resumed counts chunks the server already had.
	Resumed int
}

// Upload sends a delivery ZIP with the resumable chunk protocol. Chunks the
// server already holds are skipped, so re-running an interrupted upload
// continues where it stopped.
func (c *Client) Upload(ctx context.Context, path string, chunkSize int64, onProgress func(Progress)) (*UploadResult, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload file %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat upload file %s: %w", path, err)
	}
	total := info.Size()
	filename := filepath.Base(path)

	contentType := "application/octet-stream"
	if mt, err := mimetype.DetectFile(path); err == nil {
		contentType = mt.String()
	}

	chunks := int((total + chunkSize - 1) / chunkSize)
	if chunks == 0 {
		chunks = 1
	}
	identifier := strconv.FormatInt(total, 10) + "-" + identifierUnsafe.ReplaceAllString(filename, "")

	result := &UploadResult{Filename: filename}
	var loaded int64
	for n := 1; n <= chunks; n++ {
		offset := int64(n-1) * chunkSize
		size := chunkSize
		if offset+size > total {
			size = total - offset
		}
		params := url.Values{}
		params.Set("resumableChunkNumber", strconv.Itoa(n))
		params.Set("resumableChunkSize", strconv.FormatInt(chunkSize, 10))
		params.Set("resumableCurrentChunkSize", strconv.FormatInt(size, 10))
		params.Set("resumableTotalSize", strconv.FormatInt(total, 10))
		params.Set("resumableIdentifier", identifier)
		params.Set("resumableFilename", filename)
		params.Set("resumableTotalChunks", strconv.Itoa(chunks))

		status, body, err := c.chunkStatus(ctx, params)
		if err != nil {
			return nil, err
		}
		switch status {
		case http.StatusOK:
			result.Resumed++
		case http.StatusCreated:
			result.URL = body
		default:
			status, body, err = c.sendChunk(ctx, params, filename, contentType, io.NewSectionReader(f, offset, size))
			if err != nil {
				return nil, err
			}
			if status == http.StatusCreated {
				result.URL = body
			}
		}

		loaded += size
		if onProgress != nil {
			onProgress(Progress{Filename: filename, Loaded: loaded, Total: total, Chunk: n, Chunks: chunks})
		}
		if result.URL != "" {
			break
		}
	}
	return result, nil
}

// chunkStatus asks whether the server already has a chunk: 200 yes,
// 201 yes and the file is complete, 404 no.
func (c *Client) chunkStatus(ctx context.Context, params url.Values) (int, string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, pathUpload, params, nil)
	if err != nil {
		return 0, "", err
	}
	return c.doText(req, http.StatusNotFound)
}

func (c *Client) sendChunk(ctx context.Context, params url.Values, filename, contentType string, chunk io.Reader) (int, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for key, vals := range params {
		if err := mw.WriteField(key, vals[0]); err != nil {
			return 0, "", fmt.Errorf("failed to write upload field %s: %w", key, err)
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, strings.ReplaceAll(filename, `"`, "")))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create upload part: %w", err)
	}
	if _, err := io.Copy(part, chunk); err != nil {
		return 0, "", fmt.Errorf("failed to read upload chunk: %w", err)
	}
	if err := mw.Close(); err != nil {
		return 0, "", fmt.Errorf("failed to finish upload body: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, pathUpload, nil, &buf)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.doText(req)
}

// doText returns status and trimmed text body for 2xx answers and for any
// status listed in allowed; everything else becomes an *Error.
func (c *Client) doText(req *http.Request, allowed ...int) (int, string, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("%s %s failed: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, strings.TrimSpace(string(body)), nil
	}
	for _, code := range allowed {
		if resp.StatusCode == code {
			return resp.StatusCode, "", nil
		}
	}
	return 0, "", newError(req, resp, body)
}
