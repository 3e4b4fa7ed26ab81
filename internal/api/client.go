package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	httpTimeoutEnvKey  = "FILESHARE_HTTP_TIMEOUT"

	uploadFieldName = "file"
	apiPrefix       = "/api/v1"
)

// Client is a simple HTTP client for the fileshare API.
type Client struct {
	baseURL string
	http    *http.Client
}

// UploadRequest describes one file to upload.
type UploadRequest struct {
	Filename  string
	MediaType string
	Content   io.Reader
}

// DownloadResult carries response metadata for a download.
type DownloadResult struct {
	ContentType string
	Filename    string
	SizeBytes   int64
	ETag        string
}

// NewClient creates a new API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: httpTimeoutFromEnv()},
	}
}

// Ping checks whether the API server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

// Info returns aggregate file statistics.
func (c *Client) Info(ctx context.Context) (InfoResponse, error) {
	var resp InfoResponse
	err := c.do(ctx, http.MethodGet, apiPrefix+"/info", nil, nil, &resp)
	return resp, err
}

// InfoDetail returns statistics plus storage and policy details.
func (c *Client) InfoDetail(ctx context.Context) (InfoDetailResponse, error) {
	var resp InfoDetailResponse
	err := c.do(ctx, http.MethodGet, apiPrefix+"/info", url.Values{"verbose": {"true"}}, nil, &resp)
	return resp, err
}

// Upload sends one file as multipart/form-data.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (FileResponse, error) {
	var resp FileResponse
	if req.Content == nil {
		return resp, fmt.Errorf("content is required")
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, uploadFieldName, req.Filename))
	mediaType := strings.TrimSpace(req.MediaType)
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	header.Set("Content-Type", mediaType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return resp, err
	}
	if _, err := io.Copy(part, req.Content); err != nil {
		return resp, err
	}
	if err := writer.Close(); err != nil {
		return resp, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+apiPrefix+"/upload", &body)
	if err != nil {
		return resp, err
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return resp, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode >= 400 {
		return resp, decodeError(httpResp)
	}
	err = json.NewDecoder(httpResp.Body).Decode(&resp)
	return resp, err
}

// Download streams the named file into w.
func (c *Client) Download(ctx context.Context, publicName string, w io.Writer) (DownloadResult, error) {
	var result DownloadResult
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiPrefix+"/download/"+url.PathEscape(publicName), nil)
	if err != nil {
		return result, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return result, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return result, decodeError(resp)
	}

	result.ContentType = resp.Header.Get("Content-Type")
	result.ETag = resp.Header.Get("ETag")
	result.Filename = dispositionFilename(resp.Header.Get("Content-Disposition"))
	n, err := io.Copy(w, resp.Body)
	result.SizeBytes = n
	return result, err
}

// ListFiles lists stored files. Supported query keys: content_type, prefix, limit, offset.
func (c *Client) ListFiles(ctx context.Context, query url.Values) ([]FileResponse, error) {
	var resp []FileResponse
	err := c.do(ctx, http.MethodGet, apiPrefix+"/files", query, nil, &resp)
	return resp, err
}

// GetFile returns metadata for one file.
func (c *Client) GetFile(ctx context.Context, publicName string) (FileResponse, error) {
	var resp FileResponse
	err := c.do(ctx, http.MethodGet, apiPrefix+"/files/"+url.PathEscape(publicName), nil, nil, &resp)
	return resp, err
}

// DeleteFile removes one file.
func (c *Client) DeleteFile(ctx context.Context, publicName string) (DeleteResponse, error) {
	var resp DeleteResponse
	err := c.do(ctx, http.MethodDelete, apiPrefix+"/files/"+url.PathEscape(publicName), nil, nil, &resp)
	return resp, err
}

// ClearAll removes every stored file. The server refuses without confirm.
func (c *Client) ClearAll(ctx context.Context, confirm bool) (ClearResponse, error) {
	var resp ClearResponse
	err := c.doWithHeaders(ctx, http.MethodDelete, apiPrefix+"/files", nil, nil, confirmHeader(confirm), &resp)
	return resp, err
}

// GCBlobs runs blob garbage collection. Applying requires confirm.
func (c *Client) GCBlobs(ctx context.Context, req BlobGCRequest, confirm bool) (BlobGCResponse, error) {
	var resp BlobGCResponse
	err := c.doWithHeaders(ctx, http.MethodPost, apiPrefix+"/admin/gc", nil, req, confirmHeader(confirm), &resp)
	return resp, err
}

// Metrics returns the server metrics registry snapshot.
func (c *Client) Metrics(ctx context.Context) (map[string]any, error) {
	var resp map[string]any
	err := c.do(ctx, http.MethodGet, apiPrefix+"/admin/metrics", nil, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	return c.doWithHeaders(ctx, method, path, query, body, nil, out)
}

func (c *Client) doWithHeaders(ctx context.Context, method, path string, query url.Values, body any, headers http.Header, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}

	if out == nil {
		return nil
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		apiErr.Code = errResp.Code
		apiErr.ErrorCode = errResp.ErrorCode
		apiErr.Message = errResp.Error
		return apiErr
	}
	apiErr.Message = fmt.Sprintf("api error: %s", resp.Status)
	return apiErr
}

func confirmHeader(confirm bool) http.Header {
	if !confirm {
		return nil
	}
	return http.Header{"X-Confirm": {"true"}}
}

func dispositionFilename(value string) string {
	if value == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(value)
	if err != nil {
		return ""
	}
	return params["filename"]
}

func httpTimeoutFromEnv() time.Duration {
	value := strings.TrimSpace(os.Getenv(httpTimeoutEnvKey))
	if value == "" {
		return defaultHTTPTimeout
	}

	if duration, err := time.ParseDuration(value); err == nil && duration > 0 {
		return duration
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return defaultHTTPTimeout
}
