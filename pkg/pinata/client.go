package pinata

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/certikapp/certik-backend/pkg/config"
	pkgerrors "github.com/certikapp/certik-backend/pkg/errors"
	"github.com/certikapp/certik-backend/pkg/logger"
)

const (
	pinFilePath  = "/pinning/pinFileToIPFS"
	pinJSONPath  = "/pinning/pinJSONToIPFS"
	unpinPath    = "/pinning/unpin"
	testAuthPath = "/data/testAuthentication"

	// ipfsScheme is the canonical persisted reference scheme.
	ipfsScheme = "ipfs://"

	maxErrorBody = 4096
)

var errCredentialsRequired = errors.New("pinata credentials are required (jwt or api key/secret pair)")

// PinMeta names a pin and attaches searchable key/value pairs.
type PinMeta struct {
	Name      string
	KeyValues map[string]string
}

// FileUpload carries binary content for a single-read upload.
type FileUpload struct {
	Name        string
	ContentType string
	Content     io.Reader
}

// PinRecord is the result of a successful pin.
type PinRecord struct {
	CID       string
	Size      int64
	Timestamp time.Time
	Duplicate bool
}

// Client exposes the pinning API with centralized auth, logging, and error
// mapping. Uploads are single-attempt; retry policy belongs to the caller.
type Client struct {
	httpClient *http.Client
	baseURL    string
	gateway    string
	jwt        string
	apiKey     string
	apiSecret  string
	logger     *logger.Logger
}

// NewClient initializes the pinning wrapper and validates the credentials.
func NewClient(cfg config.PinataConfig, logg *logger.Logger) (*Client, error) {
	if !cfg.Configured() {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConfiguration, errCredentialsRequired, "pinata client")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		gateway:    strings.TrimRight(cfg.Gateway, "/"),
		jwt:        strings.TrimSpace(cfg.JWT),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		apiSecret:  strings.TrimSpace(cfg.APISecret),
		logger:     logg,
	}

	if logg != nil {
		logg.Info(context.Background(), "pinata client initialized")
	}
	return c, nil
}

// PinFile uploads binary content and returns its content identifier.
func (c *Client) PinFile(ctx context.Context, file FileUpload, meta PinMeta) (*PinRecord, error) {
	if file.Content == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "file content is required")
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := createFilePart(writer, file)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build multipart body")
	}
	if _, err := io.Copy(part, file.Content); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "read file content")
	}

	if err := writeMetaFields(writer, meta); err != nil {
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "finalize multipart body")
	}

	c.log(ctx, "request", "pin_file", map[string]any{"name": meta.Name, "content_type": file.ContentType})

	record, err := c.submitPin(ctx, pinFilePath, writer.FormDataContentType(), body, "pin file")
	if err != nil {
		c.log(ctx, "error", "pin_file", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "pin_file", map[string]any{"cid": record.CID, "duplicate": record.Duplicate})
	return record, nil
}

// PinJSON uploads a JSON document and returns its content identifier.
func (c *Client) PinJSON(ctx context.Context, content any, meta PinMeta) (*PinRecord, error) {
	payload := map[string]any{
		"pinataContent": content,
		"pinataMetadata": map[string]any{
			"name":      meta.Name,
			"keyvalues": keyValuesOrEmpty(meta),
		},
		"pinataOptions": map[string]any{"cidVersion": 1},
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode pin payload")
	}

	c.log(ctx, "request", "pin_json", map[string]any{"name": meta.Name, "size": len(encoded)})

	record, err := c.submitPin(ctx, pinJSONPath, "application/json", bytes.NewReader(encoded), "pin json")
	if err != nil {
		c.log(ctx, "error", "pin_json", map[string]any{"error": err.Error()})
		return nil, err
	}

	c.log(ctx, "response", "pin_json", map[string]any{"cid": record.CID, "duplicate": record.Duplicate})
	return record, nil
}

// Unpin removes a pinned object. Pinning is never undone implicitly; this is
// the explicit path.
func (c *Client) Unpin(ctx context.Context, cid string) error {
	cid = strings.TrimSpace(cid)
	if cid == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "content id is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+unpinPath+"/"+cid, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build unpin request")
	}
	c.setAuthHeaders(req)

	c.log(ctx, "request", "unpin", map[string]any{"cid": cid})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log(ctx, "error", "unpin", map[string]any{"error": err.Error()})
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "unpin")
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := c.statusError(resp, "unpin")
		c.log(ctx, "error", "unpin", map[string]any{"error": err.Error()})
		return err
	}

	c.log(ctx, "response", "unpin", map[string]any{"cid": cid})
	return nil
}

// TestAuthentication probes the API with the configured credentials. It
// reports a boolean so callers can gate readiness without error handling.
func (c *Client) TestAuthentication(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+testAuthPath, nil)
	if err != nil {
		return false
	}
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log(ctx, "error", "test_auth", map[string]any{"error": err.Error()})
		return false
	}
	defer drainAndClose(resp.Body)

	return resp.StatusCode == http.StatusOK
}

// FetchJSON resolves a content reference through the gateway and decodes the
// document into dest.
func (c *Client) FetchJSON(ctx context.Context, uri string, dest any) error {
	target := c.GatewayURL(uri)
	if target == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "content reference is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build gateway request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "fetch content")
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return c.statusError(resp, "fetch content")
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "decode content")
	}
	return nil
}

// URI returns the canonical ipfs:// reference for a content identifier.
func (c *Client) URI(cid string) string {
	cid = strings.TrimSpace(cid)
	if cid == "" {
		return ""
	}
	return ipfsScheme + cid
}

// GatewayURL resolves an ipfs:// reference or bare content identifier to a
// fetchable HTTP URL. Already-resolved URLs pass through untouched.
func (c *Client) GatewayURL(ref string) string {
	ref = strings.TrimSpace(ref)
	switch {
	case ref == "":
		return ""
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		return ref
	case strings.HasPrefix(ref, ipfsScheme):
		return c.gateway + "/" + strings.TrimPrefix(ref, ipfsScheme)
	default:
		return c.gateway + "/" + ref
	}
}

func (c *Client) submitPin(ctx context.Context, path, contentType string, body io.Reader, op string) (*PinRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build "+op+" request")
	}
	req.Header.Set("Content-Type", contentType)
	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, op)
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.statusError(resp, op)
	}

	var payload struct {
		IpfsHash    string `json:"IpfsHash"`
		PinSize     int64  `json:"PinSize"`
		Timestamp   string `json:"Timestamp"`
		IsDuplicate bool   `json:"isDuplicate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "decode "+op+" response")
	}
	if payload.IpfsHash == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStorage, op+" returned no content id")
	}

	pinnedAt, _ := time.Parse(time.RFC3339, payload.Timestamp)

	return &PinRecord{
		CID:       payload.IpfsHash,
		Size:      payload.PinSize,
		Timestamp: pinnedAt,
		Duplicate: payload.IsDuplicate,
	}, nil
}

// statusError preserves the server's message verbatim alongside the status.
func (c *Client) statusError(resp *http.Response, op string) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	serverMsg := strings.TrimSpace(string(raw))
	cause := fmt.Errorf("status %d: %s", resp.StatusCode, serverMsg)
	return pkgerrors.Wrap(pkgerrors.CodeStorage, cause, op+" failed").
		WithDetails(map[string]any{"status": resp.StatusCode, "message": serverMsg})
}

func (c *Client) setAuthHeaders(req *http.Request) {
	if c.jwt != "" {
		req.Header.Set("Authorization", "Bearer "+c.jwt)
		return
	}
	req.Header.Set("pinata_api_key", c.apiKey)
	req.Header.Set("pinata_secret_api_key", c.apiSecret)
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = v
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("pinata %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("pinata %s", phase))
	}
}

func writeMetaFields(writer *multipart.Writer, meta PinMeta) error {
	metaJSON, err := json.Marshal(map[string]any{
		"name":      meta.Name,
		"keyvalues": keyValuesOrEmpty(meta),
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode pin metadata")
	}
	if err := writer.WriteField("pinataMetadata", string(metaJSON)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write pin metadata")
	}
	if err := writer.WriteField("pinataOptions", `{"cidVersion":1}`); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write pin options")
	}
	return nil
}

func keyValuesOrEmpty(meta PinMeta) map[string]string {
	if meta.KeyValues == nil {
		return map[string]string{}
	}
	return meta.KeyValues
}

func createFilePart(writer *multipart.Writer, file FileUpload) (io.Writer, error) {
	if file.ContentType == "" {
		return writer.CreateFormFile("file", fileName(file))
	}
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename="%s"`, fileName(file)))
	header.Set("Content-Type", file.ContentType)
	return writer.CreatePart(header)
}

func fileName(file FileUpload) string {
	if name := strings.TrimSpace(file.Name); name != "" {
		return name
	}
	return "upload.bin"
}

func drainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxErrorBody))
	_ = body.Close()
}
