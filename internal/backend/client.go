package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"pubdetect/internal/models"
)

const maxResponseBytes = 4 << 20

// Client talks to the FastAPI prediction service.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

func (c *Client) Login(ctx context.Context, username, password string) (TokenResponse, error) {
	var out TokenResponse
	if err := c.postJSON(ctx, "/users/login", "", credentials{Username: username, Password: password}, &out); err != nil {
		return TokenResponse{}, err
	}
	if out.AccessToken == "" {
		return TokenResponse{}, fmt.Errorf("login: %w: access_token missing", ErrUnexpectedPayload)
	}
	return out, nil
}

// Register creates an account. Some deployments answer with a token,
// others with the created user; the token is empty in the latter case.
func (c *Client) Register(ctx context.Context, username, password string) (TokenResponse, error) {
	var out TokenResponse
	if err := c.postJSON(ctx, "/users/register", "", credentials{Username: username, Password: password}, &out); err != nil {
		return TokenResponse{}, err
	}
	return out, nil
}

// Classification is the body of POST /upload-image.
type Classification struct {
	Label      string   `json:"label"`
	Confidence *float64 `json:"confidence"`
	Filename   string   `json:"filename"`
}

func (c *Client) UploadImage(ctx context.Context, token string, filename string, contentType string, data []byte) (Classification, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filename)))
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := writer.CreatePart(header)
	if err != nil {
		return Classification{}, fmt.Errorf("create part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return Classification{}, fmt.Errorf("write part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return Classification{}, fmt.Errorf("close multipart: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/upload-image", token, &body)
	if err != nil {
		return Classification{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var out Classification
	if err := c.do(req, &out); err != nil {
		return Classification{}, err
	}
	if out.Label == "" || out.Confidence == nil || out.Filename == "" {
		return Classification{}, fmt.Errorf("upload-image: %w", ErrUnexpectedPayload)
	}
	return out, nil
}

func (c *Client) SavePrediction(ctx context.Context, token string, p models.Prediction) error {
	payload := struct {
		Label      models.Label   `json:"label"`
		Confidence float64        `json:"confidence"`
		ImagePath  string         `json:"image_path"`
		UserID     models.OwnerID `json:"user_id"`
	}{p.Label, p.Confidence, p.ImagePath, p.UserID}

	return c.postJSON(ctx, "/save-prediction", token, payload, nil)
}

func (c *Client) ListPredictions(ctx context.Context, token string) ([]models.Prediction, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/prediction", token, nil)
	if err != nil {
		return nil, err
	}
	var out []models.Prediction
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Predict posts a base64 image to the inference route and returns the
// backend's JSON untouched.
func (c *Client) Predict(ctx context.Context, path string, imageBase64 string) (json.RawMessage, error) {
	var out json.RawMessage
	payload := struct {
		Image string `json:"image"`
	}{imageBase64}
	if err := c.postJSON(ctx, "/"+strings.TrimPrefix(path, "/"), "", payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ImageURL resolves a stored image path against the backend.
func (c *Client) ImageURL(imagePath string) string {
	if strings.HasPrefix(imagePath, "http://") || strings.HasPrefix(imagePath, "https://") {
		return imagePath
	}
	return c.baseURL + "/" + strings.TrimPrefix(imagePath, "/")
}

func (c *Client) postJSON(ctx context.Context, path string, token string, in any, out any) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, token, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %v", req.Method, req.URL.Path, ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w: %v", req.Method, req.URL.Path, ErrTransport, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Detail: parseDetail(raw)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: decode: %w: %v", req.Method, req.URL.Path, ErrTransport, err)
	}
	return nil
}

// parseDetail reads FastAPI's {"detail": ...}; validation errors carry a
// list of objects with a msg field.
func parseDetail(raw []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Detail) == 0 {
		return ""
	}

	var text string
	if err := json.Unmarshal(body.Detail, &text); err == nil {
		return text
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(body.Detail, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			if item.Msg != "" {
				msgs = append(msgs, item.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
