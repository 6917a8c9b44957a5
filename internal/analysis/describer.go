// Package analysis wraps the external capability providers the pipeline
// hands work off to: the AI description/classification backend and the
// antivirus engine. Both are narrow clients over their wire protocols; the
// pipeline never sees provider internals.
package analysis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-resty/resty/v2"
	"github.com/oskarw/filesentry/internal/domain"
	"github.com/oskarw/filesentry/internal/prompts"
)

// LargeFileThreshold is the default size at and above which files are staged
// to object storage and described by reference instead of inline.
const LargeFileThreshold = 8 << 20

// docSnippetCap bounds how much of a text document is inlined into a prompt.
const docSnippetCap = 4096

// Describer generates content descriptions and type labels using an
// OpenAI-compatible chat completion backend.
type Describer struct {
	client   *resty.Client
	model    string
	endpoint string
}

// DescriberConfig holds configuration for the describer.
type DescriberConfig struct {
	Model   string
	APIKey  string
	BaseURL string
}

// Label is a classification result for a path.
type Label struct {
	Name       string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// NewDescriber creates a new describer client.
// Parameters:
//   - cfg: backend configuration including model and API key.
// Returns:
//   - *Describer: initialized client wrapper.
func NewDescriber(cfg *DescriberConfig) *Describer {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	// Prevent hanging requests
	client.SetTimeout(60 * time.Second)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &Describer{
		client:   client,
		model:    cfg.Model,
		endpoint: baseURL + "/chat/completions",
	}
}

// Model returns the model name being used.
func (d *Describer) Model() string {
	return d.model
}

// OpenAI-compatible Chat Completion API request/response structures
type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"` // string for system, []interface{} for user with images
}

type textContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type imageContent struct {
	Type     string   `json:"type"`
	ImageURL imageURL `json:"image_url"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// DescribeSmall generates a summary for a file small enough to inline.
// Images travel as base64 data URLs; text documents contribute a snippet;
// everything else is described from its name and size.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - path: absolute file path.
//   - kind: coarse file kind used to build the prompt.
// Returns:
//   - string: generated summary text.
//   - error: non-nil if the file cannot be read or the API request fails.
func (d *Describer) DescribeSmall(ctx context.Context, path string, kind domain.FileKind) (string, error) {
	content, err := d.inlineContent(path, kind)
	if err != nil {
		return "", err
	}
	return d.complete(ctx, prompts.DescribeSystemPrompt, prompts.DescribeUserPrompt, content, 300)
}

// DescribeLarge generates a summary for a file already staged to object
// storage, passing the uploaded reference instead of inline bytes.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - uploadedRef: URL of the staged object.
//   - kind: coarse file kind used to build the prompt.
// Returns:
//   - string: generated summary text.
//   - error: non-nil if the API request fails.
func (d *Describer) DescribeLarge(ctx context.Context, uploadedRef string, kind domain.FileKind) (string, error) {
	return d.complete(ctx, prompts.DescribeSystemPrompt, prompts.DescribeUserPrompt,
		d.referenceContent(uploadedRef, kind), 300)
}

// Classify returns a type label with confidence for a file.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - path: absolute file path.
//   - kind: coarse file kind used to build the prompt.
// Returns:
//   - *Label: parsed label and confidence.
//   - error: non-nil if the request fails or the response is not valid JSON.
func (d *Describer) Classify(ctx context.Context, path string, kind domain.FileKind) (*Label, error) {
	content, err := d.inlineContent(path, kind)
	if err != nil {
		return nil, err
	}

	raw, err := d.complete(ctx, prompts.ClassifySystemPrompt, prompts.ClassifyUserPrompt, content, 100)
	if err != nil {
		return nil, err
	}

	var label Label
	if err := json.Unmarshal([]byte(extractJSON(raw)), &label); err != nil {
		return nil, fmt.Errorf("unparseable classification %q: %w", raw, err)
	}
	return &label, nil
}

// inlineContent builds the user message content parts for a local file.
func (d *Describer) inlineContent(path string, kind domain.FileKind) ([]interface{}, error) {
	name := filepath.Base(path)

	if kind == domain.FileKindImage {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		mimeType := mime.TypeByExtension(filepath.Ext(path))
		if mimeType == "" {
			mimeType = "image/jpeg"
		}
		dataURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
		return []interface{}{
			textContent{Type: "text", Text: fmt.Sprintf("File name: %s", name)},
			imageContent{Type: "image_url", ImageURL: imageURL{URL: dataURL, Detail: "auto"}},
		}, nil
	}

	if kind == domain.FileKindDoc {
		snippet, size, err := readSnippet(path)
		if err != nil {
			return nil, err
		}
		return []interface{}{
			textContent{Type: "text", Text: fmt.Sprintf(
				"File name: %s (%d bytes). Content excerpt:\n%s", name, size, snippet)},
		}, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	return []interface{}{
		textContent{Type: "text", Text: fmt.Sprintf(
			"File name: %s, kind: %s, size: %d bytes. No inline content available.",
			name, kind, info.Size())},
	}, nil
}

// referenceContent builds the user message content parts for a staged object.
func (d *Describer) referenceContent(uploadedRef string, kind domain.FileKind) []interface{} {
	if kind == domain.FileKindImage {
		return []interface{}{
			imageContent{Type: "image_url", ImageURL: imageURL{URL: uploadedRef, Detail: "auto"}},
		}
	}
	return []interface{}{
		textContent{Type: "text", Text: fmt.Sprintf(
			"The file is staged at %s (kind: %s). Describe it from the reference.", uploadedRef, kind)},
	}
}

// complete sends one chat completion request and returns the answer text.
func (d *Describer) complete(ctx context.Context, system, user string, content []interface{}, maxTokens int) (string, error) {
	req := chatRequest{
		Model: d.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: append([]interface{}{textContent{Type: "text", Text: user}}, content...)},
		},
		MaxTokens: maxTokens,
	}

	var resp chatResponse
	httpResp, err := d.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(d.endpoint)

	if err != nil {
		return "", fmt.Errorf("failed to call AI API: %w", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d", httpResp.StatusCode())
		if resp.Error != nil {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		} else if len(httpResp.Body()) > 0 {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
		}
		return "", fmt.Errorf("AI API returned error: %s", errorMsg)
	}

	if resp.Error != nil {
		return "", fmt.Errorf("AI API error: %s", resp.Error.Message)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from AI API (status: %d)", httpResp.StatusCode())
	}

	return resp.Choices[0].Message.Content, nil
}

// readSnippet returns up to docSnippetCap bytes of a document, trimmed to a
// valid UTF-8 boundary, together with the full file size.
func readSnippet(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", 0, fmt.Errorf("failed to stat file: %w", err)
	}

	buf := make([]byte, docSnippetCap)
	n, _ := f.Read(buf)
	buf = buf[:n]
	for len(buf) > 0 && !utf8.Valid(buf) {
		buf = buf[:len(buf)-1]
	}
	return string(buf), info.Size(), nil
}

// extractJSON strips markdown code fences some models wrap JSON answers in.
func extractJSON(s string) string {
	s = strings.TrimSpace(s)
	if start := strings.Index(s, "{"); start >= 0 {
		if end := strings.LastIndex(s, "}"); end > start {
			return s[start : end+1]
		}
	}
	return s
}
