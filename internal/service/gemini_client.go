package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const geminiGenerateEndpoint = "/models/%s:generateContent"

// minEmbeddedImageLen filters out short data-URI fragments quoted in text replies.
const minEmbeddedImageLen = 1000

// ImageRequest is a single call to the image model.
type ImageRequest struct {
	Model       string
	Prompt      string
	Images      []string // base64 JPEG reference photos
	AspectRatio string
}

// ImageResult holds the images found in a model reply plus any text it returned.
type ImageResult struct {
	Images []string // data URIs
	Text   string
}

// ImageGenerator calls the external generative-image model.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error)
}

type geminiClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewGeminiClient creates an ImageGenerator backed by the Gemini generateContent REST API.
func NewGeminiClient(baseURL, apiKey string, timeout time.Duration) ImageGenerator {
	return &geminiClient{
		client: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig map[string]interface{} `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      *geminiContent `json:"content"`
		FinishReason string         `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (c *geminiClient) GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error) {
	parts := make([]geminiPart, 0, len(req.Images)+1)
	parts = append(parts, geminiPart{Text: req.Prompt})
	for _, img := range req.Images {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{MimeType: "image/jpeg", Data: img}})
	}
	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: map[string]interface{}{
			"responseModalities": []string{"TEXT", "IMAGE"},
		},
	}
	if req.AspectRatio != "" {
		body.GenerationConfig["imageConfig"] = map[string]string{"aspectRatio": req.AspectRatio}
	}

	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return ImageResult{}, fmt.Errorf("failed to marshal request body: %w", err)
	}

	endpoint := c.baseURL + fmt.Sprintf(geminiGenerateEndpoint, url.PathEscape(req.Model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyJSON))
	if err != nil {
		return ImageResult{}, fmt.Errorf("failed to create generation request: %w", err)
	}
	httpReq.Header.Set("x-goog-api-key", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return ImageResult{}, fmt.Errorf("generation request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return ImageResult{}, fmt.Errorf("failed to read generation response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ImageResult{}, fmt.Errorf("%w: status 429: %s", ErrUpstreamRateLimited, truncate(string(respBody), upstreamExcerptLimit))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return ImageResult{}, fmt.Errorf("generation failed with status %d: %s", resp.StatusCode, truncate(string(respBody), upstreamExcerptLimit))
	}

	var parsed geminiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return ImageResult{}, fmt.Errorf("failed to decode generation response: %w", err)
	}
	return extractImages(parsed), nil
}

var (
	jsonFencePattern = regexp.MustCompile("```json\\n?|\\n?```")
	dataURIPattern   = regexp.MustCompile(`(data:image/[^;]+;\s*base64,\s*[A-Za-z0-9+/=\s]+)`)
	whitespace       = regexp.MustCompile(`\s`)
)

// extractImages accepts both reply shapes: inline image parts, or text carrying
// either JSON with an image_data field or an embedded data URI.
func extractImages(resp geminiResponse) ImageResult {
	var result ImageResult
	var text strings.Builder

	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			switch {
			case part.InlineData != nil && part.InlineData.Data != "":
				mime := part.InlineData.MimeType
				if mime == "" {
					mime = "image/png"
				}
				result.Images = append(result.Images, "data:"+mime+";base64,"+part.InlineData.Data)
			case part.Text != "":
				text.WriteString(part.Text)
				text.WriteString("\n")
			}
		}
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		text.WriteString("blocked: " + resp.PromptFeedback.BlockReason + "\n")
	}
	result.Text = text.String()

	if len(result.Images) > 0 {
		return result
	}
	if img, ok := imageFromText(result.Text); ok {
		result.Images = append(result.Images, img)
	}
	return result
}

func imageFromText(text string) (string, bool) {
	clean := strings.TrimSpace(jsonFencePattern.ReplaceAllString(text, ""))
	var payload struct {
		ImageData string `json:"image_data"`
	}
	if err := json.Unmarshal([]byte(clean), &payload); err == nil {
		if payload.ImageData == "" {
			return "", false
		}
		img := whitespace.ReplaceAllString(payload.ImageData, "")
		if !strings.HasPrefix(img, "data:") {
			img = "data:image/png;base64," + img
		}
		return img, true
	}

	if !strings.Contains(text, "data:image") {
		return "", false
	}
	m := dataURIPattern.FindStringSubmatch(text)
	if len(m) < 2 {
		return "", false
	}
	uri := whitespace.ReplaceAllString(m[1], "")
	if len(uri) <= minEmbeddedImageLen {
		return "", false
	}
	return uri, true
}
