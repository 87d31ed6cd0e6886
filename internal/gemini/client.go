package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tryon-studio/internal/imaging"
	"tryon-studio/internal/metrics"
	"tryon-studio/internal/prompt"
)

const (
	defaultTextModel  = "gemini-2.5-flash"
	defaultImageModel = "gemini-2.5-flash-image-preview"
)

// Clothing styles trip the default filters easily, so every category is
// opened up; the API still reports hard blocks via promptFeedback.
var safetySettings = []safetySetting{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_NONE"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_NONE"},
}

type Options struct {
	APIKey     string
	BaseURL    string
	APIVersion string
	TextModel  string
	ImageModel string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Client struct {
	apiKey     string
	baseURL    string
	apiVersion string
	textModel  string
	imageModel string
	httpClient *http.Client
	logger     *slog.Logger
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}

	apiVersion := strings.TrimSpace(opts.APIVersion)
	if apiVersion == "" {
		apiVersion = "v1beta"
	}

	textModel := strings.TrimSpace(opts.TextModel)
	if textModel == "" {
		textModel = defaultTextModel
	}
	imageModel := strings.TrimSpace(opts.ImageModel)
	if imageModel == "" {
		imageModel = defaultImageModel
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{
		apiKey:     opts.APIKey,
		baseURL:    baseURL,
		apiVersion: apiVersion,
		textModel:  textModel,
		imageModel: imageModel,
		httpClient: opts.HTTPClient,
		logger:     logger,
	}
}

// Describe asks the text model about a single image.
func (c *Client) Describe(ctx context.Context, img imaging.Image, instruction string) (string, error) {
	req := generateContentRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{imagePart(img), {Text: instruction}},
		}},
		SafetySettings: safetySettings,
	}

	resp, err := c.generateContent(ctx, "describe", c.textModel, req)
	if err != nil {
		return "", fmt.Errorf("analyze image: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" && resp.BlockReason != "" {
		return "", fmt.Errorf("analyze image: %w", &BlockedError{Reason: resp.BlockReason})
	}
	return text, nil
}

// RemoveBackground returns the foreground subject on a transparent PNG.
func (c *Client) RemoveBackground(ctx context.Context, img imaging.Image) (imaging.Image, error) {
	req := generateContentRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{imagePart(img), {Text: prompt.BackgroundRemoval}},
		}},
		GenerationConfig: generationConfig{ResponseModalities: []string{"IMAGE"}},
		SafetySettings:   safetySettings,
	}

	resp, err := c.generateContent(ctx, "remove_background", c.imageModel, req)
	if err != nil {
		return imaging.Image{}, fmt.Errorf("remove background: %w", err)
	}

	out, err := firstImage(resp)
	if err != nil {
		return imaging.Image{}, fmt.Errorf("remove background: %w", err)
	}
	out.Name = "processed_" + img.Name
	return out, nil
}

// ComposeTryOn sends user, clothing and optional style images followed by
// the prompt, in that order.
func (c *Client) ComposeTryOn(ctx context.Context, in TryOnRequest) (imaging.Image, error) {
	parts := []part{imagePart(in.User), imagePart(in.Clothing)}
	if in.Style != nil {
		parts = append(parts, imagePart(*in.Style))
	}
	parts = append(parts, part{Text: in.Prompt})

	req := generateContentRequest{
		Contents: []content{{Role: "user", Parts: parts}},
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
		},
		SafetySettings: safetySettings,
	}
	if ar := strings.TrimSpace(in.AspectRatio); ar != "" {
		req.GenerationConfig.ImageConfig = &imageConfig{AspectRatio: ar}
	}

	resp, err := c.generateContent(ctx, "compose", c.imageModel, req)
	if err != nil && req.GenerationConfig.ImageConfig != nil && isUnknownFieldError(err, "imageConfig") {
		c.logger.Warn("imageConfig rejected, retrying without it", "model", c.imageModel)
		req.GenerationConfig.ImageConfig = nil
		resp, err = c.generateContent(ctx, "compose", c.imageModel, req)
	}
	if err != nil {
		return imaging.Image{}, fmt.Errorf("generate image: %w", err)
	}

	out, err := firstImage(resp)
	if err != nil {
		return imaging.Image{}, fmt.Errorf("generate image: %w", err)
	}
	out.Name = "virtual-try-on.png"
	return out, nil
}

func firstImage(resp Response) (imaging.Image, error) {
	if len(resp.Images) > 0 {
		return resp.Images[0], nil
	}
	if resp.BlockReason != "" {
		return imaging.Image{}, &BlockedError{Reason: resp.BlockReason}
	}
	if isSafetyFinish(resp.FinishReason) {
		return imaging.Image{}, &BlockedError{Reason: resp.FinishReason}
	}
	return imaging.Image{}, ErrNoImage
}

func (c *Client) generateContent(ctx context.Context, op, model string, payload generateContentRequest) (resp Response, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveProviderCall(op, model, time.Since(start), err)
	}()

	if c.httpClient == nil {
		return Response{}, errors.New("http client is nil")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/models/%s:generateContent", c.baseURL, c.apiVersion, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("content-type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("request: %w", err)
	}
	defer httpResp.Body.Close()

	rawBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode >= 400 {
		return Response{}, &APIError{
			StatusCode: httpResp.StatusCode,
			Status:     httpResp.Status,
			Body:       strings.TrimSpace(string(rawBody)),
		}
	}

	var decoded generateContentResponse
	if err := json.Unmarshal(rawBody, &decoded); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}

	out, err := extractParts(decoded)
	if err != nil {
		return Response{}, err
	}
	c.logger.Debug("gemini response", "op", op, "model", model, "images", len(out.Images), "block_reason", out.BlockReason)
	return out, nil
}

func extractParts(resp generateContentResponse) (Response, error) {
	var out Response
	if resp.PromptFeedback != nil {
		out.BlockReason = resp.PromptFeedback.BlockReason
	}
	if len(resp.Candidates) == 0 {
		return out, nil
	}

	cand := resp.Candidates[0]
	out.FinishReason = cand.FinishReason

	var text strings.Builder
	for i, p := range cand.Content.Parts {
		if p.Text != "" {
			text.WriteString(p.Text)
		}
		if p.InlineData == nil || p.InlineData.Data == "" {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
		if err != nil {
			return Response{}, fmt.Errorf("decode inline image: %w", err)
		}
		out.Images = append(out.Images, imaging.New(fmt.Sprintf("generated_%d", i), p.InlineData.MimeType, data))
	}
	out.Text = text.String()
	return out, nil
}

func imagePart(img imaging.Image) part {
	return part{InlineData: &blob{Data: img.Base64(), MimeType: img.MIMEType}}
}

func isSafetyFinish(reason string) bool {
	switch reason {
	case "SAFETY", "PROHIBITED_CONTENT", "IMAGE_SAFETY", "BLOCKLIST", "SPII":
		return true
	}
	return false
}

func isUnknownFieldError(err error, field string) bool {
	message := err.Error()
	return strings.Contains(message, "Unknown name") && strings.Contains(message, field)
}

type generateContentRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig,omitempty"`
	SafetySettings   []safetySetting  `json:"safetySettings,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string     `json:"responseModalities,omitempty"`
	ImageConfig        *imageConfig `json:"imageConfig,omitempty"`
}

type imageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	Data     string `json:"data"`
	MimeType string `json:"mimeType"`
}

type generateContentResponse struct {
	Candidates     []candidate     `json:"candidates"`
	PromptFeedback *promptFeedback `json:"promptFeedback,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type promptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}
