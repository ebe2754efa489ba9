package slack

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Sami9889/grook/llm"
	"github.com/Sami9889/grook/tools"
)

const maxAnalyzeBytes = 4 << 20

type AnalyzeImageTool struct {
	http     *http.Client
	client   llm.Client
	model    string
	botToken string
}

// NewAnalyzeImageTool builds the image tool. botToken authenticates downloads
// of Slack-hosted private files; it is never sent to other hosts.
func NewAnalyzeImageTool(httpClient *http.Client, client llm.Client, model, botToken string) *AnalyzeImageTool {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &AnalyzeImageTool{http: httpClient, client: client, model: model, botToken: botToken}
}

type analyzeImageParams struct {
	URL      string `json:"url" jsonschema_description:"The image URL. Slack file URLs from the thread work too."`
	Question string `json:"question,omitempty" jsonschema_description:"What to find out about the image. Defaults to a general description."`
}

func (t *AnalyzeImageTool) Name() string { return "analyze_image" }

func (t *AnalyzeImageTool) Description() string {
	return "Download an image and describe it, or answer a question about it."
}

func (t *AnalyzeImageTool) ParameterSchema() string {
	return tools.SchemaFor(analyzeImageParams{})
}

func (t *AnalyzeImageTool) Execute(ctx context.Context, params map[string]any, _ tools.Scope) tools.Outcome {
	if t == nil || t.client == nil || t.model == "" {
		return tools.Failuref("analyze_image is disabled")
	}
	var in analyzeImageParams
	if err := tools.DecodeParams(params, &in); err != nil {
		return tools.Failuref("invalid params: %v", err)
	}
	target, err := url.Parse(strings.TrimSpace(in.URL))
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
		return tools.Failuref("url must be http or https")
	}

	mediaType, data, err := t.download(ctx, target)
	if err != nil {
		return tools.Failuref("image fetch failed: %v", err)
	}

	question := strings.TrimSpace(in.Question)
	if question == "" {
		question = "Describe this image."
	}
	result, err := t.client.Chat(ctx, llm.Request{
		Model: t.model,
		Messages: []llm.Message{{
			Role: llm.RoleUser,
			Blocks: []llm.ContentBlock{
				{Type: llm.BlockText, Text: question},
				{Type: llm.BlockImage, MediaType: mediaType, Data: data},
			},
		}},
	})
	if err != nil {
		return tools.Failuref("image analysis failed: %v", err)
	}
	return tools.Success{Value: result.Text}
}

func (t *AnalyzeImageTool) download(ctx context.Context, target *url.URL) (mediaType, data string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return "", "", err
	}
	if t.botToken != "" && isSlackHost(target.Host) {
		req.Header.Set("Authorization", "Bearer "+t.botToken)
	}
	resp, err := t.http.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxAnalyzeBytes+1))
	if err != nil {
		return "", "", err
	}
	if len(raw) > maxAnalyzeBytes {
		return "", "", fmt.Errorf("image larger than %d bytes", maxAnalyzeBytes)
	}
	mediaType = resp.Header.Get("Content-Type")
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	mediaType = strings.TrimSpace(mediaType)
	if !strings.HasPrefix(mediaType, "image/") {
		mediaType = http.DetectContentType(raw)
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return "", "", fmt.Errorf("not an image: %s", mediaType)
	}
	return mediaType, base64.StdEncoding.EncodeToString(raw), nil
}

func isSlackHost(host string) bool {
	host = strings.ToLower(host)
	return host == "slack.com" || strings.HasSuffix(host, ".slack.com")
}
