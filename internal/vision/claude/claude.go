package claude

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/vbonduro/switchmap/internal/vision"
)

// maxTokens leaves room for two sentences with headroom for verbose models.
const maxTokens = 256

type ClaudeDescriber struct {
	client *anthropic.Client
	model  string
}

func NewClaudeDescriber(apiKey, model string, opts ...anthropic.ClientOption) *ClaudeDescriber {
	return &ClaudeDescriber{
		client: anthropic.NewClient(apiKey, opts...),
		model:  model,
	}
}

func (d *ClaudeDescriber) Describe(ctx context.Context, r io.Reader, mimeType string) (string, error) {
	imageData, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	resp, err := d.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(d.model),
		MaxTokens: maxTokens,
		Messages: []anthropic.Message{{
			Role: anthropic.RoleUser,
			Content: []anthropic.MessageContent{
				anthropic.NewImageMessageContent(anthropic.NewMessageContentSource(
					anthropic.MessagesContentSourceTypeBase64,
					normaliseMIME(mimeType),
					base64.StdEncoding.EncodeToString(imageData),
				)),
				anthropic.NewTextMessageContent(vision.DescriptionPrompt),
			},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to call claude: %w", err)
	}

	return vision.CleanDescription(resp.GetFirstContentText()), nil
}

// normaliseMIME maps MIME types to the values the Anthropic API accepts:
// jpeg, png, gif, and webp. Anything else is sent as jpeg.
func normaliseMIME(mimeType string) string {
	switch mimeType {
	case "image/png", "image/gif", "image/webp":
		return mimeType
	default:
		return "image/jpeg"
	}
}
