package extract

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sashabaranov/go-openai"
)

const visionPrompt = "You are a document transcription engine. " +
	"Transcribe ALL text visible in the provided document, preserving reading order. " +
	"Output only the transcribed text with no commentary, no headers, and no markdown formatting."

// maxEncodedSize caps the base64 payload sent to the API.
const maxEncodedSize = 20 * 1024 * 1024

var (
	mdHeading = regexp.MustCompile(`(?m)^#+ `)
	mdMarkup  = regexp.MustCompile(`\*\*|\*|__|\||---|___`)
)

// Vision transcribes raster images through a multimodal model. Network
// bound; the pool runs it on the I/O tier. The chat image_url content part
// accepts image media only, so non-image payloads (PDFs included) are
// rejected here; scanned PDFs go through ScannedPDF, which feeds this
// extractor one page image at a time.
type Vision struct {
	client *openai.Client
	model  string
}

func NewVision(apiKey, model string) *Vision {
	if model == "" {
		model = openai.GPT4o
	}
	return &Vision{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

func (v *Vision) Extract(ctx context.Context, doc Document) (*Result, error) {
	if len(doc.Data) == 0 {
		return nil, fmt.Errorf("empty document")
	}

	contentType := mimetype.Detect(doc.Data).String()
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("vision transcription needs a raster image, got %s", contentType)
	}

	encoded := base64.StdEncoding.EncodeToString(doc.Data)
	if len(encoded) > maxEncodedSize {
		return nil, fmt.Errorf("document too large for model transcription: %d bytes encoded", len(encoded))
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", contentType, encoded)

	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: v.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: visionPrompt,
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("vision model error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from vision model")
	}

	text := stripMarkdown(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, fmt.Errorf("vision model produced no text")
	}

	slog.Info("vision transcription finished",
		"filename", doc.Filename,
		"model", resp.Model,
		"tokens_used", resp.Usage.TotalTokens,
		"chars", len(text))

	return newResult(text, "vision"), nil
}

// stripMarkdown removes the formatting the model sometimes adds despite the
// prompt, leaving clean text.
func stripMarkdown(s string) string {
	s = mdHeading.ReplaceAllString(s, "")
	return mdMarkup.ReplaceAllString(s, "")
}
