package extraction

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultClaudeModel = "claude-sonnet-4-5-20250929"
	// maxFieldTokens caps the response; three short fields need far less.
	maxFieldTokens = 500
)

// Claude talks to the Anthropic Messages API. It implements both
// VisionClient and BatchClient, making it the only provider that can
// back the batch strategy.
type Claude struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewClaude creates a new Claude client.
func NewClaude(apiKey string, modelName string) (*Claude, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("claude api key is required")
	}
	if modelName == "" {
		modelName = defaultClaudeModel
	}

	return &Claude{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(modelName),
	}, nil
}

// ExtractFields implements VisionClient.
func (c *Claude) ExtractFields(ctx context.Context, pngData []byte) (string, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: maxFieldTokens,
		Messages:  []anthropic.MessageParam{fieldMessage(pngData)},
	})
	if err != nil {
		return "", classifyAnthropicErr(err)
	}
	return messageText(message)
}

// SubmitBatch implements BatchClient via the Message Batches API.
func (c *Claude) SubmitBatch(ctx context.Context, items []BatchItem) (string, error) {
	requests := make([]anthropic.MessageBatchNewParamsRequest, 0, len(items))
	for _, item := range items {
		requests = append(requests, anthropic.MessageBatchNewParamsRequest{
			CustomID: item.CustomID,
			Params: anthropic.MessageBatchNewParamsRequestParams{
				Model:     c.model,
				MaxTokens: maxFieldTokens,
				Messages:  []anthropic.MessageParam{fieldMessage(item.PNG)},
			},
		})
	}

	batch, err := c.client.Messages.Batches.New(ctx, anthropic.MessageBatchNewParams{
		Requests: requests,
	})
	if err != nil {
		return "", classifyAnthropicErr(err)
	}
	return batch.ID, nil
}

// BatchDone implements BatchClient.
func (c *Claude) BatchDone(ctx context.Context, jobID string) (bool, error) {
	batch, err := c.client.Messages.Batches.Get(ctx, jobID)
	if err != nil {
		return false, classifyAnthropicErr(err)
	}
	return batch.ProcessingStatus == anthropic.MessageBatchProcessingStatusEnded, nil
}

// BatchResults implements BatchClient. Every entry of the result stream
// becomes an outcome; non-succeeded entries carry an error instead of
// text.
func (c *Claude) BatchResults(ctx context.Context, jobID string) ([]BatchOutcome, error) {
	stream := c.client.Messages.Batches.ResultsStreaming(ctx, jobID)
	defer stream.Close()

	var outcomes []BatchOutcome
	for stream.Next() {
		entry := stream.Current()
		outcome := BatchOutcome{CustomID: entry.CustomID}
		if entry.Result.Type == "succeeded" {
			outcome.Text, outcome.Err = messageText(&entry.Result.Message)
		} else {
			outcome.Err = fmt.Errorf("batch item %s: %s", entry.CustomID, entry.Result.Type)
		}
		outcomes = append(outcomes, outcome)
	}
	if err := stream.Err(); err != nil {
		return nil, classifyAnthropicErr(err)
	}
	return outcomes, nil
}

// CancelBatch implements BatchClient.
func (c *Claude) CancelBatch(ctx context.Context, jobID string) error {
	if _, err := c.client.Messages.Batches.Cancel(ctx, jobID); err != nil {
		return classifyAnthropicErr(err)
	}
	return nil
}

// Close implements VisionClient and BatchClient. The underlying HTTP
// client needs no teardown.
func (c *Claude) Close() error { return nil }

// fieldMessage builds the one-image user turn shared by both strategies.
func fieldMessage(pngData []byte) anthropic.MessageParam {
	return anthropic.NewUserMessage(
		anthropic.NewImageBlockBase64("image/png", base64.StdEncoding.EncodeToString(pngData)),
		anthropic.NewTextBlock(fieldPrompt),
	)
}

// messageText returns the first text block of a response.
func messageText(message *anthropic.Message) (string, error) {
	for _, block := range message.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in claude response")
}

// classifyAnthropicErr separates "the API answered and said no" from "we
// never reached the service".
func classifyAnthropicErr(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("claude API error: %w", err)
	}
	return fmt.Errorf("%w: %v", ErrServiceUnreachable, err)
}
