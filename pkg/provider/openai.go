package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/sawane/loom/internal/observability"
)

// OpenAIClient implements Client for OpenAI
type OpenAIClient struct {
	client openai.Client
}

// NewOpenAIClient creates a new OpenAI client
func NewOpenAIClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Name returns the provider name
func (c *OpenAIClient) Name() string {
	return "openai"
}

// Complete makes a blocking API call to OpenAI
func (c *OpenAIClient) Complete(ctx context.Context, request Request) (*Completion, error) {
	params, err := c.buildParams(request)
	if err != nil {
		return nil, err
	}

	response, err := c.client.Chat.Completions.New(ctx, params)
	observability.RecordProviderCall(c.Name(), err == nil)
	if err != nil {
		return nil, err
	}

	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("no response choices returned")
	}

	completion, err := extractOpenAIMessage(response.Choices[0].Message)
	if err != nil {
		return nil, err
	}
	completion.Usage = Usage{
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
	}
	return completion, nil
}

// CompleteStream makes a streaming API call and feeds text deltas to onChunk.
func (c *OpenAIClient) CompleteStream(ctx context.Context, request Request, onChunk ChunkHandler) (*Completion, error) {
	params, err := c.buildParams(request)
	if err != nil {
		return nil, err
	}
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	acc := openai.ChatCompletionAccumulator{}

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			observability.RecordStreamDelta()
			if onChunk != nil {
				onChunk(Chunk{Text: chunk.Choices[0].Delta.Content})
			}
		}
	}

	if err := stream.Err(); err != nil {
		observability.RecordProviderCall(c.Name(), false)
		return nil, err
	}

	if len(acc.Choices) == 0 {
		observability.RecordProviderCall(c.Name(), false)
		return nil, fmt.Errorf("no response choices returned")
	}

	observability.RecordProviderCall(c.Name(), true)

	completion, err := extractOpenAIMessage(acc.Choices[0].Message)
	if err != nil {
		return nil, err
	}
	completion.Usage = Usage{
		InputTokens:  int(acc.Usage.PromptTokens),
		OutputTokens: int(acc.Usage.CompletionTokens),
	}
	return completion, nil
}

// buildParams converts a Request into OpenAI chat completion parameters.
func (c *OpenAIClient) buildParams(request Request) (openai.ChatCompletionNewParams, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}

	if request.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(request.SystemPrompt))
	}

	for _, msg := range request.Messages {
		if msg.Role == "system" {
			continue // Already handled above
		}

		switch msg.Role {
		case "user":
			messages = append(messages, openai.UserMessage(msg.Content))
		case "assistant":
			if len(msg.ToolCalls) > 0 {
				toolCalls := []openai.ChatCompletionMessageToolCall{}
				for _, tc := range msg.ToolCalls {
					paramsJSON, err := json.Marshal(tc.Parameters)
					if err != nil {
						return openai.ChatCompletionNewParams{}, fmt.Errorf("failed to marshal tool parameters: %w", err)
					}

					toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
						ID:   tc.ID,
						Type: "function",
						Function: openai.ChatCompletionMessageToolCallFunction{
							Name:      tc.Name,
							Arguments: string(paramsJSON),
						},
					})
				}

				assistantMsg := openai.ChatCompletionMessage{
					Role:      "assistant",
					Content:   msg.Content,
					ToolCalls: toolCalls,
				}
				messages = append(messages, assistantMsg.ToParam())
			} else {
				messages = append(messages, openai.AssistantMessage(msg.Content))
			}
		case "tool":
			messages = append(messages, openai.ToolMessage(msg.Content, msg.ToolCallID))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(request.Model),
		Messages: messages,
	}

	if request.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(request.MaxTokens))
	}

	if request.Temperature > 0 {
		params.Temperature = openai.Float(request.Temperature)
	}

	if len(request.Tools) > 0 {
		tools := []openai.ChatCompletionToolParam{}
		for _, tool := range request.Tools {
			tools = append(tools, openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        tool.Name,
					Description: openai.String(tool.Description),
					Parameters:  openai.FunctionParameters(tool.InputSchema),
				},
			})
		}
		params.Tools = tools
	}

	return params, nil
}

// extractOpenAIMessage converts a chat message into a Completion without usage.
func extractOpenAIMessage(message openai.ChatCompletionMessage) (*Completion, error) {
	toolCalls := []ToolCall{}
	for _, tc := range message.ToolCalls {
		var params map[string]interface{}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &params); err != nil {
			return nil, fmt.Errorf("failed to parse tool arguments: %w", err)
		}

		toolCalls = append(toolCalls, ToolCall{
			ID:         tc.ID,
			Name:       tc.Function.Name,
			Parameters: params,
		})
	}

	return &Completion{
		Content:   message.Content,
		ToolCalls: toolCalls,
	}, nil
}
