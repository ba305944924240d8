package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/barekit/agrilab/pkg/llm"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// Provider implements llm.Provider over the OpenAI chat completions API.
type Provider struct {
	client *openai.Client
	model  string
}

// DefaultModel is the completion model used when none is configured.
const DefaultModel = "gpt-3.5-turbo-1106"

func New(opts ...option.RequestOption) *Provider {
	client := openai.NewClient(opts...)
	return &Provider{
		client: &client,
		model:  DefaultModel,
	}
}

// SetModel sets the model to use.
func (p *Provider) SetModel(model string) {
	p.model = model
}

// Chat sends the transcript and tool declarations to the completions
// endpoint. Failures surface as *llm.TransportError, never as content.
func (p *Provider) Chat(ctx context.Context, messages []llm.Message, tools []llm.ToolDefinition, choice llm.ToolChoice) (*llm.Message, error) {
	openaiMessages, err := buildMessages(messages)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Messages: openaiMessages,
		Model:    p.model,
	}

	if len(tools) > 0 {
		params.Tools = buildTools(tools)
		params.ToolChoice = buildToolChoice(choice)
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		terr := &llm.TransportError{Endpoint: "chat completions", Err: err}
		var apierr *openai.Error
		if errors.As(err, &apierr) {
			terr.Status = apierr.StatusCode
		}
		return nil, terr
	}
	if len(completion.Choices) == 0 {
		return nil, &llm.TransportError{Endpoint: "chat completions", Err: fmt.Errorf("empty choice list")}
	}

	msg := completion.Choices[0].Message
	responseMsg := &llm.Message{
		Role:    llm.RoleAssistant,
		Content: msg.Content,
	}

	if len(msg.ToolCalls) > 0 {
		responseMsg.ToolCalls = make([]llm.ToolCall, len(msg.ToolCalls))
		for i, tc := range msg.ToolCalls {
			responseMsg.ToolCalls[i] = llm.ToolCall{
				ID:   tc.ID,
				Type: string(tc.Type),
				Function: llm.Function{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			}
		}
	}

	return responseMsg, nil
}

// Stream streams a plain completion for the transcript. Tool calls are not
// streamed; the turn protocol only streams scripted and free-text turns.
func (p *Provider) Stream(ctx context.Context, messages []llm.Message) (<-chan string, error) {
	openaiMessages, err := buildMessages(messages)
	if err != nil {
		return nil, err
	}

	params := openai.ChatCompletionNewParams{
		Messages: openaiMessages,
		Model:    p.model,
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)

	out := make(chan string)
	go func() {
		defer close(out)
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) > 0 {
				out <- chunk.Choices[0].Delta.Content
			}
		}
		if err := stream.Err(); err != nil {
			slog.Error("completion stream failed", "error", err)
		}
	}()

	return out, nil
}

func buildMessages(messages []llm.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	openaiMessages := make([]openai.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			openaiMessages[i] = openai.SystemMessage(msg.Content)
		case llm.RoleUser:
			openaiMessages[i] = openai.UserMessage(msg.Content)
		case llm.RoleAssistant:
			assistantMsg := openai.AssistantMessage(msg.Content)
			if len(msg.ToolCalls) > 0 {
				toolCalls := make([]openai.ChatCompletionMessageToolCallParam, len(msg.ToolCalls))
				for j, tc := range msg.ToolCalls {
					toolCalls[j] = openai.ChatCompletionMessageToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageToolCallFunctionParam{
							Name:      tc.Function.Name,
							Arguments: tc.Function.Arguments,
						},
					}
				}
				if assistantMsg.OfAssistant != nil {
					assistantMsg.OfAssistant.ToolCalls = toolCalls
				}
			}
			openaiMessages[i] = assistantMsg
		case llm.RoleTool:
			openaiMessages[i] = openai.ToolMessage(msg.ToolCallID, msg.Content)
		default:
			return nil, fmt.Errorf("unknown role: %s", msg.Role)
		}
	}
	return openaiMessages, nil
}

func buildTools(tools []llm.ToolDefinition) []openai.ChatCompletionToolParam {
	openaiTools := make([]openai.ChatCompletionToolParam, len(tools))
	for i, t := range tools {
		params, ok := t.Function.Parameters.(map[string]interface{})
		if !ok {
			b, _ := json.Marshal(t.Function.Parameters)
			_ = json.Unmarshal(b, &params)
		}

		openaiTools[i] = openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        t.Function.Name,
				Description: openai.String(t.Function.Description),
				Parameters:  shared.FunctionParameters(params),
			},
		}
	}
	return openaiTools
}

func buildToolChoice(choice llm.ToolChoice) openai.ChatCompletionToolChoiceOptionUnionParam {
	switch choice {
	case "", llm.ToolChoiceAuto:
		return openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String("auto"),
		}
	case llm.ToolChoiceNone:
		return openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String("none"),
		}
	default:
		// Anything else names a function to force.
		return openai.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{
					Name: string(choice),
				},
			},
		}
	}
}
