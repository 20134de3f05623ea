// Package openai implements diagram generation on the OpenAI chat completions API.
package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"dclass/application/ports"
	"dclass/domain/core/aggregates"
	pkgerrors "dclass/pkg/errors"
)

const (
	diagramPrompt = `You design UML class diagrams. Turn the user's request into classes with typed attributes and methods, optional notes, and the relationships between the classes. Use the class names exactly as they appear in "classes" when writing relations. Prefer private attributes and public methods unless the request says otherwise.`

	imagePrompt = `You read pictures of UML class diagrams, whiteboard sketches included. Transcribe every class with its attributes and methods and every relationship you can see. Keep the names as written in the picture.`

	conversePrompt = `You are the assistant of a collaborative UML class diagram editor. Answer questions about object-oriented modelling and UML briefly. When the user wants a diagram, tell them to describe it starting with "create" or "generate".`
)

// ChatCompleter is the subset of the chat completions API the generator uses
type ChatCompleter interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Config configures the generator
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	VisionModel string
}

// Generator implements ports.DiagramGenerator
type Generator struct {
	chat        ChatCompleter
	model       string
	visionModel string
	logger      *zap.Logger
}

var _ ports.DiagramGenerator = (*Generator)(nil)

// NewGenerator creates a generator talking to the OpenAI API
func NewGenerator(cfg Config, logger *zap.Logger) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, pkgerrors.NewValidation("OpenAI API key is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := openai.NewClient(opts...)
	return NewGeneratorWithClient(&client.Chat.Completions, cfg, logger), nil
}

// NewGeneratorWithClient creates a generator on an existing completions client
func NewGeneratorWithClient(chat ChatCompleter, cfg Config, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	model := cfg.Model
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}
	vision := cfg.VisionModel
	if vision == "" {
		vision = model
	}
	return &Generator{chat: chat, model: model, visionModel: vision, logger: logger}
}

// GenerateFromPrompt asks the model for a structured diagram
func (g *Generator) GenerateFromPrompt(ctx context.Context, prompt string) (aggregates.Model, error) {
	msgs := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(diagramPrompt),
		openai.UserMessage(prompt),
	}
	return g.generateDiagram(ctx, "prompt", g.model, msgs)
}

// GenerateFromImage transcribes a diagram picture given as a data URL
func (g *Generator) GenerateFromImage(ctx context.Context, dataURL, fileName string) (aggregates.Model, error) {
	if !strings.HasPrefix(dataURL, "data:image/") {
		return aggregates.Model{}, pkgerrors.NewValidation("image must be a data:image/ URL")
	}
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(fmt.Sprintf("Transcribe the class diagram in %q.", fileName)),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
	}
	msgs := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(imagePrompt),
		openai.UserMessage(parts),
	}
	return g.generateDiagram(ctx, "image", g.visionModel, msgs)
}

// Converse returns a plain text reply
func (g *Generator) Converse(ctx context.Context, prompt string) (string, error) {
	ctx, span := otel.Tracer("dclass/infrastructure/ai/openai").Start(ctx, "openai.converse")
	defer span.End()

	body := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(conversePrompt),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0.3),
	}
	text, err := g.complete(ctx, "conversation", body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return strings.TrimSpace(text), nil
}

func (g *Generator) generateDiagram(ctx context.Context, kind, model string, msgs []openai.ChatCompletionMessageParamUnion) (aggregates.Model, error) {
	ctx, span := otel.Tracer("dclass/infrastructure/ai/openai").Start(ctx, "openai.generate_"+kind)
	defer span.End()
	span.SetAttributes(attribute.String("model", model))

	body := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: msgs,
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "class_diagram",
					Description: openai.String("A UML class diagram"),
					Schema:      schemaFor(generatedDiagram{}),
					Strict:      openai.Bool(true),
				},
			},
		},
		Temperature: openai.Float(0.1),
	}

	content, err := g.complete(ctx, kind, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return aggregates.Model{}, err
	}

	var out generatedDiagram
	if err := decodeLenient(content, &out); err != nil {
		g.logger.Warn("Unparseable diagram output", zap.String("kind", kind), zap.Error(err))
		return aggregates.Model{}, &pkgerrors.AppError{Type: pkgerrors.ErrorTypeGeneration, Message: "the model returned an invalid diagram", Err: err}
	}
	result, skipped, err := out.toModel()
	if err != nil {
		return aggregates.Model{}, &pkgerrors.AppError{Type: pkgerrors.ErrorTypeGeneration, Message: "the model returned an empty diagram", Err: err}
	}
	if skipped > 0 {
		g.logger.Debug("Skipped relations with unknown classes", zap.String("kind", kind), zap.Int("count", skipped))
	}
	span.SetAttributes(
		attribute.Int("nodes", result.NodeCount()),
		attribute.Int("edges", result.EdgeCount()),
	)
	return result, nil
}

func (g *Generator) complete(ctx context.Context, kind string, body openai.ChatCompletionNewParams) (string, error) {
	start := time.Now()
	response, err := g.chat.New(ctx, body)
	if err != nil {
		return "", pkgerrors.NewRemote("OpenAI request failed", err)
	}

	g.logger.Debug("OpenAI completion",
		zap.String("kind", kind),
		zap.String("model", string(body.Model)),
		zap.Int64("promptTokens", response.Usage.PromptTokens),
		zap.Int64("completionTokens", response.Usage.CompletionTokens),
		zap.Duration("duration", time.Since(start)),
	)

	if len(response.Choices) == 0 {
		return "", pkgerrors.NewGeneration("no choices in response from model")
	}
	choice := response.Choices[0]
	if choice.Message.Refusal != "" {
		return "", pkgerrors.NewGeneration(choice.Message.Refusal)
	}
	if choice.Message.Content == "" {
		return "", pkgerrors.NewGeneration(fmt.Sprintf("empty response from model (finish_reason: %s)", choice.FinishReason))
	}
	return choice.Message.Content, nil
}

// Disabled is the generator used when no API key is configured
type Disabled struct{}

var _ ports.DiagramGenerator = Disabled{}

var errDisabled = pkgerrors.NewGeneration("AI generation is not configured on this server")

func (Disabled) GenerateFromPrompt(context.Context, string) (aggregates.Model, error) {
	return aggregates.Model{}, errDisabled
}

func (Disabled) GenerateFromImage(context.Context, string, string) (aggregates.Model, error) {
	return aggregates.Model{}, errDisabled
}

func (Disabled) Converse(context.Context, string) (string, error) {
	return "", errDisabled
}
