package llm

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/PabloGalante/farum-coach/internal/domain"
)

const DefaultModel = "gemini-2.5-flash"

type VertexConfig struct {
	Project  string
	Location string
	Model    string
}

type VertexClient struct {
	client    *genai.Client
	modelName string
}

// NewVertexClient creates an LLMClient based on Vertex AI (Gemini).
func NewVertexClient(ctx context.Context, cfg VertexConfig) (*VertexClient, error) {
	if cfg.Project == "" || cfg.Location == "" {
		return nil, fmt.Errorf("vertex: project and location must be set")
	}

	modelName := cfg.Model
	if modelName == "" {
		modelName = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  cfg.Project,
		Location: cfg.Location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Vertex AI client: %w", err)
	}

	return &VertexClient{
		client:    client,
		modelName: modelName,
	}, nil
}

// StreamReply implements domain.LLMClient using the Vertex AI streaming API.
func (v *VertexClient) StreamReply(
	ctx context.Context,
	userMessage string,
	convCtx domain.ConversationContext,
	onChunk func(string) error,
) (string, error) {
	system, err := BuildSystemPrompt(convCtx.Mode)
	if err != nil {
		return "", err
	}

	var contents []*genai.Content
	for _, m := range convCtx.History {
		role := genai.Role(genai.RoleUser)
		if m.Author == domain.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(historyText(m), role))
	}
	contents = append(contents, genai.NewContentFromText(userMessage, genai.RoleUser))

	temp := float32(0.7)
	topP := float32(0.9)

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       &temp,
		TopP:              &topP,
		MaxOutputTokens:   8192,
	}

	var full strings.Builder
	for res, err := range v.client.Models.GenerateContentStream(ctx, v.modelName, contents, cfg) {
		if err != nil {
			return "", fmt.Errorf("vertex stream content: %w", err)
		}
		chunk := res.Text()
		if chunk == "" {
			continue
		}
		if err := onChunk(chunk); err != nil {
			return "", err
		}
		full.WriteString(chunk)
	}

	if full.Len() == 0 {
		return "", fmt.Errorf("vertex returned empty text")
	}
	return full.String(), nil
}
