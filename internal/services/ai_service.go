package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"shopping-assistant-pipeline/internal/config"
	"shopping-assistant-pipeline/internal/pkg/logger"
)

type GeminiService struct {
	client     *genai.Client
	config     config.GeminiConfig
	resilience *Resilience
	logger     *logger.Logger
}

type GenerationRequest struct {
	Prompt         string
	History        []Message
	MaxTokens      int32
	Temperature    *float32
	SystemRole     string
	ResponseFormat string
}

type GenerationResponse struct {
	Content        string
	TokensUsed     int
	FinishReason   string
	ProcessingTime time.Duration
}

func NewGeminiService(cfg config.GeminiConfig, resilience *Resilience, log *logger.Logger) (*GeminiService, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("Gemini API key required")
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	log.Info("AI service Initialized Successfully - Gemini API",
		"model", cfg.Model,
		"max_tokens", cfg.MaxTokens,
		"temperature", cfg.Temperature,
	)

	return &GeminiService{
		client:     client,
		config:     cfg,
		resilience: resilience,
		logger:     log,
	}, nil
}

// Chat folds system messages into the system instruction and sends the rest
// as the conversation.
func (service *GeminiService) Chat(ctx context.Context, messages []Message) (string, error) {
	var system []string
	var history []Message
	for _, message := range messages {
		if message.Role == RoleSystem {
			system = append(system, message.Content)
			continue
		}
		history = append(history, message)
	}

	resp, err := service.GenerateContent(ctx, &GenerationRequest{
		History:    history,
		SystemRole: strings.Join(system, "\n"),
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func (service *GeminiService) GenerateContent(ctx context.Context, request *GenerationRequest) (*GenerationResponse, error) {
	startTime := time.Now()

	response, err := Call(ctx, service.resilience, "gemini", func(callCtx context.Context) (*GenerationResponse, error) {
		return service.makeGenerationRequest(callCtx, request)
	})
	if err != nil {
		service.logger.LogService("gemini", "generate_content", time.Since(startTime), map[string]any{
			"prompt_length": request.promptLength(),
			"model":         service.config.Model,
		}, err)
		return nil, err
	}

	response.ProcessingTime = time.Since(startTime)

	service.logger.LogService("gemini", "generate_content", response.ProcessingTime, map[string]any{
		"prompt_length":   request.promptLength(),
		"response_length": len(response.Content),
		"tokens_used":     response.TokensUsed,
		"finish_reason":   response.FinishReason,
	}, nil)

	return response, nil
}

func (service *GeminiService) makeGenerationRequest(ctx context.Context, req *GenerationRequest) (*GenerationResponse, error) {
	genConfig := &genai.GenerateContentConfig{}

	if req.SystemRole != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(req.SystemRole, genai.RoleUser)
	}

	if req.Temperature != nil {
		genConfig.Temperature = req.Temperature
	} else {
		temp := float32(service.config.Temperature)
		genConfig.Temperature = &temp
	}

	if req.MaxTokens != 0 {
		genConfig.MaxOutputTokens = req.MaxTokens
	} else {
		genConfig.MaxOutputTokens = int32(service.config.MaxTokens)
	}

	if req.ResponseFormat != "" {
		genConfig.ResponseMIMEType = req.ResponseFormat
	}

	result, err := service.client.Models.GenerateContent(ctx, service.config.Model, req.contents(), genConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to generate gemini content: %w", err)
	}

	if len(result.Candidates) == 0 {
		return nil, fmt.Errorf("no response candidates generated")
	}

	candidate := result.Candidates[0]

	var text strings.Builder
	if candidate.Content != nil {
		for _, part := range candidate.Content.Parts {
			text.WriteString(part.Text)
		}
	}

	tokensUsed := req.promptLength()/4 + text.Len()/4
	if result.UsageMetadata != nil {
		tokensUsed = int(result.UsageMetadata.TotalTokenCount)
	}

	return &GenerationResponse{
		Content:      text.String(),
		TokensUsed:   tokensUsed,
		FinishReason: string(candidate.FinishReason),
	}, nil
}

func (req *GenerationRequest) contents() []*genai.Content {
	if len(req.History) == 0 {
		return genai.Text(req.Prompt)
	}

	contents := make([]*genai.Content, 0, len(req.History)+1)
	for _, message := range req.History {
		role := genai.Role(genai.RoleUser)
		if message.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(message.Content, role))
	}
	if req.Prompt != "" {
		contents = append(contents, genai.NewContentFromText(req.Prompt, genai.RoleUser))
	}
	return contents
}

func (req *GenerationRequest) promptLength() int {
	length := len(req.Prompt)
	for _, message := range req.History {
		length += len(message.Content)
	}
	return length
}

func (service *GeminiService) HealthCheck(ctx context.Context) error {
	testCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var temperature float32 = 0
	resp, err := service.makeGenerationRequest(testCtx, &GenerationRequest{
		Prompt:      "Respond with 'OK' if you can process this request",
		Temperature: &temperature,
		MaxTokens:   10,
	})
	if err != nil {
		return fmt.Errorf("Health Check Failed: %w", err)
	}
	if resp.Content == "" {
		return fmt.Errorf("Empty Response Received")
	}
	return nil
}
