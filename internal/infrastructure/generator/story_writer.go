package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/wekeepgrowing/storybook/internal/domain/entity"
	"github.com/wekeepgrowing/storybook/internal/domain/generator"
	"go.uber.org/zap"
)

const storyPromptTemplate = `You write short illustrated children's stories for language learners.

Write a story about %q for readers aged %s.
Genre: %s.
Split it into exactly %d chapters. Each chapter has a short title and two or three simple sentences.
Write every chapter in %s and give a faithful translation in %s.
Also describe one cover illustration in the style %q, without any text in the image.

Answer with JSON only, no prose, using this shape:
{"title": "...", "cover_prompt": "...", "chapters": [{"title": "...", "source_text": "...", "target_text": "..."}]}`

// LLMStoryWriter writes stories through any langchaingo model.
type LLMStoryWriter struct {
	llm    llms.Model
	logger *zap.Logger
}

// NewOpenAIStoryWriter creates a writer on the OpenAI chat API. baseURL may
// point at any OpenAI compatible endpoint.
func NewOpenAIStoryWriter(apiKey, model, baseURL string, logger *zap.Logger) (*LLMStoryWriter, error) {
	opts := []openai.Option{openai.WithToken(apiKey)}
	if model != "" {
		opts = append(opts, openai.WithModel(model))
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return NewLLMStoryWriter(llm, logger), nil
}

// NewLLMStoryWriter wraps an existing model
func NewLLMStoryWriter(llm llms.Model, logger *zap.Logger) *LLMStoryWriter {
	return &LLMStoryWriter{
		llm:    llm,
		logger: logger.Named("story_writer"),
	}
}

type storyResponse struct {
	Title       string                    `json:"title"`
	CoverPrompt string                    `json:"cover_prompt"`
	Chapters    []entity.GeneratedChapter `json:"chapters"`
}

func (w *LLMStoryWriter) WriteStory(ctx context.Context, prompt generator.StoryPrompt) (*entity.GeneratedStory, error) {
	genre := prompt.Genre
	if genre == "" {
		genre = "adventure"
	}
	style := prompt.ImageStyle
	if style == "" {
		style = "watercolor"
	}

	text := fmt.Sprintf(storyPromptTemplate,
		prompt.Subject,
		prompt.AgeGroup,
		genre,
		prompt.Chapters,
		prompt.SourceLanguageName,
		prompt.TargetLanguageName,
		style,
	)

	completion, err := llms.GenerateFromSinglePrompt(ctx, w.llm, text, llms.WithTemperature(0.8))
	if err != nil {
		return nil, fmt.Errorf("failed to generate story: %w", err)
	}

	story, err := parseStory(completion, prompt.Chapters)
	if err != nil {
		w.logger.Warn("Unusable story completion",
			zap.Int("completion_length", len(completion)),
			zap.Error(err))
		return nil, err
	}

	w.logger.Debug("Story generated",
		zap.String("title", story.Title),
		zap.Int("chapters", len(story.Chapters)))
	return story, nil
}

// parseStory accepts the JSON object even when the model wraps it in prose or
// a code fence.
func parseStory(completion string, wantChapters int) (*entity.GeneratedStory, error) {
	start := strings.Index(completion, "{")
	end := strings.LastIndex(completion, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("story completion contains no JSON object")
	}

	var resp storyResponse
	if err := json.Unmarshal([]byte(completion[start:end+1]), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse story completion: %w", err)
	}
	if strings.TrimSpace(resp.Title) == "" {
		return nil, fmt.Errorf("story completion has no title")
	}
	if len(resp.Chapters) == 0 {
		return nil, fmt.Errorf("story completion has no chapters")
	}
	if wantChapters > 0 && len(resp.Chapters) > wantChapters {
		resp.Chapters = resp.Chapters[:wantChapters]
	}
	for i, ch := range resp.Chapters {
		if strings.TrimSpace(ch.SourceText) == "" || strings.TrimSpace(ch.TargetText) == "" {
			return nil, fmt.Errorf("chapter %d is missing text", i+1)
		}
	}

	return &entity.GeneratedStory{
		Title:       resp.Title,
		CoverPrompt: resp.CoverPrompt,
		Chapters:    resp.Chapters,
	}, nil
}
