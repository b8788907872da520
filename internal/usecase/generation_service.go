package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/wekeepgrowing/storybook/internal/config"
	"github.com/wekeepgrowing/storybook/internal/domain/entity"
	domainErrors "github.com/wekeepgrowing/storybook/internal/domain/errors"
	"github.com/wekeepgrowing/storybook/internal/domain/generator"
	"github.com/wekeepgrowing/storybook/internal/domain/model"
	"github.com/wekeepgrowing/storybook/internal/domain/ratelimit"
	domainRepo "github.com/wekeepgrowing/storybook/internal/domain/repository"
	"github.com/wekeepgrowing/storybook/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// GenerationResult is returned after a story was generated and paid for.
type GenerationResult struct {
	Story            *model.StoryGeneration `json:"story"`
	CreditsRemaining int                    `json:"creditsRemaining"`
}

// GenerationService runs the story pipeline. Upstream calls are retried; the
// credit debit runs once, after all of them succeeded.
type GenerationService struct {
	limiter     ratelimit.Limiter
	creditRepo  domainRepo.CreditRepository
	stories     domainRepo.StoryRepository
	credits     *CreditService
	writer      generator.StoryWriter
	illustrator generator.Illustrator
	blobs       generator.BlobStore
	notifier    *BalanceNotifier
	cfg         config.GenerationConfig
	logger      *zap.Logger
}

func NewGenerationService(
	limiter ratelimit.Limiter,
	creditRepo domainRepo.CreditRepository,
	stories domainRepo.StoryRepository,
	credits *CreditService,
	writer generator.StoryWriter,
	illustrator generator.Illustrator,
	blobs generator.BlobStore,
	notifier *BalanceNotifier,
	cfg config.GenerationConfig,
	logger *zap.Logger,
) *GenerationService {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Chapters < 1 {
		cfg.Chapters = 5
	}
	return &GenerationService{
		limiter:     limiter,
		creditRepo:  creditRepo,
		stories:     stories,
		credits:     credits,
		writer:      writer,
		illustrator: illustrator,
		blobs:       blobs,
		notifier:    notifier,
		cfg:         cfg,
		logger:      logger,
	}
}

// Generate creates a story for userID and charges one credit for it.
func (s *GenerationService) Generate(ctx context.Context, userID string, req entity.StoryRequest) (result *GenerationResult, err error) {
	ctx, span := tracer.Start(ctx, "GenerationService.Generate")
	defer func() { endSpan(span, err) }()

	if userID == "" {
		return nil, errors.NewAppError(errors.ErrUnauthenticated, "authentication required", domainErrors.ErrAuthenticationRequired)
	}

	prompt, err := s.prompt(req)
	if err != nil {
		return nil, errors.NewAppError(errors.ErrInvalidArgument, err.Error(), err)
	}
	span.SetAttributes(
		attribute.String("story.source_language", prompt.SourceLanguage),
		attribute.String("story.target_language", prompt.TargetLanguage),
	)

	if err := s.admit(ctx, userID); err != nil {
		return nil, err
	}

	balance, err := s.credits.GetBalance(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read balance")
	}
	if balance <= 0 {
		return nil, errors.NewAppError(errors.ErrPaymentRequired, "Insufficient credits", domainErrors.NewInsufficientCreditsError(userID))
	}

	logger := s.logger.With(zap.String("user_id", userID))
	start := time.Now()

	story, err := withRetry(ctx, s, "write_story", func(ctx context.Context) (*entity.GeneratedStory, error) {
		return s.writer.WriteStory(ctx, prompt)
	})
	if err != nil {
		logger.Error("Story generation failed", zap.Error(err))
		return nil, errors.NewAppError(errors.ErrUnavailable, "Story generation failed. No credits were used.", err)
	}

	record := &model.StoryGeneration{
		ID:             uuid.New(),
		UserID:         userID,
		Title:          story.Title,
		Subject:        req.Subject,
		AgeGroup:       req.AgeGroup,
		SourceLanguage: prompt.SourceLanguage,
		TargetLanguage: prompt.TargetLanguage,
		Genre:          req.Genre,
		ImageStyle:     req.ImageStyle,
	}
	for i, ch := range story.Chapters {
		record.Chapters = append(record.Chapters, model.Chapter{
			Number:     i + 1,
			Title:      ch.Title,
			SourceText: ch.SourceText,
			TargetText: ch.TargetText,
		})
	}

	if s.illustrator != nil && s.blobs != nil {
		coverURL, err := s.cover(ctx, record, coverPrompt(story, req))
		if err != nil {
			logger.Error("Cover illustration failed", zap.Error(err))
			return nil, errors.NewAppError(errors.ErrUnavailable, "Illustration failed. No credits were used.", err)
		}
		record.CoverImageURL = coverURL
	}

	spent, err := s.creditRepo.SpendCreditAndRecord(ctx, userID, record)
	if err != nil {
		var insufficient *domainErrors.InsufficientCreditsError
		if errors.As(err, &insufficient) {
			logger.Warn("Credit debit lost race, generation discarded", zap.String("story_id", record.ID.String()))
			return nil, errors.NewAppError(errors.ErrPaymentRequired, "Insufficient credits", err)
		}
		logger.Error("Failed to record generation", zap.Error(err))
		return nil, errors.NewAppError(errors.ErrInternal, "Failed to save story", err)
	}

	if s.notifier != nil {
		s.notifier.BalanceChanged(ctx, BalanceChangedEvent{
			UserID:  userID,
			Balance: spent.CreditsRemaining,
			Delta:   -1,
			Reason:  ReasonSpend,
		})
	}

	logger.Info("Story generated",
		zap.String("story_id", spent.RecordID),
		zap.Int("chapters", len(record.Chapters)),
		zap.Int("credits_remaining", spent.CreditsRemaining),
		zap.Duration("duration", time.Since(start)))

	return &GenerationResult{Story: record, CreditsRemaining: spent.CreditsRemaining}, nil
}

// admit consults the limiter. A limiter outage lets the request through.
func (s *GenerationService) admit(ctx context.Context, userID string) error {
	if s.limiter == nil {
		return nil
	}
	decision, err := s.limiter.Check(ctx, "generate:"+userID)
	if err != nil {
		s.logger.Warn("Rate limiter unavailable", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	if !decision.Allowed {
		limited := &domainErrors.RateLimitedError{RetryAfter: decision.RetryAfter}
		return errors.NewAppError(errors.ErrRateLimited, "Too many requests. Please wait before generating another story.", limited)
	}
	return nil
}

// prompt validates and canonicalises the language pair.
func (s *GenerationService) prompt(req entity.StoryRequest) (generator.StoryPrompt, error) {
	source, err := language.Parse(strings.TrimSpace(req.SourceLanguage))
	if err != nil {
		return generator.StoryPrompt{}, fmt.Errorf("unsupported source language %q", req.SourceLanguage)
	}
	target, err := language.Parse(strings.TrimSpace(req.TargetLanguage))
	if err != nil {
		return generator.StoryPrompt{}, fmt.Errorf("unsupported target language %q", req.TargetLanguage)
	}

	sourceBase, _ := source.Base()
	targetBase, _ := target.Base()
	if sourceBase == targetBase {
		return generator.StoryPrompt{}, fmt.Errorf("source and target language must differ")
	}

	req.SourceLanguage = source.String()
	req.TargetLanguage = target.String()
	return generator.StoryPrompt{
		StoryRequest:       req,
		SourceLanguageName: display.English.Tags().Name(source),
		TargetLanguageName: display.English.Tags().Name(target),
		Chapters:           s.cfg.Chapters,
	}, nil
}

// cover generates, downloads and stores the cover illustration.
func (s *GenerationService) cover(ctx context.Context, record *model.StoryGeneration, prompt string) (string, error) {
	imageURL, err := withRetry(ctx, s, "generate_image", func(ctx context.Context) (string, error) {
		return s.illustrator.GenerateImage(ctx, prompt)
	})
	if err != nil {
		return "", err
	}

	data, err := withRetry(ctx, s, "fetch_image", func(ctx context.Context) ([]byte, error) {
		return s.illustrator.FetchImage(ctx, imageURL)
	})
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("%s/%s/cover.jpg", record.UserID, record.ID)
	return withRetry(ctx, s, "upload_image", func(ctx context.Context) (string, error) {
		return s.blobs.Put(ctx, key, data, "image/jpeg")
	})
}

func coverPrompt(story *entity.GeneratedStory, req entity.StoryRequest) string {
	prompt := story.CoverPrompt
	if prompt == "" {
		prompt = fmt.Sprintf("Cover illustration for a children's story titled %q about %s", story.Title, req.Subject)
	}
	if req.ImageStyle != "" {
		prompt += ", in " + req.ImageStyle + " style"
	}
	return prompt
}

// withRetry runs one upstream call under the per-call timeout with bounded
// exponential backoff. Cancellation of ctx ends the loop.
func withRetry[T any](ctx context.Context, s *GenerationService, step string, call func(context.Context) (T, error)) (T, error) {
	ctx, span := tracer.Start(ctx, "GenerationService."+step)
	defer span.End()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialBackoff
	b.RandomizationFactor = 0

	attempt := 0
	out, err := backoff.Retry(ctx,
		func() (T, error) {
			attempt++
			callCtx := ctx
			if s.cfg.CallTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, s.cfg.CallTimeout)
				defer cancel()
			}
			return call(callCtx)
		},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Warn("Upstream call failed, retrying",
				zap.String("step", step),
				zap.Int("attempt", attempt),
				zap.Duration("next_backoff", next),
				zap.Error(err))
		}),
	)
	span.SetAttributes(attribute.Int("upstream.attempts", attempt))
	if err != nil {
		span.RecordError(err)
		return out, fmt.Errorf("%s failed after %d attempts: %w", step, attempt, err)
	}
	return out, nil
}

// ListStories pages through userID's generations, newest first.
func (s *GenerationService) ListStories(ctx context.Context, userID string, params entity.PaginationParams) ([]model.StoryGeneration, entity.PaginationMeta, error) {
	params.Normalize()
	stories, total, err := s.stories.ListByUser(ctx, userID, params)
	if err != nil {
		return nil, entity.PaginationMeta{}, fmt.Errorf("failed to list stories: %w", err)
	}
	return stories, entity.NewPaginationMeta(params, len(stories), total), nil
}
