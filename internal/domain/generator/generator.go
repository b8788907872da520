package generator

import (
	"context"

	"github.com/wekeepgrowing/storybook/internal/domain/entity"
)

// StoryPrompt is a validated request with resolved language names.
type StoryPrompt struct {
	entity.StoryRequest
	SourceLanguageName string
	TargetLanguageName string
	Chapters           int
}

// StoryWriter produces the bilingual text of a story.
type StoryWriter interface {
	WriteStory(ctx context.Context, prompt StoryPrompt) (*entity.GeneratedStory, error)
}

// Illustrator creates and downloads illustrations.
type Illustrator interface {
	// GenerateImage returns a URL of a freshly generated image.
	GenerateImage(ctx context.Context, prompt string) (string, error)
	// FetchImage downloads an image and re-encodes it as a bounded-size JPEG.
	FetchImage(ctx context.Context, url string) ([]byte, error)
}

// BlobStore persists generated assets and returns their public URL.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}
