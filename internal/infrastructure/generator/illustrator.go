package generator

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-resty/resty/v2"
	"github.com/wekeepgrowing/storybook/internal/domain/provider"
	"go.uber.org/zap"
)

const (
	defaultImageMaxWidth = 1024
	jpegQuality          = 85
	maxImageBytes        = 20 << 20
)

// ImageAPIIllustrator calls an OpenAI compatible images endpoint and
// normalises downloaded images with imaging.
type ImageAPIIllustrator struct {
	api      *resty.Client
	download *resty.Client
	endpoint string
	model    string
	maxWidth int
	logger   *zap.Logger
}

// NewImageAPIIllustrator creates an illustrator. endpoint is the full URL of
// the generations route.
func NewImageAPIIllustrator(endpoint, apiKey, model string, maxWidth int, timeout time.Duration, logger *zap.Logger) *ImageAPIIllustrator {
	if maxWidth <= 0 {
		maxWidth = defaultImageMaxWidth
	}

	api := resty.New().
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json")
	download := resty.New()
	if timeout > 0 {
		api.SetTimeout(timeout)
		download.SetTimeout(timeout)
	}

	return &ImageAPIIllustrator{
		api:      api,
		download: download,
		endpoint: endpoint,
		model:    model,
		maxWidth: maxWidth,
		logger:   logger.Named("illustrator"),
	}
}

type imageGenerationResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

func (i *ImageAPIIllustrator) GenerateImage(ctx context.Context, prompt string) (string, error) {
	var result imageGenerationResponse
	resp, err := i.api.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"model":  i.model,
			"prompt": prompt,
			"n":      1,
			"size":   "1024x1024",
		}).
		SetResult(&result).
		Post(i.endpoint)
	if err != nil {
		return "", &provider.ProviderError{
			Code:      provider.CodeAPI,
			Message:   "Image API request failed",
			Details:   err.Error(),
			Retryable: true,
		}
	}
	if resp.IsError() {
		return "", &provider.ProviderError{
			Code:       provider.CodeAPI,
			Message:    fmt.Sprintf("Image API returned status %d", resp.StatusCode()),
			StatusCode: resp.StatusCode(),
			Retryable:  provider.RetryableStatus(resp.StatusCode()),
		}
	}
	if len(result.Data) == 0 || result.Data[0].URL == "" {
		return "", &provider.ProviderError{
			Code:    provider.CodeResponse,
			Message: "Image API returned no image",
		}
	}

	i.logger.Debug("Image generated", zap.Int("prompt_length", len(prompt)))
	return result.Data[0].URL, nil
}

func (i *ImageAPIIllustrator) FetchImage(ctx context.Context, url string) ([]byte, error) {
	resp, err := i.download.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return nil, &provider.ProviderError{
			Code:      provider.CodeAPI,
			Message:   "Image download failed",
			Details:   err.Error(),
			Retryable: true,
		}
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, &provider.ProviderError{
			Code:       provider.CodeAPI,
			Message:    fmt.Sprintf("Image download returned status %d", resp.StatusCode()),
			StatusCode: resp.StatusCode(),
			Retryable:  provider.RetryableStatus(resp.StatusCode()),
		}
	}
	if len(resp.Body()) > maxImageBytes {
		return nil, &provider.ProviderError{
			Code:    provider.CodeResponse,
			Message: "Image exceeds size limit",
		}
	}

	return Normalize(resp.Body(), i.maxWidth)
}

// Normalize decodes any supported image, shrinks it to maxWidth and
// re-encodes it as JPEG.
func Normalize(data []byte, maxWidth int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &provider.ProviderError{
			Code:    provider.CodeParse,
			Message: "Downloaded file is not an image",
			Details: err.Error(),
		}
	}

	if maxWidth > 0 && img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flatten(img), imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// flatten puts transparent images on a white background before JPEG encoding.
func flatten(img image.Image) image.Image {
	bounds := img.Bounds()
	background := imaging.New(bounds.Dx(), bounds.Dy(), image.White)
	return imaging.Overlay(background, img, image.Pt(0, 0), 1.0)
}
