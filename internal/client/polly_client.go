package client

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/pollinator/api/internal/config"
	"github.com/pollinator/api/internal/model"
)

const audioContentType = "audio/mpeg"

type speechAPI interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// PollyClient synthesizes mp3 speech with Amazon Polly
type PollyClient struct {
	api        speechAPI
	voiceID    types.VoiceId
	sampleRate string
}

// NewPollyClient creates a Polly client using the default AWS credential chain
func NewPollyClient(ctx context.Context, cfg *config.TTSConfig) (*PollyClient, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newPollyClient(polly.NewFromConfig(awsCfg), cfg), nil
}

func newPollyClient(api speechAPI, cfg *config.TTSConfig) *PollyClient {
	return &PollyClient{
		api:        api,
		voiceID:    types.VoiceId(cfg.VoiceID),
		sampleRate: cfg.SampleRate,
	}
}

// Synthesize returns the mp3 rendition of text
func (c *PollyClient) Synthesize(ctx context.Context, text string) (*Audio, error) {
	out, err := c.api.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		OutputFormat: types.OutputFormatMp3,
		Text:         aws.String(text),
		TextType:     types.TextTypeText,
		VoiceId:      c.voiceID,
		SampleRate:   aws.String(c.sampleRate),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to synthesize speech: %v", model.ErrProviderFailed, err)
	}
	defer out.AudioStream.Close()

	data, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read audio stream: %v", model.ErrProviderFailed, err)
	}

	contentType := audioContentType
	if out.ContentType != nil && *out.ContentType != "" {
		contentType = *out.ContentType
	}
	return &Audio{Data: data, ContentType: contentType}, nil
}
