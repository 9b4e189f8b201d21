package generator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kiranvinzoda4/ai-dream-creater/internal/config"
)

const tracerName = "github.com/kiranvinzoda4/ai-dream-creater/internal/generator"

// asyncInvoker is the subset of the Bedrock runtime client used here.
type asyncInvoker interface {
	StartAsyncInvoke(ctx context.Context, params *bedrockruntime.StartAsyncInvokeInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.StartAsyncInvokeOutput, error)
	GetAsyncInvoke(ctx context.Context, params *bedrockruntime.GetAsyncInvokeInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.GetAsyncInvokeOutput, error)
}

// Bedrock submits Nova Reel image-to-video jobs through async invoke.
type Bedrock struct {
	client    asyncInvoker
	modelID   string
	outputURI string
	timeout   time.Duration
	tracer    trace.Tracer
}

// NewBedrock loads AWS configuration and builds the runtime client. Static
// credentials are used when both keys are configured; otherwise the default
// provider chain applies.
func NewBedrock(ctx context.Context, cfg config.GeneratorConfig) (*Bedrock, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newBedrock(bedrockruntime.NewFromConfig(awsCfg), cfg), nil
}

func newBedrock(client asyncInvoker, cfg config.GeneratorConfig) *Bedrock {
	return &Bedrock{
		client:    client,
		modelID:   cfg.ModelID,
		outputURI: strings.TrimRight(cfg.OutputURI, "/"),
		timeout:   cfg.Timeout,
		tracer:    otel.Tracer(tracerName),
	}
}

type novaImageSource struct {
	Bytes string `json:"bytes"`
}

type novaImage struct {
	Format string          `json:"format"`
	Source novaImageSource `json:"source"`
}

type novaTextToVideoParams struct {
	Text   string      `json:"text"`
	Images []novaImage `json:"images,omitempty"`
}

type novaVideoGenerationConfig struct {
	DurationSeconds int    `json:"durationSeconds"`
	FPS             int    `json:"fps"`
	Dimension       string `json:"dimension"`
	Seed            int    `json:"seed"`
}

type novaReelInput struct {
	TaskType              string                    `json:"taskType"`
	TextToVideoParams     novaTextToVideoParams     `json:"textToVideoParams"`
	VideoGenerationConfig novaVideoGenerationConfig `json:"videoGenerationConfig"`
}

func buildModelInput(req Request) novaReelInput {
	input := novaReelInput{
		TaskType: "TEXT_VIDEO",
		TextToVideoParams: novaTextToVideoParams{
			Text: req.Prompt,
		},
		VideoGenerationConfig: novaVideoGenerationConfig{
			DurationSeconds: req.DurationSeconds,
			FPS:             req.FPS,
			Dimension:       req.Dimension,
			Seed:            req.Seed,
		},
	}
	if len(req.Image) > 0 {
		input.TextToVideoParams.Images = []novaImage{{
			Format: req.ImageFormat,
			Source: novaImageSource{Bytes: base64.StdEncoding.EncodeToString(req.Image)},
		}}
	}
	return input
}

// Submit starts an async invocation and returns its ARN as the job handle.
func (b *Bedrock) Submit(ctx context.Context, req Request) (_ Submission, err error) {
	ctx, span := b.tracer.Start(ctx, "bedrock.StartAsyncInvoke",
		trace.WithAttributes(attribute.String("model_id", b.modelID)),
	)
	defer endSpan(span, &err)

	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	input := &bedrockruntime.StartAsyncInvokeInput{
		ModelId:    aws.String(b.modelID),
		ModelInput: document.NewLazyDocument(buildModelInput(req)),
		OutputDataConfig: &types.AsyncInvokeOutputDataConfigMemberS3OutputDataConfig{
			Value: types.AsyncInvokeS3OutputDataConfig{S3Uri: aws.String(b.outputURI)},
		},
	}
	if req.ClientToken != "" {
		input.ClientRequestToken = aws.String(req.ClientToken)
	}

	out, err := b.client.StartAsyncInvoke(ctx, input)
	if err != nil {
		return Submission{}, serviceErr("submit", err)
	}
	arn := strings.TrimSpace(aws.ToString(out.InvocationArn))
	if arn == "" {
		return Submission{}, serviceErrf("submit", "response missing invocation arn")
	}
	span.SetAttributes(attribute.String("invocation_arn", arn))
	return Submission{Handle: arn}, nil
}

// Poll maps the invocation status onto a Phase. A completed job resolves to
// "<job output folder>/output.mp4".
func (b *Bedrock) Poll(ctx context.Context, handle string) (_ Status, err error) {
	ctx, span := b.tracer.Start(ctx, "bedrock.GetAsyncInvoke",
		trace.WithAttributes(attribute.String("invocation_arn", handle)),
	)
	defer endSpan(span, &err)

	if strings.TrimSpace(handle) == "" {
		return Status{}, serviceErrf("poll", "empty job handle")
	}

	ctx, cancel := b.withTimeout(ctx)
	defer cancel()

	out, err := b.client.GetAsyncInvoke(ctx, &bedrockruntime.GetAsyncInvokeInput{
		InvocationArn: aws.String(handle),
	})
	if err != nil {
		return Status{}, serviceErr("poll", err)
	}

	switch out.Status {
	case types.AsyncInvokeStatusInProgress:
		return Status{Phase: PhaseInProgress}, nil
	case types.AsyncInvokeStatusFailed:
		return Status{Phase: PhaseFailed, Message: aws.ToString(out.FailureMessage)}, nil
	case types.AsyncInvokeStatusCompleted:
		folder := outputFolder(out.OutputDataConfig)
		if folder == "" {
			return Status{}, serviceErrf("poll", "completed job %s missing output location", handle)
		}
		return Status{Phase: PhaseSucceeded, AssetURI: folder + "/output.mp4"}, nil
	default:
		return Status{}, serviceErrf("poll", "unexpected job status %q", out.Status)
	}
}

func outputFolder(cfg types.AsyncInvokeOutputDataConfig) string {
	s3cfg, ok := cfg.(*types.AsyncInvokeOutputDataConfigMemberS3OutputDataConfig)
	if !ok || s3cfg == nil {
		return ""
	}
	return strings.TrimRight(aws.ToString(s3cfg.Value.S3Uri), "/")
}

func (b *Bedrock) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, b.timeout)
}

func endSpan(span trace.Span, err *error) {
	if err != nil && *err != nil {
		span.RecordError(*err)
		span.SetStatus(codes.Error, (*err).Error())
		if errors.Is(*err, context.DeadlineExceeded) {
			span.SetAttributes(attribute.Bool("timeout", true))
		}
	}
	span.End()
}
