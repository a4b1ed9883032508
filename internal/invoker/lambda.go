package invoker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
)

// LambdaAPI is the subset of the Lambda client used for invocation
type LambdaAPI interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// Lambda invokes tasks as AWS Lambda functions
type Lambda struct {
	api     LambdaAPI
	timeout time.Duration
	logger  *slog.Logger
}

// NewLambda creates a Lambda invoker. A positive timeout bounds every call.
func NewLambda(api LambdaAPI, timeout time.Duration, logger *slog.Logger) *Lambda {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lambda{api: api, timeout: timeout, logger: logger}
}

// NewLambdaFromConfig builds the Lambda client with SDK retries disabled
func NewLambdaFromConfig(cfg aws.Config, timeout time.Duration, logger *slog.Logger) *Lambda {
	client := lambda.NewFromConfig(cfg, func(o *lambda.Options) {
		o.Retryer = aws.NopRetryer{}
	})
	return NewLambda(client, timeout, logger)
}

func (l *Lambda) Invoke(ctx context.Context, task string, mode Mode, payload []byte) (*Result, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := l.api.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(task),
		InvocationType: types.InvocationType(mode),
		Payload:        payload,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to invoke %s: %w", task, err)
	}

	l.logger.Debug("invoked lambda",
		"task", task,
		"mode", mode,
		"status_code", out.StatusCode,
		"duration", time.Since(start))

	if out.FunctionError != nil {
		return nil, &FunctionError{Task: task, Kind: aws.ToString(out.FunctionError), Payload: out.Payload}
	}
	return &Result{StatusCode: int(out.StatusCode), Payload: out.Payload}, nil
}
