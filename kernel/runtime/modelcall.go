package runtime

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/basnijholt/kernelchat/kernel/model"
)

var (
	modelRequestMaxRetries = 5
	modelRetryBaseDelay    = 250 * time.Millisecond
	modelRetryMaxDelay     = 4 * time.Second
)

func collectLast(ctx context.Context, seq iter.Seq2[*model.Response, error]) (*model.Response, error) {
	var last *model.Response
	for res, err := range seq {
		if err != nil {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if res != nil {
			last = res
		}
	}
	return last, nil
}

func (o *Orchestrator) generateWithRetry(ctx context.Context, req *model.Request) (*model.Response, error) {
	retries := 0
	for {
		resp, err := collectLast(ctx, o.llm.Generate(ctx, req))
		if err == nil {
			return resp, nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if retries >= modelRequestMaxRetries {
			return nil, fmt.Errorf("runtime: model request failed after %d retries: %w", modelRequestMaxRetries, err)
		}
		delay := retryDelayForAttempt(retries)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		retries++
	}
}

func retryDelayForAttempt(retry int) time.Duration {
	if retry < 0 {
		retry = 0
	}
	delay := modelRetryBaseDelay
	for i := 0; i < retry; i++ {
		delay *= 2
		if delay >= modelRetryMaxDelay {
			return modelRetryMaxDelay
		}
	}
	if delay > modelRetryMaxDelay {
		return modelRetryMaxDelay
	}
	return delay
}
