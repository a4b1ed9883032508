package invoker

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
)

// PayloadHandler executes a task payload in process
type PayloadHandler interface {
	HandlePayload(ctx context.Context, payload []byte) ([]byte, error)
}

// Local runs tasks in the current process. Failures are reported the way
// Lambda reports unhandled function errors.
type Local struct {
	handler PayloadHandler
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewLocal(handler PayloadHandler, logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}
	return &Local{handler: handler, logger: logger}
}

func (l *Local) Invoke(ctx context.Context, task string, mode Mode, payload []byte) (*Result, error) {
	if mode == ModeEvent {
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			if _, err := l.handler.HandlePayload(context.WithoutCancel(ctx), payload); err != nil {
				l.logger.Error("event task failed", "task", task, "error", err)
			}
		}()
		return &Result{StatusCode: http.StatusAccepted}, nil
	}

	out, err := l.handler.HandlePayload(ctx, payload)
	if err != nil {
		body, _ := json.Marshal(map[string]string{"errorMessage": err.Error()})
		return nil, &FunctionError{Task: task, Kind: "Unhandled", Payload: body}
	}
	return &Result{StatusCode: http.StatusOK, Payload: out}, nil
}

// Wait blocks until every event invocation has finished
func (l *Local) Wait() {
	l.wg.Wait()
}
