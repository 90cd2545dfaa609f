package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/basnijholt/kernelchat/kernel/host"
	"github.com/basnijholt/kernelchat/kernel/session"
)

// RunState is the latest lifecycle status snapshot for one thread.
type RunState struct {
	HasLifecycle bool
	Status       RunLifecycleStatus
	Phase        string
	Error        string
	ErrorCode    host.ErrorCode
	EventID      string
	UpdatedAt    time.Time
}

// RunState returns the latest lifecycle state persisted for a thread.
// An unknown thread yields a zero state, not an error.
func (o *Orchestrator) RunState(ctx context.Context, threadID string) (RunState, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if strings.TrimSpace(threadID) == "" {
		return RunState{}, fmt.Errorf("runtime: thread id is required")
	}
	sess := &session.Session{
		AppName: o.appName,
		UserID:  o.userID,
		ID:      threadID,
	}
	events, err := o.store.ListEvents(ctx, sess)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return RunState{}, nil
		}
		return RunState{}, err
	}
	for i := len(events) - 1; i >= 0; i-- {
		ev := events[i]
		info, ok := LifecycleFromEvent(ev)
		if !ok {
			continue
		}
		return RunState{
			HasLifecycle: true,
			Status:       info.Status,
			Phase:        info.Phase,
			Error:        info.Error,
			ErrorCode:    info.ErrorCode,
			EventID:      ev.ID,
			UpdatedAt:    ev.Time,
		}, nil
	}
	return RunState{}, nil
}
