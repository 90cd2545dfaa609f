// Package runtime drives one conversation turn at a time: model inference,
// tool routing, approval suspension and resumption. Suspension is plain
// data in the session store, never in-flight goroutine state, so a
// suspended thread survives process restarts with a durable store.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/basnijholt/kernelchat/kernel/host"
	"github.com/basnijholt/kernelchat/kernel/model"
	"github.com/basnijholt/kernelchat/kernel/policy"
	"github.com/basnijholt/kernelchat/kernel/session"
	"github.com/basnijholt/kernelchat/kernel/tool"
	"github.com/basnijholt/kernelchat/kernel/toolcap"
)

// turnState names one orchestrator state. States are internal; callers
// observe them only through lifecycle events and turn results.
type turnState string

const (
	stateAgent         turnState = "AGENT"
	stateRoute         turnState = "ROUTE"
	stateExecSafe      turnState = "EXEC_SAFE"
	stateAwaitApproval turnState = "AWAIT_APPROVAL"
	stateExecGated     turnState = "EXEC_GATED"
	stateDone          turnState = "DONE"
)

const defaultMaxToolLoops = 8

// Decision is a human approval verdict for one suspended tool call.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionDenied   Decision = "denied"
)

// Interrupt describes a turn suspended for approval.
type Interrupt struct {
	ThreadID  string
	Message   string
	ToolName  string
	Arguments map[string]any
}

// TurnResultKind tags the two turn outcomes.
type TurnResultKind string

const (
	TurnResultFinal       TurnResultKind = "final"
	TurnResultInterrupted TurnResultKind = "interrupted"
)

// TurnResult is the outcome of one StartTurn or Resume call. A final
// result carries the assistant text or a coded orchestration error; an
// interrupted result carries the approval request.
type TurnResult struct {
	Kind      TurnResultKind
	Text      string
	Success   bool
	Err       error
	Interrupt *Interrupt
}

// Config configures the Orchestrator.
type Config struct {
	Store    session.Store
	Registry *tool.Registry
	Model    model.LLM
	Policies []policy.Hook

	// Logger receives one event per state transition. Nil disables logging.
	Logger *zerolog.Logger

	AppName      string
	UserID       string
	SystemPrompt string

	// MaxToolLoops caps the model-tool cycle within one turn.
	MaxToolLoops int
	// InferenceTimeout bounds each model call; zero means no bound.
	InferenceTimeout time.Duration
	// ExecutionTimeout bounds each tool run; zero means no bound.
	ExecutionTimeout time.Duration

	ToolTruncation tool.TruncationPolicy
}

// Orchestrator is the per-process turn driver. Safe for concurrent use;
// turns on the same thread are serialized by a run lease.
type Orchestrator struct {
	store        session.Store
	registry     *tool.Registry
	llm          model.LLM
	policies     []policy.Hook
	logger       zerolog.Logger
	appName      string
	userID       string
	systemPrompt string

	maxToolLoops     int
	inferenceTimeout time.Duration
	executionTimeout time.Duration
	truncation       tool.TruncationPolicy

	runMu      sync.Mutex
	activeRuns map[string]struct{}
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("runtime: store is nil")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("runtime: tool registry is nil")
	}
	if err := cfg.Registry.Validate(); err != nil {
		return nil, err
	}
	if cfg.Model == nil {
		return nil, fmt.Errorf("runtime: model is nil")
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	appName := strings.TrimSpace(cfg.AppName)
	if appName == "" {
		appName = "kernelchat"
	}
	userID := strings.TrimSpace(cfg.UserID)
	if userID == "" {
		userID = "local"
	}
	maxLoops := cfg.MaxToolLoops
	if maxLoops <= 0 {
		maxLoops = defaultMaxToolLoops
	}
	truncation := cfg.ToolTruncation
	if truncation.MaxTokens <= 0 && truncation.MaxBytes <= 0 {
		truncation = tool.DefaultTruncationPolicy()
	}
	return &Orchestrator{
		store:            cfg.Store,
		registry:         cfg.Registry,
		llm:              cfg.Model,
		policies:         append([]policy.Hook(nil), cfg.Policies...),
		logger:           logger,
		appName:          appName,
		userID:           userID,
		systemPrompt:     cfg.SystemPrompt,
		maxToolLoops:     maxLoops,
		inferenceTimeout: cfg.InferenceTimeout,
		executionTimeout: cfg.ExecutionTimeout,
		truncation:       truncation,
		activeRuns:       map[string]struct{}{},
	}, nil
}

// turn is the in-flight state for one StartTurn or Resume call.
type turn struct {
	sess    *session.Session
	phase   string
	history []model.Message
	queue   []model.ToolCall
	// resolvedAny distinguishes a drained tool queue (loop back to the
	// model) from an assistant message that never requested tools (done).
	resolvedAny   bool
	loops         int
	lastAssistant model.Message
	sawAssistant  bool
	gated         *model.ToolCall
}

// StartTurn appends user input to the thread and drives the turn until
// it completes or suspends for approval. A stale pending approval on the
// thread is denied first; new input supersedes the suspended call.
//
// Caller-correctable conditions (busy thread, timeouts, loop cap) come
// back as a failed TurnResult with a coded Err. The error return is
// reserved for store and policy-hook faults.
func (o *Orchestrator) StartTurn(ctx context.Context, threadID, text string) (*TurnResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return nil, fmt.Errorf("runtime: thread id is required")
	}
	leaseKey := runLeaseKey(o.appName, o.userID, threadID)
	if !o.acquireRunLease(leaseKey) {
		return failedResult(&ThreadBusyError{AppName: o.appName, UserID: o.userID, ThreadID: threadID}), nil
	}
	defer o.releaseRunLease(leaseKey)

	sess, err := o.store.GetOrCreate(ctx, &session.Session{AppName: o.appName, UserID: o.userID, ID: threadID})
	if err != nil {
		return nil, err
	}
	o.logger.Debug().Str("thread", threadID).Msg("turn started")
	if err := o.appendLifecycle(ctx, sess, RunLifecycleStatusRunning, "start_turn", nil); err != nil {
		return nil, err
	}

	pending, err := o.store.PendingCall(ctx, sess)
	if err != nil {
		return nil, err
	}
	if pending != nil {
		o.logger.Debug().Str("thread", threadID).Str("tool", pending.Call.Name).Msg("denying stale pending approval")
		if err := o.appendToolEvent(ctx, sess, pending.Call, deniedResult("superseded by new user input")); err != nil {
			return nil, err
		}
		if err := o.store.ClearPendingCall(ctx, sess); err != nil {
			return nil, err
		}
	}

	existing, err := o.store.ListEvents(ctx, sess)
	if err != nil {
		return nil, err
	}
	for _, recoveryEvent := range buildRecoveryEvents(existing) {
		recoveryEvent.SessionID = sess.ID
		if err := o.store.AppendEvent(ctx, sess, recoveryEvent); err != nil {
			return nil, err
		}
	}

	userEvent := &session.Event{
		ID:        eventID(),
		SessionID: sess.ID,
		Time:      time.Now(),
		Message:   model.Message{Role: model.RoleUser, Text: text},
	}
	if err := o.store.AppendEvent(ctx, sess, userEvent); err != nil {
		return nil, err
	}

	t := &turn{sess: sess, phase: "start_turn"}
	if t.history, err = o.historyMessages(ctx, sess); err != nil {
		return nil, err
	}
	return o.runLoop(ctx, t, stateAgent)
}

// Resume applies a human decision to the thread's pending approval and
// continues the suspended turn. A denial becomes a tool result the model
// reacts to; an approval executes the gated call with the same mechanics
// as a safe tool. With nothing pending the result is a failed turn with
// a NoPendingApproval code, and the transcript is untouched.
func (o *Orchestrator) Resume(ctx context.Context, threadID string, decision Decision) (*TurnResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	threadID = strings.TrimSpace(threadID)
	if threadID == "" {
		return nil, fmt.Errorf("runtime: thread id is required")
	}
	if decision != DecisionApproved && decision != DecisionDenied {
		return nil, fmt.Errorf("runtime: decision must be %q or %q, got %q", DecisionApproved, DecisionDenied, decision)
	}
	leaseKey := runLeaseKey(o.appName, o.userID, threadID)
	if !o.acquireRunLease(leaseKey) {
		return failedResult(&ThreadBusyError{AppName: o.appName, UserID: o.userID, ThreadID: threadID}), nil
	}
	defer o.releaseRunLease(leaseKey)

	sess, err := o.store.GetOrCreate(ctx, &session.Session{AppName: o.appName, UserID: o.userID, ID: threadID})
	if err != nil {
		return nil, err
	}
	pending, err := o.store.PendingCall(ctx, sess)
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return failedResult(host.NewCodedError(host.ErrorCodeNoPendingApproval, "thread %q has no pending approval", threadID)), nil
	}
	o.logger.Debug().Str("thread", threadID).Str("tool", pending.Call.Name).Str("decision", string(decision)).Msg("resuming turn")
	if err := o.appendLifecycle(ctx, sess, RunLifecycleStatusRunning, "resume", nil); err != nil {
		return nil, err
	}
	if err := o.store.ClearPendingCall(ctx, sess); err != nil {
		return nil, err
	}

	t := &turn{sess: sess, phase: "resume"}
	initial := stateAgent
	if decision == DecisionDenied {
		if err := o.appendToolEvent(ctx, sess, pending.Call, deniedResult("denied by user")); err != nil {
			return nil, err
		}
	} else {
		call := pending.Call
		t.gated = &call
		initial = stateExecGated
	}

	events, err := o.store.ListEvents(ctx, sess)
	if err != nil {
		return nil, err
	}
	remaining := outstandingCalls(events)
	if t.gated != nil {
		// The gated call itself is still unanswered; keep only what is
		// queued behind it.
		filtered := remaining[:0]
		for _, call := range remaining {
			if call.ID == t.gated.ID {
				continue
			}
			filtered = append(filtered, call)
		}
		remaining = filtered
	}
	t.queue = remaining
	if initial == stateAgent && len(t.queue) > 0 {
		initial = stateRoute
	}
	if t.history, err = o.historyMessages(ctx, sess); err != nil {
		return nil, err
	}
	return o.runLoop(ctx, t, initial)
}

// runLoop drives the state machine until the turn finishes or suspends.
func (o *Orchestrator) runLoop(ctx context.Context, t *turn, state turnState) (*TurnResult, error) {
	for {
		o.logger.Debug().Str("thread", t.sess.ID).Str("state", string(state)).Msg("state transition")
		switch state {
		case stateAgent:
			t.loops++
			if t.loops > o.maxToolLoops {
				err := host.NewCodedError(host.ErrorCodeToolLoopLimitExceeded, "turn exceeded %d model-tool cycles", o.maxToolLoops)
				return o.failTurn(ctx, t, err)
			}
			msg, err := o.callModel(ctx, t)
			if err != nil {
				return o.failTurn(ctx, t, err)
			}
			if err := o.appendAssistantEvent(ctx, t, msg); err != nil {
				return nil, err
			}
			t.lastAssistant = msg
			t.sawAssistant = true
			t.resolvedAny = false
			t.queue = append([]model.ToolCall(nil), msg.ToolCalls...)
			state = stateRoute

		case stateRoute:
			if len(t.queue) == 0 {
				if t.resolvedAny || !t.sawAssistant {
					state = stateAgent
					continue
				}
				state = stateDone
				continue
			}
			call := t.queue[0]
			t.queue = t.queue[1:]
			next, res, err := o.routeCall(ctx, t, call)
			if err != nil {
				return nil, err
			}
			if res != nil {
				return res, nil
			}
			state = next

		case stateExecGated:
			call := *t.gated
			t.gated = nil
			if err := o.resolveCall(ctx, t, call, policy.Decision{
				Effect: policy.DecisionEffectAllow,
				Reason: "approved by user",
			}); err != nil {
				return nil, err
			}
			state = stateRoute

		case stateDone:
			if err := o.appendLifecycle(ctx, t.sess, RunLifecycleStatusCompleted, t.phase, nil); err != nil {
				return nil, err
			}
			return &TurnResult{Kind: TurnResultFinal, Text: t.lastAssistant.Text, Success: true}, nil

		default:
			return nil, fmt.Errorf("runtime: unexpected state %q", state)
		}
	}
}

// routeCall classifies one tool call. It returns the next state, or a
// turn result when the call suspends the turn.
func (o *Orchestrator) routeCall(ctx context.Context, t *turn, call model.ToolCall) (turnState, *TurnResult, error) {
	entry, ok := o.registry.Get(call.Name)
	if !ok {
		err := host.NewCodedError(host.ErrorCodeUnknownTool, "unknown tool %q", call.Name)
		if appendErr := o.appendToolResult(ctx, t, call, errorResult(err)); appendErr != nil {
			return stateRoute, nil, appendErr
		}
		return stateRoute, nil, nil
	}
	if err := tool.ValidateArgs(entry.Tool.Declaration(), call.Args); err != nil {
		if appendErr := o.appendToolResult(ctx, t, call, errorResult(err)); appendErr != nil {
			return stateRoute, nil, appendErr
		}
		return stateRoute, nil, nil
	}

	beforeIn, err := policy.ApplyBeforeTool(ctx, o.policies, policy.ToolInput{
		Call:       call,
		Capability: entry.Capability,
	})
	if err != nil {
		res, failErr := o.failTurn(ctx, t, err)
		return stateRoute, res, failErr
	}
	call = beforeIn.Call
	decision := policy.NormalizeDecision(beforeIn.Decision)

	if decision.Effect == policy.DecisionEffectDeny {
		reason := decision.Reason
		if reason == "" {
			reason = "denied by policy"
		}
		if appendErr := o.appendToolResult(ctx, t, call, deniedResult(reason)); appendErr != nil {
			return stateRoute, nil, appendErr
		}
		return stateRoute, nil, nil
	}

	tier := entry.Tier
	if decision.Effect == policy.DecisionEffectRequireApproval {
		tier = toolcap.RiskTierRequiresApproval
	}
	if tier == toolcap.RiskTierRequiresApproval {
		res, suspendErr := o.suspend(ctx, t, call, decision.Reason)
		return stateAwaitApproval, res, suspendErr
	}

	if err := o.resolveCall(ctx, t, call, decision); err != nil {
		return stateExecSafe, nil, err
	}
	return stateRoute, nil, nil
}

// suspend checkpoints the call and hands the turn back to the caller.
func (o *Orchestrator) suspend(ctx context.Context, t *turn, call model.ToolCall, reason string) (*TurnResult, error) {
	if reason == "" {
		reason = fmt.Sprintf("tool %q requires approval before it runs", call.Name)
	}
	checkpoint := &session.PendingCall{
		Call:        call,
		Reason:      reason,
		RequestedAt: time.Now(),
	}
	if err := o.store.SetPendingCall(ctx, t.sess, checkpoint); err != nil {
		return nil, err
	}
	if err := o.appendLifecycle(ctx, t.sess, RunLifecycleStatusWaitingApproval, t.phase, nil); err != nil {
		return nil, err
	}
	o.logger.Info().Str("thread", t.sess.ID).Str("tool", call.Name).Msg("turn suspended for approval")
	return &TurnResult{
		Kind: TurnResultInterrupted,
		Interrupt: &Interrupt{
			ThreadID:  t.sess.ID,
			Message:   reason,
			ToolName:  call.Name,
			Arguments: cloneMap(call.Args),
		},
	}, nil
}

// resolveCall runs one tool and appends its result, never failing the
// turn on tool errors. Those become structured results the model reacts
// to on the next cycle.
func (o *Orchestrator) resolveCall(ctx context.Context, t *turn, call model.ToolCall, decision policy.Decision) error {
	entry, ok := o.registry.Get(call.Name)
	if !ok {
		return o.appendToolResult(ctx, t, call, errorResult(host.NewCodedError(host.ErrorCodeUnknownTool, "unknown tool %q", call.Name)))
	}

	toolCtx := policy.WithToolDecision(ctx, decision)
	cancel := context.CancelFunc(func() {})
	if o.executionTimeout > 0 {
		toolCtx, cancel = context.WithTimeout(toolCtx, o.executionTimeout)
	}
	result, runErr := entry.Tool.Run(toolCtx, call.Args)
	cancel()
	if runErr != nil {
		if errors.Is(runErr, context.DeadlineExceeded) && host.ErrorCodeOf(runErr) == "" {
			runErr = host.WrapCodedError(host.ErrorCodeExecutionTimeout, runErr, "tool %q timed out", call.Name)
		}
		result = map[string]any{"error": runErr.Error()}
	}

	afterOut, err := policy.ApplyAfterTool(ctx, o.policies, policy.ToolOutput{
		Call:       call,
		Capability: entry.Capability,
		Decision:   decision,
		Result:     result,
		Err:        runErr,
	})
	if err != nil {
		return err
	}
	truncated, info := tool.TruncateMap(afterOut.Result, o.truncation)
	final := tool.AddTruncationMeta(truncated, info)
	final = annotateToolResultMetadata(final, afterOut.Err)
	o.logger.Debug().Str("thread", t.sess.ID).Str("tool", call.Name).Bool("errored", afterOut.Err != nil).Msg("tool resolved")
	return o.appendToolResult(ctx, t, afterOut.Call, final)
}

func (o *Orchestrator) callModel(ctx context.Context, t *turn) (model.Message, error) {
	in, err := policy.ApplyBeforeModel(ctx, o.policies, policy.ModelInput{
		Messages: t.history,
		Tools:    o.registry.Declarations(),
	})
	if err != nil {
		return model.Message{}, err
	}
	req := &model.Request{Messages: in.Messages, Tools: in.Tools}

	modelCtx := ctx
	cancel := context.CancelFunc(func() {})
	if o.inferenceTimeout > 0 {
		modelCtx, cancel = context.WithTimeout(ctx, o.inferenceTimeout)
	}
	resp, err := o.generateWithRetry(modelCtx, req)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && host.ErrorCodeOf(err) == "" {
			err = host.WrapCodedError(host.ErrorCodeInferenceTimeout, err, "model inference timed out")
		}
		return model.Message{}, err
	}
	if resp == nil {
		return model.Message{}, fmt.Errorf("runtime: empty model response")
	}
	out, err := policy.ApplyBeforeOutput(ctx, o.policies, policy.Output{Message: resp.Message})
	if err != nil {
		return model.Message{}, err
	}
	msg := out.Message
	if msg.Role == "" {
		msg.Role = model.RoleAssistant
	}
	return msg, nil
}

// failTurn ends the turn with an orchestration-level error. Nothing is
// appended to the transcript beyond the lifecycle marker; the failure
// belongs to the orchestration layer, not to a tool the model invoked.
func (o *Orchestrator) failTurn(ctx context.Context, t *turn, cause error) (*TurnResult, error) {
	status := lifecycleStatusForError(cause)
	if err := o.appendLifecycle(ctx, t.sess, status, t.phase, cause); err != nil {
		return nil, err
	}
	o.logger.Warn().Str("thread", t.sess.ID).Err(cause).Msg("turn failed")
	return failedResult(cause), nil
}

func (o *Orchestrator) appendAssistantEvent(ctx context.Context, t *turn, msg model.Message) error {
	ev := &session.Event{
		ID:        eventID(),
		SessionID: t.sess.ID,
		Time:      time.Now(),
		Message:   msg,
	}
	if err := o.store.AppendEvent(ctx, t.sess, ev); err != nil {
		return err
	}
	t.history = append(t.history, msg)
	return nil
}

// appendToolResult persists a tool result and mirrors a model-facing copy
// into the in-flight history.
func (o *Orchestrator) appendToolResult(ctx context.Context, t *turn, call model.ToolCall, result map[string]any) error {
	if err := o.appendToolEvent(ctx, t.sess, call, result); err != nil {
		return err
	}
	t.history = append(t.history, model.Message{
		Role: model.RoleTool,
		ToolResponse: &model.ToolResponse{
			ID:     call.ID,
			Name:   call.Name,
			Result: sanitizeToolResultForModel(result),
		},
	})
	t.resolvedAny = true
	return nil
}

func (o *Orchestrator) appendToolEvent(ctx context.Context, sess *session.Session, call model.ToolCall, result map[string]any) error {
	ev := &session.Event{
		ID:        eventID(),
		SessionID: sess.ID,
		Time:      time.Now(),
		Message: model.Message{
			Role: model.RoleTool,
			ToolResponse: &model.ToolResponse{
				ID:     call.ID,
				Name:   call.Name,
				Result: result,
			},
		},
	}
	return o.store.AppendEvent(ctx, sess, ev)
}

func (o *Orchestrator) appendLifecycle(ctx context.Context, sess *session.Session, status RunLifecycleStatus, phase string, cause error) error {
	return o.store.AppendEvent(ctx, sess, lifecycleEvent(sess, status, phase, cause))
}

func (o *Orchestrator) historyMessages(ctx context.Context, sess *session.Session) ([]model.Message, error) {
	events, err := o.store.ListEvents(ctx, sess)
	if err != nil {
		return nil, err
	}
	return toMessages(transcriptEvents(events), o.systemPrompt), nil
}

func errorResult(err error) map[string]any {
	result := map[string]any{"error": err.Error()}
	return annotateToolResultMetadata(result, err)
}

func deniedResult(reason string) map[string]any {
	err := host.NewCodedError(host.ErrorCodeDenied, "execution denied: %s", reason)
	return errorResult(err)
}

func failedResult(err error) *TurnResult {
	return &TurnResult{Kind: TurnResultFinal, Success: false, Err: err}
}

func runLeaseKey(appName, userID, threadID string) string {
	return strings.TrimSpace(appName) + "\x00" + strings.TrimSpace(userID) + "\x00" + strings.TrimSpace(threadID)
}

func (o *Orchestrator) acquireRunLease(key string) bool {
	if o == nil || strings.TrimSpace(key) == "" {
		return false
	}
	o.runMu.Lock()
	defer o.runMu.Unlock()
	if o.activeRuns == nil {
		o.activeRuns = map[string]struct{}{}
	}
	if _, exists := o.activeRuns[key]; exists {
		return false
	}
	o.activeRuns[key] = struct{}{}
	return true
}

func (o *Orchestrator) releaseRunLease(key string) {
	if o == nil || strings.TrimSpace(key) == "" {
		return
	}
	o.runMu.Lock()
	defer o.runMu.Unlock()
	delete(o.activeRuns, key)
}

func eventID() string {
	return fmt.Sprintf("ev_%d", time.Now().UnixNano())
}
