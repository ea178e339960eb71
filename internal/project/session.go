// Package project ties the model conversation, the step list, the file tree
// and the sandbox reconciler together for one build session.
package project

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sitesmith/internal/filetree"
	"sitesmith/internal/journal"
	"sitesmith/internal/llm"
	"sitesmith/internal/logging"
	"sitesmith/internal/metrics"
	"sitesmith/internal/prompts"
	"sitesmith/internal/reconciler"
	"sitesmith/internal/state"
	"sitesmith/internal/steps"
)

const templateMaxTokens = 200

var (
	// ErrUnknownTemplate is returned when the model does not pick a known template.
	ErrUnknownTemplate = errors.New("model did not choose a known template")
	// ErrNotInitialized is returned by Send before Init succeeded.
	ErrNotInitialized = errors.New("session not initialized")
	// ErrAlreadyInitialized is returned by a second Init.
	ErrAlreadyInitialized = errors.New("session already initialized")
	// ErrEmptyPrompt is returned for blank prompts and messages.
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrNoSandbox is returned by Sync when the session has no reconciler.
	ErrNoSandbox = errors.New("session has no sandbox")
)

// Options configures a Session.
type Options struct {
	ID           string
	Model        string
	Temperature  float64
	MaxTokens    int
	Instructions string
	Journal      journal.Recorder
	Logger       *logging.StructuredLogger
}

// Session is one project being built. Init and Send are serialised; accessors
// are safe to call concurrently with them.
type Session struct {
	id     string
	client llm.Client
	rec    *reconciler.Reconciler
	opts   Options
	log    *logging.StructuredLogger

	exchangeMu sync.Mutex

	mu         sync.RWMutex
	conv       *state.Conversation
	template   string
	steps      []steps.Step
	tree       *filetree.Tree
	rejections []filetree.Rejection
	prose      string
	started    bool
}

// FoldResult summarises one Fold.
type FoldResult struct {
	Applied  int
	Rejected []filetree.Rejection
	Changed  bool
}

// NewID returns a fresh session id.
func NewID() string {
	return uuid.NewString()
}

// New returns a session. rec may be nil for offline use; Sync then fails.
func New(client llm.Client, rec *reconciler.Reconciler, opts Options) *Session {
	if opts.ID == "" {
		opts.ID = NewID()
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = llm.DefaultMaxTokens
	}
	if opts.Journal == nil {
		opts.Journal = journal.Discard
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Session{
		id:     opts.ID,
		client: client,
		rec:    rec,
		opts:   opts,
		log:    logger.WithComponent("project").WithSession(opts.ID),
		conv:   state.NewConversation(opts.ID),
		tree:   filetree.New(),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Template returns the chosen template name, empty before Init.
func (s *Session) Template() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.template
}

// Init picks a template for prompt, seeds the steps with its base artifact,
// asks the model for the project and folds everything into the tree.
func (s *Session) Init(ctx context.Context, prompt string) (FoldResult, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return FoldResult{}, ErrEmptyPrompt
	}
	s.exchangeMu.Lock()
	defer s.exchangeMu.Unlock()

	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()
	if started {
		return FoldResult{}, ErrAlreadyInitialized
	}
	s.record(ctx, journal.KindSession, prompt)

	tpl, err := s.chooseTemplate(ctx, prompt)
	if err != nil {
		return FoldResult{}, err
	}
	base := s.parse(ctx, "template", tpl.UIPrompts[0])

	var msgs []state.Message
	for _, p := range tpl.Prompts {
		msgs = append(msgs, state.User(p))
	}
	msgs = append(msgs, state.User(prompt))

	reply, err := s.chat(ctx, "chat", msgs)
	if err != nil {
		return FoldResult{}, err
	}
	generated := s.parse(ctx, "chat", reply)

	s.mu.Lock()
	s.started = true
	s.template = tpl.Name
	s.conv.Append(msgs...)
	s.conv.Append(state.Assistant(reply))
	s.appendSteps(base)
	s.appendSteps(generated)
	s.prose = strings.TrimSpace(steps.StripActions(reply))
	s.mu.Unlock()

	s.record(ctx, journal.KindMessage, "template="+tpl.Name)
	return s.Fold(), nil
}

// Send continues the conversation with message and folds the reply's steps.
// A failed exchange leaves the conversation untouched.
func (s *Session) Send(ctx context.Context, message string) (FoldResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return FoldResult{}, ErrEmptyPrompt
	}
	s.exchangeMu.Lock()
	defer s.exchangeMu.Unlock()

	s.mu.RLock()
	started := s.started
	history := s.conv.Messages()
	s.mu.RUnlock()
	if !started {
		return FoldResult{}, ErrNotInitialized
	}

	msg := state.User(message)
	reply, err := s.chat(ctx, "chat", append(history, msg))
	if err != nil {
		return FoldResult{}, err
	}
	generated := s.parse(ctx, "chat", reply)

	s.mu.Lock()
	s.conv.Append(msg, state.Assistant(reply))
	s.appendSteps(generated)
	s.prose = strings.TrimSpace(steps.StripActions(reply))
	s.mu.Unlock()

	s.record(ctx, journal.KindMessage, message)
	return s.Fold(), nil
}

// Fold applies every pending step to the tree. Applied and rejected steps
// are both marked completed; rejections are kept for inspection.
func (s *Session) Fold() FoldResult {
	s.mu.Lock()
	res := s.tree.ApplySteps(s.steps)
	for _, i := range res.Applied {
		s.steps[i].Status = steps.StatusCompleted
	}
	reasons := make([]string, 0, len(res.Rejected))
	for _, rj := range res.Rejected {
		s.steps[rj.Index].Status = steps.StatusCompleted
		s.rejections = append(s.rejections, rj)
		reasons = append(reasons, rejectReason(rj.Err))
	}
	nodes := s.tree.Len()
	s.mu.Unlock()

	metrics.RecordFold(len(res.Applied), reasons, nodes)
	ctx := context.Background()
	s.record(ctx, journal.KindFold, fmt.Sprintf("applied=%d rejected=%d changed=%t", len(res.Applied), len(res.Rejected), res.Changed))
	for _, rj := range res.Rejected {
		s.log.Warn("step rejected", map[string]interface{}{"step": rj.Step.ID, "path": rj.Step.Path, "error": rj.Err.Error()})
		s.record(ctx, journal.KindRejection, fmt.Sprintf("step %d %s: %v", rj.Step.ID, rj.Step.Path, rj.Err))
	}
	return FoldResult{Applied: len(res.Applied), Rejected: res.Rejected, Changed: res.Changed}
}

// Sync hands a snapshot of the tree to the reconciler.
func (s *Session) Sync(ctx context.Context) error {
	if s.rec == nil {
		return ErrNoSandbox
	}
	start := time.Now()
	err := s.rec.Reconcile(ctx, s.Tree())
	if !errors.Is(err, reconciler.ErrSuperseded) {
		metrics.RecordReconcile(string(s.rec.Status().State), time.Since(start))
	}
	return err
}

// Reconciler returns the sandbox reconciler, nil for offline sessions.
func (s *Session) Reconciler() *reconciler.Reconciler { return s.rec }

// Steps returns a copy of every step seen so far.
func (s *Session) Steps() []steps.Step {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]steps.Step, len(s.steps))
	copy(out, s.steps)
	return out
}

// Tree returns a deep copy of the current tree.
func (s *Session) Tree() *filetree.Tree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Clone()
}

// Rejections returns every step the tree refused.
func (s *Session) Rejections() []filetree.Rejection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]filetree.Rejection, len(s.rejections))
	copy(out, s.rejections)
	return out
}

// Prose returns the commentary of the last model reply with actions removed.
func (s *Session) Prose() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prose
}

// Messages returns the conversation sent to the model, system prompt excluded.
func (s *Session) Messages() []state.Message {
	return s.conv.Messages()
}

func (s *Session) chooseTemplate(ctx context.Context, prompt string) (prompts.Template, error) {
	answer, err := s.complete(ctx, "template", llm.ChatRequest{
		Model: s.opts.Model,
		Messages: []state.Message{
			state.User(prompt),
			{Role: state.RoleSystem, Content: prompts.TemplateQuestion()},
		},
		MaxTokens: templateMaxTokens,
	})
	if err != nil {
		return prompts.Template{}, err
	}
	tpl, ok := prompts.ForName(answer)
	if !ok {
		s.log.Warn("unknown template answer", map[string]interface{}{"answer": answer})
		return prompts.Template{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, answer)
	}
	s.log.Info("template chosen", map[string]interface{}{"template": tpl.Name})
	return tpl, nil
}

func (s *Session) chat(ctx context.Context, purpose string, msgs []state.Message) (string, error) {
	req := llm.ChatRequest{
		Model:       s.opts.Model,
		Messages:    make([]state.Message, 0, len(msgs)+1),
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
	}
	req.Messages = append(req.Messages, state.Message{Role: state.RoleSystem, Content: prompts.Combine(s.opts.Instructions)})
	req.Messages = append(req.Messages, msgs...)
	return s.complete(ctx, purpose, req)
}

func (s *Session) complete(ctx context.Context, purpose string, req llm.ChatRequest) (string, error) {
	start := time.Now()
	resp, err := s.client.Chat(ctx, req)
	metrics.RecordLLMRequest(purpose, time.Since(start), err == nil)
	if err != nil {
		s.log.Error("model request failed", map[string]interface{}{"purpose": purpose, "error": err.Error()})
		return "", fmt.Errorf("%s request: %w", purpose, err)
	}
	if resp.Usage != nil {
		logging.DevLog("project: %s used %d tokens", purpose, resp.Usage.TotalTokens)
	}
	return resp.Text(), nil
}

// parse extracts pending steps from text and records what was found.
func (s *Session) parse(ctx context.Context, origin, text string) []steps.Step {
	list, report := steps.ParseReport(text)
	list = steps.Pending(list)

	kinds := make([]string, len(list))
	for i, st := range list {
		kinds[i] = string(st.Kind)
	}
	metrics.RecordParsed(kinds, len(report.Dropped))
	for _, d := range report.Dropped {
		s.log.Warn("dropped fragment", map[string]interface{}{"origin": origin, "offset": d.Offset, "tag": d.Tag, "reason": d.Reason})
	}
	s.record(ctx, journal.KindParse, fmt.Sprintf("%s steps=%d dropped=%d", origin, len(list), len(report.Dropped)))
	return list
}

// appendSteps numbers list after the existing steps. Callers hold mu.
func (s *Session) appendSteps(list []steps.Step) {
	steps.Number(list, len(s.steps)+1)
	s.steps = append(s.steps, list...)
}

func (s *Session) record(ctx context.Context, kind, detail string) {
	if err := s.opts.Journal.Record(ctx, journal.Event{Session: s.id, Kind: kind, Detail: detail}); err != nil {
		s.log.Warn("journal write failed", map[string]interface{}{"kind": kind, "error": err.Error()})
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, filetree.ErrConflict):
		return "conflict"
	case errors.Is(err, filetree.ErrInvalidPath):
		return "invalid_path"
	default:
		return "other"
	}
}
