// Package session drives the lifecycle of a document chat: upload a document,
// ask questions about it, start over. It owns the in-memory session and
// conversation and mirrors every change into durable storage.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"DocChat/internal/conversation"
	"DocChat/internal/gateway"
	"DocChat/internal/store"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Guard is the auth side of the controller.
type Guard interface {
	Authenticated() bool
	// HandleUnauthorized clears the credential and all persisted state.
	HandleUnauthorized(ctx context.Context) bool
	Logout(ctx context.Context) bool
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Store   store.Store
	Gateway gateway.Gateway
	Guard   Guard
	Logger  *slog.Logger
	Meter   metric.Meter // optional
}

// pendingAsk identifies the question a running Ask task answers.
type pendingAsk struct {
	turnID    string
	sessionID string
	epoch     uint64
}

// Controller is the session state machine. All transitions run under one
// lock; network calls run outside it and their results are applied only if
// the session they targeted is still current.
type Controller struct {
	store   store.Store
	gateway gateway.Gateway
	guard   Guard
	logger  *slog.Logger

	turnsAppended    metric.Int64Counter
	resultsDiscarded metric.Int64Counter

	mu      sync.Mutex
	phase   Phase
	session Session
	log     *conversation.Log
	// epoch changes whenever the session is torn down, so results captured
	// before a reset can be told apart from results for a new session.
	epoch   uint64
	pending *pendingAsk
}

// New creates a controller and hydrates it from storage. Storage is not read
// again afterwards.
func New(ctx context.Context, deps Deps) (*Controller, error) {
	if deps.Store == nil || deps.Gateway == nil || deps.Guard == nil {
		return nil, fmt.Errorf("store, gateway and guard are required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if deps.Meter == nil {
		deps.Meter = noop.NewMeterProvider().Meter("session")
	}

	turns, err := deps.Meter.Int64Counter(
		"docchat.turns.appended",
		metric.WithDescription("Conversation turns appended, by role"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create turns counter: %w", err)
	}
	discarded, err := deps.Meter.Int64Counter(
		"docchat.results.discarded",
		metric.WithDescription("Network results dropped because their session was replaced"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create discard counter: %w", err)
	}

	c := &Controller{
		store:            deps.Store,
		gateway:          deps.Gateway,
		guard:            deps.Guard,
		logger:           deps.Logger,
		turnsAppended:    turns,
		resultsDiscarded: discarded,
		log:              conversation.NewLog(),
	}

	if err := c.hydrate(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// hydrate restores the session and conversation. Keys are written one at a
// time, so any combination of them may be present after a crash.
func (c *Controller) hydrate(ctx context.Context) error {
	sessionID, hasSession, err := c.store.Get(ctx, store.KeyCurrentSessionID)
	if err != nil {
		return fmt.Errorf("failed to load session id: %w", err)
	}

	if !hasSession || sessionID == "" || !c.guard.Authenticated() {
		// Leftovers from an interrupted reset or logout.
		if err := store.RemoveAll(ctx, c.store, store.SessionKeys...); err != nil {
			c.logger.Warn("failed to clear stale session keys", "error", err)
		}
		c.logger.Info("no session to restore")
		return nil
	}

	documentName, hasName, err := c.store.Get(ctx, store.KeyDocumentName)
	if err != nil {
		return fmt.Errorf("failed to load document name: %w", err)
	}
	if !hasName || documentName == "" {
		c.logger.Warn("session restored without document name", "session_id", sessionID)
		documentName = UnknownDocument
	}

	c.session = Session{ID: sessionID, DocumentName: documentName}
	c.phase = Active

	raw, hasLog, err := c.store.Get(ctx, store.KeyChatMessages)
	if err != nil {
		return fmt.Errorf("failed to load conversation: %w", err)
	}
	if hasLog {
		log, err := conversation.Decode(raw)
		if err != nil {
			c.logger.Warn("discarding unreadable conversation", "session_id", sessionID, "kind", KindMalformedState, "error", err)
		} else {
			c.log = log
		}
	}

	c.logger.Info("restored session", "session_id", sessionID, "document", documentName, "turns", c.log.Len())
	return nil
}

// State returns a snapshot safe to read while the controller keeps running.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{Phase: c.phase, Session: c.session, Log: c.log.Snapshot()}
}

// StartUpload uploads a document to open a new session.
func (c *Controller) StartUpload(ctx context.Context, name string, body io.Reader) (*Task, error) {
	c.mu.Lock()
	switch {
	case name == "" || body == nil:
		c.mu.Unlock()
		return nil, ErrNoFile
	case c.phase == Uploading:
		c.mu.Unlock()
		return nil, ErrUploadInFlight
	case c.session.Active():
		c.mu.Unlock()
		return nil, ErrDocumentPresent
	}

	c.phase = Uploading
	epoch := c.epoch
	c.mu.Unlock()

	c.logger.Info("uploading document", "filename", name)

	task := newTask()
	go func() {
		res, err := c.gateway.Upload(ctx, name, body)
		task.resolve(c.finishUpload(context.WithoutCancel(ctx), epoch, res, err))
	}()
	return task, nil
}

func (c *Controller) finishUpload(ctx context.Context, epoch uint64, res gateway.UploadResult, err error) Outcome {
	c.mu.Lock()

	if c.epoch != epoch || c.phase != Uploading {
		c.mu.Unlock()
		c.discard(ctx, "upload")
		return Outcome{Err: err, Discarded: true}
	}

	if err != nil {
		if errors.Is(err, gateway.ErrUnauthorized) {
			c.resetLocked(ctx)
			c.mu.Unlock()
			c.unauthorized(ctx, "upload")
			return Outcome{Err: err}
		}
		c.phase = NoSession
		c.mu.Unlock()
		c.logger.Error("upload failed", "error", err)
		return Outcome{Err: fmt.Errorf("upload failed: %w", err)}
	}

	c.session = Session{ID: res.SessionID, DocumentName: res.DocumentName}
	c.log = conversation.NewLog()
	c.appendLocked(ctx, conversation.UploadedTurn(res.DocumentName))
	c.phase = Active
	c.persistSessionLocked(ctx)
	c.mu.Unlock()

	c.logger.Info("session started", "session_id", res.SessionID, "document", res.DocumentName)
	return Outcome{}
}

// Ask appends the question to the conversation right away and asks the
// server for the answer.
func (c *Controller) Ask(ctx context.Context, question string) (*Task, error) {
	c.mu.Lock()
	switch {
	case strings.TrimSpace(question) == "":
		c.mu.Unlock()
		return nil, ErrEmptyQuestion
	case !c.session.Active():
		c.mu.Unlock()
		return nil, ErrNoSession
	case c.pending != nil:
		c.mu.Unlock()
		return nil, ErrAskInFlight
	}

	turn := conversation.UserTurn(question)
	c.appendLocked(ctx, turn)
	p := &pendingAsk{turnID: turn.ID, sessionID: c.session.ID, epoch: c.epoch}
	c.pending = p
	c.phase = Asking
	c.persistLogLocked(ctx)
	c.mu.Unlock()

	c.logger.Info("asking question", "session_id", p.sessionID, "turn_id", p.turnID)

	task := newTask()
	go func() {
		ans, err := c.gateway.Ask(ctx, question, p.sessionID)
		task.resolve(c.finishAsk(context.WithoutCancel(ctx), p, ans, err))
	}()
	return task, nil
}

func (c *Controller) finishAsk(ctx context.Context, p *pendingAsk, ans gateway.Answer, err error) Outcome {
	c.mu.Lock()

	if c.pending != p || c.epoch != p.epoch || c.session.ID != p.sessionID || !c.log.Contains(p.turnID) {
		c.mu.Unlock()
		c.discard(ctx, "ask")
		return Outcome{Err: err, Discarded: true}
	}

	c.pending = nil
	c.phase = Active

	if err != nil {
		if errors.Is(err, gateway.ErrUnauthorized) {
			c.resetLocked(ctx)
			c.mu.Unlock()
			c.unauthorized(ctx, "ask")
			return Outcome{Err: err}
		}
		// The question stays in the log so the user sees what failed.
		c.appendLocked(ctx, conversation.ErrorTurn("Failed to get response: "+gateway.Detail(err)))
		c.persistLogLocked(ctx)
		c.mu.Unlock()
		c.logger.Error("question failed", "session_id", p.sessionID, "error", err)
		return Outcome{Err: err}
	}

	c.appendLocked(ctx, conversation.AssistantTurn(ans.Text, ans.Evidence))
	c.persistLogLocked(ctx)
	c.mu.Unlock()

	c.logger.Info("answer received", "session_id", p.sessionID, "sources", len(ans.Evidence))
	return Outcome{}
}

// ResetSession forgets the current document and conversation. The login is
// kept. Results still in flight for the old session are discarded.
func (c *Controller) ResetSession(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked(ctx)
	c.logger.Info("session reset")
}

// Logout resets the session and drops the credential.
func (c *Controller) Logout(ctx context.Context) {
	c.mu.Lock()
	c.resetLocked(ctx)
	c.mu.Unlock()
	c.guard.Logout(ctx)
}

func (c *Controller) resetLocked(ctx context.Context) {
	c.epoch++
	c.phase = NoSession
	c.session = Session{}
	c.log = conversation.NewLog()
	c.pending = nil
	if err := store.RemoveAll(ctx, c.store, store.SessionKeys...); err != nil {
		c.logger.Error("failed to clear persisted session", "error", err)
	}
}

func (c *Controller) unauthorized(ctx context.Context, op string) {
	c.logger.Warn("request unauthorized, logging out", "operation", op)
	c.guard.HandleUnauthorized(ctx)
}

func (c *Controller) discard(ctx context.Context, op string) {
	c.logger.Info("discarding stale result", "operation", op)
	c.resultsDiscarded.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
}

func (c *Controller) appendLocked(ctx context.Context, turn conversation.Turn) {
	c.log.Append(turn)
	c.turnsAppended.Add(ctx, 1, metric.WithAttributes(attribute.String("role", string(turn.Role))))
}

// persistSessionLocked writes the whole session. The session id goes last so
// a crash part way leaves keys that hydration treats as no session.
func (c *Controller) persistSessionLocked(ctx context.Context) {
	if err := c.store.Set(ctx, store.KeyDocumentName, c.session.DocumentName); err != nil {
		c.logger.Error("failed to persist document name", "error", err)
	}
	c.persistLogLocked(ctx)
	if err := c.store.Set(ctx, store.KeyCurrentSessionID, c.session.ID); err != nil {
		c.logger.Error("failed to persist session id", "error", err)
	}
}

func (c *Controller) persistLogLocked(ctx context.Context) {
	data, err := conversation.Encode(c.log)
	if err != nil {
		c.logger.Error("failed to encode conversation", "error", err)
		return
	}
	if err := c.store.Set(ctx, store.KeyChatMessages, data); err != nil {
		c.logger.Error("failed to persist conversation", "error", err)
	}
}
