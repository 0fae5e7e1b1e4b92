// Package chatbot is the terminal front-end of the document chat client.
package chatbot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"DocChat/internal/auth"
	"DocChat/internal/config"
	"DocChat/internal/conversation"
	"DocChat/internal/gateway"
	"DocChat/internal/session"
	"DocChat/internal/store"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// healthWait bounds the startup health check
const healthWait = 30 * time.Second

// ExpiredMessage is shown when the server rejects the stored credential
const ExpiredMessage = "Session expired. Please /login again."

var (
	errLoginRequired = fmt.Errorf("%w: please /login first", session.ErrValidation)
	errAlreadyIn     = fmt.Errorf("%w: already logged in, /logout first", session.ErrValidation)
	errNotPDF        = fmt.Errorf("%w: only PDF files are supported", session.ErrValidation)
)

// Options carries the ambient collaborators of a ChatBot
type Options struct {
	Logger  *slog.Logger
	Tracer  trace.Tracer // optional
	Meter   metric.Meter // optional
	In      io.Reader
	Out     io.Writer
	NoColor bool
}

// ChatBot represents the main application
type ChatBot struct {
	apiURL     string
	logger     *slog.Logger
	guard      *auth.Guard
	controller *session.Controller
	renderer   *Renderer
	in         io.Reader
	closers    []func() error

	// loggingOut is set while the user logs out, so the logout callback
	// can tell an explicit logout from an expired credential.
	loggingOut atomic.Bool
}

// NewChatBot wires storage, auth, the HTTP gateway and the session controller
func NewChatBot(ctx context.Context, cfg config.Config, opts Options) (_ *ChatBot, err error) {
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	var (
		st      store.Store
		closers []func() error
	)
	if cfg.Ephemeral {
		st = store.NewMemoryStore(nil)
		opts.Logger.Info("using in-memory state")
	} else {
		db, openErr := store.Open(cfg.DBPath)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open store: %w", openErr)
		}
		st = db
		closers = append(closers, db.Close)
		defer func() {
			if err != nil {
				db.Close()
			}
		}()
	}

	// The gateway reads its token from the guard and the guard logs in
	// through the gateway, so the authenticator is attached afterwards.
	guard, err := auth.NewGuard(ctx, st, nil, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	gw, err := gateway.New(gateway.Config{
		BaseURL: cfg.APIURL,
		Timeout: cfg.Timeout,
		Tracer:  opts.Tracer,
		Meter:   opts.Meter,
	}, guard, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}
	guard.SetAuthenticator(gw)

	if !cfg.SkipHealth {
		if err := gw.WaitHealthy(ctx, healthWait); err != nil {
			return nil, err
		}
	}

	cb, err := newChatBot(ctx, st, guard, gw, opts)
	if err != nil {
		return nil, err
	}
	cb.apiURL = cfg.APIURL
	cb.closers = closers
	return cb, nil
}

func newChatBot(ctx context.Context, st store.Store, guard *auth.Guard, gw gateway.Gateway, opts Options) (*ChatBot, error) {
	controller, err := session.New(ctx, session.Deps{
		Store:   st,
		Gateway: gw,
		Guard:   guard,
		Logger:  opts.Logger,
		Meter:   opts.Meter,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}

	in := opts.In
	if in == nil {
		in = os.Stdin
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	cb := &ChatBot{
		logger:     opts.Logger,
		guard:      guard,
		controller: controller,
		renderer:   NewRenderer(out, opts.NoColor),
		in:         in,
	}
	guard.OnLogout(cb.onLogout)
	return cb, nil
}

func (cb *ChatBot) onLogout() {
	if cb.loggingOut.Load() {
		return
	}
	cb.renderer.Notice(ExpiredMessage)
}

// Close releases the store
func (cb *ChatBot) Close() error {
	var errs []error
	for _, c := range cb.closers {
		errs = append(errs, c())
	}
	cb.closers = nil
	return errors.Join(errs...)
}

// report prints err for the user
func (cb *ChatBot) report(err error) {
	kind := session.Kind(err)
	cb.logger.Warn("command failed", "kind", kind.String(), "error", err)

	switch kind {
	case session.KindUnauthorized:
		// Already announced by the logout callback.
	case session.KindInvalidCredentials:
		cb.renderer.Error("Login failed: " + err.Error())
	default:
		cb.renderer.Error(err.Error())
	}
}

// handleCommand runs a slash command and reports whether to quit
func (cb *ChatBot) handleCommand(ctx context.Context, input string) (bool, error) {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/signup":
		if len(parts) != 3 {
			return false, fmt.Errorf("%w: usage: /signup <email> <password>", session.ErrValidation)
		}
		if err := cb.guard.Signup(ctx, parts[1], parts[2]); err != nil {
			return false, err
		}
		cb.renderer.Notice("Account created. You can now /login.")
		return false, nil

	case "/login":
		if len(parts) != 3 {
			return false, fmt.Errorf("%w: usage: /login <email> <password>", session.ErrValidation)
		}
		if cb.guard.Authenticated() {
			return false, errAlreadyIn
		}
		if err := cb.guard.Login(ctx, parts[1], parts[2]); err != nil {
			return false, err
		}
		cb.renderer.Notice("Logged in.")
		cb.showStatus()
		return false, nil

	case "/upload":
		path := strings.TrimSpace(strings.TrimPrefix(input, parts[0]))
		return false, cb.upload(ctx, path)

	case "/new":
		cb.controller.ResetSession(ctx)
		cb.renderer.Notice("Started a new chat. Upload a PDF to begin.")
		return false, nil

	case "/history":
		cb.showHistory()
		return false, nil

	case "/status":
		cb.showStatus()
		return false, nil

	case "/logout":
		cb.loggingOut.Store(true)
		cb.controller.Logout(ctx)
		cb.loggingOut.Store(false)
		cb.renderer.Notice("Logged out.")
		return false, nil

	case "/help":
		cb.renderer.Lines(
			"Available commands:",
			"  /signup <email> <password> - Create an account",
			"  /login <email> <password>  - Log in",
			"  /upload <path>             - Upload a PDF and start a chat about it",
			"  /new                       - Start a new chat",
			"  /history                   - Show the current conversation",
			"  /status                    - Show login and session details",
			"  /logout                    - Log out and clear saved state",
			"  /help                      - Show this help message",
			"  /quit, /exit               - Exit",
			"Anything else is sent as a question about the uploaded PDF.",
		)
		return false, nil

	default:
		return false, fmt.Errorf("%w: unknown command %s (try /help)", session.ErrValidation, parts[0])
	}
}

// upload sends the PDF at path and waits for the new session
func (cb *ChatBot) upload(ctx context.Context, path string) error {
	if !cb.guard.Authenticated() {
		return errLoginRequired
	}
	if path == "" {
		return session.ErrNoFile
	}
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return errNotPDF
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	name := filepath.Base(path)
	task, err := cb.controller.StartUpload(ctx, name, f)
	if err != nil {
		return err
	}
	cb.renderer.Info(fmt.Sprintf("Uploading %s...", name))

	outcome, err := task.Wait(ctx)
	if err != nil {
		return err
	}
	if outcome.Discarded {
		cb.logger.Debug("upload result discarded", "filename", name)
		return nil
	}
	if outcome.Err != nil {
		return outcome.Err
	}
	cb.showLast()
	return nil
}

// ask sends a question and waits for the answer
func (cb *ChatBot) ask(ctx context.Context, question string) error {
	if !cb.guard.Authenticated() {
		return errLoginRequired
	}

	task, err := cb.controller.Ask(ctx, question)
	if err != nil {
		return err
	}
	cb.renderer.Thinking()

	outcome, err := task.Wait(ctx)
	if err != nil {
		return err
	}
	switch {
	case outcome.Discarded:
		cb.logger.Debug("answer discarded")
		return nil
	case session.Kind(outcome.Err) == session.KindUnauthorized:
		return outcome.Err
	}

	// On failure the controller has already logged an error turn.
	if outcome.Err != nil {
		cb.logger.Warn("question failed", "error", outcome.Err)
	}
	cb.showLast()
	return nil
}

func (cb *ChatBot) showLast() {
	turns := cb.controller.State().Log.Turns()
	if len(turns) == 0 {
		return
	}
	cb.renderer.Turn(turns[len(turns)-1])
}

func (cb *ChatBot) showHistory() {
	state := cb.controller.State()
	if state.Log.Len() == 0 {
		cb.renderer.Info("No messages yet.")
		return
	}
	for turn := range state.Log.All() {
		cb.renderer.Turn(turn)
	}
}

func (cb *ChatBot) showStatus() {
	user := "not logged in"
	if cred, ok := cb.guard.Credential(); ok {
		user = cred.UserID
	}

	state := cb.controller.State()
	lines := []string{"User:     " + user, "State:    " + state.Phase.String()}
	if state.Session.Active() {
		lines = append(lines,
			"Document: "+state.Session.DocumentName,
			"Session:  "+state.Session.ID,
			fmt.Sprintf("Messages: %d", state.Log.Len()),
		)
	} else if cb.guard.Authenticated() {
		lines = append(lines, "Upload a PDF with /upload <path> to start chatting.")
	}
	cb.renderer.Lines(lines...)
}

// Run reads commands and questions until /quit or end of input
func (cb *ChatBot) Run(ctx context.Context) error {
	defer func() {
		if err := cb.Close(); err != nil {
			cb.logger.Error("failed to close store", "error", err)
		}
	}()

	cb.renderer.Banner(cb.apiURL)
	if cb.guard.Authenticated() {
		if state := cb.controller.State(); state.Session.Active() {
			cb.renderer.Info(fmt.Sprintf("Resumed chat about %s.", state.Session.DocumentName))
			cb.showHistory()
		} else {
			cb.showStatus()
		}
	} else {
		cb.renderer.Info("Please /login or /signup to continue.")
	}

	scanner := bufio.NewScanner(cb.in)
	for {
		if ctx.Err() != nil {
			break
		}
		cb.renderer.Prompt()
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldQuit, err := cb.handleCommand(ctx, input)
			if err != nil {
				cb.report(err)
			}
			if shouldQuit {
				break
			}
			continue
		}

		if err := cb.ask(ctx, input); err != nil {
			cb.report(err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	cb.renderer.Lines("Goodbye!")
	return nil
}

// History returns the current conversation
func (cb *ChatBot) History() []conversation.Turn {
	return cb.controller.State().Log.Turns()
}
