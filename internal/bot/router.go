// Package bot routes chat updates to task and timer operations: slash
// commands, inline timer buttons and the pending "minutes?" prompt.
package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"focusbot/internal/runtime/supervisor"
	"focusbot/internal/tasks"
	"focusbot/internal/timer"
	"focusbot/internal/transport"
	"focusbot/internal/ui"
	"focusbot/pkg/logx"
)

// Timers is the part of the timer engine the router drives.
type Timers interface {
	Start(ctx context.Context, ownerID, taskID int64, target *transport.MessageRef) (timer.Started, error)
	Resume(ctx context.Context, ownerID, taskID int64, target *transport.MessageRef) (timer.Started, error)
	Pause(ctx context.Context, ownerID, taskID int64) (int64, tasks.Task, error)
	Complete(ctx context.Context, ownerID, taskID int64) (timer.Completion, error)
	Extend(ctx context.Context, ownerID, taskID, extraSeconds int64, target *transport.MessageRef) (timer.Started, error)
}

// Messenger sends and edits rendered messages.
type Messenger interface {
	Send(ctx context.Context, chatID int64, msg ui.Message) (transport.MessageRef, error)
	Edit(ctx context.Context, ref transport.MessageRef, msg ui.Message) bool
}

// Summaries writes the on-demand recaps.
type Summaries interface {
	DailySummary(ctx context.Context, userID int64, day time.Time) (string, error)
	WeeklyReport(ctx context.Context, userID int64, weekStart time.Time) (string, error)
}

type CallbackAnswerer interface {
	AnswerCallback(ctx context.Context, callbackID, text string, alert bool) error
}

type Config struct {
	// Timezone is assigned to users on first contact.
	Timezone       string
	Workers        int
	QueueSize      int
	HandlerTimeout time.Duration
	// MaxPlanDays is how far ahead /plan accepts a date.
	MaxPlanDays int
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Timezone) == "" {
		c.Timezone = "UTC"
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = 30 * time.Second
	}
	if c.MaxPlanDays <= 0 {
		c.MaxPlanDays = 30
	}
	return c
}

// Request is one update resolved to its user.
type Request struct {
	ReqID  string
	Update transport.Update
	Route  string
	ChatID int64
	FromID int64
	Args   string

	User tasks.User
	Loc  *time.Location

	// Callback fields.
	Action ui.Action
	TaskID int64
	Ref    transport.MessageRef

	answer      string
	answerAlert bool
}

// Answer sets the text shown for a callback once the handler returns.
func (r *Request) Answer(text string, alert bool) {
	r.answer, r.answerAlert = text, alert
}

type Router struct {
	cfg    Config
	repo   tasks.Repository
	timers Timers
	out    Messenger
	cb     CallbackAnswerer
	log    logx.Logger

	now       func() time.Time
	pending   *pendingSet
	summaries Summaries

	commands  map[string]HandlerFunc
	callbacks map[ui.Action]HandlerFunc
	menu      []transport.BotCommand
	handle    HandlerFunc

	locMu sync.Mutex
	locs  map[string]*time.Location
}

type Option func(*Router)

func WithClock(now func() time.Time) Option { return func(r *Router) { r.now = now } }

// WithSummaries enables /summary and /report.
func WithSummaries(s Summaries) Option { return func(r *Router) { r.summaries = s } }

func New(cfg Config, repo tasks.Repository, timers Timers, out Messenger, cb CallbackAnswerer, log logx.Logger, opts ...Option) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		cfg:     cfg.withDefaults(),
		repo:    repo,
		timers:  timers,
		out:     out,
		cb:      cb,
		log:     log.With(logx.String("comp", "bot")),
		now:     time.Now,
		pending: newPendingSet(),
		locs:    map[string]*time.Location{},
	}
	for _, o := range opts {
		o(r)
	}
	r.register()
	r.handle = Chain(r.route,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(r.cfg.HandlerTimeout),
	)
	return r
}

func (r *Router) register() {
	r.commands = map[string]HandlerFunc{
		"/start":   r.cmdStart,
		"/help":    r.cmdStart,
		"/today":   r.cmdToday,
		"/add":     r.cmdAdd,
		"/plan":    r.cmdPlan,
		"/backlog": r.cmdBacklog,
		"/stats":   r.cmdStats,
		"/week":    r.cmdWeek,
		"/summary": r.cmdSummary,
		"/report":  r.cmdReport,
	}
	r.menu = []transport.BotCommand{
		{Command: "today", Description: "Today's tasks"},
		{Command: "add", Description: "Add a task for today"},
		{Command: "plan", Description: "Plan a task for a later day"},
		{Command: "backlog", Description: "Upcoming tasks"},
		{Command: "stats", Description: "Today's numbers"},
		{Command: "week", Description: "This week's numbers"},
		{Command: "summary", Description: "Today's recap"},
		{Command: "report", Description: "This week's report"},
		{Command: "start", Description: "Help"},
	}
	r.callbacks = map[ui.Action]HandlerFunc{
		ui.ActionStart:     r.cbStart,
		ui.ActionResume:    r.cbResume,
		ui.ActionPause:     r.cbPause,
		ui.ActionComplete:  r.cbComplete,
		ui.ActionAddFive:   r.cbAddFive,
		ui.ActionExtend:    r.cbExtend,
		ui.ActionExtendAdd: r.cbExtendAdd,
		ui.ActionList:      r.cbList,
	}
}

// DispatchLoop consumes updates until ctx is done or updates is closed.
// Updates are sharded by chat so one chat is always handled in order.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan transport.Update) error {
	sup := supervisor.New(ctx,
		supervisor.WithLogger(r.log),
		supervisor.WithCancelOnError(false),
	)
	r.log.Info("dispatcher started", logx.Int("workers", r.cfg.Workers))

	if up, ok := r.cb.(transport.CommandMenuUpdater); ok {
		sup.Go("menu.update", func(c context.Context) error {
			cctx, cancel := context.WithTimeout(c, 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(cctx, r.menu); err != nil {
				r.log.Warn("menu update failed", logx.Err(err))
			}
			return nil
		})
	}

	shards := make([]chan transport.Update, r.cfg.Workers)
	for i := range shards {
		ch := make(chan transport.Update, max(1, r.cfg.QueueSize/r.cfg.Workers))
		shards[i] = ch
		sup.GoRestart("worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case up, ok := <-ch:
					if !ok {
						return nil
					}
					r.Handle(c, up)
				}
			}
		},
			supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			supervisor.WithPublishFirstError(true),
		)
	}

	defer func() {
		for _, ch := range shards {
			close(ch)
		}
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			chatID := chatOf(up)
			ch := shards[int(uint64(chatID)%uint64(len(shards)))]
			select {
			case ch <- up:
			default:
				r.log.Warn("update dropped (worker queue full)", logx.Int64("chat_id", chatID))
			}
		}
	}
}

func chatOf(up transport.Update) int64 {
	switch {
	case up.Message != nil:
		return up.Message.ChatID
	case up.Callback != nil:
		return up.Callback.ChatID
	}
	return 0
}

// Handle processes one update synchronously.
func (r *Router) Handle(ctx context.Context, up transport.Update) {
	req, ok := r.request(up)
	if !ok {
		return
	}
	err := r.handle(ctx, req)
	if up.Kind == transport.UpdateCallback {
		r.answerCallback(ctx, req, err)
		return
	}
	if err != nil && ctx.Err() == nil {
		r.reply(ctx, req.ChatID, ui.Plain(ui.Failed))
	}
}

func (r *Router) request(up transport.Update) (*Request, bool) {
	switch up.Kind {
	case transport.UpdateMessage:
		m := up.Message
		if m == nil || m.FromID == 0 {
			return nil, false
		}
		req := &Request{ReqID: uuid.NewString(), Update: up, ChatID: m.ChatID, FromID: m.FromID, Route: "text", Args: strings.TrimSpace(m.Text)}
		if cmd, args, ok := parseCommand(m.Text); ok {
			req.Route, req.Args = cmd, args
		}
		return req, true
	case transport.UpdateCallback:
		c := up.Callback
		if c == nil || c.FromID == 0 {
			return nil, false
		}
		req := &Request{
			ReqID:  uuid.NewString(),
			Update: up,
			ChatID: c.ChatID,
			FromID: c.FromID,
			Route:  "callback",
			Ref:    transport.MessageRef{ChatID: c.ChatID, MessageID: c.MessageID},
		}
		if a, id, err := ui.ParseData(c.Data); err == nil {
			req.Action, req.TaskID = a, id
			req.Route = "callback:" + string(a)
		}
		return req, true
	}
	return nil, false
}

// parseCommand splits "/cmd@bot args" into "/cmd" and "args".
func parseCommand(text string) (cmd, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	cmd, args, _ = strings.Cut(text, " ")
	if at := strings.IndexByte(cmd, '@'); at > 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), strings.TrimSpace(args), true
}

// route resolves the user and picks the handler.
func (r *Router) route(ctx context.Context, req *Request) error {
	user, err := r.repo.EnsureUser(ctx, req.FromID, r.cfg.Timezone)
	if err != nil {
		return err
	}
	req.User = user
	req.Loc = r.location(user.Timezone)

	if req.Update.Kind == transport.UpdateCallback {
		if req.Action == "" {
			req.Answer("Unknown action.", true)
			return nil
		}
		h, ok := r.callbacks[req.Action]
		if !ok {
			req.Answer("Unknown action.", true)
			return nil
		}
		return h(ctx, req)
	}

	if req.Route == "text" {
		return r.onText(ctx, req)
	}
	// Any command abandons a pending prompt.
	r.pending.clear(req.ChatID)
	h, ok := r.commands[req.Route]
	if !ok {
		r.reply(ctx, req.ChatID, ui.Plain(ui.UnknownCommand))
		return nil
	}
	return h(ctx, req)
}

func (r *Router) answerCallback(ctx context.Context, req *Request, err error) {
	text, alert := req.answer, req.answerAlert
	switch {
	case err == nil:
	case errors.Is(err, tasks.ErrNotFound):
		text, alert = ui.TaskNotFound, true
	case errors.Is(err, timer.ErrInvalidExtension):
		text, alert = ui.BadMinutes, true
	default:
		text, alert = ui.Failed, true
	}
	if r.cb == nil || req.Update.Callback == nil {
		return
	}
	actx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
	}
	if aerr := r.cb.AnswerCallback(actx, req.Update.Callback.ID, text, alert); aerr != nil {
		r.log.Debug("answer callback failed", logx.Err(aerr))
	}
}

func (r *Router) reply(ctx context.Context, chatID int64, msg ui.Message) {
	if _, err := r.out.Send(ctx, chatID, msg); err != nil {
		r.log.Warn("reply not delivered", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}

func (r *Router) location(name string) *time.Location {
	if name == "" {
		name = r.cfg.Timezone
	}
	r.locMu.Lock()
	defer r.locMu.Unlock()
	if loc, ok := r.locs[name]; ok {
		return loc
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		r.log.Warn("unknown timezone, using UTC", logx.String("tz", name), logx.Err(err))
		loc = time.UTC
	}
	r.locs[name] = loc
	return loc
}

func (r *Router) today(req *Request) time.Time { return tasks.Today(r.now(), req.Loc) }
