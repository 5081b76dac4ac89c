package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"piatto/internal/collection"
	"piatto/internal/config"
	"piatto/internal/cooking"
	"piatto/internal/library"
	"piatto/internal/messages"
	"piatto/internal/metrics"
	"piatto/internal/render"
	"piatto/internal/session"
	"piatto/internal/storage"
	"piatto/internal/wizard"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	updateTimeout = 2 * time.Minute
	// A chat may start three generations, then one every 20 seconds.
	generateEvery = 20 * time.Second
	generateBurst = 3
)

// Sender is the part of the Telegram API the bot uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Backend is everything the bot needs from the Piatto API.
type Backend interface {
	wizard.Backend
	library.Backend
	collection.Backend
	collection.Updater
	cooking.Backend
}

// Deps are the services the bot is wired with.
type Deps struct {
	Backend        Backend
	Storage        storage.KV // chat-scoped session ids
	Metrics        *metrics.Store
	MetricsHandler http.Handler // Prometheus exposition, optional
	Logger         *zap.Logger
}

// Bot serves the Piatto flows over a Telegram webhook.
type Bot struct {
	api            Sender
	backend        Backend
	kv             storage.KV
	collections    *collection.Service
	metricsStore   *metrics.Store
	metricsHandler http.Handler
	cfg            *config.Config
	logger         *zap.Logger

	wg    sync.WaitGroup
	mu    sync.Mutex
	chats map[int64]*chat
}

type await int

const (
	awaitNone await = iota
	awaitPrompt
	awaitIngredients
	awaitQuestion
)

// chat is the state of one conversation.
type chat struct {
	mu        sync.Mutex
	id        int64
	restored  bool
	view      *chatView
	wizard    *wizard.Controller
	tracker   *library.Tracker
	flow      *collection.Flow
	flowMsgID int
	cooking   *cooking.Service
	limiter   *rate.Limiter
	awaiting  await
}

// NewBot initializes the Telegram Bot and sets the Webhook.
func NewBot(cfg *config.Config, deps Deps) (*Bot, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}

	b := newBot(bot, cfg, deps)
	b.logger.Info("authorized on account", zap.String("username", bot.Self.UserName))

	wh, err := tgbotapi.NewWebhook(cfg.TelegramWebhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url %s: %w", cfg.TelegramWebhookURL, err)
	}
	resp, err := bot.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", cfg.TelegramWebhookURL, err)
	}
	b.logger.Info("webhook set", zap.String("description", resp.Description))

	return b, nil
}

func newBot(api Sender, cfg *config.Config, deps Deps) *Bot {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{
		api:            api,
		backend:        deps.Backend,
		kv:             deps.Storage,
		collections:    collection.NewService(deps.Backend, logger),
		metricsStore:   deps.Metrics,
		metricsHandler: deps.MetricsHandler,
		cfg:            cfg,
		logger:         logger,
		chats:          map[int64]*chat{},
	}
}

// RegisterHandlers registers the webhook, health and metrics handlers.
func (b *Bot) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/webhook", b.handleWebhook)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if b.metricsHandler != nil {
		mux.Handle("/metrics", b.metricsHandler)
	}
}

// Close stops all background polling and waits for running updates.
func (b *Bot) Close() {
	b.wg.Wait()

	b.mu.Lock()
	chats := make([]*chat, 0, len(b.chats))
	for _, c := range b.chats {
		chats = append(chats, c)
	}
	b.mu.Unlock()

	for _, c := range chats {
		c.wizard.Close()
	}
}

func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		b.logger.Warn("failed to parse update", zap.Error(err))
		http.Error(w, "bad update", http.StatusBadRequest)
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.handleUpdate(update)
	}()
}

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		if !b.isAllowed(update.CallbackQuery.From) {
			return
		}
		b.handleCallbackQuery(update.CallbackQuery)
	case update.Message != nil:
		if !b.isAllowed(update.Message.From) {
			return
		}
		b.processMessage(update.Message)
	}
}

func (b *Bot) isAllowed(user *tgbotapi.User) bool {
	if user == nil {
		return false
	}
	for _, id := range b.cfg.TelegramAllowedUserIDs {
		if user.ID == id {
			return true
		}
	}
	b.logger.Warn("unauthorized access attempt", zap.Int64("user_id", user.ID), zap.String("username", user.UserName))
	return false
}

// chatFor returns the state of chatID, creating it on first use.
func (b *Bot) chatFor(chatID int64) *chat {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c, ok := b.chats[chatID]; ok {
		return c
	}

	kv := storage.Namespaced(b.kv, "chat:"+strconv.FormatInt(chatID, 10))
	logger := b.logger.With(zap.Int64("chat_id", chatID))
	view := &chatView{api: b.api, chatID: chatID, logger: logger}
	c := &chat{
		id:   chatID,
		view: view,
		wizard: wizard.New(b.backend, session.Preparing(kv), view,
			wizard.WithPollInterval(b.cfg.PollInterval),
			wizard.WithLogger(logger),
		),
		cooking: cooking.NewService(b.backend, session.Cooking(kv), logger),
		limiter: rate.NewLimiter(rate.Every(generateEvery), generateBurst),
	}
	b.chats[chatID] = c
	return c
}

// restore picks up a preparing session left over from a previous run.
// c.mu must be held.
func (b *Bot) restore(ctx context.Context, c *chat) {
	if c.restored {
		return
	}
	c.restored = true

	ok, err := c.wizard.Restore(ctx)
	if err != nil {
		b.reportWizard(c, err)
		return
	}
	if ok {
		b.resetTracker(c)
		b.reply(c.id, "🔄 Deine letzten Rezeptvorschläge sind wieder da.")
		c.view.resend()
	}
}

func (b *Bot) processMessage(msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
	defer cancel()

	c := b.chatFor(msg.Chat.ID)
	c.mu.Lock()
	defer c.mu.Unlock()
	b.restore(ctx, c)

	if msg.IsCommand() {
		args := strings.TrimSpace(msg.CommandArguments())
		switch msg.Command() {
		case "start":
			b.cmdStart(c)
		case "back":
			b.cmdBack(ctx, c)
		case "finish":
			b.cmdFinish(ctx, c)
		case "refresh":
			b.cmdRefresh(ctx, c)
		case "skip":
			if c.awaiting == awaitIngredients {
				b.generate(ctx, c, nil)
			}
		case "assign":
			b.cmdAssign(ctx, c)
		case "newcollection":
			b.cmdNewCollection(ctx, c, args)
		case "cook":
			b.cmdCook(ctx, c, args)
		case "ask":
			b.cmdAsk(ctx, c, args)
		case "metrics":
			b.handleMetricsRequest(ctx, msg)
		default:
			b.reply(c.id, helpText)
		}
		return
	}

	switch c.awaiting {
	case awaitIngredients:
		b.generate(ctx, c, wizard.ParseIngredients(msg.Text))
	case awaitQuestion:
		b.cmdAsk(ctx, c, msg.Text)
	default:
		b.submitPrompt(c, msg.Text)
	}
}

const helpText = `🍳 *Piatto*

/start – neue Rezeptideen
/back – einen Schritt zurück
/refresh – Vorschläge neu laden
/finish – Sitzung beenden
/assign – gespeicherte Rezepte in Sammlungen ablegen
/cook <Rezept-ID> – Kochmodus starten
/ask <Frage> – Frage zum aktuellen Rezept`

func (b *Bot) cmdStart(c *chat) {
	if c.wizard.State().Step == wizard.StepOptions {
		c.view.resend()
		b.reply(c.id, "Du hast noch offene Rezeptvorschläge. /back verwirft sie.")
		return
	}
	c.wizard.GoToStep(wizard.StepPrompt)
	c.awaiting = awaitPrompt
	b.reply(c.id, "🍳 *Worauf hast du Lust?*")
}

func (b *Bot) submitPrompt(c *chat, text string) {
	if c.wizard.State().Step == wizard.StepOptions {
		b.reply(c.id, "Du hast noch offene Rezeptvorschläge. /back verwirft sie, /refresh lädt sie neu.")
		return
	}
	c.wizard.SetPrompt(text)
	if err := c.wizard.SubmitPrompt(); err != nil {
		b.reportWizard(c, err)
		return
	}
	c.awaiting = awaitIngredients
	b.reply(c.id, "🥕 *Welche Zutaten hast du da?*\nKommagetrennt, oder /skip.")
}

func (b *Bot) generate(ctx context.Context, c *chat, ingredients []string) {
	if !c.limiter.Allow() {
		b.reply(c.id, "⏳ "+messages.RateLimited)
		return
	}
	c.wizard.SetIngredients(ingredients)
	c.awaiting = awaitNone
	b.reply(c.id, "🧑‍🍳 *Rezepte werden erstellt...*")

	if err := c.wizard.Generate(ctx); err != nil {
		b.reportWizard(c, err)
		return
	}
	b.resetTracker(c)
}

func (b *Bot) cmdBack(ctx context.Context, c *chat) {
	before := c.wizard.State().Step
	if err := c.wizard.Back(ctx); err != nil {
		b.reportWizard(c, err)
		return
	}
	b.afterBack(c, before)
}

func (b *Bot) afterBack(c *chat, before wizard.Step) {
	after := c.wizard.State().Step
	switch {
	case before == wizard.StepOptions && after == wizard.StepPrompt:
		c.tracker = nil
		c.view.setTracker(nil)
		c.awaiting = awaitPrompt
		b.reply(c.id, "🗑 Vorschläge verworfen. 🍳 *Worauf hast du Lust?*")
	case before == wizard.StepIngredients:
		c.awaiting = awaitPrompt
		b.reply(c.id, "🍳 *Worauf hast du Lust?*")
	}
}

func (b *Bot) cmdFinish(ctx context.Context, c *chat) {
	err := c.wizard.Finish(ctx)
	c.tracker = nil
	c.view.setTracker(nil)
	c.awaiting = awaitNone
	if err != nil {
		b.reportWizard(c, err)
		return
	}
	b.reply(c.id, "✅ Sitzung beendet.")
}

func (b *Bot) cmdRefresh(ctx context.Context, c *chat) {
	if c.wizard.State().SessionID == 0 {
		b.reply(c.id, messages.NoPreparingActive)
		return
	}
	if err := c.wizard.Refresh(ctx); err != nil {
		b.reportWizard(c, err)
		return
	}
	b.resetTracker(c)
	c.view.resend()
}

// resetTracker starts tracking the options currently shown. c.mu must be
// held.
func (b *Bot) resetTracker(c *chat) {
	st := c.wizard.State()
	if st.SessionID == 0 {
		c.tracker = nil
	} else {
		c.tracker = library.NewTracker(b.backend, st.SessionID, st.Options,
			library.WithUndoWindow(b.cfg.UndoWindow),
			library.WithLogger(b.logger),
		)
	}
	c.view.setTracker(c.tracker)
}

func (b *Bot) cmdAssign(ctx context.Context, c *chat) {
	if c.tracker == nil || len(c.tracker.Saved()) == 0 {
		b.reply(c.id, "Speichere zuerst mindestens ein Rezept.")
		return
	}
	flow, err := b.collections.Start(ctx, c.tracker.Saved())
	if err != nil {
		b.reply(c.id, "❌ "+messages.For(err))
		return
	}
	c.flow = flow
	c.flowMsgID = 0
	b.renderFlow(c)
}

func (b *Bot) cmdNewCollection(ctx context.Context, c *chat, name string) {
	col, err := b.collections.Create(ctx, name)
	if err != nil {
		b.reply(c.id, "❌ "+messages.For(err))
		return
	}
	if c.flow != nil {
		c.flow.AddCollection(*col)
		b.renderFlow(c)
		return
	}
	b.reply(c.id, fmt.Sprintf("📚 Sammlung *%s* angelegt.", render.EscapeMarkdown(col.Name)))
}

func (b *Bot) cmdCook(ctx context.Context, c *chat, args string) {
	var err error
	if args == "" {
		_, err = c.cooking.Resume(ctx)
	} else {
		recipeID, perr := strconv.ParseInt(args, 10, 64)
		if perr != nil {
			b.reply(c.id, "Bitte gib eine Rezept-ID an, zum Beispiel `/cook 42`.")
			return
		}
		_, err = c.cooking.Start(ctx, recipeID)
	}
	if err != nil {
		b.reply(c.id, "❌ "+messages.For(err))
		return
	}
	b.sendCooking(ctx, c, 0)
}

func (b *Bot) cmdAsk(ctx context.Context, c *chat, question string) {
	if strings.TrimSpace(question) == "" {
		c.awaiting = awaitQuestion
		b.reply(c.id, "❓ Was möchtest du wissen?")
		return
	}
	c.awaiting = awaitNone
	if c.cooking.Current() == nil {
		if _, err := c.cooking.Resume(ctx); err != nil {
			b.reply(c.id, "❌ "+messages.For(err))
			return
		}
	}
	answer, err := c.cooking.Ask(ctx, question)
	if err != nil {
		b.reply(c.id, "❌ "+messages.For(err))
		return
	}
	b.reply(c.id, "🤖 "+render.EscapeMarkdown(answer))
}

// sendCooking shows the instructions, editing messageID when it is set.
func (b *Bot) sendCooking(ctx context.Context, c *chat, messageID int) {
	steps, err := c.cooking.Instructions(ctx)
	if err != nil {
		b.reply(c.id, "❌ "+messages.For(err))
		return
	}
	text := render.CookingMarkdown(c.cooking.Current(), steps)
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⬅️", "cook|prev"),
			tgbotapi.NewInlineKeyboardButtonData("➡️", "cook|next"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Fertig", "cook|finish"),
		),
	)
	b.sendOrEdit(c.id, messageID, text, &keyboard)
}

func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	if query.Message == nil || query.Message.Chat == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), updateTimeout)
	defer cancel()

	c := b.chatFor(query.Message.Chat.ID)
	c.mu.Lock()
	defer c.mu.Unlock()
	b.restore(ctx, c)

	action, arg, _ := strings.Cut(query.Data, "|")
	id, _ := strconv.ParseInt(arg, 10, 64)

	var answer string
	switch action {
	case "save", "discard", "undo":
		answer = b.decide(ctx, c, action, id)
	case "back":
		// A stale button must not confirm a later options step.
		if arg == "yes" && c.wizard.State().Step == wizard.StepOptions {
			c.view.confirmNext()
			err := c.wizard.Back(ctx)
			c.view.dropConfirm()
			if err != nil {
				answer = messages.For(err)
			} else {
				b.afterBack(c, wizard.StepOptions)
			}
		}
	case "col", "colnext", "colprev", "colsave":
		answer = b.flowAction(ctx, c, action, id)
	case "cook":
		answer = b.cookAction(ctx, c, arg, query.Message.MessageID)
	}

	// Answer callback to remove spinner
	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, answer)); err != nil {
		b.logger.Debug("failed to answer callback", zap.Error(err))
	}
}

func (b *Bot) decide(ctx context.Context, c *chat, action string, recipeID int64) string {
	if c.tracker == nil {
		return messages.NoPreparingActive
	}

	var err error
	var done string
	switch action {
	case "save":
		err, done = c.tracker.Save(ctx, recipeID), messages.RecipeSaved
	case "discard":
		err, done = c.tracker.Discard(ctx, recipeID), messages.RecipeDiscarded
	case "undo":
		err, done = c.tracker.Undo(ctx, recipeID), "↩️"
	}
	c.view.refresh()
	if err != nil {
		b.logger.Warn("recipe decision failed", zap.String("action", action), zap.Int64("recipe_id", recipeID), zap.Error(err))
		return messages.For(err)
	}
	return done
}

func (b *Bot) flowAction(ctx context.Context, c *chat, action string, collectionID int64) string {
	if c.flow == nil {
		return messages.NoCollection
	}
	switch action {
	case "col":
		c.flow.Toggle(collectionID)
	case "colnext":
		if err := c.flow.Next(); err != nil {
			return messages.For(err)
		}
	case "colprev":
		c.flow.Prev()
	case "colsave":
		if err := c.flow.Save(ctx, b.backend); err != nil {
			b.logger.Warn("saving collections failed", zap.Error(err))
			return messages.For(err)
		}
		b.sendOrEdit(c.id, c.flowMsgID, "📚 "+messages.CollectionsSaved, nil)
		c.flow = nil
		c.flowMsgID = 0
		return messages.CollectionsSaved
	}
	b.renderFlow(c)
	return ""
}

func (b *Bot) cookAction(ctx context.Context, c *chat, action string, messageID int) string {
	if c.cooking.Current() == nil {
		if _, err := c.cooking.Resume(ctx); err != nil {
			return messages.For(err)
		}
	}
	var err error
	switch action {
	case "next":
		err = c.cooking.Next(ctx)
	case "prev":
		err = c.cooking.Prev(ctx)
	case "finish":
		if err := c.cooking.Finish(ctx); err != nil {
			return messages.For(err)
		}
		b.sendOrEdit(c.id, messageID, "✅ Guten Appetit!", nil)
		return ""
	}
	if err != nil {
		return messages.For(err)
	}
	b.sendCooking(ctx, c, messageID)
	return ""
}

// renderFlow shows the current step of the collection flow.
func (b *Bot) renderFlow(c *chat) {
	f := c.flow
	current := f.Current()

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📚 *Sammlungen* (%d/%d)\n\n", f.Index()+1, f.Len()))
	sb.WriteString(fmt.Sprintf("In welche Sammlungen soll *%s*?", render.EscapeMarkdown(current.Title)))

	var rows [][]tgbotapi.InlineKeyboardButton
	for _, col := range f.Collections() {
		label := col.Name
		if f.IsSelected(col.ID) {
			label = "✅ " + label
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, fmt.Sprintf("col|%d", col.ID)),
		))
	}
	if len(rows) == 0 {
		sb.WriteString("\n\nDu hast noch keine Sammlungen. Lege eine mit /newcollection <Name> an.")
	}

	var nav []tgbotapi.InlineKeyboardButton
	if f.Index() > 0 {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("⬅️ Zurück", "colprev"))
	}
	if f.IsLast() {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("💾 Speichern", "colsave"))
	} else {
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("Weiter ➡️", "colnext"))
	}
	rows = append(rows, nav)

	keyboard := tgbotapi.NewInlineKeyboardMarkup(rows...)
	c.flowMsgID = b.sendOrEdit(c.id, c.flowMsgID, sb.String(), &keyboard)
}

// sendOrEdit edits messageID, or sends a new message when it is 0. It
// returns the id of the message showing text.
func (b *Bot) sendOrEdit(chatID int64, messageID int, text string, keyboard *tgbotapi.InlineKeyboardMarkup) int {
	if messageID == 0 {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if keyboard != nil {
			msg.ReplyMarkup = *keyboard
		}
		sent, err := b.api.Send(msg)
		if err != nil {
			b.logger.Warn("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
			return 0
		}
		return sent.MessageID
	}

	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	edit.ReplyMarkup = keyboard
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Warn("failed to edit message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	return messageID
}

func (b *Bot) reply(chatID int64, text string) {
	b.sendOrEdit(chatID, 0, text, nil)
}

// reportWizard sends the wizard's error message, which may be more specific
// than the generic mapping of err.
func (b *Bot) reportWizard(c *chat, err error) {
	msg := c.wizard.State().Error
	if msg == "" {
		msg = messages.For(err)
	}
	b.reply(c.id, "❌ "+render.EscapeMarkdown(msg))
}

func (b *Bot) handleMetricsRequest(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.From.ID != b.cfg.AdminTelegramID {
		b.reply(msg.Chat.ID, "⛔ *Access Denied*: Admin only.")
		return
	}
	if b.metricsStore == nil {
		b.reply(msg.Chat.ID, "❌ Metrics are disabled.")
		return
	}
	usage, err := b.metricsStore.GetDailyUsage(ctx, 7)
	if err != nil {
		b.logger.Error("failed to fetch metrics", zap.Error(err))
		b.reply(msg.Chat.ID, "❌ Error fetching metrics.")
		return
	}
	b.reply(msg.Chat.ID, formatMetricsReport(usage, metrics.GetSysHealth(b.cfg.DataDir)))
}

func formatMetricsReport(usage []metrics.DailyUsage, health metrics.SysHealth) string {
	var sb strings.Builder
	sb.WriteString("📊 *Usage & Health Report*\n\n")

	sb.WriteString("🗓 *Recent API Activity*\n")
	if len(usage) == 0 {
		sb.WriteString("_No data yet_\n")
	}
	for _, d := range usage {
		sb.WriteString(fmt.Sprintf("• *%s*: %d requests, %d errors, %.0f ms avg\n", d.Date, d.Requests, d.Errors, d.AvgLatencyMS))
	}

	sb.WriteString("\n🧠 *System Health*\n")
	sb.WriteString(fmt.Sprintf("• RAM: %dMB (Alloc) / %dMB (Sys)\n", health.AllocMB, health.SysMB))
	sb.WriteString(fmt.Sprintf("• Goroutines: %d\n", health.Goroutines))
	sb.WriteString(fmt.Sprintf("• Uptime: %s\n", health.Uptime))
	sb.WriteString(fmt.Sprintf("• Disk Data: %s in %d files\n", health.DataDiskSize, health.DataFiles))
	return sb.String()
}
