package telegram

import (
	"context"
	"fmt"
	"sync"

	"piatto/internal/library"
	"piatto/internal/recipe"
	"piatto/internal/render"
	"piatto/internal/wizard"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// chatView presents the wizard in one chat. The recipe options live in a
// single message that is edited as images arrive and decisions are made.
type chatView struct {
	api    Sender
	chatID int64
	logger *zap.Logger

	mu        sync.Mutex
	last      wizard.State
	tracker   *library.Tracker
	msgID     int
	shown     string
	confirmed bool
}

// Confirm asks with inline buttons. The answer arrives later as a
// "back|yes" callback, which calls confirmNext and repeats the action.
func (v *chatView) Confirm(_ context.Context, message string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.confirmed {
		v.confirmed = false
		return true, nil
	}

	msg := tgbotapi.NewMessage(v.chatID, "⚠️ "+render.EscapeMarkdown(message))
	msg.ParseMode = tgbotapi.ModeMarkdown
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🗑 Ja, verwerfen", "back|yes"),
			tgbotapi.NewInlineKeyboardButtonData("Nein", "back|no"),
		),
	)
	if _, err := v.api.Send(msg); err != nil {
		return false, fmt.Errorf("failed to ask for confirmation: %w", err)
	}
	return false, nil
}

// confirmNext makes the next Confirm return true without asking.
func (v *chatView) confirmNext() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.confirmed = true
}

// dropConfirm disarms a confirmNext that Confirm did not consume.
func (v *chatView) dropConfirm() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.confirmed = false
}

// Render shows the options while they are generated and at the options step.
func (v *chatView) Render(s wizard.State) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.last = s
	if len(s.Options) == 0 || (s.Step != wizard.StepOptions && !s.Loading) {
		v.msgID = 0
		v.shown = ""
		return
	}
	v.renderLocked()
}

func (v *chatView) setTracker(t *library.Tracker) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tracker = t
}

// refresh redraws the options message, for example after a decision.
func (v *chatView) refresh() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.msgID != 0 {
		v.renderLocked()
	}
}

// resend posts the options as a new message at the bottom of the chat.
func (v *chatView) resend() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.last.Options) == 0 {
		return
	}
	v.msgID = 0
	v.shown = ""
	v.renderLocked()
}

func (v *chatView) renderLocked() {
	text := render.OptionsMarkdown(v.last.Options, v.last.Images)
	rows := v.keyboardLocked()

	signature := fmt.Sprintf("%s|%v", text, rows)
	if signature == v.shown {
		return
	}

	var keyboard *tgbotapi.InlineKeyboardMarkup
	if len(rows) > 0 {
		k := tgbotapi.NewInlineKeyboardMarkup(rows...)
		keyboard = &k
	}

	if v.msgID == 0 {
		msg := tgbotapi.NewMessage(v.chatID, text)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if keyboard != nil {
			msg.ReplyMarkup = *keyboard
		}
		sent, err := v.api.Send(msg)
		if err != nil {
			v.logger.Warn("failed to send recipe options", zap.Error(err))
			return
		}
		v.msgID = sent.MessageID
	} else {
		edit := tgbotapi.NewEditMessageText(v.chatID, v.msgID, text)
		edit.ParseMode = tgbotapi.ModeMarkdown
		edit.ReplyMarkup = keyboard
		if _, err := v.api.Send(edit); err != nil {
			v.logger.Warn("failed to update recipe options", zap.Error(err))
			return
		}
	}
	v.shown = signature
}

func (v *chatView) keyboardLocked() [][]tgbotapi.InlineKeyboardButton {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, o := range v.last.Options {
		if o.IsPlaceholder() {
			continue
		}
		status := recipe.StatusPending
		if v.tracker != nil {
			if st, ok := v.tracker.Status(o.ID); ok {
				status = st
			}
		}

		if status == recipe.StatusPending {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("💾 %d speichern", i+1), fmt.Sprintf("save|%d", o.ID)),
				tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("🗑 %d verwerfen", i+1), fmt.Sprintf("discard|%d", o.ID)),
			))
			continue
		}
		if v.tracker != nil && v.tracker.CanUndo(o.ID) {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%s %d rückgängig", render.StatusIcon(status), i+1), fmt.Sprintf("undo|%d", o.ID)),
			))
		}
	}
	return rows
}
