// Package bot is the Telegram transport: it classifies inbound messages, routes them to the
// registration dialog, the RSVP controller or the operator commands, and delivers notifications.
package bot

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"rsvp-bot/internal/dialog"
)

// Sender is the part of *tgbotapi.BotAPI the bot needs.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Classify maps an inbound text to a dialog input. Button labels are matched case-insensitively
// after trimming; everything else is free text.
func Classify(text string) dialog.Input {
	t := strings.TrimSpace(text)
	switch {
	case strings.EqualFold(t, dialog.ButtonYes):
		return dialog.Yes
	case strings.EqualFold(t, dialog.ButtonNo):
		return dialog.No
	case strings.EqualFold(t, dialog.ButtonBack):
		return dialog.Back
	case strings.EqualFold(t, dialog.ButtonSkip):
		return dialog.Skip
	default:
		return dialog.Text(text)
	}
}

func buttons(labels ...string) []tgbotapi.KeyboardButton {
	row := make([]tgbotapi.KeyboardButton, 0, len(labels))
	for _, l := range labels {
		row = append(row, tgbotapi.NewKeyboardButton(l))
	}
	return tgbotapi.NewKeyboardButtonRow(row...)
}

func keyboard(rows ...[]tgbotapi.KeyboardButton) tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	return kb
}

// ReplyMarkup returns the Telegram reply markup for kb. Unknown values remove the keyboard.
func ReplyMarkup(kb dialog.Keyboard) interface{} {
	switch kb {
	case dialog.KeyboardYesNo:
		return keyboard(buttons(dialog.ButtonYes, dialog.ButtonNo))
	case dialog.KeyboardBack:
		return keyboard(buttons(dialog.ButtonBack))
	case dialog.KeyboardBackSkip:
		return keyboard(buttons(dialog.ButtonSkip), buttons(dialog.ButtonBack))
	case dialog.KeyboardYesNoBack:
		return keyboard(buttons(dialog.ButtonYes, dialog.ButtonNo), buttons(dialog.ButtonBack))
	default:
		return tgbotapi.NewRemoveKeyboard(false)
	}
}

// htmlMessage builds an HTML-formatted message with the given keyboard.
func htmlMessage(chatID int64, text string, kb dialog.Keyboard) tgbotapi.MessageConfig {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = ReplyMarkup(kb)
	return msg
}

// RegisterCommands publishes the participant command menu.
func RegisterCommands(s Sender) error {
	cfg := tgbotapi.NewSetMyCommands(
		tgbotapi.BotCommand{Command: "start", Description: commandStartDesc},
		tgbotapi.BotCommand{Command: "status", Description: commandStatusDesc},
		tgbotapi.BotCommand{Command: "cancel", Description: commandCancelDesc},
	)
	if _, err := s.Request(cfg); err != nil {
		return fmt.Errorf("set bot commands: %w", err)
	}
	return nil
}
