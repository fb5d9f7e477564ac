package ui

import "focusbot/internal/transport"

const ParseModeHTML = "HTML"

// Message is rendered text plus its inline keyboard.
type Message struct {
	Text     string
	Keyboard transport.Keyboard
}

func (m Message) Options() *transport.SendOptions {
	return &transport.SendOptions{ParseMode: ParseModeHTML, DisablePreview: true, Keyboard: m.Keyboard}
}

func Plain(text string) Message { return Message{Text: text} }

func btn(text string, a Action, taskID int64) transport.Button {
	return transport.Button{Text: text, Data: Data(a, taskID)}
}

func row(btns ...transport.Button) []transport.Button { return btns }
