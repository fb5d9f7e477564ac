package ui

import (
	"errors"
	"strconv"
	"strings"
)

// MaxCallbackDataLen is Telegram's callback_data limit in bytes.
const MaxCallbackDataLen = 64

const callbackPrefix = "timer"

type Action string

const (
	ActionStart     Action = "start"
	ActionPause     Action = "pause"
	ActionResume    Action = "resume"
	ActionComplete  Action = "complete"
	ActionAddFive   Action = "add5"
	ActionExtend    Action = "extend"
	ActionExtendAdd Action = "extend_add"
	ActionList      Action = "list"
)

var ErrBadCallback = errors.New("ui: malformed callback data")

// Data encodes an inline button payload for a task action.
func Data(a Action, taskID int64) string {
	return callbackPrefix + ":" + string(a) + ":" + strconv.FormatInt(taskID, 10)
}

// ParseData decodes Data. Task id 0 is allowed for list-level actions.
func ParseData(data string) (Action, int64, error) {
	parts := strings.Split(strings.TrimSpace(data), ":")
	if len(parts) != 3 || parts[0] != callbackPrefix || parts[1] == "" {
		return "", 0, ErrBadCallback
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || id < 0 {
		return "", 0, ErrBadCallback
	}
	return Action(parts[1]), id, nil
}
