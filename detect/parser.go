package detect

import (
	"fmt"
	"regexp"
)

// Action is one recognized outfit command verb.
type Action string

const (
	ActionWear   Action = "wear"
	ActionRemove Action = "remove"
	ActionChange Action = "change"
)

// Command is one parsed outfit change instruction.
type Command struct {
	Action Action `json:"action"`
	SlotID string `json:"slot_id"`
	Value  string `json:"value"`
}

// CommandFailure reports one command that could not be parsed or applied.
// Failures are per-command: the rest of the batch still runs.
type CommandFailure struct {
	Raw    string `json:"raw"`
	Reason string `json:"reason"`
}

// commandRe matches the fixed textual grammar the generator is prompted to
// emit: outfit-system_<action>_<slot>("<value>").
var commandRe = regexp.MustCompile(`outfit-system_([a-zA-Z]+)_([a-zA-Z0-9_-]+)\("([^"]*)"\)`)

// ParseCommands scans free generator text for outfit commands. Unrecognized
// actions become failures, not errors; text around the commands is ignored.
func ParseCommands(text string) ([]Command, []CommandFailure) {
	var cmds []Command
	var failures []CommandFailure
	for _, match := range commandRe.FindAllStringSubmatch(text, -1) {
		action := Action(match[1])
		switch action {
		case ActionWear, ActionRemove, ActionChange:
			cmds = append(cmds, Command{Action: action, SlotID: match[2], Value: match[3]})
		default:
			failures = append(failures, CommandFailure{
				Raw:    match[0],
				Reason: fmt.Sprintf("unknown action %q", match[1]),
			})
		}
	}
	return cmds, failures
}
