package tui

import (
	"fmt"
	"strings"

	"github.com/matheus3301/fieldsync/internal/store"
)

// Command represents a parsed command.
type Command struct {
	Name string
	Args []string
}

var commandAliases = map[string]string{
	"status":  "status",
	"s":       "status",
	"queue":   "queue",
	"l":       "queue",
	"force":   "force",
	"sync":    "force",
	"clear":   "clear",
	"requeue": "requeue",
	"retry":   "requeue",
	"device":  "device",
	"d":       "device",
	"help":    "help",
	"h":       "help",
	"quit":    "quit",
	"q":       "quit",
}

// ParseCommand parses a command string (without the leading ':') and
// resolves aliases to their canonical name.
func ParseCommand(input string) (Command, error) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("empty command")
	}
	name, ok := commandAliases[strings.ToLower(fields[0])]
	if !ok {
		return Command{}, fmt.Errorf("unknown command %q", fields[0])
	}
	cmd := Command{Name: name, Args: fields[1:]}

	switch name {
	case "queue":
		if len(cmd.Args) > 1 {
			return Command{}, fmt.Errorf("queue takes at most one status")
		}
		if len(cmd.Args) == 1 {
			if _, err := queueStatusArg(cmd.Args[0]); err != nil {
				return Command{}, err
			}
		}
	case "requeue":
	default:
		if len(cmd.Args) > 0 {
			return Command{}, fmt.Errorf("%s takes no arguments", name)
		}
	}
	return cmd, nil
}

// queueStatusArg maps a user-supplied filter to a queue status. "all"
// clears the filter and "failed" names the error status.
func queueStatusArg(s string) (store.SyncStatus, error) {
	switch strings.ToLower(s) {
	case "", "all":
		return "", nil
	case "failed":
		return store.StatusError, nil
	}
	st := store.SyncStatus(strings.ToLower(s))
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}
