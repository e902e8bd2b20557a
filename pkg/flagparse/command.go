package flagparse

import (
	"fmt"

	"github.com/marcus0x62/backuptools/pkg/util"
)

// Command defines the subcommand to execute.
type Command int

const (
	None Command = iota
	// Maintain runs the full batch: prune, compact and check both engines
	// for every enabled target, then audit freshness.
	Maintain
	// Audit runs only the read-only freshness audit.
	Audit
	// Init writes a commented default registry file.
	Init
	Version
)

var commandToString = map[Command]string{
	None:     "none",
	Maintain: "maintain",
	Audit:    "audit",
	Init:     "init",
	Version:  "version",
}

var stringToCommand map[string]Command

func init() {
	stringToCommand = util.InvertMap(commandToString)
}

func (c Command) String() string {
	if str, ok := commandToString[c]; ok {
		return str
	}
	return fmt.Sprintf("unknown_command(%d)", c)
}

func ParseCommand(s string) (Command, error) {
	if command, ok := stringToCommand[s]; ok {
		return command, nil
	}
	return None, fmt.Errorf("invalid command: %q. Must be 'maintain', 'audit', 'init', or 'version'", s)
}
