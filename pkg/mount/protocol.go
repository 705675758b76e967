// Package mount drives the ROTSE mount controller over its line-oriented
// serial protocol and ties the pointing engine to it.
//
// Commands are ASCII lines of the form "$<Verb><Axis>[ <value>]" terminated
// by a carriage return. The controller answers every command with one line
// that echoes the command with "@" in place of "$" (for example
// "@PosRA 1853086"). Anything else, including "@Error ...", is a failure.
package mount

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// LineTerminator ends every command line.
const LineTerminator = "\r"

var (
	// ErrNoResponse is returned when the controller does not answer within
	// the response timeout on every attempt.
	ErrNoResponse = errors.New("no response from mount")

	// ErrBadResponse is returned when the answer does not echo the command.
	ErrBadResponse = errors.New("bad response from mount")

	// ErrUnknownCommand is returned when a command line cannot be parsed.
	ErrUnknownCommand = errors.New("unknown mount command")
)

// Axis selects one of the two mount axes.
type Axis int

const (
	AxisRA Axis = iota
	AxisDec
)

func (a Axis) String() string {
	switch a {
	case AxisRA:
		return "RA"
	case AxisDec:
		return "Dec"
	default:
		return fmt.Sprintf("Axis(%d)", int(a))
	}
}

// Verb is the action part of a command.
type Verb string

const (
	// VerbPos sets the target encoder position of an axis
	VerbPos Verb = "Pos"
	// VerbRun starts motion toward the target position
	VerbRun Verb = "Run"
	// VerbHalt stops the axis
	VerbHalt Verb = "Halt"
	// VerbHome drives the axis to its home switch
	VerbHome Verb = "Home"
)

// Command is a single controller command.
type Command struct {
	Verb  Verb
	Axis  Axis
	Value int
}

// PosCommand builds a "$Pos" command for axis.
func PosCommand(axis Axis, value int) Command {
	return Command{Verb: VerbPos, Axis: axis, Value: value}
}

// String renders the command line without its terminator.
func (c Command) String() string {
	if c.Verb == VerbPos {
		return fmt.Sprintf("$%s%s %d", c.Verb, c.Axis, c.Value)
	}
	return fmt.Sprintf("$%s%s", c.Verb, c.Axis)
}

// ParseCommand parses a command line as produced by Command.String.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, line)
	}
	word, arg, hasArg := strings.Cut(line[1:], " ")

	var cmd Command
	for _, v := range []Verb{VerbPos, VerbRun, VerbHalt, VerbHome} {
		if strings.HasPrefix(word, string(v)) {
			cmd.Verb = v
			word = strings.TrimPrefix(word, string(v))
			break
		}
	}
	if cmd.Verb == "" {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, line)
	}

	switch word {
	case "RA":
		cmd.Axis = AxisRA
	case "Dec":
		cmd.Axis = AxisDec
	default:
		return Command{}, fmt.Errorf("%w: unknown axis in %q", ErrUnknownCommand, line)
	}

	if cmd.Verb == VerbPos {
		if !hasArg {
			return Command{}, fmt.Errorf("%w: %q is missing a position", ErrUnknownCommand, line)
		}
		v, err := strconv.Atoi(strings.TrimSpace(arg))
		if err != nil {
			return Command{}, fmt.Errorf("%w: %q: %v", ErrUnknownCommand, line, err)
		}
		cmd.Value = v
	} else if hasArg {
		return Command{}, fmt.Errorf("%w: unexpected argument in %q", ErrUnknownCommand, line)
	}
	return cmd, nil
}

// checkResponse verifies that resp echoes cmd: same verb, same axis and,
// for "$Pos", the same position.
func checkResponse(cmd Command, resp string) error {
	resp = strings.TrimSpace(resp)
	if !strings.HasPrefix(resp, "@") {
		return fmt.Errorf("%w: %s answered %q", ErrBadResponse, cmd, resp)
	}
	echo, err := ParseCommand("$" + resp[1:])
	if err != nil || echo != cmd {
		return fmt.Errorf("%w: %s answered %q", ErrBadResponse, cmd, resp)
	}
	return nil
}

// scanLines splits controller output on carriage returns and newlines.
func scanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i, b := range data {
		if b == '\r' || b == '\n' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}
