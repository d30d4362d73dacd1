package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/pomoflo/internal/engine"
	"github.com/roach88/pomoflo/internal/motion"
	"github.com/roach88/pomoflo/internal/session"
	"github.com/roach88/pomoflo/internal/settings"
)

// lineKind says what a line typed into `pomoflo run` asks for.
type lineKind int

const (
	lineEmpty lineKind = iota
	lineCommand
	lineStatus
	lineHelp
	lineQuit
)

type lineAction struct {
	kind lineKind
	cmd  engine.Command
}

const lineHelpText = `commands:
  start | pause | reset
  switch <pomodoro|short|long>
  qr                       quick start a focus session
  sound <id> | sound toggle <id> | sound off
  focus on|off|toggle      Super Focus Mode
  motion <x> <y> <z>       feed one accelerometer sample
  settings key=value...    pomodoro, short, long, interval (minutes)
  status | help | quit`

// parseLine turns one input line into an action.
func parseLine(line string) (lineAction, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return lineAction{kind: lineEmpty}, nil
	}
	verb, args := strings.ToLower(fields[0]), fields[1:]

	command := func(c engine.Command) (lineAction, error) {
		return lineAction{kind: lineCommand, cmd: c}, nil
	}

	switch verb {
	case "start":
		return command(engine.Start())
	case "pause":
		return command(engine.Pause())
	case "reset":
		return command(engine.Reset())
	case "qr", "quick":
		return command(engine.QuickStart())
	case "switch":
		if len(args) != 1 {
			return lineAction{}, errors.New("usage: switch <pomodoro|short|long>")
		}
		p, err := session.ParsePhase(args[0])
		if err != nil {
			return lineAction{}, err
		}
		return command(engine.SwitchPhase(p))
	case "sound":
		switch {
		case len(args) == 1 && args[0] == "off":
			return command(engine.StopSound())
		case len(args) == 1:
			return command(engine.SelectSound(args[0]))
		case len(args) == 2 && args[0] == "toggle":
			return command(engine.ToggleSound(args[1]))
		default:
			return lineAction{}, errors.New("usage: sound <id> | sound toggle <id> | sound off")
		}
	case "focus":
		if len(args) != 1 {
			return lineAction{}, errors.New("usage: focus on|off|toggle")
		}
		switch args[0] {
		case "on":
			return command(engine.SetMotion(true))
		case "off":
			return command(engine.SetMotion(false))
		case "toggle":
			return command(engine.ToggleMotion())
		default:
			return lineAction{}, fmt.Errorf("focus: expected on, off or toggle, got %q", args[0])
		}
	case "motion":
		if len(args) != 3 {
			return lineAction{}, errors.New("usage: motion <x> <y> <z>")
		}
		return command(engine.MotionSample(motion.ParseSample(args)))
	case "settings":
		p, err := parseSettings(args)
		if err != nil {
			return lineAction{}, err
		}
		return command(engine.UpdateSettings(p))
	case "status":
		return lineAction{kind: lineStatus}, nil
	case "help", "?":
		return lineAction{kind: lineHelp}, nil
	case "quit", "exit", "q":
		return lineAction{kind: lineQuit}, nil
	default:
		return lineAction{}, fmt.Errorf("unknown command %q (try help)", verb)
	}
}

// parseSettings reads key=value pairs into a partial update.
func parseSettings(args []string) (settings.Partial, error) {
	var p settings.Partial
	if len(args) == 0 {
		return p, errors.New("usage: settings key=value...")
	}
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok {
			return p, fmt.Errorf("expected key=value, got %q", arg)
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return p, fmt.Errorf("%s: %q is not a whole number", key, raw)
		}
		if err := p.Set(key, n); err != nil {
			return p, err
		}
	}
	return p, nil
}
