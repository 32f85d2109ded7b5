package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/pattyshack/jitdbg/config"
	"github.com/pattyshack/jitdbg/debugger"
)

var errQuit = errors.New("quit")

type command struct {
	name        string
	usage       string
	description string

	run func(repl *repl, args []string) error
}

type repl struct {
	db *debugger.Debugger

	cfg *config.Config

	commands []command

	// Entering an empty line repeats the previous command.
	lastLine string
}

func newRepl(db *debugger.Debugger, cfg *config.Config) *repl {
	r := &repl{
		db:  db,
		cfg: cfg,
	}

	r.commands = []command{
		{
			name:        "continue",
			usage:       "continue",
			description: "resume the process until the next stop",
			run:         (*repl).cmdContinue,
		},
		{
			name:        "step",
			usage:       "step",
			description: "execute a single instruction",
			run:         (*repl).cmdStep,
		},
		{
			name:        "breakpoint",
			usage:       "breakpoint [list | set|remove|enable|disable <addr>]",
			description: "manage breakpoints",
			run:         (*repl).cmdBreakpoint,
		},
		{
			name:        "memory",
			usage:       "memory read <addr> [len]",
			description: "hexdump process memory",
			run:         (*repl).cmdMemory,
		},
		{
			name:        "disassemble",
			usage:       "disassemble [<addr>]",
			description: "disassemble at an address (default: current pc)",
			run:         (*repl).cmdDisassemble,
		},
		{
			name:        "status",
			usage:       "status",
			description: "show the process state and current pc",
			run:         (*repl).cmdStatus,
		},
		{
			name:        "jit",
			usage:       "jit <setup | list | watch | break | add | disasm>",
			description: "jit compiled function tracking",
			run:         (*repl).cmdJit,
		},
		{
			name:        "help",
			usage:       "help",
			description: "show this message",
			run:         (*repl).cmdHelp,
		},
		{
			name:        "quit",
			usage:       "quit",
			description: "exit the debugger",
			run: func(*repl, []string) error {
				return errQuit
			},
		},
	}

	return r
}

// match resolves a possibly abbreviated command name.  "c" matches
// "continue".  Ambiguous abbreviations match nothing.
func (r *repl) match(name string) *command {
	var found *command
	for idx := range r.commands {
		cmd := &r.commands[idx]
		if cmd.name == name {
			return cmd
		}

		if strings.HasPrefix(cmd.name, name) {
			if found != nil {
				return nil
			}
			found = cmd
		}
	}

	return found
}

func (r *repl) run() error {
	rl, err := readline.New(r.cfg.Prompt)
	if err != nil {
		return fmt.Errorf("failed to initialize line reader: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt {
			continue
		} else if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			line = r.lastLine
			if line == "" {
				continue
			}
		}
		r.lastLine = line

		err = r.dispatch(line)
		if err == errQuit {
			return nil
		} else if err != nil {
			fmt.Println("error:", err)
		}
	}
}

func (r *repl) dispatch(line string) error {
	fields := strings.Fields(line)

	cmd := r.match(fields[0])
	if cmd == nil {
		return fmt.Errorf("unknown command: %s (try \"help\")", fields[0])
	}

	return cmd.run(r, fields[1:])
}

func (r *repl) cmdHelp([]string) error {
	for _, cmd := range r.commands {
		fmt.Printf("  %-50s %s\n", cmd.usage, cmd.description)
	}
	return nil
}
