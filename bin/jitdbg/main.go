package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/pattyshack/jitdbg/config"
	"github.com/pattyshack/jitdbg/debugger"
	"github.com/pattyshack/jitdbg/logflags"
)

func main() {
	pid := flag.Int("pid", 0, "attach to a running process instead of spawning")
	enableLog := flag.Bool("log", false, "enable component logging")
	logComponents := flag.String(
		"log-components",
		"",
		"comma separated list of components to log (debugger,jit,ptrace)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "warning:", err)
	}

	if !*enableLog && cfg.Log {
		*enableLog = true
		if *logComponents == "" {
			*logComponents = cfg.LogComponents
		}
	}

	err = logflags.Setup(*enableLog, *logComponents)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	args := flag.Args()

	var db *debugger.Debugger
	switch {
	case *pid != 0 && len(args) > 0:
		fmt.Fprintln(os.Stderr, "error: cannot use -pid with a command")
		os.Exit(1)
	case *pid != 0:
		db, err = debugger.AttachTo(*pid)
	case len(args) > 0:
		db, err = debugger.StartAndAttachTo(args[0], args[1:]...)
	default:
		fmt.Fprintln(os.Stderr, "usage: jitdbg [-pid <pid>] [<cmd> <args>...]")
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	defer db.Close()

	if len(cfg.JitWatchPatterns) > 0 {
		added := db.JitRegistry().AddWatchPatterns(cfg.JitWatchPatterns...)
		fmt.Printf("watching %d configured jit pattern(s)\n", added)
	}

	err = newRepl(db, cfg).run()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
