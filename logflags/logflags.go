// Package logflags toggles per component logging.  Components log through
// logrus; disabled components still emit warnings and errors.
package logflags

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	debugger bool
	jit      bool
	ptrace   bool

	logOut io.Writer = os.Stderr
)

// Setup enables logging for a comma separated list of components
// ("debugger", "jit", "ptrace").  An empty list with enabled set turns on
// every component.
func Setup(enabled bool, components string) error {
	if !enabled {
		return nil
	}

	if components == "" {
		debugger = true
		jit = true
		ptrace = true
		return nil
	}

	for _, component := range strings.Split(components, ",") {
		switch strings.TrimSpace(component) {
		case "debugger":
			debugger = true
		case "jit":
			jit = true
		case "ptrace":
			ptrace = true
		default:
			return fmt.Errorf("invalid log component: %s", component)
		}
	}

	return nil
}

// SetOutput redirects all component logging, e.g. to a log file.
func SetOutput(w io.Writer) {
	logOut = w
}

func makeLogger(enabled bool, fields logrus.Fields) logrus.FieldLogger {
	logger := logrus.New()
	logger.SetFormatter(
		&logrus.TextFormatter{
			DisableColors:   true,
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05-0700",
		})
	logger.SetOutput(logOut)

	if enabled {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}

	return logger.WithFields(fields)
}

func DebuggerLogger() logrus.FieldLogger {
	return makeLogger(debugger, logrus.Fields{"layer": "debugger"})
}

func JitLogger() logrus.FieldLogger {
	return makeLogger(jit, logrus.Fields{"layer": "jit"})
}

func PtraceLogger() logrus.FieldLogger {
	return makeLogger(ptrace, logrus.Fields{"layer": "ptrace"})
}
