package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	successColor = color.New(color.FgGreen)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	dimColor     = color.New(color.Faint)
	headerColor  = color.New(color.FgCyan, color.Bold)
)

// stderr receives status lines; stdout is reserved for records.
var stderr io.Writer = color.Error

func success(format string, args ...any) {
	successColor.Fprintf(stderr, format+"\n", args...)
}

func warn(format string, args ...any) {
	warningColor.Fprintf(stderr, format+"\n", args...)
}

func note(format string, args ...any) {
	dimColor.Fprintf(stderr, format+"\n", args...)
}

func printError(err error) {
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	fmt.Fprintf(stderr, "%s %s\n", errorColor.Sprint("Error:"), msg)
}

// startSpinner shows an activity indicator on an interactive stderr. The
// returned func stops it.
func startSpinner(suffix string) func() {
	if !isatty.IsTerminal(os.Stderr.Fd()) && !isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = " " + suffix
	s.Start()
	return s.Stop
}

// confirm asks a yes/no question on stderr and reads the answer from in.
func confirm(in io.Reader, question string) bool {
	fmt.Fprintf(stderr, "%s [y/N]: ", question)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func elapsed(start time.Time) string {
	return fmt.Sprintf("%.2fs", time.Since(start).Seconds())
}
