package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"
)

var (
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
)

// consoleReporter prints worker status lines, green for a zero result code
// and red for a failure. Lines without a code are printed as is.
type consoleReporter struct {
	mu sync.Mutex
	w  io.Writer
}

func newConsoleReporter(w io.Writer) *consoleReporter {
	return &consoleReporter{w: w}
}

func (c *consoleReporter) Report(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	code, ok := statusCode(text)
	switch {
	case !ok:
		fmt.Fprintln(c.w, text)
	case code == 0:
		fmt.Fprintln(c.w, green(text))
	default:
		fmt.Fprintln(c.w, red(text))
	}
}

// statusCode extracts the result code from lines shaped "<what>:<code>" with
// an optional " (<message>)" suffix.
func statusCode(text string) (int, bool) {
	for i := strings.LastIndex(text, ":"); i >= 0; i = strings.LastIndex(text[:i], ":") {
		num, _, _ := strings.Cut(text[i+1:], " (")
		if code, err := strconv.Atoi(num); err == nil {
			return code, true
		}
	}
	return 0, false
}
