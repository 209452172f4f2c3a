package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

const spinnerInterval = 150 * time.Millisecond

// startSpinner renders a cosmetic progress indicator on w until the
// returned stop function is called. It shares no state with the operation
// it decorates, so stopping it is always safe regardless of how that
// operation ended. Nothing is drawn when w is not a terminal.
func startSpinner(w io.Writer, label string) func() {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return func() {}
	}

	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		frames := `|/-\`
		ticker := time.NewTicker(spinnerInterval)
		defer ticker.Stop()

		i := 0
		for {
			select {
			case <-done:
				fmt.Fprintf(w, "\r%s\r", strings.Repeat(" ", len(label)+2))
				return
			case <-ticker.C:
				fmt.Fprintf(w, "\r%c %s", frames[i%len(frames)], label)
				i++
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			<-finished
		})
	}
}
