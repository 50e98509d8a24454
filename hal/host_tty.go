package hal

import (
	"context"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/mattn/go-tty"
)

// ctrlC arrives as a plain byte once the terminal is in raw mode.
const ctrlC = 0x03

// readTTY feeds raw keystrokes from the controlling terminal into kbd until
// ctx is cancelled; Ctrl-C calls interrupt. It is a no-op when stdin is not a
// terminal.
func readTTY(ctx context.Context, kbd *hostKeyboard, log Logger, interrupt func()) {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return
	}
	t, err := tty.Open()
	if err != nil {
		log.WriteLineString(fmt.Sprintf("hal: tty keyboard unavailable: %v", err))
		return
	}
	go func() {
		<-ctx.Done()
		_ = t.Close()
	}()
	go func() {
		for {
			r, err := t.ReadRune()
			if err != nil {
				return
			}
			if r == ctrlC {
				interrupt()
				return
			}
			kbd.emit(ttyKeyEvent(r))
		}
	}()
}

func ttyKeyEvent(r rune) KeyEvent {
	switch r {
	case '\r', '\n':
		return KeyEvent{Code: KeyEnter, Press: true, Rune: '\n'}
	case 0x1b:
		return KeyEvent{Code: KeyEscape, Press: true}
	case 0x7f, 0x08:
		return KeyEvent{Code: KeyBackspace, Press: true}
	case '\t':
		return KeyEvent{Code: KeyTab, Press: true, Rune: '\t'}
	}
	return KeyEvent{Press: true, Rune: r}
}
