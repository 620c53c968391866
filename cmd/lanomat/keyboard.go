package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/frankferrari/lanomat/internal/logger"
)

// keyboard maps single key presses to operator actions
type keyboard struct {
	log     *logger.SlogLogger
	baseURL string
	quit    func()
	out     io.Writer
}

// handle performs the action bound to key and reports whether to stop listening
func (k *keyboard) handle(key byte) bool {
	switch key {
	case 'u', 'U':
		fmt.Fprintf(k.out, "%sPlayers reach the server at %s%s%s\n", green, yellow, k.baseURL, reset)
	case 'h', 'H':
		if k.log.IsHTTPLoggingEnabled() {
			k.log.DisableHTTPLogging()
			fmt.Fprintf(k.out, "%sHTTP logging disabled%s\n", yellow, reset)
		} else {
			k.log.EnableHTTPLogging()
			fmt.Fprintf(k.out, "%sHTTP logging enabled%s\n", green, reset)
		}
	case 'l', 'L':
		k.cycleLogLevel()
	case 'q', 'Q', 0x03: // Ctrl+C arrives as a byte in raw mode
		fmt.Fprintf(k.out, "%sShutting down server...%s\n", yellow, reset)
		k.quit()
		return true
	case '?':
		k.printHelp()
	}
	return false
}

// cycleLogLevel cycles through debug -> info -> warn -> error
func (k *keyboard) cycleLogLevel() {
	var next slog.Level
	switch k.log.GetLevel() {
	case slog.LevelDebug:
		next = slog.LevelInfo
	case slog.LevelInfo:
		next = slog.LevelWarn
	case slog.LevelWarn:
		next = slog.LevelError
	default:
		next = slog.LevelDebug
	}
	k.log.SetLevel(next)
	fmt.Fprintf(k.out, "%sLog level: %s%s%s\n", green, yellow, next, reset)
}

func (k *keyboard) printHelp() {
	fmt.Fprintf(k.out, "\n%s%s  Keyboard Shortcuts:%s\n", bold, green, reset)
	fmt.Fprintf(k.out, "    %su%s      - Show the address players join at\n", cyan, reset)
	fmt.Fprintf(k.out, "    %sh%s      - Toggle HTTP request logging\n", cyan, reset)
	fmt.Fprintf(k.out, "    %sl%s      - Cycle log level (debug → info → warn → error)\n", cyan, reset)
	fmt.Fprintf(k.out, "    %sq%s      - Quit server\n", cyan, reset)
	fmt.Fprintf(k.out, "    %s?%s      - Show this help\n\n", cyan, reset)
}

// readKeys feeds bytes from r to k until a key asks to stop or r fails
func readKeys(r io.Reader, k *keyboard) {
	buf := make([]byte, 1)
	for {
		n, err := r.Read(buf)
		if err != nil {
			return
		}
		if n == 1 && k.handle(buf[0]) {
			return
		}
	}
}
