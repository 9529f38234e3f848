package mg

import (
	"io"
	"log"
)

var discardLogger = NewLogger(io.Discard)

type Logger struct {
	*log.Logger
	Dbg *log.Logger
}

func NewLogger(w io.Writer) *Logger {
	return &Logger{
		Logger: log.New(w, "", log.Lshortfile),
		Dbg:    log.New(w, "DBG: ", log.Lshortfile),
	}
}

// NewQuietLogger is like NewLogger, but discards debug output
func NewQuietLogger(w io.Writer) *Logger {
	lg := NewLogger(w)
	lg.Dbg.SetOutput(io.Discard)
	return lg
}

func orDiscard(lg *Logger) *Logger {
	if lg == nil {
		return discardLogger
	}
	return lg
}
