package logging

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewFileSink returns a size-rotated log writer. CI runners invoke self21ctl
// repeatedly against the same workspace, so the build log is capped rather
// than allowed to grow without bound.
func NewFileSink(path string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
}
