package supervisor

import (
	"bufio"
	"io"

	"go.uber.org/zap"

	"github.com/craft-console/backend/internal/model"
)

// maxLineSize bounds a single console line. Game servers occasionally dump
// very long stack traces on one line.
const maxLineSize = 1024 * 1024

// readLines splits r into newline-delimited lines and hands each one to emit
// as soon as it is complete. It runs until the stream ends or errors; end of
// stream is normal termination and is not surfaced upward.
func readLines(r io.Reader, source model.Source, emit func(model.LogLine), log *zap.SugaredLogger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		emit(model.LogLine{Source: source, Text: scanner.Text()})
	}
	if err := scanner.Err(); err != nil {
		log.Debugw("line reader stopped on error", "source", source, "error", err)
		return
	}
	log.Debugw("line reader reached end of stream", "source", source)
}
