package logging

import (
	"io"

	"go.uber.org/multierr"
)

// teeWriter hands every log line to all sinks. A failing sink does not keep the
// line from the others; the line counts as written when at least one took it.
type teeWriter struct {
	sinks []io.Writer
}

func newTeeWriter(sinks ...io.Writer) *teeWriter {
	return &teeWriter{sinks: sinks}
}

func (tw *teeWriter) Write(p []byte) (int, error) {
	var (
		err     error
		written bool
	)
	for _, sink := range tw.sinks {
		if _, werr := sink.Write(p); werr != nil {
			err = multierr.Append(err, werr)
			continue
		}
		written = true
	}

	if !written {
		return 0, err
	}
	// logrus reports a non-nil error on stderr, the partial failure still shows up there
	return len(p), err
}
