package echoapi

import (
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Marwebofficial/studio-sub000/core"
	"github.com/Marwebofficial/studio-sub000/core/tutor"
)

const (
	streamErrorHeader  = "X-Stream-Error"
	streamContentType  = "text/plain; charset=utf-8"
	streamErrorMessage = "answer generation failed"
)

var errStreamClosed = errors.New("stream already closed")

// httpStream relays an answer to an HTTP client as a chunked text/plain body.
// Nothing is committed before the first frame, so an early failure can still be reported as a JSON error.
// A failure after the first frame is reported in the X-Stream-Error trailer.
type httpStream struct {
	res *echo.Response

	mu       sync.Mutex
	started  bool
	closed   bool
	abortErr error
}

var _ tutor.Stream = (*httpStream)(nil)

func newHTTPStream(res *echo.Response) *httpStream {
	return &httpStream{res: res}
}

func (s *httpStream) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errStreamClosed
	}
	if !s.started {
		s.commit()
	}
	if _, err := s.res.Write(p); err != nil {
		return errors.Wrap(err, "writing answer frame")
	}
	s.res.Flush()
	return nil
}

func (s *httpStream) Abort(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.abortErr == nil {
		s.abortErr = err
	}
}

// Close ends the body. An aborted stream that never started is left uncommitted.
func (s *httpStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errStreamClosed
	}
	s.closed = true

	switch {
	case s.started && s.abortErr != nil:
		s.res.Header().Set(streamErrorHeader, trailerMessage(s.abortErr))
	case !s.started && s.abortErr == nil:
		// empty answer
		s.commit()
	}
	return nil
}

// Started reports whether any byte was sent to the client.
func (s *httpStream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *httpStream) commit() {
	header := s.res.Header()
	header.Set(echo.HeaderContentType, streamContentType)
	header.Set("X-Content-Type-Options", "nosniff")
	header.Set("Cache-Control", "no-cache")
	header.Set("Trailer", streamErrorHeader)
	s.res.WriteHeader(http.StatusOK)
	s.res.Flush()
	s.started = true
}

func trailerMessage(err error) string {
	if core.IsValidationError(err) {
		return err.Error()
	}
	return streamErrorMessage
}

// finishStream turns the outcome of a relay into the handler result.
// Errors are returned to the error handler only while nothing was sent.
func finishStream(out *httpStream, err error, logger core.Logger) error {
	if err == nil {
		return nil
	}
	if !out.Started() {
		if errors.Cause(err) == tutor.ErrConsumerGone {
			return nil
		}
		return err
	}
	if errors.Cause(err) != tutor.ErrConsumerGone {
		logger.Warn("answer stream aborted after the first byte: " + err.Error())
	}
	return nil
}
