package chat

import (
	"bytes"
	"encoding/json"
	"net/http"
)

// Frame prefixes of the streaming wire protocol.
const (
	dataPrefix  = "0:"
	errorPrefix = "3:"
)

// DataFrame encodes one content chunk as `0:"<json string>"\n`.
func DataFrame(s string) []byte { return frame(dataPrefix, s) }

// ErrorFrame encodes a terminal error as `3:"<json string>"\n`.
func ErrorFrame(s string) []byte { return frame(errorPrefix, s) }

func frame(prefix, s string) []byte {
	var buf bytes.Buffer
	buf.WriteString(prefix)
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s) // Encode terminates the value with '\n'
	return buf.Bytes()
}

// FrameWriter writes frames to an HTTP response, flushing after each one.
type FrameWriter struct {
	w      http.ResponseWriter
	opened bool
}

func NewFrameWriter(w http.ResponseWriter) *FrameWriter {
	return &FrameWriter{w: w}
}

// Open commits the 200 text/plain response. It is safe to call more than once.
func (f *FrameWriter) Open() error {
	if f.opened {
		return nil
	}
	f.opened = true
	f.w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	f.w.WriteHeader(http.StatusOK)
	f.flush()
	return nil
}

// Opened reports whether the response status has been committed.
func (f *FrameWriter) Opened() bool { return f.opened }

func (f *FrameWriter) Emit(chunk string) error {
	return f.write(DataFrame(chunk))
}

// Fail terminates the stream with an error frame.
func (f *FrameWriter) Fail(msg string) error {
	return f.write(ErrorFrame(msg))
}

func (f *FrameWriter) write(b []byte) error {
	if err := f.Open(); err != nil {
		return err
	}
	if _, err := f.w.Write(b); err != nil {
		return err
	}
	f.flush()
	return nil
}

func (f *FrameWriter) flush() {
	if fl, ok := f.w.(http.Flusher); ok {
		fl.Flush()
	}
}
