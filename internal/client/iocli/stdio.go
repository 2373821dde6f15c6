package iocli

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Stream реализация IO поверх произвольных reader/writer
type Stream struct {
	in  io.Reader
	out io.Writer
}

// NewStdio returns IO bound to the process stdin and stdout.
func NewStdio() IO {
	return New(os.Stdin, os.Stdout)
}

// New returns IO bound to in and out.
func New(in io.Reader, out io.Writer) IO {
	return &Stream{in: in, out: out}
}

func (s *Stream) Println(a ...any) {
	_, _ = fmt.Fprintln(s.out, a...)
}

func (s *Stream) Printf(format string, a ...any) {
	_, _ = fmt.Fprintf(s.out, format, a...)
}

func (s *Stream) Write(p []byte) (int, error) {
	return s.out.Write(p)
}

func (s *Stream) ReadAll() ([]byte, error) {
	if s.in == nil {
		return nil, io.EOF
	}
	return io.ReadAll(s.in)
}

// IsTerminal true только для *os.File, подключенного к терминалу
func (s *Stream) IsTerminal() bool {
	f, ok := s.out.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
