package iocli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Проверяем что NewStdio возвращает валидный объект
func TestNewStdio(t *testing.T) {
	stdio := NewStdio()
	assert.NotNil(t, stdio)
}

func TestStream_Output(t *testing.T) {
	var buf bytes.Buffer
	s := New(nil, &buf)

	s.Println("hello", "world")
	s.Printf("test %d %s\n", 1, "abc")
	_, err := s.Write([]byte("raw"))
	require.NoError(t, err)

	assert.Equal(t, "hello world\ntest 1 abc\nraw", buf.String())
}

// Тест ReadAll: читаем payload из буфера вместо os.Stdin
func TestStream_ReadAll(t *testing.T) {
	s := New(strings.NewReader(`{"title":"Go"}`), io.Discard)

	data, err := s.ReadAll()
	require.NoError(t, err)
	assert.Equal(t, `{"title":"Go"}`, string(data))
}

func TestStream_ReadAll_NoInput(t *testing.T) {
	_, err := New(nil, io.Discard).ReadAll()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStream_IsTerminal(t *testing.T) {
	assert.False(t, New(nil, &bytes.Buffer{}).IsTerminal())

	// обычный файл не терминал
	f, err := os.Create(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.False(t, New(nil, f).IsTerminal())
}
