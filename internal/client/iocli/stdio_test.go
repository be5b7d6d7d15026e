package iocli

import (
	"bytes"
	"io"
	"os"
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

func TestPrintlnAndPrintf(t *testing.T) {
	var out bytes.Buffer
	stdio := New(strings.NewReader(""), &out)

	stdio.Println("hello", "world")
	stdio.Printf("test %d %s\n", 1, "abc")
	_, err := stdio.Write([]byte("raw"))
	require.NoError(t, err)

	assert.Equal(t, "hello world\ntest 1 abc\nraw", out.String())
}

func TestReadInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "line", input: "local\n", want: "local"},
		{name: "spaces trimmed", input: "  server \r\n", want: "server"},
		{name: "no trailing newline", input: "merged", want: "merged"},
		{name: "empty input", input: "", wantErr: io.EOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			stdio := New(strings.NewReader(tt.input), &out)

			got, err := stdio.ReadInput("Choice: ")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "Choice: ", out.String())
		})
	}
}

func TestReadInput_Sequential(t *testing.T) {
	stdio := New(strings.NewReader("first\nsecond\n"), io.Discard)

	first, err := stdio.ReadInput("")
	require.NoError(t, err)
	second, err := stdio.ReadInput("")
	require.NoError(t, err)

	assert.Equal(t, "first", first)
	assert.Equal(t, "second", second)
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, New(strings.NewReader(""), &bytes.Buffer{}).IsTerminal())

	// Файл - не терминал
	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	assert.False(t, New(strings.NewReader(""), f).IsTerminal())
}
