package protocol

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedAll pushes input through p and returns the number of bytes consumed
// when the header completed.
func feedAll(t *testing.T, p *Parser, input []byte) (int, error) {
	t.Helper()
	for i, b := range input {
		done, err := p.Feed(b)
		if err != nil {
			return i + 1, err
		}
		if done {
			return i + 1, nil
		}
	}
	return len(input), nil
}

func putHeader(order ByteOrder, name string, size uint64) []byte {
	b := AppendRequest(nil, CommandPut, name)
	return AppendUint64(order, b, size)
}

func TestParser_ValidRequests(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		want  Request
	}{
		{"list", []byte("LIST\n"), Request{Command: CommandList}},
		{"get", []byte("GET a.txt\n"), Request{Command: CommandGet, Name: "a.txt"}},
		{"delete", []byte("DELETE b.bin\n"), Request{Command: CommandDelete, Name: "b.bin"}},
		{"put", putHeader(LittleEndian, "a.txt", 5), Request{Command: CommandPut, Name: "a.txt", Size: 5}},
		{"put zero", putHeader(LittleEndian, "empty", 0), Request{Command: CommandPut, Name: "empty"}},
		{"name with spaces", []byte("GET my file.txt\n"), Request{Command: CommandGet, Name: "my file.txt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser(LittleEndian)
			n, err := feedAll(t, p, tt.input)
			require.NoError(t, err)
			assert.True(t, p.Done())
			assert.Equal(t, len(tt.input), n)
			assert.Equal(t, tt.want, p.Request())
		})
	}
}

func TestParser_StopsAtHeaderBoundary(t *testing.T) {
	p := NewParser(LittleEndian)
	input := append(putHeader(LittleEndian, "a.txt", 5), "hello"...)

	n, err := feedAll(t, p, input)
	require.NoError(t, err)
	assert.Equal(t, len(input)-5, n)
	assert.Equal(t, "hello", string(input[n:]))
	assert.Equal(t, n, p.Buffered())
}

func TestParser_BadRequests(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unknown command", "FETCH a.txt\n"},
		{"lowercase command", "list\n"},
		{"list with argument", "LIST all\n"},
		{"get without name", "GET\n"},
		{"get with empty name", "GET \n"},
		{"slash in name", "GET ../etc/passwd\n"},
		{"dot dot", "DELETE ..\n"},
		{"nul in name", "GET a\x00b\n"},
		{"empty line", "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParser(LittleEndian)
			_, err := feedAll(t, p, []byte(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrBadRequest), err.Error())
			assert.Equal(t, MsgBadRequest, WireMessage(err))
		})
	}
}

func TestParser_HeaderTooLong(t *testing.T) {
	p := NewParser(LittleEndian)
	_, err := feedAll(t, p, []byte(strings.Repeat("A", MaxHeaderSize+1)))
	assert.ErrorIs(t, err, ErrHeaderTooLong)
}

func TestParser_Incomplete(t *testing.T) {
	p := NewParser(LittleEndian)
	input := putHeader(LittleEndian, "a.txt", 5)

	_, err := feedAll(t, p, input[:len(input)-3])
	require.NoError(t, err)
	assert.False(t, p.Done())

	_, err = feedAll(t, p, input[len(input)-3:])
	require.NoError(t, err)
	assert.True(t, p.Done())
	assert.Equal(t, uint64(5), p.Request().Size)
}

func TestParser_Reset(t *testing.T) {
	p := NewParser(BigEndian)
	_, err := feedAll(t, p, putHeader(BigEndian, "one", 1<<40))
	require.NoError(t, err)
	assert.Equal(t, uint64(1<<40), p.Request().Size)

	p.Reset()
	assert.False(t, p.Done())
	assert.Zero(t, p.Buffered())

	_, err = feedAll(t, p, []byte("LIST\n"))
	require.NoError(t, err)
	assert.Equal(t, Request{Command: CommandList}, p.Request())
}
