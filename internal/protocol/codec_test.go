package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteOrder(t *testing.T) {
	t.Run("Parse", func(t *testing.T) {
		for in, want := range map[string]ByteOrder{"": LittleEndian, "little": LittleEndian, "BIG": BigEndian, "native": NativeEndian} {
			got, err := ParseByteOrder(in)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		}
		_, err := ParseByteOrder("middle")
		assert.Error(t, err)
	})

	t.Run("LittleEndianLayout", func(t *testing.T) {
		b := AppendUint64(LittleEndian, nil, 5)
		assert.Equal(t, []byte{5, 0, 0, 0, 0, 0, 0, 0}, b)
		assert.Equal(t, uint64(5), Uint64(LittleEndian, b))
	})

	t.Run("BigEndianLayout", func(t *testing.T) {
		b := make([]byte, SizeFieldLen)
		PutUint64(BigEndian, b, 5)
		assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 5}, b)
	})

	t.Run("NativeRoundTrip", func(t *testing.T) {
		b := AppendUint64(NativeEndian, nil, 0x0102030405060708)
		assert.Equal(t, uint64(0x0102030405060708), Uint64(NativeEndian, b))
	})

	t.Run("String", func(t *testing.T) {
		assert.Equal(t, "little", LittleEndian.String())
		assert.Equal(t, "big", BigEndian.String())
		assert.Equal(t, "native", NativeEndian.String())
	})
}

func TestResponses(t *testing.T) {
	assert.Equal(t, "OK\n", string(AppendOK(nil)))
	assert.Equal(t, "OK\n\x05\x00\x00\x00\x00\x00\x00\x00", string(AppendOKSize(nil, LittleEndian, 5)))
	assert.Equal(t, "ERROR\nUnknown file\n", string(AppendError(nil, MsgUnknownFile)))
	assert.Equal(t, "ERROR\nline one line two\n", string(AppendError(nil, "line one\nline two")))
}

func TestAppendRequest(t *testing.T) {
	assert.Equal(t, "LIST\n", string(AppendRequest(nil, CommandList, "ignored")))
	assert.Equal(t, "GET a.txt\n", string(AppendRequest(nil, CommandGet, "a.txt")))
	assert.Equal(t, "DELETE a.txt\n", string(AppendRequest(nil, CommandDelete, "a.txt")))
}

func TestReadStatus(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Status
		wantErr bool
	}{
		{"ok", "OK\n", Status{OK: true}, false},
		{"error", "ERROR\nUnknown file\n", Status{Message: "Unknown file"}, false},
		{"error without trailing newline", "ERROR\nBad request", Status{Message: "Bad request"}, false},
		{"garbage", "HELLO\n", Status{}, true},
		{"empty", "", Status{}, true},
		{"truncated error", "ERROR\n", Status{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadStatus(bufio.NewReader(strings.NewReader(tt.input)))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadSize(t *testing.T) {
	size, err := ReadSize(bytes.NewReader(AppendUint64(BigEndian, nil, 42)), BigEndian)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), size)

	_, err = ReadSize(bytes.NewReader([]byte{1, 2, 3}), LittleEndian)
	assert.Error(t, err)
}

func TestCommand(t *testing.T) {
	assert.Equal(t, CommandPut, ParseCommand("PUT"))
	assert.Equal(t, CommandUnknown, ParseCommand("put"))
	assert.Equal(t, "DELETE", CommandDelete.String())
	assert.Contains(t, CommandUnknown.String(), "UNKNOWN")
	assert.True(t, CommandGet.TakesName())
	assert.False(t, CommandList.TakesName())
}

func TestWireMessage(t *testing.T) {
	assert.Equal(t, MsgUnknownFile, WireMessage(NewError(MsgUnknownFile, errors.New("no such key"))))
	assert.Equal(t, MsgBadRequest, WireMessage(fmt.Errorf("wrap: %w", ErrInvalidName)))
	assert.Equal(t, "disk full", WireMessage(errors.New("disk full")))

	err := NewError(MsgBadFileSize, errors.New("overrun"))
	assert.Equal(t, "Bad file size: overrun", err.Error())
	assert.Equal(t, "overrun", errors.Unwrap(err).Error())
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("a.txt"))
	assert.NoError(t, ValidateName(".hidden"))
	assert.NoError(t, ValidateName(strings.Repeat("x", MaxNameLen)))
	assert.ErrorIs(t, ValidateName(strings.Repeat("x", MaxNameLen+1)), ErrInvalidName)
	assert.ErrorIs(t, ValidateName("a/b"), ErrBadRequest)
}
