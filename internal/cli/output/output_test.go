package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{in: "", want: FormatTable},
		{in: "TABLE", want: FormatTable},
		{in: "json", want: FormatJSON},
		{in: " yml ", want: FormatYAML},
		{in: "xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrinter_Print(t *testing.T) {
	table := NewTableData("Name", "Size")
	table.AddRow("a.txt", "12B")
	table.AddRow("b.bin", "4KiB")

	t.Run("table", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewPrinter(&buf, FormatTable, false).Print(table))
		out := buf.String()
		assert.Contains(t, out, "NAME")
		assert.Contains(t, out, "a.txt")
		assert.Contains(t, out, "4KiB")
	})

	t.Run("table falls back to json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewPrinter(&buf, FormatTable, false).Print(map[string]int{"count": 2}))
		assert.JSONEq(t, `{"count": 2}`, buf.String())
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewPrinter(&buf, FormatJSON, false).Print([]string{"a.txt", "b.bin"}))
		assert.JSONEq(t, `["a.txt", "b.bin"]`, buf.String())
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewPrinter(&buf, FormatYAML, false).Print(map[string]string{"name": "a.txt"}))
		assert.Equal(t, "name: a.txt\n", buf.String())
	})

	t.Run("unknown", func(t *testing.T) {
		assert.Error(t, NewPrinter(&bytes.Buffer{}, Format("xml"), false).Print(table))
	})
}

func TestPrinter_Status(t *testing.T) {
	var plain bytes.Buffer
	NewPrinter(&plain, FormatTable, false).Success("Stored %s", "a.txt")
	assert.Equal(t, "Stored a.txt\n", plain.String())

	var colored bytes.Buffer
	NewPrinter(&colored, FormatTable, true).Warning("careful")
	assert.Equal(t, "\033[33mcareful\033[0m\n", colored.String())
}

func TestPrintKeyValues(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintKeyValues(&buf, [][2]string{{"Address", "127.0.0.1:9000"}, {"Files", "3"}}))
	assert.Contains(t, buf.String(), "Address")
	assert.Contains(t, buf.String(), "127.0.0.1:9000")
}
