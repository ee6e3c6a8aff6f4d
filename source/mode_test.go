package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMode(t *testing.T) {
	testCases := []struct {
		input    string
		expected Mode
		fails    bool
	}{
		{input: "http", expected: ModeHTTP},
		{input: "HTTPS", expected: ModeHTTP},
		{input: "ftp", expected: ModeFTP},
		{input: "File", expected: ModeFile},
		{input: "gopher", fails: true},
	}
	for _, tt := range testCases {
		t.Run(tt.input, func(t *testing.T) {
			mode, err := ParseMode(tt.input)
			if tt.fails {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, mode)
		})
	}
}

func TestModeOf(t *testing.T) {
	assert.Equal(t, ModeHTTP, ModeOf("https://example.com"))
	assert.Equal(t, ModeHTTP, ModeOf(" HTTP://example.com"))
	assert.Equal(t, ModeFTP, ModeOf("ftp://example.com"))
	assert.Equal(t, ModeFile, ModeOf("/var/data"))
	assert.Equal(t, ModeFile, ModeOf("file:///var/data"))
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Config{Mode: Mode(9), Base: "x"})
	assert.Error(t, err)

	_, err = New(Config{Mode: ModeHTTP})
	assert.Error(t, err)

	o, err := New(Config{Mode: ModeFile})
	assert.NoError(t, err)
	assert.Equal(t, ModeFile, o.Mode())
}
