package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeXML(t *testing.T) {
	t.Run("nested text is trimmed", func(t *testing.T) {
		v, err := decodeXML([]byte("<a>\n  <b> hi </b>\n</a>"))
		require.NoError(t, err)
		root := v.(*XMLNode)
		assert.Equal(t, "", root.Text)
		assert.Equal(t, "hi", root.Find("b").Text)
	})

	tests := []struct {
		name string
		body string
	}{
		{"stray end element", "</q>"},
		{"empty document", ""},
		{"whitespace only", "   "},
		{"multiple roots", "<a/><b/>"},
		{"unclosed element", "<a><b></a>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeXML([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}

func TestDecodeJSONAndYAML(t *testing.T) {
	v, err := decodeJSON([]byte(`[1,"a",null]`))
	require.NoError(t, err)
	assert.Equal(t, []any{float64(1), "a", nil}, v)

	_, err = decodeJSON([]byte(""))
	assert.Error(t, err)

	v, err = decodeYAML([]byte("- 1\n- a\n"))
	require.NoError(t, err)
	assert.Equal(t, []any{1, "a"}, v)

	v, err = decodeText([]byte("plain"))
	require.NoError(t, err)
	assert.Equal(t, "plain", v)
}
