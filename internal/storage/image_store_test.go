package storage

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDataURI(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G'}
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)

	contentType, data, err := DecodeDataURI(uri)
	require.NoError(t, err)
	assert.Equal(t, "image/png", contentType)
	assert.Equal(t, raw, data)
}

func TestDecodeDataURIRejectsOtherInputs(t *testing.T) {
	cases := map[string]string{
		"plain url":      "https://example.com/a.png",
		"not base64":     "data:image/png,abc",
		"not an image":   "data:text/plain;base64,aGVsbG8=",
		"missing comma":  "data:image/png;base64",
		"corrupt base64": "data:image/png;base64,@@@",
	}
	for name, uri := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := DecodeDataURI(uri)
			assert.ErrorIs(t, err, ErrInvalidDataURI)
		})
	}
}

func TestKeyFromURL(t *testing.T) {
	s := &S3ImageStore{cfg: Config{PublicBaseURL: "https://cdn.example.com/public/"}}

	key, ok := s.keyFromURL("https://cdn.example.com/public/generations/2025/01/02/a.png")
	require.True(t, ok)
	assert.Equal(t, "generations/2025/01/02/a.png", key)

	_, ok = s.keyFromURL("data:image/png;base64,AAAA")
	assert.False(t, ok)
}

func TestGenerateKeyUsesPrefixAndExtension(t *testing.T) {
	s := &S3ImageStore{cfg: Config{Prefix: "/generations/"}}
	key := s.generateKey("image/webp")
	assert.Regexp(t, `^generations/\d{4}/\d{2}/\d{2}/[0-9a-f-]{36}\.webp$`, key)
}
