package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKey(t *testing.T) {
	key := NewKey("Banner.PNG")
	assert.True(t, strings.HasPrefix(key, KeyPrefix))
	assert.True(t, strings.HasSuffix(key, ".png"))
	assert.NotEqual(t, key, NewKey("Banner.PNG"))
}

func TestLocalStorage_RoundTrip(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir(), "http://localhost:8080/")
	require.NoError(t, err)
	ctx := context.Background()
	key := KeyPrefix + "hello.txt"

	require.NoError(t, s.Put(ctx, key, "text/plain", strings.NewReader("hello")))

	r, err := s.Get(ctx, key)
	require.NoError(t, err)
	body, err := io.ReadAll(r)
	r.Close()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))

	assert.Equal(t, "http://localhost:8080/files/"+key, s.PublicURL(key))

	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Get(ctx, key)
	assert.True(t, errors.Is(err, errors.NotFound))
}

func TestLocalStorage_RejectsEscapingKeys(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir(), "")
	require.NoError(t, err)

	err = s.Put(context.Background(), "../outside.txt", "text/plain", strings.NewReader("x"))
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestPolicies_Validate(t *testing.T) {
	p := DefaultPolicies(1)

	assert.NoError(t, p.Validate(CategoryImage, "cat.jpg", "image/jpeg", 1024))
	assert.NoError(t, p.Validate(CategoryFile, "terms.pdf", "application/pdf", 1024))

	cases := []struct {
		name                 string
		category, file, mime string
		size                 int64
	}{
		{"too large", CategoryImage, "cat.jpg", "image/jpeg", 2 * 1024 * 1024},
		{"wrong mime", CategoryImage, "cat.jpg", "video/mp4", 10},
		{"wrong extension", CategoryAudio, "song.exe", "audio/mpeg", 10},
		{"unknown category", "document", "a.txt", "text/plain", 10},
	}
	for _, tc := range cases {
		err := p.Validate(tc.category, tc.file, tc.mime, tc.size)
		assert.True(t, errors.Is(err, errors.NotValid), tc.name)
	}
}

func TestCalculateSHA256(t *testing.T) {
	sum, err := CalculateSHA256(strings.NewReader("abc"))
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", sum)
}
