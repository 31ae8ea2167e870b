package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateURL(t *testing.T) {
	cases := []struct {
		url     string
		wantErr bool
	}{
		{"https://example.com/a", false},
		{"http://127.0.0.1:8080/", false},
		{"ftp://example.com/", true},
		{"example.com/path", true},
		{"https:///nohost", true},
	}

	for _, tc := range cases {
		err := validateURL(tc.url)
		if tc.wantErr {
			require.Error(t, err, tc.url)
		} else {
			require.NoError(t, err, tc.url)
		}
	}
}

func TestReadURLsSkipsCommentsAndBlanks(t *testing.T) {
	urls, err := readURLs(strings.NewReader("# seeds\nhttps://a.example/\n\n  https://b.example/x  \n"))
	require.NoError(t, err)
	require.Equal(t, []string{"https://a.example/", "https://b.example/x"}, urls)

	_, err = readURLs(strings.NewReader("https://ok.example/\nnot a url\n"))
	require.ErrorContains(t, err, "line 2")
}

func TestResolveURLsMergesArgsAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "urls.txt")
	require.NoError(t, os.WriteFile(path, []byte("https://b.example/\n"), 0o600))

	urls, err := resolveURLs([]string{"https://a.example/", " "}, path)
	require.NoError(t, err)
	require.Equal(t, []string{"https://a.example/", "https://b.example/"}, urls)

	_, err = resolveURLs(nil, "")
	require.Error(t, err)
}
