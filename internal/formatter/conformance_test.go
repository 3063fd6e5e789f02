package formatter

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/yourorg/address-formatter/internal/registry"
)

type testCase struct {
	Description string    `yaml:"description"`
	Components  yaml.Node `yaml:"components"`
	Expected    string    `yaml:"expected"`
}

func loadTestCases(t *testing.T, path string) []testCase {
	t.Helper()
	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()

	var out []testCase
	dec := yaml.NewDecoder(fh)
	for {
		var tc testCase
		err := dec.Decode(&tc)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err, path)
		out = append(out, tc)
	}
	return out
}

func TestTestCases(t *testing.T) {
	reg, err := registry.Default()
	require.NoError(t, err)
	f, err := New(reg)
	require.NoError(t, err)

	files, err := filepath.Glob(filepath.Join("testdata", "testcases", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, path := range files {
		cc := strings.ToUpper(strings.TrimSuffix(filepath.Base(path), ".yaml"))
		_, ok := reg.Country(cc)
		require.True(t, ok, "no country record for %s", path)

		for _, tc := range loadTestCases(t, path) {
			t.Run(cc+"/"+tc.Description, func(t *testing.T) {
				raw, err := yaml.Marshal(&tc.Components)
				require.NoError(t, err)

				got, err := f.FormatRaw(context.Background(), raw, "")
				require.NoError(t, err)
				assert.Equal(t, tc.Expected, got)
			})
		}
	}
}
