package env

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	vars, err := Parse(strings.NewReader(`
# comment
DISPATCH_PORT=8080
export DISPATCH_ENV = staging
DISPATCH_JWT_SECRET="a #not comment"
DISPATCH_STORE=sqlite # trailing
EMPTY=
`))
	require.NoError(t, err)
	assert.Equal(t, [][2]string{
		{"DISPATCH_PORT", "8080"},
		{"DISPATCH_ENV", "staging"},
		{"DISPATCH_JWT_SECRET", "a #not comment"},
		{"DISPATCH_STORE", "sqlite"},
		{"EMPTY", ""},
	}, vars)

	_, err = Parse(strings.NewReader("JUSTAKEY\n"))
	assert.Error(t, err)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, ".env")
	local := filepath.Join(dir, ".env.local")
	require.NoError(t, os.WriteFile(base, []byte("DISPATCH_TEST_A=base\nDISPATCH_TEST_B=base\nDISPATCH_TEST_C=base\n"), 0o600))
	require.NoError(t, os.WriteFile(local, []byte("DISPATCH_TEST_B=local\n"), 0o600))

	t.Setenv("DISPATCH_TEST_C", "process")
	for _, k := range []string{"DISPATCH_TEST_A", "DISPATCH_TEST_B"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	applied, err := Load(base, filepath.Join(dir, "missing"), local)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"DISPATCH_TEST_A", "DISPATCH_TEST_B"}, applied)
	assert.Equal(t, "base", os.Getenv("DISPATCH_TEST_A"))
	assert.Equal(t, "local", os.Getenv("DISPATCH_TEST_B"))
	assert.Equal(t, "process", os.Getenv("DISPATCH_TEST_C"))
}
