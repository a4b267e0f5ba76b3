package version

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ycry/ycry-go/internal/buildinfo"
)

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	cmd := Command(buildinfo.NewContext("1.0.0", "2026-10-01"))
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "ycry 1.0.0 (built 2026-10-01)\n", out.String())
}
