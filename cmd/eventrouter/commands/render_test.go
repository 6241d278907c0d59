package commands

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telnet2/eventrouter/internal/config"
)

func TestRendererJSON(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, true)

	require.NoError(t, r.JSON(map[string]int{"a": 1}, ""))
	assert.JSONEq(t, `{"a": 1}`, buf.String())

	buf.Reset()
	require.NoError(t, r.JSON(config.Default(), ".router.scope"))
	assert.Equal(t, "\"SCOPE_PRIVATE\"\n", buf.String())

	buf.Reset()
	require.NoError(t, r.JSON([]int{1, 2}, ".[]"))
	assert.Equal(t, "1\n2\n", buf.String())

	assert.Error(t, r.JSON(nil, ".["))
	assert.Error(t, r.JSON(map[string]int{"a": 1}, ".a | error"))
}

func TestRendererPlain(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, true)
	r.Heading("Title %d", 1)
	r.Line("line")
	r.Dim("quiet")
	r.Result(false, "failed")
	assert.Equal(t, "Title 1\nline\nquiet\nfailed\n", buf.String())
}
