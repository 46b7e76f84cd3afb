package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("PPGW_STR", "x")
	t.Setenv("PPGW_INT", "12")
	t.Setenv("PPGW_BAD_INT", "twelve")
	t.Setenv("PPGW_BOOL", " Yes ")

	assert.Equal(t, "x", GetEnv("PPGW_STR", "d"))
	assert.Equal(t, "d", GetEnv("PPGW_MISSING", "d"))
	assert.Equal(t, 12, GetEnvInt("PPGW_INT", 1))
	assert.Equal(t, 1, GetEnvInt("PPGW_BAD_INT", 1))
	assert.True(t, GetEnvBool("PPGW_BOOL", false))
	assert.True(t, GetEnvBool("PPGW_MISSING", true))
}

func TestParseHdr(t *testing.T) {
	assert.Nil(t, ParseHdr(""))
	assert.Equal(t, map[string]string{"a": "1", "b": "x=y"}, ParseHdr("a=1, b=x=y,=skip,novalue"))
}
