package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetters(t *testing.T) {
	t.Setenv("AF_STR", " value ")
	t.Setenv("AF_INT", "42")
	t.Setenv("AF_BAD_INT", "forty")
	t.Setenv("AF_FLOAT", "2.5")
	t.Setenv("AF_BOOL", "yes")
	t.Setenv("AF_DUR", "90s")
	t.Setenv("AF_DUR_SECS", "30")
	t.Setenv("AF_LIST", "en, fr;de")

	assert.Equal(t, "value", Get("AF_STR", "def"))
	assert.Equal(t, "def", Get("AF_UNSET", "def"))
	assert.Equal(t, 42, GetInt("AF_INT", 1))
	assert.Equal(t, 1, GetInt("AF_BAD_INT", 1))
	assert.Equal(t, 2.5, GetFloat("AF_FLOAT", 0))
	assert.True(t, GetBool("AF_BOOL", false))
	assert.True(t, GetBool("AF_UNSET", true))
	assert.Equal(t, 90*time.Second, GetDuration("AF_DUR", time.Second))
	assert.Equal(t, 30*time.Second, GetDuration("AF_DUR_SECS", time.Second))
	assert.Equal(t, time.Minute, GetDuration("AF_UNSET", time.Minute))
	assert.Equal(t, []string{"en", "fr", "de"}, GetList("AF_LIST"))
	assert.Nil(t, GetList("AF_UNSET"))
}
