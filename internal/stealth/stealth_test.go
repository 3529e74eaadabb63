package stealth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScriptIsStable(t *testing.T) {
	first := Script()
	assert.Equal(t, first, Script())
	assert.Contains(t, first, "'webdriver'")
	assert.Contains(t, first, "cdc_")
}

func TestContextOptions(t *testing.T) {
	opts := ContextOptions()

	assert.Equal(t, 1920, opts.Viewport.Width)
	assert.Equal(t, 1080, opts.Viewport.Height)
	assert.Equal(t, "en-US", opts.Locale)
	assert.Equal(t, "America/New_York", opts.TimezoneID)
	assert.Contains(t, opts.UserAgent, "Chrome/120")
	assert.Equal(t, "1", opts.ExtraHeaders["DNT"])
	assert.Nil(t, opts.StorageState)
}

func TestHeadersAreCopies(t *testing.T) {
	h := Headers()
	h["DNT"] = "0"
	assert.Equal(t, "1", Headers()["DNT"])
}
