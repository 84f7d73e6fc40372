package browser

import (
	"testing"

	"github.com/chromedp/cdproto/dom"
	"github.com/stretchr/testify/assert"
)

func TestByID(t *testing.T) {
	assert.Equal(t, `[id="101"]`, ByID("101"))
	assert.Equal(t, `[id="a\"b"]`, ByID(`a"b`))
}

func TestCenter(t *testing.T) {
	x, y := center(dom.Quad{10, 20, 30, 20, 30, 40, 10, 40})
	assert.Equal(t, 20.0, x)
	assert.Equal(t, 30.0, y)

	x, y = center(dom.Quad{})
	assert.Zero(t, x)
	assert.Zero(t, y)
}

func TestOptions_AllocatorOptions(t *testing.T) {
	base := len(Options{Headless: true}.allocatorOptions())

	full := Options{
		Headless:     false,
		NoSandbox:    true,
		ExecPath:     "/usr/bin/chromium",
		WindowWidth:  1280,
		WindowHeight: 800,
	}.allocatorOptions()

	assert.Equal(t, base+4, len(full))
}
