package templates

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderGenericEmail(t *testing.T) {
	out := RenderGenericEmail("Your consultation is booked", "Hi Client,\nSee you at 14:30.")

	assert.True(t, strings.Contains(out, "<h1>Your consultation is booked</h1>"))
	assert.True(t, strings.Contains(out, "Hi Client,<br>See you at 14:30."))
}

func TestRenderGenericEmail_EscapesHTML(t *testing.T) {
	out := RenderGenericEmail("<script>x</script>", "a <b> & c")

	assert.False(t, strings.Contains(out, "<script>x</script>"))
	assert.True(t, strings.Contains(out, "&lt;script&gt;"))
	assert.True(t, strings.Contains(out, "a &lt;b&gt; &amp; c"))
}
