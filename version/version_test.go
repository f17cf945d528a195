package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserAgent(t *testing.T) {
	ua := UserAgent()
	assert.True(t, strings.HasPrefix(ua, Name+"/"), ua)
	assert.NotEqual(t, Name+"/", ua)
	assert.Equal(t, ua, UserAgent())
}
