package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	oldV, oldSHA, oldTime := Version, GitSHA, BuildTime
	t.Cleanup(func() { Version, GitSHA, BuildTime = oldV, oldSHA, oldTime })

	Version, GitSHA, BuildTime = "1.2.0", "abc1234", "2025-06-23T23:03:46Z"
	assert.Equal(t, "cchalf 1.2.0 (git abc1234, built 2025-06-23T23:03:46Z)", String())
}
