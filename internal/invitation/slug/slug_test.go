package slug

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("is url safe and unpadded", func(t *testing.T) {
		s, err := New()
		require.NoError(t, err)

		assert.Len(t, s, 22, "16 bytes base64url-encoded without padding")
		assert.False(t, strings.ContainsAny(s, "+/="))
	})

	t.Run("does not repeat", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 1000; i++ {
			s, err := New()
			require.NoError(t, err)
			assert.False(t, seen[s])
			seen[s] = true
		}
	})
}
