package nlmcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOwnerIDRoundTrip(t *testing.T) {
	t.Run("EncodesSysidSvidAndHandle", func(t *testing.T) {
		id := OwnerID(42, 7, []byte{0xde, 0xad})
		assert.Equal(t, "nlm:42:7:dead", id)
	})

	t.Run("OwnerSysidExtractsSysid", func(t *testing.T) {
		id := OwnerID(42, 7, []byte{0xde, 0xad})
		sysid, ok := OwnerSysid(id)
		assert.True(t, ok)
		assert.Equal(t, Sysid(42), sysid)
	})

	t.Run("RejectsForeignPrefix", func(t *testing.T) {
		_, ok := OwnerSysid("smb:lease:abcd")
		assert.False(t, ok)
	})

	t.Run("RejectsMalformedOwnerID", func(t *testing.T) {
		_, ok := OwnerSysid("nlm")
		assert.False(t, ok)
	})
}

func TestSysidPrefixMatchesOwnerID(t *testing.T) {
	id := OwnerID(42, 7, []byte{0xde, 0xad})
	otherID := OwnerID(43, 7, []byte{0xde, 0xad})

	assert.Contains(t, id, sysidPrefix(42))
	assert.NotContains(t, otherID, sysidPrefix(42))
}
