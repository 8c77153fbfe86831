package modes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIcaoCache_AddAndRecent(t *testing.T) {
	c := NewIcaoCache()
	assert.False(t, c.Recent(0x4B9696, 100))

	c.Add(0x4B9696, 100)
	assert.True(t, c.Recent(0x4B9696, 100))
	assert.True(t, c.Recent(0x4B9696, 159))
	assert.False(t, c.Recent(0x4B9696, 161))
}

func TestIcaoCache_WrongAddr(t *testing.T) {
	c := NewIcaoCache()
	c.Add(0x4B9696, 100)
	assert.False(t, c.Recent(0x112233, 100))
}

func TestIcaoCache_CollisionOverwrites(t *testing.T) {
	c := NewIcaoCache()
	// find a second address that hashes to the same slot as the first.
	target := icaoHash(0x4B9696)
	var other uint32 = 0xFFFFFFFF
	for a := uint32(0); a < 100000; a++ {
		if a != 0x4B9696 && icaoHash(a) == target {
			other = a
			break
		}
	}
	if other == 0xFFFFFFFF {
		t.Skip("no colliding address found in search range")
	}

	c.Add(0x4B9696, 100)
	c.Add(other, 100)
	// last writer wins: the first address's slot was overwritten.
	assert.False(t, c.Recent(0x4B9696, 100))
	assert.True(t, c.Recent(other, 100))
}
