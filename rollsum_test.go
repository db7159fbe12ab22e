package rdiff

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func sequentialBytes(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = byte(i)
	}
	return buf
}

func randomBytes(seed int64, n int) []byte {
	buf := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(buf)
	return buf
}

func TestWindow_ZeroState(t *testing.T) {
	w := NewWindow()
	assert.Equal(t, 0, w.Count())
	assert.Equal(t, uint32(0), w.Digest())
	assert.Equal(t, uint32(0), WindowDigest(nil))
}

func TestWindow_DigestPacking(t *testing.T) {
	w := Window{count: 3, s1: 0x1234, s2: 0xabcd}
	assert.Equal(t, uint32(0xabcd1234), w.Digest())

	w = Window{s1: 0xffff, s2: 0x8000}
	assert.Equal(t, uint32(0x8000ffff), w.Digest())
}

func TestWindow_KnownVectors(t *testing.T) {
	w := NewWindow()
	w.RollIn(0)
	assert.Equal(t, 1, w.Count())
	assert.Equal(t, uint32(0x001f001f), w.Digest())

	w.RollIn(1)
	w.RollIn(2)
	w.RollIn(3)
	assert.Equal(t, 4, w.Count())
	assert.Equal(t, uint32(0x01400082), w.Digest())

	w.Rotate(0, 4)
	assert.Equal(t, 4, w.Count())
	assert.Equal(t, uint32(0x014a0086), w.Digest())

	w.Rotate(1, 5)
	w.Rotate(2, 6)
	w.Rotate(3, 7)
	assert.Equal(t, 4, w.Count())
	assert.Equal(t, uint32(0x01680092), w.Digest())

	w.RollOut(4)
	assert.Equal(t, 3, w.Count())
	assert.Equal(t, uint32(0x00dc006f), w.Digest())

	w.RollOut(5)
	w.RollOut(6)
	w.RollOut(7)
	assert.Equal(t, 0, w.Count())
	assert.Equal(t, uint32(0), w.Digest())
}

func TestWindow_UpdateKnownVector(t *testing.T) {
	w := NewWindow()
	w.Update(sequentialBytes(256))
	assert.Equal(t, 256, w.Count())
	assert.Equal(t, uint32(0x3a009e80), w.Digest())
	assert.Equal(t, uint32(0x3a009e80), WindowDigest(sequentialBytes(256)))

	assert.Equal(t, uint32(0x00800080), WindowDigest([]byte("a")))
	assert.Equal(t, uint32(0x265805ba), WindowDigest([]byte("Hello world\n")))
}

func TestWindow_UpdateIsAdditive(t *testing.T) {
	data := randomBytes(1, 3000)
	whole := WindowDigest(data)

	for _, k := range []int{0, 1, 17, 1500, 2999, 3000} {
		w := NewWindow()
		w.Update(data[:k])
		w.Update(data[k:])
		assert.Equal(t, whole, w.Digest(), "split at %d", k)
		assert.Equal(t, len(data), w.Count())
	}
}

func TestWindow_UpdateMatchesRollIn(t *testing.T) {
	data := randomBytes(2, 700)
	rolled := NewWindow()
	for _, c := range data {
		rolled.RollIn(c)
	}
	assert.Equal(t, WindowDigest(data), rolled.Digest())
	assert.Equal(t, len(data), rolled.Count())
}

func TestWindow_UpdateWrapsLongBuffers(t *testing.T) {
	// longer than 2^16 so count, s1 and s2 all wrap
	data := randomBytes(3, 70000)
	rolled := NewWindow()
	for _, c := range data {
		rolled.RollIn(c)
	}
	assert.Equal(t, WindowDigest(data), rolled.Digest())
	assert.Equal(t, 70000%65536, rolled.Count())
}

func TestWindow_UpdateDoesNotReset(t *testing.T) {
	stale := NewWindow()
	stale.Update([]byte("stale"))
	stale.Update([]byte("block"))
	assert.NotEqual(t, WindowDigest([]byte("block")), stale.Digest())
}

func TestWindow_RollInRollOutFromEmpty(t *testing.T) {
	for _, c := range []byte{0, 1, 'x', 255} {
		w := NewWindow()
		w.RollIn(c)
		w.RollOut(c)
		assert.Equal(t, NewWindow(), w)
	}
}

func TestWindow_RollInRollOutUniformWindow(t *testing.T) {
	// with identical bytes the newest byte is indistinguishable from the
	// oldest one, so rolling it back out restores the state exactly
	w := NewWindow()
	w.Update([]byte("zzzzzzzz"))
	before := w

	w.RollIn('z')
	assert.Equal(t, before.Count()+1, w.Count())
	w.RollOut('z')
	assert.Equal(t, before, w)
}

func TestWindow_RollOutFIFO(t *testing.T) {
	data := randomBytes(4, 64)
	w := NewWindow()
	w.Update(data)
	for i := 0; i < 40; i++ {
		w.RollOut(data[i])
	}
	assert.Equal(t, WindowDigest(data[40:]), w.Digest())
	assert.Equal(t, 24, w.Count())
}

func TestWindow_RotateMatchesRecompute(t *testing.T) {
	data := randomBytes(5, 500)
	L := 32
	w := NewWindow()
	w.Update(data[:L])
	for i := L; i < len(data); i++ {
		w.Rotate(data[i-L], data[i])
		assert.Equal(t, L, w.Count())
		assert.Equal(t, WindowDigest(data[i-L+1:i+1]), w.Digest(), "window ending at %d", i)
	}
}

func TestWindow_RotateVersusRollOutRollIn(t *testing.T) {
	data := []byte("abcdefgh")
	rotated := NewWindow()
	rotated.Update(data[:4])
	stepped := rotated

	rotated.Rotate(data[0], data[4])
	assert.Equal(t, 4, rotated.Count())

	// stepping passes through a shorter window, a rotate never does
	stepped.RollOut(data[0])
	assert.Equal(t, 3, stepped.Count())
	assert.NotEqual(t, rotated.Digest(), stepped.Digest())
	assert.Equal(t, WindowDigest(data[1:4]), stepped.Digest())

	stepped.RollIn(data[4])
	assert.Equal(t, rotated.Count(), stepped.Count())
	assert.Equal(t, rotated.Digest(), stepped.Digest())
	assert.Equal(t, WindowDigest(data[1:5]), rotated.Digest())
}

func TestRollingHash_Trivial(t *testing.T) {
	blockSize := 2
	fixed := NewRollingHash(blockSize)
	_, _ = fixed.Write([]byte("23"))
	assert.Equal(t, blockSize, fixed.BlockSize())
	assert.Equal(t, 4, fixed.Size())
	assert.Equal(t, WindowDigest([]byte("23")), fixed.Sum32())
}

func TestRollingHash_Reset(t *testing.T) {
	fixed := NewRollingHash(2)
	_, _ = fixed.Write([]byte("23"))
	checksum := fixed.Sum32()

	_, _ = fixed.Write([]byte("xyz"))
	fixed.Reset()
	_, _ = fixed.Write([]byte("23"))
	assert.Equal(t, checksum, fixed.Sum32())
}

func TestRollingHash_RollMatchesInTheMiddle(t *testing.T) {
	data := []byte("0123")
	fixed := NewRollingHash(2)
	_, _ = fixed.Write(data[2:4])
	rolling := NewRollingHash(2)
	_, _ = rolling.Write(data[0:2])
	_, _ = rolling.Write(data[2:3])
	_, _ = rolling.Write(data[3:4])
	assert.Equal(t, fixed.Sum32(), rolling.Sum32())
	assert.Equal(t, fixed.Sum(nil), rolling.Sum(nil))
}

func TestRollingHash_RollMatchesOverlapping(t *testing.T) {
	data := []byte("01234")
	fixed := NewRollingHash(3)
	_, _ = fixed.Write(data[2:5])
	rolling := NewRollingHash(3)
	_, _ = rolling.Write(data[0:3])
	_, _ = rolling.Write(data[3:4])
	_, _ = rolling.Write(data[4:5])
	assert.Equal(t, fixed.Sum32(), rolling.Sum32())
	assert.Equal(t, fixed.Sum(nil), rolling.Sum(nil))
}

func TestRollingHash_TrailingWindow(t *testing.T) {
	data := randomBytes(6, 5000)
	rolling := NewRollingHash(DefaultBlockLen)
	_, _ = rolling.Write(data)
	assert.Equal(t, WindowDigest(data[len(data)-DefaultBlockLen:]), rolling.Sum32())
}

func TestRollingHash_SumIsBigEndian(t *testing.T) {
	rolling := NewRollingHash(8)
	_, _ = rolling.Write([]byte("a"))
	assert.Equal(t, []byte{'p', 0x00, 0x00, 0x80, 0x00, 0x80}, rolling.Sum([]byte("p")))
}

func TestRollingHash_PanicsOnZeroBlock(t *testing.T) {
	assert.Panics(t, func() { NewRollingHash(0) })
}
