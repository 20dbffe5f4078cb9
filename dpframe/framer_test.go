package dpframe

import (
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func checkInvariant(t *testing.T, fr Frame, rows int) {
	t.Helper()
	assert.Equal(t, fr.RefR-fr.RefL+1, int64(fr.Width+rows-1))
	assert.Len(t, fr.StartMask, fr.Width)
	assert.Len(t, fr.EndMask, fr.Width)
}

func TestFrameSeedExtensionInterior(t *testing.T) {
	f := Framer{TrimToRef: true}
	fr, found := f.FrameSeedExtension(500, 50, 10000, 3, 2, 15)
	require.True(t, found)
	checkInvariant(t, fr, 50)
	expect.EQ(t, fr.Width, 7) // 2*max(3,2)+1
	expect.EQ(t, fr.RefL, int64(497))
	expect.EQ(t, fr.RefR, int64(552))
	expect.EQ(t, fr.TrimUp, 0)
	expect.EQ(t, fr.TrimDn, 0)
	expect.EQ(t, fr.LegalStarts(), 7)
	expect.EQ(t, fr.LegalEnds(), 7)
}

func TestFrameSeedExtensionMaxHalfCap(t *testing.T) {
	f := Framer{TrimToRef: true}
	fr, found := f.FrameSeedExtension(500, 50, 10000, 40, 10, 4)
	require.True(t, found)
	checkInvariant(t, fr, 50)
	expect.EQ(t, fr.Width, 9) // capped at 2*4+1
}

func TestFrameSeedExtensionLeftEdge(t *testing.T) {
	f := Framer{TrimToRef: true}
	fr, found := f.FrameSeedExtension(1, 50, 10000, 3, 3, 15)
	require.True(t, found)
	checkInvariant(t, fr, 50)
	expect.EQ(t, fr.TrimUp, 2) // refl = -2
	expect.False(t, fr.StartMask[0])
	expect.False(t, fr.StartMask[1])
	expect.True(t, fr.StartMask[2])
	expect.EQ(t, fr.LegalEnds(), 7)
}

func TestFrameSeedExtensionRightEdge(t *testing.T) {
	f := Framer{TrimToRef: true}
	// rows=50 at refoff=950 in a 1000-long sequence: refr = 1002.
	fr, found := f.FrameSeedExtension(950, 50, 1000, 3, 3, 15)
	require.True(t, found)
	checkInvariant(t, fr, 50)
	expect.EQ(t, fr.TrimDn, 3)
	expect.EQ(t, fr.LegalStarts(), 7)
	expect.EQ(t, fr.LegalEnds(), 4)
	expect.False(t, fr.EndMask[fr.Width-1])
}

func TestFrameSeedExtensionFailsOutside(t *testing.T) {
	f := Framer{TrimToRef: true}
	// Band entirely upstream of the sequence.
	_, found := f.FrameSeedExtension(-200, 50, 1000, 3, 3, 15)
	expect.False(t, found)
	// Band off the end.
	_, found = f.FrameSeedExtension(990, 50, 1000, 3, 3, 15)
	expect.False(t, found)
}

func TestFrameSeedExtensionOverhangs(t *testing.T) {
	f := Framer{TrimToRef: false}
	fr, found := f.FrameSeedExtension(-2, 50, 1000, 3, 3, 15)
	require.True(t, found)
	checkInvariant(t, fr, 50)
	expect.EQ(t, fr.TrimUp, 0)
	expect.EQ(t, fr.LegalStarts(), fr.Width)
}

func TestFrameFindMate(t *testing.T) {
	f := Framer{TrimToRef: true}
	// Mate of 30 rows must start in [100, 120] and end in [140, 160].
	// Feasible gapless starts are [111, 120]; the gap budget of 3 widens
	// the band to starts [108, 123].
	fr, found := f.FrameFindMate(true, 100, 120, 140, 160, 30, 1000, 3, 3, 50)
	require.True(t, found)
	checkInvariant(t, fr, 30)
	expect.EQ(t, fr.RefL, int64(108))
	expect.EQ(t, fr.RefR, int64(152))
	expect.EQ(t, fr.Width, 16)
	// Start columns with position <= 120: cols 0..12.
	expect.EQ(t, fr.LegalStarts(), 13)
	assert.True(t, fr.StartMask[0])
	assert.True(t, fr.StartMask[12])
	assert.False(t, fr.StartMask[13])
	// End columns where 108+c+29 in [140,160]: c in [3, 15].
	expect.EQ(t, fr.LegalEnds(), 13)
	assert.False(t, fr.EndMask[2])
	assert.True(t, fr.EndMask[3])
	assert.True(t, fr.EndMask[15])
}

func TestFrameFindMateWideWindow(t *testing.T) {
	f := Framer{TrimToRef: true}
	// A loose fragment constraint: the band spans the whole feasible
	// window; maxHalf caps only the gap slack, not the window width.
	fr, found := f.FrameFindMate(true, 100, 200, 150, 260, 30, 20000, 3, 3, 8)
	require.True(t, found)
	checkInvariant(t, fr, 30)
	// Feasible starts [121, 200] widened by the gap budget to [118, 203].
	expect.EQ(t, fr.RefL, int64(118))
	expect.EQ(t, fr.RefR, int64(232))
	expect.EQ(t, fr.Width, 86)
	assert.True(t, fr.LegalStarts() > 0)
	assert.True(t, fr.LegalEnds() > 0)
}

func TestFrameFindMateInfeasible(t *testing.T) {
	f := Framer{TrimToRef: true}
	// Window shorter than the mate.
	_, found := f.FrameFindMate(true, 100, 100, 110, 110, 30, 1000, 3, 3, 50)
	expect.False(t, found)
	// Inverted constraint.
	_, found = f.FrameFindMate(true, 120, 100, 140, 160, 30, 1000, 3, 3, 50)
	expect.False(t, found)
}
