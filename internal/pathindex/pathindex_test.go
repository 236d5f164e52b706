package pathindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputePath(t *testing.T) {
	assert.Equal(t, "001", ComputePath("", 1))
	assert.Equal(t, "012", ComputePath("", 12))
	assert.Equal(t, "001.002", ComputePath("001", 2))
	assert.Equal(t, "001.002.010", ComputePath("001.002", 10))
}

func TestNextSiblingOrder(t *testing.T) {
	assert.Equal(t, 1, NextSiblingOrder(nil))
	assert.Equal(t, 1, NextSiblingOrder([]int{}))
	assert.Equal(t, 4, NextSiblingOrder([]int{1, 2, 3}))
	// Freed orders are not reused: a gap does not lower the next order.
	assert.Equal(t, 6, NextSiblingOrder([]int{1, 5}))
}

func TestDepthAndParentPath(t *testing.T) {
	assert.Equal(t, 0, Depth(""))
	assert.Equal(t, 1, Depth("001"))
	assert.Equal(t, 4, Depth("001.001.001.001"))

	assert.Equal(t, "", ParentPath("001"))
	assert.Equal(t, "001.002", ParentPath("001.002.003"))
}

func TestLastSegmentOrder(t *testing.T) {
	order, err := LastSegmentOrder("001.002.013")
	require.NoError(t, err)
	assert.Equal(t, 13, order)

	order, err = LastSegmentOrder("007")
	require.NoError(t, err)
	assert.Equal(t, 7, order)

	_, err = LastSegmentOrder("001.xyz")
	assert.Error(t, err)
}

func TestIsDescendant(t *testing.T) {
	assert.True(t, IsDescendant("001", "001.002"))
	assert.True(t, IsDescendant("001", "001.002.003"))
	assert.False(t, IsDescendant("001", "001"))
	// Prefix match must respect segment boundaries.
	assert.False(t, IsDescendant("001", "0012"))
	assert.False(t, IsDescendant("001.002", "001.003"))
	assert.False(t, IsDescendant("", "001"))
}

func TestIsSelfOrDescendant(t *testing.T) {
	assert.True(t, IsSelfOrDescendant("001", "001"))
	assert.True(t, IsSelfOrDescendant("001", "001.005"))
	assert.False(t, IsSelfOrDescendant("001.005", "001"))
}

func TestRebase(t *testing.T) {
	got, err := Rebase("001.001", "002.003", "001.001.004")
	require.NoError(t, err)
	assert.Equal(t, "002.003.004", got)

	got, err = Rebase("001.001", "002.003", "001.001")
	require.NoError(t, err)
	assert.Equal(t, "002.003", got)

	got, err = Rebase("001", "005", "001.002.003")
	require.NoError(t, err)
	assert.Equal(t, "005.002.003", got)

	_, err = Rebase("001.001", "002", "001.002.004")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("001"))
	assert.NoError(t, Validate("001.002.003.004"))
	assert.NoError(t, Validate("1000")) // wide segments past 999 are allowed

	assert.Error(t, Validate(""))
	assert.Error(t, Validate("001.002.003.004.005"), "deeper than max depth")
	assert.Error(t, Validate("01"))
	assert.Error(t, Validate("abc"))
	assert.Error(t, Validate("000"))
}
