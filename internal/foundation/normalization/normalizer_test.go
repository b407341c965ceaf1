package normalization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type color string

func newColors() *Normalizer[color] {
	return NewNormalizer("color", map[string]color{
		"red":  "red",
		"Blue": "blue",
	}, "red")
}

func TestNormalizerNormalize(t *testing.T) {
	n := newColors()
	assert.Equal(t, color("blue"), n.Normalize("  BLUE "))
	assert.Equal(t, color("red"), n.Normalize("green"))
	assert.Equal(t, color("red"), n.Normalize(""))
}

func TestNormalizerParse(t *testing.T) {
	n := newColors()

	got, err := n.Parse("Blue")
	require.NoError(t, err)
	assert.Equal(t, color("blue"), got)

	got, err = n.Parse("")
	require.NoError(t, err)
	assert.Equal(t, color("red"), got)

	_, err = n.Parse("green")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid color "green"`)
	assert.Contains(t, err.Error(), "blue, red")
}

func TestNormalizerValidKeysIsACopy(t *testing.T) {
	n := newColors()
	keys := n.ValidKeys()
	keys[0] = "mutated"
	assert.Equal(t, []string{"blue", "red"}, n.ValidKeys())
}
