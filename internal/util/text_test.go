package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeLabel(t *testing.T) {
	assert.Equal(t, "quantity (m)", NormalizeLabel("  Quantity   (m) "))
	assert.Equal(t, "date", NormalizeLabel("\uFEFFDate"))
	assert.Equal(t, "roll id", NormalizeLabel("ROLL\tID"))
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"arvind", "mills", "ltd"}, Tokenize("Arvind Mills (Ltd.)"))
	assert.Empty(t, Tokenize(" a , b "))
}

func TestDiceCoefficient(t *testing.T) {
	assert.Equal(t, 1.0, DiceCoefficient("night", "night"))
	assert.Equal(t, 0.0, DiceCoefficient("", "night"))
	assert.Equal(t, 0.0, DiceCoefficient("a", "b"))
	assert.InDelta(t, 0.25, DiceCoefficient("night", "nacht"), 1e-9)
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "x", FirstNonEmpty("", "  ", "x", "y"))
	assert.Equal(t, "", FirstNonEmpty(" "))
}
