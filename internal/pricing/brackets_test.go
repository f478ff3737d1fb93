package pricing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engagemarket/backend/internal/models"
)

const twoBrackets = `
brackets:
  - min_followers: 0
    max_followers: 5000
    prices:
      like: {min: "1.00", max: "3.00"}
      comment: {min: "2", max: "4"}
      repost_story: {min: "3", max: "5"}
      follow: {min: "2", max: "6"}
  - min_followers: 5000
    max_followers: 0
    prices:
      like: {min: "3", max: "5"}
      comment: {min: "4", max: "8"}
      repost_story: {min: "5", max: "9"}
      follow: {min: "6", max: "10"}
`

func TestParseBrackets(t *testing.T) {
	brackets, err := ParseBrackets([]byte(twoBrackets))
	require.NoError(t, err)
	require.Len(t, brackets, 2)

	e, err := NewEngine(brackets, DefaultRates())
	require.NoError(t, err)

	s, err := e.SuggestPrices(4999)
	require.NoError(t, err)
	assert.Equal(t, "2.00", s.Like.StringFixed(2))
	assert.Equal(t, "4.00", s.Follow.StringFixed(2))

	s, err = e.SuggestPrices(5000)
	require.NoError(t, err)
	assert.Equal(t, "8.00", s.Follow.StringFixed(2))
}

func TestParseBracketsRejectsUnknownService(t *testing.T) {
	_, err := ParseBrackets([]byte(`
brackets:
  - min_followers: 0
    max_followers: 0
    prices:
      tweet: {min: "1", max: "2"}
`))
	assert.ErrorIs(t, err, errBadBrackets)
}

func TestValidateBrackets(t *testing.T) {
	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, ValidateBrackets(DefaultBrackets()))
	})

	t.Run("gap between brackets", func(t *testing.T) {
		b := DefaultBrackets()
		b[1].MinFollowers = 1500
		assert.ErrorIs(t, ValidateBrackets(b), errBadBrackets)
	})

	t.Run("bounded last bracket", func(t *testing.T) {
		b := DefaultBrackets()
		b[len(b)-1].MaxFollowers = 1_000_000
		assert.ErrorIs(t, ValidateBrackets(b), errBadBrackets)
	})

	t.Run("price decreases", func(t *testing.T) {
		b := DefaultBrackets()
		b[2].Prices[models.ServiceLike] = eur("0.5", "1")
		assert.ErrorIs(t, ValidateBrackets(b), errBadBrackets)
	})

	t.Run("missing service", func(t *testing.T) {
		b := DefaultBrackets()
		delete(b[0].Prices, models.ServiceComment)
		assert.ErrorIs(t, ValidateBrackets(b), errBadBrackets)
	})
}

func TestLoadBrackets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brackets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(twoBrackets), 0o600))

	brackets, err := LoadBrackets(path)
	require.NoError(t, err)
	assert.Len(t, brackets, 2)

	_, err = LoadBrackets(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
