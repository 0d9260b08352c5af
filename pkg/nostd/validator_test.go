package nostd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Ticker string `json:"ticker" validate:"required"`
	Score  int    `json:"score" validate:"gte=1,lte=10"`
}

func TestCustomValidator(t *testing.T) {
	v, err := NewValidator()
	require.NoError(t, err)

	assert.NoError(t, v.Validate(&sample{Ticker: "NVDA", Score: 5}))

	err = v.Validate(&sample{Score: 11})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "score")
	assert.Contains(t, err.Error(), "ticker is a required field")
}

func TestBcrypt(t *testing.T) {
	hash, err := BcryptEncode([]byte("secret"))
	require.NoError(t, err)
	assert.NoError(t, BcryptMatch(hash, []byte("secret")))
	assert.Error(t, BcryptMatch(hash, []byte("nope")))
}

func TestNewAPIToken(t *testing.T) {
	token, hash, err := NewAPIToken()
	require.NoError(t, err)
	assert.Len(t, token, 48)
	assert.NoError(t, BcryptMatch([]byte(hash), []byte(token)))

	other, _, err := NewAPIToken()
	require.NoError(t, err)
	assert.NotEqual(t, token, other)
}
