package naming

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDraft(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"__0__ema-cross", true},
		{"__12__rsi", true},
		{"__1____0__x", true},
		{"ema-cross", false},
		{"__x__rsi", false},
		{"__1__", false},
		{"___1__rsi", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsDraft(tt.name), "IsDraft(%q)", tt.name)
	}
}

func TestBaseOf(t *testing.T) {
	assert.Equal(t, "ema-cross", BaseOf("__3__ema-cross"))
	assert.Equal(t, "ema-cross", BaseOf("ema-cross"))
	assert.Equal(t, "__0__x", BaseOf("__1____0__x"))
	assert.Equal(t, "__x__rsi", BaseOf("__x__rsi"))
}

func TestDraftName_RoundTrip(t *testing.T) {
	for _, base := range []string{"rsi", "ema cross", "a__b", "__x"} {
		for _, v := range []uint64{0, 1, 42} {
			name := DraftName(base, v)
			assert.True(t, IsDraft(name), name)
			assert.Equal(t, base, BaseOf(name))
			got, ok := Version(name)
			assert.True(t, ok)
			assert.Equal(t, v, got)
		}
	}
}

func TestVersion_Overflow(t *testing.T) {
	_, ok := Version("__99999999999999999999999__rsi")
	assert.False(t, ok)

	_, ok = Version("rsi")
	assert.False(t, ok)
}

func TestFamily(t *testing.T) {
	names := []string{"rsi", "__0__rsi", "__2__rsi", "__0__ema", "__1__x__rsi"}
	assert.Equal(t, []string{"__0__rsi", "__2__rsi"}, Family(names, "rsi"))
	assert.Empty(t, Family(names, "macd"))
}

func TestVisible(t *testing.T) {
	names := []string{"rsi", "__0__rsi", "ema-cross", "__4__ema-cross", "rsi", ""}
	assert.Equal(t, []string{"ema-cross", "rsi"}, Visible(names))
}

func TestValidBase(t *testing.T) {
	assert.True(t, ValidBase("rsi"))
	assert.False(t, ValidBase(""))
	assert.False(t, ValidBase("   "))
	assert.False(t, ValidBase("__0__rsi"))
}
