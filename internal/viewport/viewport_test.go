package viewport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTypicalDeclaration(t *testing.T) {
	m := Parse("width=device-width, initial-scale=1")

	require.Equal(t, "device-width", m.Properties["width"])
	require.Equal(t, 1.0, m.Properties["initial-scale"])
	require.Empty(t, m.UnknownProperties)
	require.Empty(t, m.InvalidValues)
	require.True(t, m.IsMobileOptimized())
}

func TestParseSeparatorsAndCase(t *testing.T) {
	m := Parse("WIDTH=Device-Width; Initial-Scale=2.5")

	require.Equal(t, "device-width", m.Properties["width"])
	require.Equal(t, 2.5, m.Properties["initial-scale"])
}

func TestParseLenientNumbers(t *testing.T) {
	m := Parse("width=480px, initial-scale=1.0abc, height=.5")

	require.Equal(t, 480.0, m.Properties["width"])
	require.Equal(t, 1.0, m.Properties["initial-scale"])
	// Heights below the minimum clamp up rather than fail.
	require.Equal(t, 1.0, m.Properties["height"])
}

func TestParseScaleClamping(t *testing.T) {
	m := Parse("initial-scale=50, minimum-scale=0.001, maximum-scale=device-width")

	require.Equal(t, 10.0, m.Properties["initial-scale"])
	require.Equal(t, 0.1, m.Properties["minimum-scale"])
	require.Equal(t, 10.0, m.Properties["maximum-scale"])
}

func TestParseUserScalable(t *testing.T) {
	m := Parse("user-scalable=no")
	require.Equal(t, 0.0, m.Properties["user-scalable"])

	m = Parse("user-scalable=1")
	require.Equal(t, 1.0, m.Properties["user-scalable"])

	m = Parse("user-scalable=maybe")
	require.Equal(t, "maybe", m.InvalidValues["user-scalable"])
	require.NotContains(t, m.Properties, "user-scalable")
}

func TestParseUnknownAndInvalid(t *testing.T) {
	m := Parse("wdith=device-width, width=banana, initial-scale")

	require.Equal(t, "device-width", m.UnknownProperties["wdith"])
	require.Equal(t, "banana", m.InvalidValues["width"])
	require.Contains(t, m.InvalidValues, "initial-scale")
	require.Empty(t, m.Properties)
}

func TestParseFirstOccurrenceWins(t *testing.T) {
	m := Parse("initial-scale=1, initial-scale=5")

	require.Equal(t, 1.0, m.Properties["initial-scale"])
}

func TestIsMobileOptimized(t *testing.T) {
	require.True(t, Parse("width=device-width").IsMobileOptimized())
	require.True(t, Parse("initial-scale=1").IsMobileOptimized())
	require.True(t, Parse("initial-scale=2").IsMobileOptimized())
	require.False(t, Parse("initial-scale=0.5").IsMobileOptimized())
	require.False(t, Parse("width=960").IsMobileOptimized())
	require.False(t, Parse("").IsMobileOptimized())
}
