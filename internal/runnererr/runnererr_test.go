package runnererr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorString(t *testing.T) {
	err := New(NoFCP, "no first contentful paint after %dms", 45000)
	require.Equal(t, "NO_FCP: no first contentful paint after 45000ms", err.Error())

	bare := &Error{Code: PageHung}
	require.Equal(t, "PAGE_HUNG", bare.Error())
}

func TestCodeOfThroughWrapping(t *testing.T) {
	cause := errors.New("tab went away")
	err := fmt.Errorf("collecting page: %w", Wrap(TargetCrashed, cause, "renderer gone"))

	code, ok := CodeOf(err)
	require.True(t, ok)
	require.Equal(t, TargetCrashed, code)
	require.True(t, HasCode(err, TargetCrashed))
	require.False(t, HasCode(err, NoTTI))
	require.ErrorIs(t, err, cause)
}

func TestCodeOfPlainError(t *testing.T) {
	_, ok := CodeOf(errors.New("nope"))
	require.False(t, ok)
	require.False(t, HasCode(nil, NoFCP))
}

func TestIsMatchesByCode(t *testing.T) {
	a := New(NoTTI, "no quiet window")
	b := New(NoTTI, "different words")
	require.ErrorIs(t, a, b)
	require.NotErrorIs(t, a, New(NoFCP, ""))
}
