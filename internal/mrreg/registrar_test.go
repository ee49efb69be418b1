package mrreg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStubAlwaysAuthorizes(t *testing.T) {
	s := New()
	require.Equal(t, "1", s.IsAuthorized("any-device"))
	require.Equal(t, "1", s.IsValidated("any-device"))
}

func TestInitialEventPropertiesAreZeroed(t *testing.T) {
	s := New()
	props := s.InitialEventProperties()
	require.Len(t, props, 4)
	for _, v := range props {
		require.Equal(t, "0", v)
	}
}
