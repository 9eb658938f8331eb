package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsMalformedDSN(t *testing.T) {
	_, err := New(context.Background(), "postgres://%zz", Options{})
	require.ErrorContains(t, err, "parse config")
}

func TestOptionsFrom(t *testing.T) {
	opts := OptionsFrom(8, 3*time.Second)
	require.Equal(t, int32(8), opts.MaxConns)
	require.Equal(t, int32(1), opts.MinConns)
	require.Equal(t, time.Hour, opts.MaxConnLifetime)
	require.Equal(t, 3*time.Second, opts.ConnectTimeout)
}
