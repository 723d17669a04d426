package backends

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/stowd/pkg/store/storetest"
)

func TestNew(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"Memory", Config{Type: TypeMemory}},
		{"FS", Config{Type: TypeFS, FS: FSConfig{Path: t.TempDir()}}},
		{"Badger", Config{Type: TypeBadger, Badger: BadgerConfig{InMemory: true}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(ctx, tt.cfg)
			require.NoError(t, err)
			defer s.Close()

			storetest.Put(t, s, "a.txt", []byte("hello"))
			assert.Equal(t, []byte("hello"), storetest.Get(t, s, "a.txt"))
		})
	}
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New(context.Background(), Config{Type: "tape"})
	assert.Error(t, err)
}

func TestNew_S3RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{Type: TypeS3})
	assert.Error(t, err)
}

func TestNew_EphemeralRootRemovedOnClose(t *testing.T) {
	s, err := New(context.Background(), Config{Type: TypeFS})
	require.NoError(t, err)

	eph, ok := s.(*ephemeral)
	require.True(t, ok)
	dir := eph.Dir()

	storetest.Put(t, s, "a.txt", []byte("x"))
	_, err = os.Stat(dir)
	require.NoError(t, err)

	require.NoError(t, s.Close())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}
