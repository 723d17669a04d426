package s3

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/stowd/pkg/store"
)

func TestIsNotFoundError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"Nil", nil, false},
		{"NoSuchKey", &types.NoSuchKey{}, true},
		{"WrappedNotFound", fmt.Errorf("head: %w", &types.NotFound{}), true},
		{"HTTP404", errors.New("operation error S3: HeadObject, https response error StatusCode: 404"), true},
		{"AccessDenied", errors.New("AccessDenied"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isNotFoundError(tt.err))
		})
	}
}

func TestObjectKey(t *testing.T) {
	s := New(nil, Config{Bucket: "b", KeyPrefix: "files/"})
	assert.Equal(t, "files/a.txt", s.objectKey("a.txt"))
}

func TestNewFromConfig_RequiresBucket(t *testing.T) {
	_, err := NewFromConfig(context.Background(), Config{})
	assert.Error(t, err)
}

func TestStore_ClosedAndInvalidName(t *testing.T) {
	s := New(nil, Config{Bucket: "b"})

	_, err := s.Create(context.Background(), "")
	assert.ErrorIs(t, err, store.ErrInvalidName)

	require.NoError(t, s.Close())
	_, err = s.Open(context.Background(), "a")
	assert.ErrorIs(t, err, store.ErrClosed)
	assert.ErrorIs(t, s.HealthCheck(context.Background()), store.ErrClosed)
}

func TestWriter_AbortRemovesSpool(t *testing.T) {
	s := New(nil, Config{Bucket: "b", SpoolDir: t.TempDir()})

	w, err := s.Create(context.Background(), "a")
	require.NoError(t, err)
	_, err = w.Write([]byte("spooled"))
	require.NoError(t, err)

	name := w.(*writer).f.Name()
	require.NoError(t, w.Abort())

	exists, err := afero.Exists(s.spool, name)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = w.Write([]byte("x"))
	assert.ErrorIs(t, err, store.ErrFinished)
}
