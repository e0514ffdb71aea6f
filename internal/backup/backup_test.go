package backup_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittofs/internal/backup"
)

func TestNewUploaderAcceptsUnsetRetainCount(t *testing.T) {
	source := func() ([]byte, error) { return []byte("{}"), nil }
	u := backup.NewUploader(nil, backup.Config{Bucket: "nlmd"}, source, 0)
	require.NotNil(t, u)
}

func TestSnapshotSourcePropagatesErrors(t *testing.T) {
	wantErr := errors.New("boom")
	var source backup.SnapshotSource = func() ([]byte, error) { return nil, wantErr }
	_, err := source()
	require.ErrorIs(t, err, wantErr)
}
