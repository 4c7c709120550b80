package log

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/op/go-logging.v1"
)

func TestNewInvalidLevel(t *testing.T) {
	_, err := New("", "LOUD", false)
	require.Error(t, err)
	require.False(t, ValidLevel("LOUD"))
	require.True(t, ValidLevel("debug"))
}

func TestFileBackend(t *testing.T) {
	require := require.New(t)
	path := filepath.Join(t.TempDir(), "client.log")
	b, err := New(path, "NOTICE", false)
	require.NoError(err)

	l := b.GetLogger("session")
	l.Notice("send request")
	l.Debug("hidden")
	require.True(b.IsEnabledFor(logging.NOTICE, "session"))
	require.False(b.IsEnabledFor(logging.DEBUG, "session"))
	require.NoError(b.Close())

	raw, err := os.ReadFile(path)
	require.NoError(err)
	out := string(raw)
	require.Contains(out, "NOTI session: send request")
	require.False(strings.Contains(out, "hidden"))
}

func TestDiscard(t *testing.T) {
	b := Discard()
	b.GetLogger("quiet").Error("nobody hears this")
	require.NoError(t, b.Close())
}
