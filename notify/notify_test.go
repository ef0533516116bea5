package notify_test

import (
	"bytes"
	"testing"

	"github.com/jrsteele09/findcourse-client/notify"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestConsole(t *testing.T) {
	t.Run("plain", func(t *testing.T) {
		var buf bytes.Buffer
		c := notify.NewConsole(&buf, false)
		c.Success("Logged in")
		c.Error("Network error")
		require.Equal(t, "✔ Logged in\n✖ Network error\n", buf.String())
	})

	t.Run("coloured", func(t *testing.T) {
		var buf bytes.Buffer
		notify.NewConsole(&buf, true).Error("boom")
		require.Equal(t, notify.Red+"✖ boom"+notify.ResetColor+"\n", buf.String())
	})
}

func TestLog(t *testing.T) {
	var buf bytes.Buffer
	l := notify.NewLog(zerolog.New(&buf))
	l.Error("could not refresh")
	require.Contains(t, buf.String(), `"notification":"error"`)
	require.Contains(t, buf.String(), `"message":"could not refresh"`)
}

func TestRecorder(t *testing.T) {
	var r notify.Recorder
	r.Success("ok")
	r.Error("bad")
	require.Equal(t, []string{"ok"}, r.Successes())
	require.Equal(t, []string{"bad"}, r.Errors())

	var n notify.Notifier = notify.Discard{}
	n.Error("ignored")
}
