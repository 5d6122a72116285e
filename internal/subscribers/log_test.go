package subscribers

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkden-lab/eventbus/internal/event"
	"github.com/darkden-lab/eventbus/internal/logging"
)

func TestLog_HandleEvent(t *testing.T) {
	var buf bytes.Buffer
	l := NewLog("console", logging.New(&buf, "info", "json"))

	require.NoError(t, l.HandleEvent(context.Background(), signup))
	out := buf.String()
	assert.Contains(t, out, `"code":"UserRegistered"`)
	assert.Contains(t, out, `"sender":"SignupService"`)
	assert.Contains(t, out, `"subscriber":"console"`)
}

func TestLog_RejectsMalformed(t *testing.T) {
	l := NewLog("console", logging.Discard())
	assert.ErrorIs(t, l.HandleEvent(context.Background(), `{"sender":"x"}`), event.ErrMalformedEnvelope)
}
