package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryIsIdempotent(t *testing.T) {
	assert.Same(t, Registry(), Registry())
}

func TestHandlerExposesCollectors(t *testing.T) {
	Frames.WithLabelValues("datagram", "sent").Inc()
	Messages.WithLabelValues("motion").Inc()

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.True(t, strings.Contains(text, "gyrodesk_stream_frames_total"))
	assert.True(t, strings.Contains(text, "gyrodesk_control_messages_total"))
}

func TestCounterIncrements(t *testing.T) {
	before := testutil.ToFloat64(Takeovers)
	Takeovers.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(Takeovers))
}
