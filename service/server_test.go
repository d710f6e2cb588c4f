package service

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/stepcraft/rampd/config"
)

func startServerService(t *testing.T) (*Service, func()) {
	t.Helper()
	cfg := testConfig(floatAxis("x"))
	cfg.Server = config.ServerConfig{Enabled: true, Listen: "127.0.0.1:0"}
	return startService(t, cfg)
}

func TestServerStateEndpoint(t *testing.T) {
	svc, stop := startServerService(t)
	defer stop()

	resp, err := http.Get("http://" + svc.Addr() + "/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Axes []AxisState `json:"axes"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Axes, 1)
	require.Equal(t, "x", body.Axes[0].ID)
	require.Equal(t, 1000.0, body.Axes[0].MaxVelocity)
}

func TestServerMoveEndpointStreamsEvents(t *testing.T) {
	svc, stop := startServerService(t)
	defer stop()

	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+svc.Addr()+"/stream", nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var hello Event
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, EventSubscribed, hello.Type)

	payload, err := json.Marshal(moveRequest{Axis: "x", Steps: 50, MaxVelocity: 500})
	require.NoError(t, err)
	moveResp, err := http.Post("http://"+svc.Addr()+"/move", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	moveResp.Body.Close()
	require.Equal(t, http.StatusAccepted, moveResp.StatusCode)

	var total int
	for {
		var ev Event
		require.NoError(t, conn.ReadJSON(&ev))
		require.Equal(t, "x", ev.Axis)
		switch ev.Type {
		case EventArmed:
			require.Equal(t, uint32(50), ev.Steps)
		case EventDelays:
			total += len(ev.Delays)
		case EventCompleted:
			require.Equal(t, 50, total)
			return
		}
	}
}

func TestServerMoveEndpointRejectsBadRequests(t *testing.T) {
	svc, stop := startServerService(t)
	defer stop()

	resp, err := http.Post("http://"+svc.Addr()+"/move", "application/json", bytes.NewBufferString("{not json"))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	payload, err := json.Marshal(moveRequest{Axis: "nope", Steps: 1, MaxVelocity: 1})
	require.NoError(t, err)
	resp, err = http.Post("http://"+svc.Addr()+"/move", "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, err = http.Get("http://" + svc.Addr() + "/move")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServerHonorsConfiguredShutdownTimeout(t *testing.T) {
	cfg := testConfig(floatAxis("x"))
	cfg.Server = config.ServerConfig{
		Enabled:         true,
		Listen:          "127.0.0.1:0",
		ShutdownTimeout: config.Duration{Duration: 2 * time.Second},
	}
	svc, stop := startService(t, cfg)
	defer stop()

	require.Equal(t, 2*time.Second, svc.server.shutdownTimeout)
}

func TestServerMetricsEndpointWhenEnabled(t *testing.T) {
	cfg := testConfig(floatAxis("x"))
	cfg.Server = config.ServerConfig{Enabled: true, Listen: "127.0.0.1:0"}
	cfg.Telemetry = config.TelemetryConfig{Enabled: true}
	svc, stop := startService(t, cfg)
	defer stop()

	resp, err := http.Get("http://" + svc.Addr() + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
