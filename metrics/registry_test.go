package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/arloliu/go-fri/fricmd"
	"github.com/arloliu/go-fri/udpserver"
	"github.com/stretchr/testify/require"
)

// gather returns the value of every counter carrying the given label.
func gather(t *testing.T, r *Registry, label string, value string) map[string]float64 {
	t.Helper()

	families, err := r.Prometheus().Gather()
	require.NoError(t, err)

	values := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value && m.GetCounter() != nil {
					values[mf.GetName()] = m.GetCounter().GetValue()
				}
			}
		}
	}

	return values
}

func TestRegistry_Channel(t *testing.T) {
	require := require.New(t)

	r := NewRegistry()
	var m fricmd.ChannelMetrics
	require.NoError(r.RegisterChannel("robot1", &m))

	m.CommandSendCount.Add(3)
	m.AcceptedCount.Add(2)
	m.ConnLostCount.Add(1)

	values := gather(t, r, "channel", "robot1")
	require.Len(values, 11)
	require.Equal(3.0, values["fri_command_sent_total"])
	require.Equal(2.0, values["fri_command_accepted_total"])
	require.Equal(1.0, values["fri_command_connection_lost_total"])
	require.Zero(values["fri_command_rejected_total"])

	require.ErrorIs(r.RegisterChannel("robot1", &m), ErrAlreadyRegistered)

	// another channel gets its own series
	var other fricmd.ChannelMetrics
	require.NoError(r.RegisterChannel("robot2", &other))

	require.True(r.Unregister("channel", "robot1"))
	require.False(r.Unregister("channel", "robot1"))
	require.Empty(gather(t, r, "channel", "robot1"))
	require.Len(gather(t, r, "channel", "robot2"), 11)
}

func TestRegistry_ServerHandler(t *testing.T) {
	require := require.New(t)

	r := NewRegistry()
	var m udpserver.ServerMetrics
	require.NoError(r.RegisterServer("datagram", &m))
	m.RecvCount.Add(42)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(err)
	require.Contains(string(body), `fri_datagram_received_total{server="datagram"} 42`)
	require.Contains(string(body), "go_goroutines")
}
