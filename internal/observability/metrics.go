// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PeerChat Contributors

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the Prometheus metrics recorded by the chat engine and
// its frontends. All methods are safe on a nil *Metrics.
type Metrics struct {
	RoomsJoined           prometheus.Gauge
	PeersConnected        *prometheus.GaugeVec
	MessagesSent          prometheus.Counter
	MessagesReceived      prometheus.Counter
	HistoryChunksSent     prometheus.Counter
	HistoryMessagesMerged prometheus.Counter
	ProtocolErrors        prometheus.Counter
	TransportErrors       prometheus.Counter
	FrontendConnections   *prometheus.CounterVec
}

// NewMetrics creates and registers the chat metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RoomsJoined: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "peerchat_rooms_joined",
			Help: "Number of rooms currently joined",
		}),
		PeersConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "peerchat_peers_connected",
			Help: "Open peer connections by room",
		}, []string{"room"}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peerchat_messages_sent_total",
			Help: "Chat messages sent by the local user",
		}),
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peerchat_messages_received_total",
			Help: "Chat messages received from peers",
		}),
		HistoryChunksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peerchat_history_chunks_sent_total",
			Help: "History chunks served to peers",
		}),
		HistoryMessagesMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peerchat_history_messages_merged_total",
			Help: "Messages added to local logs from peer history",
		}),
		ProtocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peerchat_protocol_errors_total",
			Help: "Inbound frames discarded as malformed",
		}),
		TransportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peerchat_transport_errors_total",
			Help: "Peer connections dropped after an I/O failure",
		}),
		FrontendConnections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "peerchat_frontend_connections_total",
			Help: "Local frontend connections by type",
		}, []string{"type"}),
	}

	reg.MustRegister(
		m.RoomsJoined,
		m.PeersConnected,
		m.MessagesSent,
		m.MessagesReceived,
		m.HistoryChunksSent,
		m.HistoryMessagesMerged,
		m.ProtocolErrors,
		m.TransportErrors,
		m.FrontendConnections,
	)
	return m
}

// RoomJoined records a join.
func (m *Metrics) RoomJoined() {
	if m != nil {
		m.RoomsJoined.Inc()
	}
}

// RoomLeft records a leave and drops the room's peer gauge.
func (m *Metrics) RoomLeft(room string) {
	if m != nil {
		m.RoomsJoined.Dec()
		m.PeersConnected.DeleteLabelValues(room)
	}
}

// SetPeers records the open connection count of a room.
func (m *Metrics) SetPeers(room string, n int) {
	if m != nil {
		m.PeersConnected.WithLabelValues(room).Set(float64(n))
	}
}

// MessageSent records a locally sent message.
func (m *Metrics) MessageSent() {
	if m != nil {
		m.MessagesSent.Inc()
	}
}

// MessageReceived records a message received from a peer.
func (m *Metrics) MessageReceived() {
	if m != nil {
		m.MessagesReceived.Inc()
	}
}

// HistoryChunkSent records a served history chunk.
func (m *Metrics) HistoryChunkSent() {
	if m != nil {
		m.HistoryChunksSent.Inc()
	}
}

// HistoryMerged records messages added from peer history.
func (m *Metrics) HistoryMerged(n int) {
	if m != nil && n > 0 {
		m.HistoryMessagesMerged.Add(float64(n))
	}
}

// ProtocolError records a discarded frame.
func (m *Metrics) ProtocolError() {
	if m != nil {
		m.ProtocolErrors.Inc()
	}
}

// TransportError records a dropped peer.
func (m *Metrics) TransportError() {
	if m != nil {
		m.TransportErrors.Inc()
	}
}

// FrontendConnected records a local frontend connection ("telnet",
// "websocket").
func (m *Metrics) FrontendConnected(kind string) {
	if m != nil {
		m.FrontendConnections.WithLabelValues(kind).Inc()
	}
}
