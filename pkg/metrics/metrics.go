// Package metrics 提供 Prometheus 监控指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 传输层指标
var (
	// 连接指标
	RudpConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rudp_connections_total",
		Help: "Number of active RUDP connections",
	})

	RudpConnectionCloseReason = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rudp_connection_close_total",
		Help: "Connection close count by reason",
	}, []string{"reason"})

	// 包指标
	RudpPacketsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rudp_packets_received_total",
		Help: "Total packets received by packet type",
	}, []string{"type"})

	RudpPacketsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rudp_packets_sent_total",
		Help: "Total packets sent by packet type",
	}, []string{"type"})

	RudpPacketsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rudp_packets_dropped_total",
		Help: "Total inbound packets dropped by reason",
	}, []string{"reason"})

	// 可靠性指标
	RudpRetransmissions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rudp_retransmissions_total",
		Help: "Total packet retransmissions",
	})

	RudpDuplicates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rudp_duplicate_packets_total",
		Help: "Total duplicate packets suppressed",
	})

	RudpFragmentTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rudp_fragment_timeouts_total",
		Help: "Total fragment groups dropped on timeout",
	})

	RudpSendQueueDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rudp_send_queue_dropped_total",
		Help: "Outbound messages dropped due to backpressure",
	}, []string{"priority"})

	// RTT 指标
	RudpRTT = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rudp_rtt_seconds",
		Help:    "Smoothed round trip time samples",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})
)

// 游戏层指标
var (
	GameRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "game_rooms_total",
		Help: "Number of active rooms",
	})

	GameUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "game_users_total",
		Help: "Number of users currently in rooms",
	})

	GameMessagesDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "game_messages_dispatched_total",
		Help: "Game messages dispatched by message tag",
	}, []string{"tag"})

	GameBroadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "game_broadcasts_total",
		Help: "Total room broadcast operations",
	})

	GameMoveUpdatesSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "game_move_updates_suppressed_total",
		Help: "MoveUpdate broadcasts suppressed by the rate cap",
	})

	GameSkillUsage = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "game_skill_usage_total",
		Help: "Skill usage count by result",
	}, []string{"result"})

	GameErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "game_errors_total",
		Help: "Game error replies by code",
	}, []string{"code"})
)

// 持久化指标
var (
	PersistSnapshots = promauto.NewCounter(prometheus.CounterOpts{
		Name: "persist_snapshots_total",
		Help: "Player state snapshots published",
	})

	PersistSnapshotFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "persist_snapshot_failures_total",
		Help: "Player state snapshot publish failures",
	}, []string{"reason"})
)
