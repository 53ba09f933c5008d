package entity

import "time"

type ConnectionType string

const (
	ConnectionTypeLiveStream ConnectionType = "live-stream"
	ConnectionTypePolling    ConnectionType = "polling"
	ConnectionTypeOffline    ConnectionType = "offline"
)

type DataQuality string

const (
	DataQualityRealTime DataQuality = "real-time"
	DataQualityDelayed  DataQuality = "delayed"
	DataQualityCached   DataQuality = "cached"
)

// ConnectionStatus is a process-wide singleton owned by the connection
// manager; callers always receive a copy.
type ConnectionStatus struct {
	IsConnected       bool           `json:"is_connected"`
	ConnectionType    ConnectionType `json:"connection_type"`
	LastUpdate        time.Time      `json:"last_update"`
	Latency           time.Duration  `json:"latency"`
	ReconnectAttempts int            `json:"reconnect_attempts"`
	DataQuality       DataQuality    `json:"data_quality"`
}
