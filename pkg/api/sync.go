package api

import (
	"encoding/json"
	"time"
)

// Operation операция синхронизации в формате протокола
type Operation struct {
	Timestamp     time.Time        `json:"timestamp"`
	VectorClock   map[string]int64 `json:"vector_clock"`
	ID            string           `json:"id"`
	DeviceID      string           `json:"device_id"`
	UserID        string           `json:"user_id"`
	OperationType string           `json:"operation_type"`
	EntityType    string           `json:"entity_type"`
	EntityID      string           `json:"entity_id"`
	Payload       json.RawMessage  `json:"payload,omitempty"`
}

// SyncBatch пакет операций одного устройства
type SyncBatch struct {
	Timestamp   time.Time        `json:"timestamp"`
	VectorClock map[string]int64 `json:"vector_clock"` // часы отправителя на момент формирования
	DeviceID    string           `json:"device_id"`
	UserID      string           `json:"user_id"`
	Operations  []Operation      `json:"operations"`
}

// SyncRequest представляет запрос на синхронизацию от клиента
type SyncRequest struct {
	Batch  SyncBatch `json:"batch"`
	Cursor int64     `json:"cursor"`          // последняя полученная позиция потока сервера
	Limit  int       `json:"limit,omitempty"` // максимум входящих операций в ответе
}

// RejectedOperation операция, которую сервер отказался принять
type RejectedOperation struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// SyncResponse представляет ответ сервера на синхронизацию
type SyncResponse struct {
	ServerTime  time.Time           `json:"server_time"`
	VectorClock map[string]int64    `json:"vector_clock"` // часы запроса, объединенные с часами входящих операций
	Accepted    []string            `json:"accepted"`     // id сохраненных (в том числе ранее) операций
	Rejected    []RejectedOperation `json:"rejected,omitempty"`
	Inbound     []Operation         `json:"inbound"` // операции других устройств пользователя
	Cursor      int64               `json:"cursor"`
	HasMore     bool                `json:"has_more"`
}

// Notification сообщение websocket-канала: у пользователя появились новые операции
type Notification struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"` // устройство, загрузившее операции
	Cursor   int64  `json:"cursor"`
}
