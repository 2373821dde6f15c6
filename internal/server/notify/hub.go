// Package notify рассылает устройствам пользователя уведомления о новых
// операциях в журнале relay сервера через websocket.
package notify

import (
	"log/slog"
	"sync"

	"github.com/iudanet/coursesync/pkg/api"
)

// subscriberBuffer емкость очереди уведомлений одного подписчика
const subscriberBuffer = 16

// Subscription подписка одного устройства.
// Канал C закрывается при Close или остановке Hub.
type Subscription struct {
	C        <-chan api.Notification
	ch       chan api.Notification
	hub      *Hub
	userID   string
	deviceID string
	once     sync.Once
}

// Close отписывает устройство
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Hub реестр подписок по пользователям
type Hub struct {
	logger  *slog.Logger
	subs    map[string]map[*Subscription]struct{}
	mu      sync.Mutex
	closed  bool
	dropped int64
}

// NewHub создает пустой реестр подписок
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		subs:   make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe регистрирует устройство пользователя.
// После Close хаба возвращает уже закрытую подписку.
func (h *Hub) Subscribe(userID, deviceID string) *Subscription {
	ch := make(chan api.Notification, subscriberBuffer)
	sub := &Subscription{
		C:        ch,
		ch:       ch,
		hub:      h,
		userID:   userID,
		deviceID: deviceID,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		sub.once.Do(func() { close(ch) })
		return sub
	}

	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*Subscription]struct{})
	}
	h.subs[userID][sub] = struct{}{}

	h.logger.Debug("Device subscribed", "user_id", userID, "device_id", deviceID, "subscribers", len(h.subs[userID]))
	return sub
}

// Publish доставляет уведомление всем устройствам пользователя, кроме
// загрузившего операции. Не блокируется: медленный подписчик теряет
// уведомление, но следующий цикл синхронизации все равно заберет операции.
func (h *Hub) Publish(n api.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[n.UserID] {
		if sub.deviceID == n.DeviceID {
			continue
		}
		select {
		case sub.ch <- n:
		default:
			h.dropped++
			h.logger.Warn("Notification dropped, subscriber is slow",
				"user_id", n.UserID,
				"device_id", sub.deviceID,
				"cursor", n.Cursor,
			)
		}
	}
}

// Subscribers возвращает число подписок пользователя
func (h *Hub) Subscribers(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[userID])
}

// Dropped возвращает число потерянных уведомлений
func (h *Hub) Dropped() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Close закрывает все подписки; новые подписки сразу закрыты
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for userID, subs := range h.subs {
		for sub := range subs {
			sub.once.Do(func() { close(sub.ch) })
		}
		delete(h.subs, userID)
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if subs, ok := h.subs[sub.userID]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.subs, sub.userID)
		}
	}
	sub.once.Do(func() { close(sub.ch) })
}
