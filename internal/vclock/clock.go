package vclock

import (
	"sync"
)

// Clock хранит векторные часы текущего устройства.
// Единственная точка сериализации изменений часов в процессе: критические
// секции ограничены инкрементом с копированием и слиянием, без I/O под мьютексом.
type Clock struct {
	clock    VectorClock // текущее состояние часов
	deviceID string      // идентификатор локального устройства
	mu       sync.Mutex
}

// New создает часы устройства с пустым состоянием.
func New(deviceID string) *Clock {
	return &Clock{
		clock:    make(VectorClock),
		deviceID: deviceID,
	}
}

// NewFrom создает часы устройства и восстанавливает сохраненное состояние.
// Используется при старте, когда состояние читается из локального хранилища.
func NewFrom(deviceID string, state VectorClock) *Clock {
	c := New(deviceID)
	for device, counter := range state {
		c.clock[device] = counter
	}
	return c
}

// Tick увеличивает счетчик локального устройства и возвращает копию часов.
// Вызывается ровно один раз на каждую новую локальную операцию.
func (c *Clock) Tick() VectorClock {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clock[c.deviceID]++
	return c.clock.Clone()
}

// Merge сливает удаленные часы в локальные (покомпонентный максимум)
// и возвращает копию результата. Локальный счетчик не увеличивается.
func (c *Clock) Merge(remote VectorClock) VectorClock {
	c.mu.Lock()
	defer c.mu.Unlock()

	for device, counter := range remote {
		if counter > c.clock[device] {
			c.clock[device] = counter
		}
	}
	return c.clock.Clone()
}

// Snapshot возвращает копию текущего состояния без изменения.
func (c *Clock) Snapshot() VectorClock {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.clock.Clone()
}

// DeviceID возвращает идентификатор локального устройства.
func (c *Clock) DeviceID() string {
	return c.deviceID
}
