package conflict

import (
	"encoding/json"
	"fmt"
	"time"
)

// Side одна из сторон конфликта, передаваемая в merge hook
type Side struct {
	Timestamp   time.Time
	DeviceID    string
	OperationID string
	Payload     json.RawMessage
}

// MergeFunc сливает два конкурентных payload одной сущности.
// Resolver сворачивает конкурентные изменения в порядке tie-break:
// first - накопленный результат с идентичностью победителя, second - следующая сторона.
// Порядок вызовов одинаков на всех репликах, поэтому реализации достаточно
// быть детерминированной.
type MergeFunc func(first, second Side) (json.RawMessage, error)

// HookShallow имя встроенного merge hook
const HookShallow = "shallow"

// BuiltinHook returns a built-in merge hook by name.
func BuiltinHook(name string) (MergeFunc, error) {
	switch name {
	case HookShallow:
		return ShallowMerge, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownHook, name)
	}
}

// ShallowMerge объединяет ключи верхнего уровня двух JSON объектов.
// Ключ, присутствующий с разными значениями в обоих объектах, берется
// у стороны, выигрывающей tie-break, поэтому порядок аргументов не важен.
func ShallowMerge(first, second Side) (json.RawMessage, error) {
	winner, loser := first, second
	if !lessKey(first.DeviceID, first.OperationID, second.DeviceID, second.OperationID) {
		winner, loser = second, first
	}

	var winnerFields, loserFields map[string]json.RawMessage
	if err := json.Unmarshal(winner.Payload, &winnerFields); err != nil || winnerFields == nil {
		return nil, fmt.Errorf("%w: operation %s", ErrNotObject, winner.OperationID)
	}
	if err := json.Unmarshal(loser.Payload, &loserFields); err != nil || loserFields == nil {
		return nil, fmt.Errorf("%w: operation %s", ErrNotObject, loser.OperationID)
	}

	merged := make(map[string]json.RawMessage, len(winnerFields)+len(loserFields))
	for key, value := range loserFields {
		merged[key] = value
	}
	for key, value := range winnerFields {
		merged[key] = value
	}

	// json.Marshal сортирует ключи map - результат детерминирован
	out, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merged payload: %w", err)
	}
	return out, nil
}
