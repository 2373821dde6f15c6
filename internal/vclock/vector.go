package vclock

import (
	"sort"
	"strconv"
	"strings"
)

// Relation описывает причинное отношение между двумя векторными часами.
type Relation int

const (
	// Equal часы совпадают покомпонентно.
	Equal Relation = iota
	// Before левая сторона строго предшествует правой.
	Before
	// After левая сторона строго следует за правой.
	After
	// Concurrent ни одна сторона не доминирует над другой.
	Concurrent
)

// String returns the human-readable relation name.
func (r Relation) String() string {
	switch r {
	case Equal:
		return "equal"
	case Before:
		return "before"
	case After:
		return "after"
	case Concurrent:
		return "concurrent"
	default:
		return "unknown"
	}
}

// VectorClock отображает device_id на логический счетчик устройства.
// Отсутствующий ключ эквивалентен нулю.
type VectorClock map[string]int64

// Clone возвращает независимую копию часов.
func (vc VectorClock) Clone() VectorClock {
	out := make(VectorClock, len(vc))
	for device, counter := range vc {
		out[device] = counter
	}
	return out
}

// Get возвращает счетчик устройства (0 если устройство неизвестно).
func (vc VectorClock) Get(deviceID string) int64 {
	return vc[deviceID]
}

// Merge возвращает новые часы - покомпонентный максимум vc и other.
// Ни один из аргументов не изменяется.
func (vc VectorClock) Merge(other VectorClock) VectorClock {
	out := vc.Clone()
	for device, counter := range other {
		if counter > out[device] {
			out[device] = counter
		}
	}
	return out
}

// Dominates reports whether vc has seen every event recorded in other.
func (vc VectorClock) Dominates(other VectorClock) bool {
	rel := Compare(vc, other)
	return rel == After || rel == Equal
}

// String renders the clock with sorted device ids, e.g. "{a:1 b:3}".
func (vc VectorClock) String() string {
	devices := make([]string, 0, len(vc))
	for device := range vc {
		devices = append(devices, device)
	}
	sort.Strings(devices)

	var b strings.Builder
	b.WriteByte('{')
	for i, device := range devices {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(device)
		b.WriteByte(':')
		b.WriteString(strconv.FormatInt(vc[device], 10))
	}
	b.WriteByte('}')
	return b.String()
}

// Compare определяет причинное отношение a к b.
// Это единственный примитив, по которому движок судит о порядке событий.
func Compare(a, b VectorClock) Relation {
	aLess, bLess := false, false

	for device, av := range a {
		bv := b[device]
		if av < bv {
			aLess = true
		} else if av > bv {
			bLess = true
		}
	}
	// ключи, которые есть только в b
	for device, bv := range b {
		if _, ok := a[device]; ok {
			continue
		}
		if bv > 0 {
			aLess = true
		}
	}

	switch {
	case aLess && bLess:
		return Concurrent
	case aLess:
		return Before
	case bLess:
		return After
	default:
		return Equal
	}
}
