package conflict

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/iudanet/coursesync/internal/models"
	"github.com/iudanet/coursesync/internal/vclock"
)

// DeletePolicy определяет исход конкурентного удаления и изменения
type DeletePolicy string

// DeletePolicy константы
const (
	// DeleteSurvive изменение или создание переживает конкурентное удаление
	DeleteSurvive DeletePolicy = "survive"
	// DeletePrefer конкурентное удаление побеждает, проигравший payload сохраняется
	DeletePrefer DeletePolicy = "delete"
)

// ParseDeletePolicy parses a policy name; empty selects DeleteSurvive.
func ParseDeletePolicy(s string) (DeletePolicy, error) {
	switch DeletePolicy(s) {
	case "", DeleteSurvive:
		return DeleteSurvive, nil
	case DeletePrefer:
		return DeletePrefer, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// Effect действие над локальной сущностью, которое требует исход
type Effect int

const (
	// EffectKeepLocal локальное состояние сущности не меняется
	EffectKeepLocal Effect = iota
	// EffectApplyRemote применить эффект удаленной операции
	EffectApplyRemote
	// EffectApplyMerged записать результат merge hook
	EffectApplyMerged
	// EffectRestoreLocal вернуть эффект операции из локальной истории (Outcome.Winner)
	EffectRestoreLocal
)

// String returns the effect name.
func (e Effect) String() string {
	switch e {
	case EffectKeepLocal:
		return "keep_local"
	case EffectApplyRemote:
		return "apply_remote"
	case EffectApplyMerged:
		return "apply_merged"
	case EffectRestoreLocal:
		return "restore_local"
	default:
		return "unknown"
	}
}

// Conflict описывает обнаруженный и разрешенный конфликт
type Conflict struct {
	Local      *models.SyncOperation
	HookErr    error // ошибка merge hook, после которой сработал tie-break
	Type       models.ConflictType
	Resolution models.ConflictResolution
	Reason     string
}

// Duplicate описывает проигравшую сторону CreateCreate,
// которая сохраняется под отдельным детерминированным id.
// Вместе с create туда переходят правки, сделанные поверх него.
type Duplicate struct {
	EntityID    string
	OperationID string          // операция, определяющая дубликат
	Payload     json.RawMessage // payload головы ветки проигравшего create
	FromLocal   bool            // проигравший create из локальной истории
	Deleted     bool            // ветка заканчивается удалением
}

// Loser операция, чей payload проиграл и должен остаться доступным для восстановления
type Loser struct {
	Operation *models.SyncOperation
	Reason    string
}

// Outcome результат сверки одной удаленной операции с локальной историей сущности
type Outcome struct {
	Conflict   *Conflict
	Duplicate  *Duplicate
	Winner     *models.SyncOperation // операция, определяющая сущность после сверки
	Payload    json.RawMessage       // результат merge для EffectApplyMerged
	Superseded []string              // неподтвержденные локальные операции, перекрытые удаленной
	Losers     []Loser
	Relation   vclock.Relation // отношение локальной истории к удаленной операции
	Effect     Effect
}

// Head состояние сущности, выведенное из ее истории
type Head struct {
	Operation *models.SyncOperation // операция, чей эффект определяет сущность
	HookErr   error
	Payload   json.RawMessage
	Merged    bool // Payload получен merge hook
}

// Option настраивает Resolver
type Option func(*Resolver)

// WithDeletePolicy задает политику для CreateDelete и UpdateDelete
func WithDeletePolicy(policy DeletePolicy) Option {
	return func(r *Resolver) {
		r.policy = policy
	}
}

// WithMergeHook регистрирует merge hook для типа сущности
func WithMergeHook(entityType string, fn MergeFunc) Option {
	return func(r *Resolver) {
		r.hooks[entityType] = fn
	}
}

// Resolver обнаруживает и разрешает конфликты.
// Не хранит скрытого состояния: после создания используется только на чтение.
type Resolver struct {
	hooks  map[string]MergeFunc
	policy DeletePolicy
}

// NewResolver creates a resolver with the survive delete policy and no merge hooks.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		hooks:  make(map[string]MergeFunc),
		policy: DeleteSurvive,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the configured delete policy.
func (r *Resolver) Policy() DeletePolicy {
	return r.policy
}

// HasHook reports whether a merge hook is registered for the entity type.
func (r *Resolver) HasHook(entityType string) bool {
	_, ok := r.hooks[entityType]
	return ok
}

// Reconcile сверяет удаленную операцию с локальной историей той же сущности.
// local - операции журнала по этой сущности в порядке журнала
// (и локальные, и ранее примененные удаленные).
//
// Состояние сущности зависит только от набора операций в истории, а не от
// порядка их получения: при конкурентной операции исход строится из
// Head истории до и после добавления удаленной операции.
func (r *Resolver) Reconcile(local []*models.SyncOperation, remote *models.SyncOperation) (*Outcome, error) {
	if remote.OperationType == models.OperationReference || !remote.OperationType.Valid() {
		return nil, fmt.Errorf("%w: remote %s", ErrUnclassifiable, remote.OperationType)
	}

	out := &Outcome{
		Relation: vclock.Before,
		Effect:   EffectApplyRemote,
	}

	var history, concurrent []*models.SyncOperation
	stale := false

	for _, l := range local {
		if !classifiable(l.OperationType) {
			continue
		}

		if l.ID == remote.ID {
			// повтор уже известной операции
			stale = true
			if !l.Synced {
				out.Superseded = append(out.Superseded, l.ID)
			}
			continue
		}
		history = append(history, l)

		switch vclock.Compare(l.VectorClock, remote.VectorClock) {
		case vclock.Before:
			if !l.Synced {
				out.Superseded = append(out.Superseded, l.ID)
			}
		case vclock.Equal, vclock.After:
			stale = true
		case vclock.Concurrent:
			concurrent = append(concurrent, l)
		}
	}

	if stale {
		// локальная история уже видела эту операцию
		out.Relation = vclock.After
		out.Effect = EffectKeepLocal
		return out, nil
	}

	all := append(slices.Clone(history), remote)
	if owner, ok := lineages(all)[remote.ID]; ok && owner.ID != remote.ID {
		// правка записи, проигравшей конкурентное создание: сущность не меняется
		if len(concurrent) > 0 {
			out.Relation = vclock.Concurrent
		}
		out.Effect = EffectKeepLocal
		out.Duplicate = r.duplicate(all, owner, false)
		return out, nil
	}

	// правки дубликатов не конкурируют с операциями над самой сущностью
	owners := lineages(history)
	concurrent = slices.DeleteFunc(concurrent, func(op *models.SyncOperation) bool {
		_, ok := owners[op.ID]
		return ok
	})

	if len(concurrent) == 0 {
		out.Winner = remote
		return out, nil
	}

	out.Relation = vclock.Concurrent
	if err := r.resolve(out, history, concurrent, remote); err != nil {
		return nil, err
	}

	return out, nil
}

// Head выводит состояние сущности из ее истории. false - в истории нет
// операций, определяющих сущность (только ссылки или пусто).
func (r *Resolver) Head(history []*models.SyncOperation) (*Head, bool) {
	var ops []*models.SyncOperation
	for _, op := range history {
		if classifiable(op.OperationType) {
			ops = append(ops, op)
		}
	}
	head := r.pick(frontier(ops))
	return head, head != nil
}

func (r *Resolver) resolve(out *Outcome, history, concurrent []*models.SyncOperation, remote *models.SyncOperation) error {
	before := frontier(history)
	after := frontier(append(slices.Clone(history), remote))
	oldHead := r.pick(before)
	newHead := r.pick(after)

	local := r.counterpart(concurrent, after, remote)
	conflictType, err := Classify(local.OperationType, remote.OperationType)
	if err != nil {
		return err
	}

	c := &Conflict{
		Local:   local,
		Type:    conflictType,
		HookErr: newHead.HookErr,
	}
	out.Conflict = c
	out.Winner = newHead.Operation

	remoteWins := newHead.Operation.ID == remote.ID
	switch {
	case newHead.Merged:
		c.Resolution = models.ResolutionMerge
		out.Effect = EffectApplyMerged
		out.Payload = newHead.Payload
	case remoteWins:
		c.Resolution = models.ResolutionKeepSecond
		out.Effect = EffectApplyRemote
	case oldHead != nil && !oldHead.Merged && oldHead.Operation.ID == newHead.Operation.ID:
		c.Resolution = models.ResolutionKeepFirst
		out.Effect = EffectKeepLocal
	default:
		// удаленная операция перекрыла прежнюю голову, но выиграла
		// другая операция локальной истории
		c.Resolution = models.ResolutionKeepFirst
		out.Effect = EffectRestoreLocal
	}

	headIsDelete := newHead.Operation.OperationType == models.OperationDelete
	loserReason := "concurrent edit lost tie-break"
	if headIsDelete {
		loserReason = "edit lost to concurrent delete"
	}

	if !newHead.Merged {
		// проигравший видимый payload: прежняя голова, если победил remote,
		// иначе сам remote
		loser := remote
		if remoteWins && oldHead != nil {
			loser = oldHead.Operation
		}
		if loser.ID != newHead.Operation.ID &&
			loser.OperationType != models.OperationDelete &&
			contains(after, loser) {
			out.Losers = append(out.Losers, Loser{Operation: loser, Reason: loserReason})
		}
	}

	if conflictType == models.ConflictCreateCreate {
		c.Resolution = models.ResolutionKeepBoth
		all := append(slices.Clone(history), remote)
		if Less(local, remote) {
			out.Duplicate = r.duplicate(all, remote, false)
			c.Reason = "concurrent creation: remote copy kept as duplicate"
		} else {
			out.Duplicate = r.duplicate(all, local, true)
			c.Reason = "concurrent creation: local copy moved to duplicate"
		}
		return nil
	}

	c.Reason = r.reason(newHead, after)
	return nil
}

func (r *Resolver) reason(head *Head, after []*models.SyncOperation) string {
	edits, deletes := split(after)
	switch {
	case head.Merged:
		return "merged by hook"
	case head.Operation.OperationType == models.OperationDelete && len(edits) > 0:
		return "concurrent delete wins"
	case head.Operation.OperationType == models.OperationDelete:
		return "both sides deleted"
	case len(deletes) > 0:
		return "edit survives concurrent delete"
	case head.HookErr != nil:
		return "merge hook failed, tie-break by device id"
	default:
		return "tie-break by device id"
	}
}

// counterpart выбирает локальную операцию, с которой конфликт записывается в аудит:
// для удаленного create - конкурентный create, выигрывающий tie-break,
// иначе старшая по выбору головы конкурентная операция.
func (r *Resolver) counterpart(concurrent, after []*models.SyncOperation, remote *models.SyncOperation) *models.SyncOperation {
	if remote.OperationType == models.OperationCreate {
		var best *models.SyncOperation
		for _, l := range concurrent {
			if l.OperationType == models.OperationCreate && (best == nil || Less(l, best)) {
				best = l
			}
		}
		if best != nil {
			return best
		}
	}

	ranked, _ := r.rank(after)
	for _, op := range ranked {
		if contains(concurrent, op) {
			return op
		}
	}
	return concurrent[len(concurrent)-1]
}

// pick выбирает голову среди операций frontier: группа по политике удаления,
// внутри группы tie-break или свертка merge hook в порядке tie-break.
func (r *Resolver) pick(ops []*models.SyncOperation) *Head {
	if len(ops) == 0 {
		return nil
	}

	ranked, size := r.rank(ops)
	group := ranked[:size]
	winner := group[0]
	head := &Head{Operation: winner, Payload: winner.Payload}

	if winner.OperationType == models.OperationDelete || len(group) == 1 {
		return head
	}
	hook, ok := r.hooks[winner.EntityType]
	if !ok {
		return head
	}

	acc := sideOf(winner)
	for _, op := range group[1:] {
		merged, err := hook(acc, sideOf(op))
		if err != nil {
			head.HookErr = err
			return head
		}
		acc.Payload = merged
	}
	head.Payload = acc.Payload
	head.Merged = true
	return head
}

// rank упорядочивает операции: сначала группа, из которой выбирается голова,
// затем остальные; внутри группы по tie-break. Возвращает размер первой группы.
func (r *Resolver) rank(ops []*models.SyncOperation) ([]*models.SyncOperation, int) {
	edits, deletes := split(ops)
	byTieBreak := func(a, b *models.SyncOperation) int {
		switch {
		case Less(a, b):
			return -1
		case Less(b, a):
			return 1
		default:
			return 0
		}
	}
	slices.SortFunc(edits, byTieBreak)
	slices.SortFunc(deletes, byTieBreak)

	if len(edits) == 0 || (r.policy == DeletePrefer && len(deletes) > 0) {
		return append(deletes, edits...), len(deletes)
	}
	return append(edits, deletes...), len(edits)
}

func split(ops []*models.SyncOperation) (edits, deletes []*models.SyncOperation) {
	for _, op := range ops {
		if op.OperationType == models.OperationDelete {
			deletes = append(deletes, op)
		} else {
			edits = append(edits, op)
		}
	}
	return edits, deletes
}

// duplicate выводит состояние дубликата из ветки проигравшего create
func (r *Resolver) duplicate(ops []*models.SyncOperation, create *models.SyncOperation, fromLocal bool) *Duplicate {
	owners := lineages(ops)
	var branch []*models.SyncOperation
	for _, op := range ops {
		if owner, ok := owners[op.ID]; ok && owner.ID == create.ID {
			branch = append(branch, op)
		}
	}

	dup := &Duplicate{
		EntityID:    DuplicateID(create.EntityID, create.ID),
		OperationID: create.ID,
		Payload:     create.Payload,
		FromLocal:   fromLocal,
	}
	if head := r.pick(heads(branch)); head != nil {
		dup.OperationID = head.Operation.ID
		dup.Deleted = head.Operation.OperationType == models.OperationDelete
		if !dup.Deleted {
			dup.Payload = head.Payload
		}
	}
	return dup
}

// Anchors возвращает id операций истории, которые сжатие журнала обязано
// сохранить: головы сущности и веток дубликатов, а также все create.
// Поздняя конкурентная операция сверяется только с тем, что осталось в журнале.
func Anchors(history []*models.SyncOperation) map[string]struct{} {
	var ops []*models.SyncOperation
	for _, op := range history {
		if classifiable(op.OperationType) {
			ops = append(ops, op)
		}
	}

	keep := make(map[string]struct{})
	owners := lineages(ops)
	branches := make(map[string][]*models.SyncOperation)
	var main []*models.SyncOperation

	for _, op := range ops {
		if op.OperationType == models.OperationCreate {
			// create решают, к какой записи относятся последующие правки
			keep[op.ID] = struct{}{}
		}
		if owner, ok := owners[op.ID]; ok {
			branches[owner.ID] = append(branches[owner.ID], op)
			continue
		}
		main = append(main, op)
	}

	for _, op := range heads(main) {
		keep[op.ID] = struct{}{}
	}
	for _, branch := range branches {
		for _, op := range heads(branch) {
			keep[op.ID] = struct{}{}
		}
	}
	return keep
}

// frontier оставляет операции над самой сущностью, которые не перекрыты
// другой такой операцией. Ветки проигравших create уходят в дубликаты.
func frontier(ops []*models.SyncOperation) []*models.SyncOperation {
	owners := lineages(ops)
	var main []*models.SyncOperation
	for _, op := range ops {
		if _, ok := owners[op.ID]; !ok {
			main = append(main, op)
		}
	}
	return heads(main)
}

func heads(ops []*models.SyncOperation) []*models.SyncOperation {
	var result []*models.SyncOperation
	for _, op := range ops {
		if !dominated(op, ops) {
			result = append(result, op)
		}
	}
	return result
}

// lineages сопоставляет операции ветки проигравшего create с этим create
// (сам create входит в свою ветку). Операции над сущностью в результат не попадают.
func lineages(ops []*models.SyncOperation) map[string]*models.SyncOperation {
	owners := make(map[string]*models.SyncOperation)

	var creates []*models.SyncOperation
	for _, op := range ops {
		if op.OperationType == models.OperationCreate {
			creates = append(creates, op)
		}
	}
	if len(creates) < 2 {
		return owners
	}

	for _, op := range ops {
		owner := ownerCreate(op, creates)
		if owner != nil && displaced(owner, creates) {
			owners[op.ID] = owner
		}
	}
	return owners
}

// ownerCreate возвращает create, чью запись правит op: среди create из
// причинного прошлого op, не перекрытых другими такими create, победителя tie-break.
func ownerCreate(op *models.SyncOperation, creates []*models.SyncOperation) *models.SyncOperation {
	var past []*models.SyncOperation
	for _, c := range creates {
		if c.ID == op.ID || vclock.Compare(c.VectorClock, op.VectorClock) == vclock.Before {
			past = append(past, c)
		}
	}

	var owner *models.SyncOperation
	for _, c := range past {
		if dominated(c, past) {
			continue
		}
		if owner == nil || Less(c, owner) {
			owner = c
		}
	}
	return owner
}

func dominated(op *models.SyncOperation, ops []*models.SyncOperation) bool {
	for _, other := range ops {
		if other.ID != op.ID && vclock.Compare(op.VectorClock, other.VectorClock) == vclock.Before {
			return true
		}
	}
	return false
}

// displaced: проигравший create живет под id дубликата, а не под id сущности
func displaced(op *models.SyncOperation, ops []*models.SyncOperation) bool {
	if op.OperationType != models.OperationCreate {
		return false
	}
	for _, other := range ops {
		if other.ID == op.ID || other.OperationType != models.OperationCreate {
			continue
		}
		if Less(other, op) && vclock.Compare(other.VectorClock, op.VectorClock) == vclock.Concurrent {
			return true
		}
	}
	return false
}

func contains(ops []*models.SyncOperation, op *models.SyncOperation) bool {
	return slices.ContainsFunc(ops, func(o *models.SyncOperation) bool {
		return o.ID == op.ID
	})
}

func sideOf(op *models.SyncOperation) Side {
	return Side{
		Timestamp:   op.Timestamp,
		DeviceID:    op.DeviceID,
		OperationID: op.ID,
		Payload:     op.Payload,
	}
}
