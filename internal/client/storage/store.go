package storage

import "context"

// Store локальное транзакционное хранилище клиента.
// Все многошаговые изменения (журнал, очередь, сущность, статус, аудит)
// выполняются внутри одной транзакции Update и откатываются целиком при ошибке.
type Store interface {
	// Update выполняет fn в read-write транзакции
	Update(ctx context.Context, fn func(tx Tx) error) error

	// View выполняет fn в read-only транзакции
	View(ctx context.Context, fn func(tx Tx) error) error

	// Close closes the underlying database
	Close() error
}

// Tx набор операций, доступных внутри транзакции
type Tx interface {
	OperationTx
	EntityTx
	StatusTx
	AuditTx
	MetadataTx
}
