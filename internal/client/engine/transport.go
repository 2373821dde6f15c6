package engine

import (
	"context"

	"github.com/iudanet/coursesync/pkg/api"
)

//go:generate moq -out transport_mock.go . Transport

// Transport обменивается пакетом операций с удаленным эндпоинтом
type Transport interface {
	// Exchange отправляет локальный пакет и получает подтверждения и входящие операции
	Exchange(ctx context.Context, req *api.SyncRequest) (*api.SyncResponse, error)
}
