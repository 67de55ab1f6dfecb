package domain

import (
	"context"
	"time"
)

// Record é o payload já no formato que o destino espera.
type Record map[string]any

// Result é a resposta de sucesso do CRM.
type Result struct {
	Success    bool      `json:"success"`
	ExternalID string    `json:"id"`
	Operation  Operation `json:"operation"`
	Target     string    `json:"provider"`
	Timestamp  time.Time `json:"timestamp"`
}

// CRMClient é a capacidade downstream de um destino. Latência e falhas são
// não determinísticas; qualquer erro é tratado como transitório.
type CRMClient interface {
	Create(ctx context.Context, data Record) (Result, error)
	Update(ctx context.Context, id string, data Record) (Result, error)
	Delete(ctx context.Context, id string) (Result, error)
}
