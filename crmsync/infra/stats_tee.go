package infra

import (
	"context"

	"crm-sync-gateway/crmsync/domain"

	"go.uber.org/multierr"
)

// TeeStats repassa cada evento para todos os stores. Um store com erro não
// impede os demais; os erros são combinados.
type TeeStats []domain.StatsStore

func (t TeeStats) Record(ctx context.Context, ev domain.StatsEvent) error {
	var err error
	for _, s := range t {
		if s == nil {
			continue
		}
		err = multierr.Append(err, s.Record(ctx, ev))
	}
	return err
}
