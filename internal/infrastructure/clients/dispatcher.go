package clients

import (
	"context"
	"fmt"

	domain "github.com/trackerlabs/migrate/internal/domain/migration"
)

// Factory builds the source and target clients for one job. Concrete
// factories (per source system) are provided by the deployment and passed
// into NewDispatcher; this module ships none of its own.
type Factory interface {
	Clients(ctx context.Context, job domain.MigrationJob) (domain.SourceClient, domain.TargetClient, error)
}

// Dispatcher routes client construction by the job's configured source
// name.
type Dispatcher struct {
	factories map[string]Factory
}

func NewDispatcher(factories map[string]Factory) *Dispatcher {
	if factories == nil {
		factories = make(map[string]Factory)
	}
	return &Dispatcher{factories: factories}
}

func (d *Dispatcher) Clients(ctx context.Context, job domain.MigrationJob) (domain.SourceClient, domain.TargetClient, error) {
	factory, ok := d.factories[job.Config.Source]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", domain.ErrUnknownSource, job.Config.Source)
	}
	return factory.Clients(ctx, job)
}
