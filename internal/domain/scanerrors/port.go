package scanerrors

import (
	"context"
)

// Repository defines persistence for scan errors
type Repository interface {
	Save(ctx context.Context, e *ScanError) error
	ListByProject(ctx context.Context, project string, limit int) ([]*ScanError, error)
}
