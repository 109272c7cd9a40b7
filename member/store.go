package member

import "context"

type Store interface {
	Create(ctx context.Context, m *Member) error
	Get(ctx context.Context, memberID int64) (*Member, error)
	List(ctx context.Context, opts ListOpts) ([]*Member, error)
	Update(ctx context.Context, m *Member) error
}

type ListOpts struct {
	Limit  int
	Offset int
}
