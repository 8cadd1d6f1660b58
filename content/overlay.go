package content

import (
	"context"
	"errors"
)

// Overlay reads from Top first and falls back to Base when Top has no such
// page. Writes go to Top. A nil Base makes Overlay behave like Top alone.
type Overlay struct {
	Top  Store
	Base Store
}

func (o Overlay) Page(ctx context.Context, title string) (Page, error) {
	p, err := o.Top.Page(ctx, title)
	if errors.Is(err, ErrNotFound) && o.Base != nil {
		return o.Base.Page(ctx, title)
	}
	return p, err
}

func (o Overlay) Source(ctx context.Context, id string) (string, error) {
	src, err := o.Top.Source(ctx, id)
	if errors.Is(err, ErrNotFound) && o.Base != nil {
		return o.Base.Source(ctx, id)
	}
	return src, err
}

func (o Overlay) Put(ctx context.Context, title, text string) (Page, error) {
	return o.Top.Put(ctx, title, text)
}
