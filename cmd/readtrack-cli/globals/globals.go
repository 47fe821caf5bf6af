package globals

import (
	"context"

	"readtrack-backend/lib/browser"
	"readtrack-backend/lib/progressstore"
	"readtrack-backend/services/kindle"
)

const key = "readtrack-cli.ctx"

type Value struct {
	Service *kindle.Service
	Store   progressstore.Store
	Manager *browser.Manager
}

func Set(ctx context.Context, value *Value) context.Context {
	return context.WithValue(ctx, key, value)
}

func Get(ctx context.Context) *Value {
	return ctx.Value(key).(*Value)
}
