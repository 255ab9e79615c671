package service

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/kjstillabower/nostradamus/internal/models"
)

// coalescer lets concurrent misses for the same key share one upstream call.
type coalescer struct {
	group singleflight.Group
}

func newCoalescer() *coalescer {
	return &coalescer{}
}

// do runs fn once per key among concurrent callers. fn gets a context detached
// from the caller's cancellation so one caller leaving does not fail the others;
// the client's own timeout still bounds it. A caller whose ctx ends stops
// waiting and gets ctx.Err(). shared reports whether the result was handed to
// more than one caller.
func (c *coalescer) do(ctx context.Context, key string, fn func(context.Context) (models.WeatherPayload, error)) (models.WeatherPayload, bool, error) {
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		return fn(fetchCtx)
	})
	select {
	case res := <-ch:
		data, _ := res.Val.(models.WeatherPayload)
		return data, res.Shared, res.Err
	case <-ctx.Done():
		return models.WeatherPayload{}, false, ctx.Err()
	}
}
