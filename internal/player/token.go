package player

import "context"

// Token is a one-way cancellation flag bound to a single session. It moves from
// live to cancelled exactly once; Cancel may be called from any goroutine.
type Token struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func NewToken() *Token {
	ctx, cancel := context.WithCancel(context.Background())
	return &Token{ctx: ctx, cancel: cancel}
}

func (t *Token) Cancel() {
	t.cancel()
}

func (t *Token) Cancelled() bool {
	return t.ctx.Err() != nil
}

// Context is cancelled together with the token and is what blocking calls observe.
func (t *Token) Context() context.Context {
	return t.ctx
}

func (t *Token) Done() <-chan struct{} {
	return t.ctx.Done()
}
