package tx

import "context"

// Wrap 把服务方法包装为在事务中执行的版本
//
// 返回的函数每次调用都经过 Manager.Run，传播行为由 opts 决定；
// fn 返回错误时事务回滚，返回值原样透传。
func Wrap[Req, Resp any](m *Manager, fn func(context.Context, Req) (Resp, error), opts ...Option) func(context.Context, Req) (Resp, error) {
	return func(ctx context.Context, req Req) (Resp, error) {
		var resp Resp
		err := m.Run(ctx, func(ctx context.Context) error {
			var err error
			resp, err = fn(ctx, req)
			return err
		}, opts...)
		if err != nil {
			var zero Resp
			return zero, err
		}
		return resp, nil
	}
}

// Run 使用 m 在事务中执行 fn 并返回其结果
func Run[T any](ctx context.Context, m *Manager, fn func(context.Context) (T, error), opts ...Option) (T, error) {
	return Wrap(m, func(ctx context.Context, _ struct{}) (T, error) {
		return fn(ctx)
	}, opts...)(ctx, struct{}{})
}
