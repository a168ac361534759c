package middleware

import "context"

// userHolderContextKey はログ出力用に認証済みユーザーIDを受け渡すためのキー。
var userHolderContextKey = contextKey("user_holder")

// userHolder は内側のミドルウェアで確定したユーザーIDを外側のログミドルウェアへ伝える。
type userHolder struct {
	userID int64
}

func contextWithUserHolder(ctx context.Context, h *userHolder) context.Context {
	return context.WithValue(ctx, userHolderContextKey, h)
}

// rememberUserID はログミドルウェアの配下であればユーザーIDを記録する。
func rememberUserID(ctx context.Context, userID int64) {
	if h, ok := ctx.Value(userHolderContextKey).(*userHolder); ok {
		h.userID = userID
	}
}
