// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/socialauth/internal/event"
	"github.com/hitoshi/socialauth/internal/middleware"
	"github.com/hitoshi/socialauth/internal/model"
)

// validate はリクエストボディの検証に使う共有バリデーター。
// エラーメッセージにはGoのフィールド名ではなくJSONのキー名を使う。
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// maxbytes はUTF-8のバイト長の上限。bcryptは72バイトを超えるパスワードを扱えない。
	if err := v.RegisterValidation("maxbytes", validateMaxBytes); err != nil {
		panic(fmt.Sprintf("failed to register maxbytes validation: %v", err))
	}
	return v
}

func validateMaxBytes(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	return len(fl.Field().String()) <= limit
}

// messageResponse は処理結果のメッセージのみを返すレスポンス。
type messageResponse struct {
	Message string `json:"message"`
}

// decodeAndValidate はJSONボディをdstにデコードし、validateタグで検証する。
// 失敗時は400レスポンスを書き込みfalseを返す。
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError("invalid JSON body"))
		return false
	}
	if err := validate.Struct(dst); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewValidationError(describeValidationError(err)))
		return false
	}
	return true
}

// describeValidationError は最初の検証エラーを "field: rule" の形式で返す。
func describeValidationError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	if fe.Param() != "" {
		return fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("%s: %s", fe.Field(), fe.Tag())
}

// writeJSON はステータスコードを指定してJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation,
		model.ErrCodeAlreadyAdmin,
		model.ErrCodeNotAdmin,
		model.ErrCodeCannotRevokeSelf:
		return http.StatusBadRequest
	case model.ErrCodeInvalidCredentials, model.ErrCodeOAuthOnlyAccount, model.ErrCodeInvalidToken:
		return http.StatusUnauthorized
	case model.ErrCodeAdminRequired, model.ErrCodeNotificationForbidden:
		return http.StatusForbidden
	case model.ErrCodeUserNotFound, model.ErrCodeNotificationNotFound, model.ErrCodeUnknownProvider:
		return http.StatusNotFound
	case model.ErrCodeEmailTaken:
		return http.StatusConflict
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// requireUser は認証済みユーザーを取得する。存在しない場合は401を書き込みfalseを返す。
func requireUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	user, err := middleware.UserFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewInvalidTokenError())
		return nil, false
	}
	return user, true
}

// requestMetadata は通知メールに載せるクライアント情報を取り出す。
// RealIPミドルウェアの後段で呼ばれる前提でRemoteAddrを使う。
func requestMetadata(r *http.Request) event.RequestMetadata {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	ua := r.UserAgent()
	if ua == "" {
		ua = "Unknown"
	}
	return event.RequestMetadata{IPAddress: ip, UserAgent: ua}
}

// pathID はURLパスパラメータを正のint64として解析する。
func pathID(r *http.Request, key string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		return 0, model.NewValidationError(key + " must be a positive integer")
	}
	return id, nil
}

// queryInt はクエリパラメータを整数として解析する。未指定や不正値の場合はdefを返す。
func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}

// formatTime はレスポンス用にRFC3339形式へ変換する。
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
