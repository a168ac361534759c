package handler

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/socialauth/internal/event"
	"github.com/hitoshi/socialauth/internal/model"
	"github.com/hitoshi/socialauth/internal/user"
)

// UserAdminService は管理者向けユーザー管理ハンドラーが必要とするサービスインターフェース。
type UserAdminService interface {
	List(ctx context.Context, filter model.UserFilter) (*user.Page, error)
	Stats(ctx context.Context) (*model.UserStats, error)
	GrantAdmin(ctx context.Context, id int64) (*model.User, error)
	RevokeAdmin(ctx context.Context, actorID, id int64) (*model.User, error)
	Export(ctx context.Context, actor *model.User, filter model.UserFilter, meta event.RequestMetadata, w io.Writer) (int, error)
	ExportFilename() string
}

// AdminHandler は管理者向けユーザー管理のHTTPハンドラー。
type AdminHandler struct {
	service UserAdminService
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service UserAdminService) *AdminHandler {
	return &AdminHandler{service: service}
}

// sortParams はクエリのsortByをカラム名に変換する。
var sortParams = map[string]string{
	"id":        "id",
	"name":      "full_name",
	"fullName":  "full_name",
	"email":     "email",
	"createdAt": "created_at",
}

type adminUserResponse struct {
	ID        int64   `json:"id"`
	Name      *string `json:"name"`
	Email     *string `json:"email"`
	Avatar    *string `json:"avatar"`
	Provider  *string `json:"provider"`
	Role      string  `json:"role"`
	CreatedAt string  `json:"createdAt"`
}

type userListResponse struct {
	Data []adminUserResponse `json:"data"`
	Meta pageMeta            `json:"meta"`
}

type userStatsResponse struct {
	Total       int `json:"total"`
	EmailUsers  int `json:"emailUsers"`
	GoogleUsers int `json:"googleUsers"`
	AdminUsers  int `json:"adminUsers"`
}

type roleChangeResponse struct {
	Message string            `json:"message"`
	User    adminUserResponse `json:"user"`
}

// ListUsers はユーザー一覧を検索・並べ替え・ページングして返す。
// GET /api/admin/users?page=&limit=&search=&loginType=&sortBy=&sortOrder=&startDate=&endDate=
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	filter, err := parseUserFilter(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	page, err := h.service.List(r.Context(), filter)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	data := make([]adminUserResponse, 0, len(page.Users))
	for _, u := range page.Users {
		data = append(data, toAdminUserResponse(u))
	}
	writeJSON(w, r, http.StatusOK, userListResponse{
		Data: data,
		Meta: pageMeta{
			Total:       page.Total,
			PerPage:     page.PerPage,
			CurrentPage: page.CurrentPage,
			LastPage:    page.LastPage,
			FirstPage:   1,
		},
	})
}

// Stats はユーザー数の集計を返す。
// GET /api/admin/users/stats
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, userStatsResponse{
		Total:       stats.TotalUsers,
		EmailUsers:  stats.EmailUsers,
		GoogleUsers: stats.GoogleUsers,
		AdminUsers:  stats.AdminUsers,
	})
}

// Export は検索条件に一致するユーザーをCSVでダウンロードさせる。
// 書き出しに失敗した場合に500を返せるよう、一旦バッファに書き出す。
// GET /api/admin/users/export
func (h *AdminHandler) Export(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}
	filter, err := parseUserFilter(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var buf bytes.Buffer
	if _, err := h.service.Export(r.Context(), actor, filter, requestMetadata(r), &buf); err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+h.service.ExportFilename()+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Warn("failed to write export response", slog.String("error", err.Error()))
	}
}

// GrantAdmin は指定ユーザーに管理者権限を付与する。
// POST /api/admin/users/{id}/grant-admin
func (h *AdminHandler) GrantAdmin(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, err)
		return
	}

	u, err := h.service.GrantAdmin(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, roleChangeResponse{
		Message: "Admin access granted successfully",
		User:    toAdminUserResponse(u),
	})
}

// RevokeAdmin は指定ユーザーの管理者権限を取り消す。
// POST /api/admin/users/{id}/revoke-admin
func (h *AdminHandler) RevokeAdmin(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		handleServiceError(w, err)
		return
	}

	u, err := h.service.RevokeAdmin(r.Context(), actor.ID, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, r, http.StatusOK, roleChangeResponse{
		Message: "Admin access revoked successfully",
		User:    toAdminUserResponse(u),
	})
}

// parseUserFilter はクエリパラメータから検索条件を組み立てる。
// 日付はYYYY-MM-DDまたはRFC3339で受け付け、endDateのみの日付はその日の終わりまでを含める。
func parseUserFilter(r *http.Request) (model.UserFilter, error) {
	q := r.URL.Query()
	filter := model.UserFilter{
		Search:    q.Get("search"),
		LoginType: q.Get("loginType"),
		SortBy:    sortParams[q.Get("sortBy")],
		SortDesc:  q.Get("sortOrder") != "asc",
		Page:      queryInt(r, "page", 1),
		Limit:     queryInt(r, "limit", user.DefaultPageSize),
	}

	if v := q.Get("startDate"); v != "" {
		t, _, err := parseDate(v)
		if err != nil {
			return filter, model.NewValidationError("startDate must be YYYY-MM-DD or RFC3339")
		}
		filter.DateFrom = &t
	}
	if v := q.Get("endDate"); v != "" {
		t, dateOnly, err := parseDate(v)
		if err != nil {
			return filter, model.NewValidationError("endDate must be YYYY-MM-DD or RFC3339")
		}
		if dateOnly {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		filter.DateTo = &t
	}
	return filter, nil
}

func parseDate(v string) (time.Time, bool, error) {
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	return t, false, err
}

func toAdminUserResponse(u *model.User) adminUserResponse {
	return adminUserResponse{
		ID:        u.ID,
		Name:      u.FullName,
		Email:     u.Email,
		Avatar:    u.AvatarURL,
		Provider:  u.Provider,
		Role:      string(u.Role),
		CreatedAt: formatTime(u.CreatedAt),
	}
}
