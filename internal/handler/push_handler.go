package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/socialauth/internal/model"
)

// DeviceService は端末トークンハンドラーが必要とするサービスインターフェース。
type DeviceService interface {
	Register(ctx context.Context, userID int64, token, deviceType, deviceName string) (*model.DeviceToken, error)
	Remove(ctx context.Context, userID int64, token string) error
	ListActive(ctx context.Context, userID int64) ([]*model.DeviceToken, error)
}

// PushHandler はプッシュ通知の端末トークン関連のHTTPハンドラー。
type PushHandler struct {
	service        DeviceService
	vapidPublicKey string
}

// NewPushHandler はPushHandlerを生成する。
// vapidPublicKeyはブラウザがPushSubscriptionを作成するために公開する。
func NewPushHandler(service DeviceService, vapidPublicKey string) *PushHandler {
	return &PushHandler{service: service, vapidPublicKey: vapidPublicKey}
}

type registerTokenRequest struct {
	Token      string `json:"token" validate:"required"`
	DeviceType string `json:"deviceType"`
	DeviceName string `json:"deviceName"`
}

type removeTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type registerTokenResponse struct {
	Message string `json:"message"`
	TokenID int64  `json:"tokenId"`
}

type deviceTokenResponse struct {
	ID         int64   `json:"id"`
	DeviceType string  `json:"deviceType"`
	DeviceName *string `json:"deviceName"`
	LastUsedAt *string `json:"lastUsedAt"`
	CreatedAt  string  `json:"createdAt"`
}

// Register は端末トークンを登録する。同じトークンの再登録は有効化と最終利用日時の更新になる。
// POST /api/push/register
func (h *PushHandler) Register(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req registerTokenRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	dt, err := h.service.Register(r.Context(), user.ID, req.Token, req.DeviceType, req.DeviceName)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, r, http.StatusOK, registerTokenResponse{
		Message: "Device token registered successfully",
		TokenID: dt.ID,
	})
}

// Remove は端末トークンを削除する。
// POST /api/push/remove
func (h *PushHandler) Remove(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req removeTokenRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.service.Remove(r.Context(), user.ID, req.Token); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, r, http.StatusOK, messageResponse{Message: "Device token removed successfully"})
}

// List はログインユーザーの有効な端末トークンを返す。トークン文字列自体は返さない。
// GET /api/push/tokens
func (h *PushHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	tokens, err := h.service.ListActive(r.Context(), user.ID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]deviceTokenResponse, 0, len(tokens))
	for _, t := range tokens {
		resp = append(resp, toDeviceTokenResponse(t))
	}
	writeJSON(w, r, http.StatusOK, map[string][]deviceTokenResponse{"tokens": resp})
}

// PublicKey はWeb Pushの購読に必要なVAPID公開鍵を返す。
// GET /api/push/public-key
func (h *PushHandler) PublicKey(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"publicKey": h.vapidPublicKey,
		"enabled":   h.vapidPublicKey != "",
	})
}

func toDeviceTokenResponse(t *model.DeviceToken) deviceTokenResponse {
	resp := deviceTokenResponse{
		ID:         t.ID,
		DeviceType: t.DeviceType,
		DeviceName: t.DeviceName,
		CreatedAt:  formatTime(t.CreatedAt),
	}
	if t.LastUsedAt != nil {
		s := t.LastUsedAt.UTC().Format(time.RFC3339)
		resp.LastUsedAt = &s
	}
	return resp
}
