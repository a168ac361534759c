// Package device はプッシュ通知用の端末トークンの登録・削除を提供する。
package device

import (
	"context"
	"fmt"
	"strings"

	"github.com/hitoshi/socialauth/internal/model"
	"github.com/hitoshi/socialauth/internal/repository"
)

const (
	// maxTokenLength はトークンの最大長。Web PushのPushSubscription JSONが収まる長さ。
	maxTokenLength = 4096
	// maxDeviceNameLength は端末名の最大長。
	maxDeviceNameLength = 255
	maxDeviceTypeLength = 32
)

// Service は端末トークン管理のサービス層。
type Service struct {
	tokens repository.DeviceTokenRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(tokens repository.DeviceTokenRepository) *Service {
	return &Service{tokens: tokens}
}

// Register は端末トークンを登録する。
// 同じユーザーと同じトークンの組が既にあれば、有効化して最終利用日時を更新する。
func (s *Service) Register(ctx context.Context, userID int64, token, deviceType, deviceName string) (*model.DeviceToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, model.NewValidationError("token is required")
	}
	if len(token) > maxTokenLength {
		return nil, model.NewValidationError("token is too long")
	}

	deviceType = strings.ToLower(strings.TrimSpace(deviceType))
	if deviceType == "" {
		deviceType = model.DeviceTypeWeb
	}
	if len(deviceType) > maxDeviceTypeLength {
		return nil, model.NewValidationError("deviceType is too long")
	}
	deviceName = strings.TrimSpace(deviceName)
	if len(deviceName) > maxDeviceNameLength {
		return nil, model.NewValidationError("deviceName is too long")
	}

	dt := &model.DeviceToken{
		UserID:     userID,
		Token:      token,
		DeviceType: deviceType,
		DeviceName: model.StringPtr(deviceName),
		IsActive:   true,
	}
	if err := s.tokens.Upsert(ctx, dt); err != nil {
		return nil, fmt.Errorf("failed to register device token: %w", err)
	}
	return dt, nil
}

// Remove はユーザーの端末トークンを削除する。該当がなくてもエラーにしない。
func (s *Service) Remove(ctx context.Context, userID int64, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return model.NewValidationError("token is required")
	}
	if err := s.tokens.Delete(ctx, userID, token); err != nil {
		return fmt.Errorf("failed to remove device token: %w", err)
	}
	return nil
}

// ListActive はユーザーの有効な端末トークンを返す。
func (s *Service) ListActive(ctx context.Context, userID int64) ([]*model.DeviceToken, error) {
	tokens, err := s.tokens.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list device tokens: %w", err)
	}
	if tokens == nil {
		tokens = []*model.DeviceToken{}
	}
	return tokens, nil
}
