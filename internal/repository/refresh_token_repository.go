package repository

import (
	"context"
	"errors"

	"app/internal/domain/model"
)

var ErrRefreshTokenNotFound = errors.New("refresh token not found")

type RefreshTokenRepository interface {
	Create(ctx context.Context, token *model.RefreshToken) error
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.RefreshToken, error)

	//used_atをセットして「使用済み」にする
	MarkUsed(ctx context.Context, tokenID string) error

	//revoked_atをセットして無効にする
	Revoke(ctx context.Context, tokenID string) error

	DeleteAllByUserID(ctx context.Context, userID int64) error
	DeleteByID(ctx context.Context, tokenID string) error
}
