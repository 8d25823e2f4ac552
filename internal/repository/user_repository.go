package repository

import (
	"context"

	"app/internal/domain/model"
)

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id int64) (*model.User, error)
	Update(ctx context.Context, user *model.User) error

	//token_versionを+1（強制ログアウト）
	IncrementTokenVersion(ctx context.Context, id int64) error
}
