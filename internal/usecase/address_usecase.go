package usecase

import (
	"context"
	"net/http"
	"strings"
	"time"

	"app/internal/domain/model"
	repo "app/internal/repository"
)

type AddressDTO struct {
	ID         int64  `json:"id"`
	UserID     int64  `json:"user_id"`
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	IsDefault  bool   `json:"is_default"`
}

type AddressInput struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
}

type AddressUsecase struct {
	addresses repo.AddressRepository
}

func NewAddressUsecase(addresses repo.AddressRepository) *AddressUsecase {
	return &AddressUsecase{addresses: addresses}
}

func validateAddressInput(in AddressInput) error {
	if strings.TrimSpace(in.Street) == "" ||
		strings.TrimSpace(in.City) == "" ||
		strings.TrimSpace(in.State) == "" ||
		strings.TrimSpace(in.PostalCode) == "" ||
		strings.TrimSpace(in.Country) == "" ||
		strings.TrimSpace(in.Name) == "" {
		return NewHTTPError(http.StatusBadRequest, "missing required field")
	}
	return nil
}

func (u *AddressUsecase) List(ctx context.Context, userID int64) ([]AddressDTO, error) {
	if userID <= 0 {
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	list, err := u.addresses.ListByUserID(ctx, userID)
	if err != nil {
		return nil, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	out := make([]AddressDTO, 0, len(list))
	for i := range list {
		out = append(out, toAddressDTO(&list[i]))
	}
	return out, nil
}

func (u *AddressUsecase) Create(ctx context.Context, userID int64, in AddressInput) (AddressDTO, error) {
	if userID <= 0 {
		return AddressDTO{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if err := validateAddressInput(in); err != nil {
		return AddressDTO{}, err
	}

	now := time.Now()
	a := model.Address{
		UserID:     userID,
		Street:     strings.TrimSpace(in.Street),
		City:       strings.TrimSpace(in.City),
		State:      strings.TrimSpace(in.State),
		PostalCode: strings.TrimSpace(in.PostalCode),
		Country:    strings.TrimSpace(in.Country),
		Name:       strings.TrimSpace(in.Name),
		Phone:      strings.TrimSpace(in.Phone),
		IsDefault:  false,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	created, err := u.addresses.Create(ctx, a)
	if err != nil {
		return AddressDTO{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	return toAddressDTO(&created), nil
}

func (u *AddressUsecase) Update(ctx context.Context, userID int64, addressID int64, in AddressInput) (AddressDTO, error) {
	if userID <= 0 {
		return AddressDTO{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if addressID <= 0 {
		return AddressDTO{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := validateAddressInput(in); err != nil {
		return AddressDTO{}, err
	}

	//所有チェック（他人の住所は404扱い）
	owned, err := u.addresses.IsOwnedByUser(ctx, addressID, userID)
	if err != nil {
		return AddressDTO{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !owned {
		return AddressDTO{}, NewHTTPError(http.StatusNotFound, "not found")
	}

	a := model.Address{
		ID:         addressID,
		UserID:     userID,
		Street:     strings.TrimSpace(in.Street),
		City:       strings.TrimSpace(in.City),
		State:      strings.TrimSpace(in.State),
		PostalCode: strings.TrimSpace(in.PostalCode),
		Country:    strings.TrimSpace(in.Country),
		Name:       strings.TrimSpace(in.Name),
		Phone:      strings.TrimSpace(in.Phone),
		UpdatedAt:  time.Now(),
	}

	if err := u.addresses.Update(ctx, a); err != nil {
		if err == repo.ErrNotFound {
			return AddressDTO{}, NewHTTPError(http.StatusNotFound, "not found")
		}
		return AddressDTO{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	updated, err := u.addresses.FindByID(ctx, addressID)
	if err != nil {
		return AddressDTO{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return toAddressDTO(&updated), nil
}

func (u *AddressUsecase) Delete(ctx context.Context, userID int64, addressID int64) error {
	if userID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if addressID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	owned, err := u.addresses.IsOwnedByUser(ctx, addressID, userID)
	if err != nil {
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	if !owned {
		return NewHTTPError(http.StatusNotFound, "not found")
	}

	if err := u.addresses.Delete(ctx, addressID); err != nil {
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

func (u *AddressUsecase) SetDefault(ctx context.Context, userID int64, addressID int64) error {
	if userID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if addressID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	if err := u.addresses.SetDefault(ctx, userID, addressID); err != nil {
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		return NewHTTPError(http.StatusInternalServerError, "db error")
	}
	return nil
}

func toAddressDTO(a *model.Address) AddressDTO {
	return AddressDTO{
		ID:         a.ID,
		UserID:     a.UserID,
		Street:     a.Street,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Name:       a.Name,
		Phone:      a.Phone,
		IsDefault:  a.IsDefault,
	}
}
