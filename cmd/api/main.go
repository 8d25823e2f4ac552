package main

import (
	"log"
	"time"

	"app/internal/config"
	"app/internal/domain/model"
	"app/internal/handler"
	"app/internal/infra/db"
	infraRepo "app/internal/infra/repository"
	"app/internal/server"
	"app/internal/usecase"
	"app/internal/validator"

	"github.com/joho/godotenv"
)

func main() {
	//.envは無くてもよい（本番は環境変数で渡す）
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	//DB接続
	gormDB, err := db.Connect()
	if err != nil {
		log.Fatal(err)
	}

	if err := gormDB.AutoMigrate(
		&model.User{},
		&model.RefreshToken{},
		&model.Product{},
		&model.Cart{},
		&model.CartItem{},
		&model.Order{},
		&model.OrderItem{},
		&model.Address{},
		&model.AuditLog{},
		&model.InventoryAdjustment{},
	); err != nil {
		log.Fatal(err)
	}

	//Repository（GORM実装）生成
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	rtRepo := infraRepo.NewRefreshTokenRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	inventoryRepo := infraRepo.NewInventoryGormRepository(gormDB)
	cartRepo := infraRepo.NewCartGormRepository(gormDB)
	addressRepo := infraRepo.NewAddressGormRepository(gormDB)
	auditRepo := infraRepo.NewAuditLogGormRepository(gormDB)
	txManager := infraRepo.NewTxManagerGorm(gormDB)

	//Validator
	authValidator := validator.NewAuthValidator(userRepo)

	//Usecase生成
	authUC := usecase.NewAuthUsecase(cfg, userRepo, rtRepo, authValidator)
	productUC := usecase.NewProductUsecase(productRepo, inventoryRepo, auditRepo)
	cartUC := usecase.NewCartUsecase(cartRepo, cartRepo, productRepo)
	orderUC := usecase.NewOrderUsecase(txManager)
	adminOrderUC := usecase.NewAdminOrderUsecase(txManager)
	addressUC := usecase.NewAddressUsecase(addressRepo)

	//Handler生成
	refreshTTL := 30 * 24 * time.Hour
	h := server.Handlers{
		Auth:         handler.NewAuthHandler(cfg, authUC, userRepo, refreshTTL),
		Product:      handler.NewProductHandler(productUC),
		Cart:         handler.NewCartHandler(cartUC),
		Order:        handler.NewOrderHandler(orderUC),
		Address:      handler.NewAddressHandler(addressUC),
		AdminProduct: handler.NewAdminProductHandler(productUC),
		AdminOrder:   handler.NewAdminOrderHandler(adminOrderUC),
		AdminUser:    handler.NewAdminUserHandler(cfg, userRepo, authUC),
	}

	//Server起動
	e := server.New(cfg)
	server.RegisterRoutes(e, cfg, userRepo, h)

	if err := server.Start(e, cfg.Port); err != nil {
		log.Fatal(err)
	}
}
