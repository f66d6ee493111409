package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"backend_parc/api"
	"backend_parc/config"
	"backend_parc/database"
	"backend_parc/middleware"
	"backend_parc/services"
)

// initDB инициализирует подключение к базе данных
func initDB(cfg *config.Config) {
	log.Println("🔧 Инициализация базы данных...")

	// Создаем базу данных, если она не существует
	if err := database.CreateDatabaseIfNotExists(cfg); err != nil {
		log.Fatal("❌ Ошибка при создании базы данных:", err)
	}

	// Подключаемся к базе данных
	if err := database.ConnectDatabase(cfg); err != nil {
		log.Fatal("❌ Ошибка подключения к базе данных:", err)
	}

	if err := database.CreatePerformanceIndexes(database.DB); err != nil {
		log.Printf("⚠️  Не все индексы созданы: %v", err)
	}

	log.Println("✅ База данных успешно инициализирована")
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("❌ Ошибка загрузки конфигурации:", err)
	}

	initDB(cfg)

	// Redis не критичен: без него кэш и rate limiting отключаются
	if err := database.InitRedis(cfg); err != nil {
		log.Printf("⚠️  Redis недоступен: %v", err)
	}

	db := database.DB

	// Сервисный слой
	insightClient := services.NewInsightClient(cfg, nil)
	equipmentService := services.NewEquipmentService(db, nil)
	resolver := services.NewEquipmentResolver(db, nil)
	userService := services.NewUserService(db, nil)
	notificationService := services.NewNotificationService(cfg, nil)
	syncService := services.NewSyncService(db, insightClient, equipmentService, notificationService, cfg, nil)
	allocationService := services.NewAllocationService(db, equipmentService, resolver, userService, syncService, nil)
	returnService := services.NewReturnService(db, equipmentService, allocationService, syncService, nil)
	reportService := services.NewReportService(db, nil)

	// Фоновые задачи: повтор журнала и плановый импорт
	scheduler := services.NewSyncScheduler(syncService, cfg, nil)
	if err := scheduler.Start(); err != nil {
		log.Fatal("❌ Ошибка запуска планировщика:", err)
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}))

	// Базовые роуты
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":   "success",
			"message":  "pong",
			"database": "connected",
		})
	})

	api.SetupRoutes(r, &api.Deps{
		DB:          db,
		Auth:        authMiddleware,
		Equipment:   equipmentService,
		Allocations: allocationService,
		Returns:     returnService,
		Users:       userService,
		Sync:        syncService,
		Reports:     reportService,
	})

	// Планировщик останавливается штатно при завершении процесса
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("⚠️  Получен сигнал завершения, останавливаем планировщик...")
		scheduler.Stop()
		os.Exit(0)
	}()

	log.Printf("🚀 Сервер запущен на порту %s", cfg.App.Port)
	if err := r.Run(":" + cfg.App.Port); err != nil {
		log.Fatal("❌ Ошибка запуска сервера:", err)
	}
}
