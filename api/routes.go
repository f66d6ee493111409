package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"backend_parc/middleware"
	"backend_parc/services"
)

// Deps зависимости HTTP-слоя
type Deps struct {
	DB          *gorm.DB
	Auth        *middleware.AuthMiddleware
	Equipment   *services.EquipmentService
	Allocations *services.AllocationService
	Returns     *services.ReturnService
	Users       *services.UserService
	Sync        *services.SyncService
	Reports     *services.ReportService
}

// SetupRoutes регистрирует маршруты API
func SetupRoutes(r *gin.Engine, deps *Deps) {
	equipmentAPI := NewEquipmentAPI(deps.Equipment)
	allocationAPI := NewAllocationAPI(deps.Allocations)
	returnAPI := NewReturnAPI(deps.Returns)
	userAPI := NewUserAPI(deps.Users)
	syncAPI := NewSyncAPI(deps.DB, deps.Sync)
	reportAPI := NewReportAPI(deps.Reports)
	authAPI := NewAuthAPI(deps.Auth, deps.Users)

	// Сессии: без авторизации, с жестким лимитом по IP
	auth := r.Group("/api/auth")
	auth.POST("/session", middleware.AuthRateLimit(), authAPI.CreateSession)

	v1 := r.Group("/api")
	v1.Use(deps.Auth.RequireAuth())
	v1.Use(middleware.ModerateRateLimit())
	{
		v1.GET("/auth/me", authAPI.GetCurrentSession)

		// Парк оборудования
		v1.GET("/equipment", equipmentAPI.GetEquipmentList)
		v1.GET("/equipment/stats", equipmentAPI.GetEquipmentStats)
		v1.GET("/equipment/available", equipmentAPI.GetAvailableEquipment)
		v1.GET("/equipment/serial/:serial", equipmentAPI.GetEquipmentBySerial)
		v1.GET("/equipment/:id", equipmentAPI.GetEquipment)
		v1.POST("/equipment", equipmentAPI.CreateEquipment)
		v1.PUT("/equipment/:id", equipmentAPI.UpdateEquipment)
		v1.DELETE("/equipment/:id", equipmentAPI.DeleteEquipment)

		// Выдачи
		v1.GET("/allocations", allocationAPI.GetAllocations)
		v1.GET("/allocations/stats", allocationAPI.GetAllocationStats)
		v1.GET("/allocations/:id", allocationAPI.GetAllocation)
		v1.POST("/allocations", allocationAPI.CreateAllocation)
		v1.PUT("/allocations/:id", allocationAPI.UpdateAllocation)
		v1.POST("/allocations/:id/sign", allocationAPI.SignAllocation)

		// Возвраты
		v1.GET("/returns", returnAPI.GetReturns)
		v1.GET("/returns/stats", returnAPI.GetReturnStats)
		v1.GET("/returns/:id", returnAPI.GetReturn)
		v1.POST("/returns", returnAPI.CreateReturn)
		v1.POST("/returns/:id/sign", returnAPI.SignReturn)
		v1.POST("/returns/:id/validate", returnAPI.ValidateReturn)

		// Сотрудники
		v1.GET("/users", userAPI.GetUsers)
		v1.GET("/users/:id", userAPI.GetUser)
		v1.POST("/users", userAPI.UpsertUser)
		v1.POST("/users/:id/deactivate", userAPI.DeactivateUser)

		// Синхронизация: журнал и ручные операции
		v1.GET("/sync/health", syncAPI.GetSyncHealth)
		v1.GET("/sync/attributes", syncAPI.GetAttributeMapping)
		v1.GET("/sync/journal", syncAPI.GetJournalEntries)
		v1.GET("/sync/journal/stats", syncAPI.GetJournalStats)
		v1.POST("/sync/journal/:id/resolve", syncAPI.ResolveJournalEntry)

		// Отчеты
		v1.GET("/reports/equipment", reportAPI.DownloadEquipmentReport)
		v1.GET("/reports/allocations", reportAPI.DownloadAllocationsReport)
		v1.GET("/reports/returns", reportAPI.DownloadReturnsReport)
		v1.GET("/reports/sync-journal", reportAPI.DownloadSyncJournalReport)
	}

	// Тяжелые операции синхронизации: отдельный жесткий лимит
	heavy := r.Group("/api/sync")
	heavy.Use(deps.Auth.RequireAuth())
	heavy.Use(middleware.StrictRateLimit())
	{
		heavy.POST("/import", syncAPI.TriggerBulkImport)
		heavy.POST("/journal/retry", syncAPI.RetryJournal)
		heavy.POST("/pull/:external_id", syncAPI.PullEquipment)
		heavy.POST("/push/:id", syncAPI.PushEquipment)
	}
}
