package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"backend_parc/errs"
)

// respondError переводит доменную ошибку в HTTP-ответ.
// Ошибки синхронизации сюда не доходят: они оседают в журнале.
func respondError(c *gin.Context, err error) {
	var ve *errs.ValidationError
	switch {
	case errors.As(err, &ve):
		body := gin.H{"status": "error", "error": ve.Message}
		if len(ve.Details) > 0 {
			body["details"] = ve.Details
		}
		c.JSON(http.StatusBadRequest, body)
	case errs.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": err.Error()})
	case errs.IsConflict(err):
		c.JSON(http.StatusConflict, gin.H{"status": "error", "error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "Внутренняя ошибка сервера"})
	}
}

// parseUintParam разбирает числовой параметр пути
func parseUintParam(c *gin.Context, name string) (uint, bool) {
	value, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "Некорректный параметр " + name})
		return 0, false
	}
	return uint(value), true
}

// parsePagination извлекает параметры пагинации из query
func parsePagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 20
	}
	return page, limit
}

// paginationBlock формирует блок пагинации ответа
func paginationBlock(page, limit int, total int64) gin.H {
	pages := (total + int64(limit) - 1) / int64(limit)
	return gin.H{
		"page":  page,
		"limit": limit,
		"total": total,
		"pages": pages,
	}
}
