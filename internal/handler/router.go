package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable/internal/middleware"
	"github.com/noah-isme/sma-timetable/internal/models"
)

// Routes groups the handlers mounted under the API prefix.
type Routes struct {
	Timetables *TimetableHandler
	Exports    *ExportHandler
	Metrics    *MetricsHandler
	Auth       middleware.TokenValidator
}

// Register mounts the timetable API on api. Reads need any valid token; generating a run
// is limited to administrators. Signed export downloads carry their own token.
func (r Routes) Register(api gin.IRouter) {
	authed := api.Group("", middleware.JWT(r.Auth))
	admins := middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin)

	if r.Timetables != nil {
		authed.POST("/timetables", admins, r.Timetables.Generate)
		authed.GET("/timetables/:id", r.Timetables.Get)
		authed.GET("/timetables/:id/classes/:classId", r.Timetables.ForClass)
		authed.GET("/timetables/:id/export", r.Timetables.Export)
	}
	if r.Exports != nil {
		authed.POST("/timetables/:id/exports", r.Exports.CreateExport)
		authed.GET("/exports/jobs/:jobId", r.Exports.ExportStatus)
		api.GET("/exports/:token", r.Exports.Download)
	}
	if r.Metrics != nil {
		authed.GET("/metrics/summary", admins, r.Metrics.Summary)
	}
}
