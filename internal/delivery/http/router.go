package http

import (
	"github.com/gin-gonic/gin"
)

// SetupRouter wires the facade operations onto a gin engine.
func SetupRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger())

	api := r.Group("/api/v1")
	{
		api.POST("/login", h.Login)
		api.POST("/logout", h.Logout)
		api.GET("/session", h.Session)

		api.POST("/files", h.CreateFile)
		api.POST("/files/read", h.ReadFile)
		api.POST("/files/delete", h.DeleteFile)
		api.POST("/files/rename", h.RenameFile)
		api.POST("/files/edit", h.EditFile)
		api.POST("/files/truncate", h.TruncateFile)
		api.POST("/files/exists", h.FileExists)

		api.POST("/dirs", h.CreateDir)
		api.POST("/dirs/list", h.ListDir)
		api.POST("/dirs/delete", h.DeleteDir)
		api.POST("/dirs/exists", h.DirExists)

		api.POST("/users", h.CreateUser)
		api.POST("/users/delete", h.DeleteUser)
		api.GET("/users", h.ListUsers)

		api.POST("/meta", h.Metadata)
		api.POST("/chmod", h.Chmod)
		api.GET("/stats", h.Stats)
	}

	r.GET("/health", h.Health)

	return r
}
