package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Routes registers the HTTP API. auth must set the organization id.
func (a *App) Routes(router *gin.Engine, auth gin.HandlerFunc) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	// OAuth2 callback (must be before auth middleware)
	router.GET("/oauth2callback", a.GoogleOAuth2CallbackHandler)

	api := router.Group("/api", auth)
	{
		slots := api.Group("/slots")
		{
			slots.GET("", a.GetDaySlotsHandler)
			slots.GET("/available", a.GetAvailableSlotsHandler)
			slots.POST("/confirm", a.ConfirmSlotHandler)
			slots.POST("/cancel", a.CancelSlotHandler)
		}
		appointments := api.Group("/appointments")
		{
			appointments.GET("", a.ListAppointmentsHandler)
			appointments.POST("", a.CreateAppointmentHandler)
			appointments.PATCH("/:id/status", a.UpdateAppointmentStatusHandler)
		}
		therapists := api.Group("/therapists")
		{
			therapists.GET("", a.ListTherapistsHandler)
			therapists.POST("", a.CreateTherapistHandler)
			therapists.PUT("/:id/working-hours", a.UpdateWorkingHoursHandler)
			therapists.DELETE("/:id", a.DeactivateTherapistHandler)
			therapists.GET("/:id/calendar/events", a.TherapistCalendarEventsHandler)
		}
		api.GET("/calendar/auth", a.GoogleAuthHandler)
	}
}
