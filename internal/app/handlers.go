package app

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func envelopeError(msg string) gin.H {
	return gin.H{"success": false, "error": msg}
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, envelopeError(msg))
}

func failErr(c *gin.Context, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		fail(c, status, e.Message)
		return
	}
	fail(c, status, err.Error())
}

func durationQuery(c *gin.Context) (int, bool) {
	raw := c.Query("duration")
	if raw == "" {
		return defaultDurationMinutes, true
	}
	d, err := strconv.Atoi(raw)
	if err != nil || d <= 0 {
		fail(c, http.StatusBadRequest, "duration must be a positive number of minutes")
		return 0, false
	}
	return d, true
}

// GET /api/slots?date=YYYY-MM-DD&duration=60&therapist_id=
func (a *App) GetDaySlotsHandler(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		fail(c, http.StatusBadRequest, "date required (YYYY-MM-DD)")
		return
	}
	duration, valid := durationQuery(c)
	if !valid {
		return
	}
	view, err := a.BuildDaySlots(c.Request.Context(), organizationID(c), date, duration, c.Query("therapist_id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, view)
}

// GET /api/slots/available?date=YYYY-MM-DD&duration=60&therapist_id=
func (a *App) GetAvailableSlotsHandler(c *gin.Context) {
	date := c.Query("date")
	if date == "" {
		fail(c, http.StatusBadRequest, "date required (YYYY-MM-DD)")
		return
	}
	duration, valid := durationQuery(c)
	if !valid {
		return
	}
	ctx := c.Request.Context()
	orgID := organizationID(c)

	var (
		slots []AvailableSlot
		err   error
	)
	if therapistID := c.Query("therapist_id"); therapistID != "" {
		slots, err = a.GenerateTherapistSlots(ctx, orgID, therapistID, date, duration)
	} else {
		slots, err = a.GenerateOrgSlots(ctx, orgID, date, duration)
	}
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"slots": slots, "count": len(slots)})
}

// POST /api/slots/confirm
func (a *App) ConfirmSlotHandler(c *gin.Context) {
	var ref SlotRef
	if err := c.ShouldBindJSON(&ref); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.Confirm(c.Request.Context(), organizationID(c), ref)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// POST /api/slots/cancel
func (a *App) CancelSlotHandler(c *gin.Context) {
	var ref SlotRef
	if err := c.ShouldBindJSON(&ref); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.Cancel(c.Request.Context(), organizationID(c), ref)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, res)
}

// GET /api/appointments?from=YYYY-MM-DD&to=YYYY-MM-DD&therapist_id=
func (a *App) ListAppointmentsHandler(c *gin.Context) {
	from := c.Query("from")
	to := c.DefaultQuery("to", from)
	if from == "" {
		fail(c, http.StatusBadRequest, "from required (YYYY-MM-DD)")
		return
	}
	appts, err := a.ListAppointments(c.Request.Context(), organizationID(c), from, to, c.Query("therapist_id"))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, appts)
}

// POST /api/appointments
func (a *App) CreateAppointmentHandler(c *gin.Context) {
	var req BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.Book(c.Request.Context(), organizationID(c), req)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, res)
}

type appointmentStatusReq struct {
	Status AppointmentStatus `json:"status" binding:"required"`
}

// PATCH /api/appointments/:id/status
func (a *App) UpdateAppointmentStatusHandler(c *gin.Context) {
	var req appointmentStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	appt, err := a.SetAppointmentStatus(c.Request.Context(), organizationID(c), c.Param("id"), req.Status)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, appt)
}

// GET /api/therapists
func (a *App) ListTherapistsHandler(c *gin.Context) {
	ts, err := a.ListTherapists(c.Request.Context(), organizationID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ts)
}

// POST /api/therapists
func (a *App) CreateTherapistHandler(c *gin.Context) {
	var req CreateTherapistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	t, err := a.CreateTherapist(c.Request.Context(), organizationID(c), req)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, t)
}

// PUT /api/therapists/:id/working-hours
func (a *App) UpdateWorkingHoursHandler(c *gin.Context) {
	var wh WorkingHours
	if err := c.ShouldBindJSON(&wh); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	t, err := a.UpdateWorkingHours(c.Request.Context(), organizationID(c), c.Param("id"), wh)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, t)
}

// DELETE /api/therapists/:id
func (a *App) DeactivateTherapistHandler(c *gin.Context) {
	if err := a.DeactivateTherapist(c.Request.Context(), organizationID(c), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"id": c.Param("id"), "isActive": false})
}
