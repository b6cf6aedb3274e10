package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const (
	primaryCalendarID = "primary"
	oauthStateTTL     = 15 * time.Minute
	// oauthStateAudience marks OAuth state tokens. AuthMiddleware refuses
	// tokens carrying it.
	oauthStateAudience = "oauth-state"
)

// GoogleCalendarConfig holds OAuth2 and breaker configuration.
type GoogleCalendarConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// StateSecret signs the OAuth state; the client secret is used when
	// empty. It must differ from the API JWT secret.
	StateSecret     string
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	Location        *time.Location
}

// GoogleCalendar links therapists' Google calendars and reads their busy time.
// Each therapist gets its own circuit breaker, so one broken calendar link
// does not stop busy-time lookups for the rest of the organization.
type GoogleCalendar struct {
	oauth    *oauth2.Config
	stateKey []byte
	settings gobreaker.Settings
	loc      *time.Location

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[[]Interval]
}

// CalendarEvent is one entry of a therapist's primary calendar, as listed by
// GET /api/therapists/:id/calendar/events. All-day events start at midnight
// UTC of their date.
type CalendarEvent struct {
	ID          string    `json:"id"`
	Summary     string    `json:"summary"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	Status      string    `json:"status"`
	Organizer   string    `json:"organizer,omitempty"`
	Start       time.Time `json:"startTime"`
	End         time.Time `json:"endTime"`
}

// NewGoogleCalendar returns nil when the OAuth client is not configured.
func NewGoogleCalendar(cfg GoogleCalendarConfig) *GoogleCalendar {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURL == "" {
		return nil
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	secret := cfg.StateSecret
	if secret == "" {
		secret = cfg.ClientSecret
	}

	failures := cfg.BreakerFailures
	settings := gobreaker.Settings{
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}

	return &GoogleCalendar{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{calendar.CalendarReadonlyScope},
			Endpoint:     google.Endpoint,
		},
		stateKey: []byte(secret),
		settings: settings,
		loc:      cfg.Location,
		breakers: make(map[string]*gobreaker.CircuitBreaker[[]Interval]),
	}
}

func (g *GoogleCalendar) breakerFor(therapistID string) *gobreaker.CircuitBreaker[[]Interval] {
	g.mu.Lock()
	defer g.mu.Unlock()
	cb, ok := g.breakers[therapistID]
	if !ok {
		st := g.settings
		st.Name = "google-calendar:" + therapistID
		cb = gobreaker.NewCircuitBreaker[[]Interval](st)
		g.breakers[therapistID] = cb
	}
	return cb
}

type calendarState struct {
	OrganizationID string `json:"org_id"`
	TherapistID    string `json:"therapist_id"`
	jwt.RegisteredClaims
}

func (g *GoogleCalendar) signState(orgID, therapistID string, now time.Time) (string, error) {
	claims := calendarState{
		OrganizationID: orgID,
		TherapistID:    therapistID,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{oauthStateAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(oauthStateTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.stateKey)
}

func (g *GoogleCalendar) parseState(state string) (*calendarState, error) {
	claims := &calendarState{}
	_, err := jwt.ParseWithClaims(state, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenMalformed
		}
		return g.stateKey, nil
	}, jwt.WithAudience(oauthStateAudience))
	if err != nil {
		return nil, err
	}
	if claims.OrganizationID == "" || claims.TherapistID == "" {
		return nil, errors.New("incomplete oauth state")
	}
	return claims, nil
}

func (g *GoogleCalendar) service(ctx context.Context, t Therapist) (*calendar.Service, error) {
	var token oauth2.Token
	if err := json.Unmarshal(t.calendarToken, &token); err != nil {
		return nil, fmt.Errorf("decode calendar token: %w", err)
	}
	client := g.oauth.Client(ctx, &token)
	return calendar.NewService(ctx, option.WithHTTPClient(client))
}

func (g *GoogleCalendar) dayBounds(date time.Time) (time.Time, time.Time) {
	y, m, d := date.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, g.loc)
	return start, start.AddDate(0, 0, 1)
}

// BusyIntervals queries FreeBusy for the therapist's primary calendar. Once
// the therapist's breaker is open it fails with gobreaker.ErrOpenState
// without calling Google.
func (g *GoogleCalendar) BusyIntervals(ctx context.Context, t Therapist, date time.Time) ([]Interval, error) {
	return g.breakerFor(t.ID).Execute(func() ([]Interval, error) {
		srv, err := g.service(ctx, t)
		if err != nil {
			return nil, err
		}
		dayStart, dayEnd := g.dayBounds(date)
		resp, err := srv.Freebusy.Query(&calendar.FreeBusyRequest{
			TimeMin: dayStart.Format(time.RFC3339),
			TimeMax: dayEnd.Format(time.RFC3339),
			Items:   []*calendar.FreeBusyRequestItem{{Id: primaryCalendarID}},
		}).Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("freebusy query: %w", err)
		}
		cal, ok := resp.Calendars[primaryCalendarID]
		if !ok {
			return nil, nil
		}
		return busyToIntervals(cal.Busy, dayStart, dayEnd), nil
	})
}

// busyToIntervals clips busy periods to the day and converts them to minutes.
// Unparseable periods are dropped.
func busyToIntervals(periods []*calendar.TimePeriod, dayStart, dayEnd time.Time) []Interval {
	var out []Interval
	for _, p := range periods {
		if p == nil {
			continue
		}
		start, err := time.Parse(time.RFC3339, p.Start)
		if err != nil {
			continue
		}
		end, err := time.Parse(time.RFC3339, p.End)
		if err != nil {
			continue
		}
		if start.Before(dayStart) {
			start = dayStart
		}
		if end.After(dayEnd) {
			end = dayEnd
		}
		if !end.After(start) {
			continue
		}
		out = append(out, Interval{
			Start: int(start.Sub(dayStart).Minutes()),
			End:   int(math.Ceil(end.Sub(dayStart).Minutes())),
		})
	}
	return out
}

// Events lists the therapist's primary-calendar events on date.
func (g *GoogleCalendar) Events(ctx context.Context, t Therapist, date time.Time) ([]CalendarEvent, error) {
	srv, err := g.service(ctx, t)
	if err != nil {
		return nil, err
	}
	dayStart, dayEnd := g.dayBounds(date)
	events, err := srv.Events.List(primaryCalendarID).
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(dayStart.Format(time.RFC3339)).
		TimeMax(dayEnd.Format(time.RFC3339)).
		MaxResults(250).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve events: %w", err)
	}

	out := make([]CalendarEvent, 0, len(events.Items))
	for _, item := range events.Items {
		out = append(out, toCalendarEvent(item))
	}
	return out, nil
}

func toCalendarEvent(item *calendar.Event) CalendarEvent {
	ev := CalendarEvent{
		ID:          item.Id,
		Summary:     item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Status:      item.Status,
		Start:       eventTime(item.Start),
		End:         eventTime(item.End),
	}
	if item.Organizer != nil {
		ev.Organizer = item.Organizer.Email
	}
	return ev
}

func eventTime(dt *calendar.EventDateTime) time.Time {
	if dt == nil {
		return time.Time{}
	}
	if dt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
			return t
		}
	} else if dt.Date != "" {
		if t, err := time.Parse(dateLayout, dt.Date); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (a *App) calendarConfigured(c *gin.Context) bool {
	if a.Calendar == nil {
		fail(c, http.StatusServiceUnavailable, "Google Calendar not configured")
		return false
	}
	return true
}

// GET /api/calendar/auth?therapist_id=
func (a *App) GoogleAuthHandler(c *gin.Context) {
	if !a.calendarConfigured(c) {
		return
	}
	orgID := organizationID(c)
	therapistID := c.Query("therapist_id")
	if therapistID == "" {
		fail(c, http.StatusBadRequest, "therapist_id required")
		return
	}
	if _, err := a.lookupActiveTherapist(c.Request.Context(), orgID, therapistID); err != nil {
		failErr(c, err)
		return
	}

	state, err := a.Calendar.signState(orgID, therapistID, a.now())
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to create oauth state")
		return
	}
	url := a.Calendar.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	ok(c, http.StatusOK, gin.H{"authUrl": url})
}

// GET /oauth2callback
func (a *App) GoogleOAuth2CallbackHandler(c *gin.Context) {
	if !a.calendarConfigured(c) {
		return
	}
	code := c.Query("code")
	if code == "" {
		fail(c, http.StatusBadRequest, "authorization code required")
		return
	}
	state, err := a.Calendar.parseState(c.Query("state"))
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid state")
		return
	}

	ctx := c.Request.Context()
	token, err := a.Calendar.oauth.Exchange(ctx, code)
	if err != nil {
		fail(c, http.StatusBadRequest, "failed to exchange code for token")
		return
	}
	tokenJSON, err := json.Marshal(token)
	if err != nil {
		fail(c, http.StatusInternalServerError, "failed to encode token")
		return
	}
	n, err := a.Store.SaveCalendarToken(ctx, state.OrganizationID, state.TherapistID, tokenJSON)
	if err != nil {
		failErr(c, classifyStoreError("save calendar token", err))
		return
	}
	if n == 0 {
		fail(c, http.StatusNotFound, "therapist not found")
		return
	}
	log.Info().Str("organization_id", state.OrganizationID).Str("therapist_id", state.TherapistID).
		Msg("google calendar linked")
	ok(c, http.StatusOK, gin.H{"therapistId": state.TherapistID, "calendarLinked": true})
}

// GET /api/therapists/:id/calendar/events?date=YYYY-MM-DD
func (a *App) TherapistCalendarEventsHandler(c *gin.Context) {
	if !a.calendarConfigured(c) {
		return
	}
	day, err := ParseDate(c.Query("date"))
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	ctx := c.Request.Context()
	t, err := a.lookupActiveTherapist(ctx, organizationID(c), c.Param("id"))
	if err != nil {
		failErr(c, err)
		return
	}
	if len(t.calendarToken) == 0 {
		fail(c, http.StatusBadRequest, "therapist has no linked calendar")
		return
	}
	events, err := a.Calendar.Events(ctx, *t, day)
	if err != nil {
		fail(c, http.StatusBadGateway, err.Error())
		return
	}
	ok(c, http.StatusOK, gin.H{"events": events, "count": len(events)})
}
