package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"mubarakway/internal/model"
	"mubarakway/internal/prayer"
)

type settingsResponse struct {
	Latitude             *float64 `json:"latitude"`
	Longitude            *float64 `json:"longitude"`
	Timezone             string   `json:"timezone,omitempty"`
	City                 string   `json:"city,omitempty"`
	CalculationMethod    string   `json:"calculation_method"`
	Madhab               string   `json:"madhab"`
	NotificationsEnabled bool     `json:"notifications_enabled"`
	BeforeMinutes        int      `json:"before_minutes"`
}

type userResponse struct {
	TelegramID   int64            `json:"telegram_id"`
	Username     string           `json:"username,omitempty"`
	FirstName    string           `json:"first_name"`
	LastName     string           `json:"last_name,omitempty"`
	LanguageCode string           `json:"language_code,omitempty"`
	Settings     settingsResponse `json:"settings"`
	CreatedAt    time.Time        `json:"created_at"`
	LastActiveAt time.Time        `json:"last_active_at"`
}

type prayerResponse struct {
	Key  string    `json:"key"`
	Name string    `json:"name"`
	Time string    `json:"time"`
	At   time.Time `json:"at"`
}

type timesResponse struct {
	Date     string           `json:"date"`
	Timezone string           `json:"timezone"`
	Method   string           `json:"calculation_method"`
	Madhab   string           `json:"madhab"`
	Prayers  []prayerResponse `json:"prayers"`
	Current  *prayerResponse  `json:"current,omitempty"`
	Next     *prayerResponse  `json:"next,omitempty"`
}

type timesQuery struct {
	Lat  string `query:"lat" validate:"omitempty,latitude"`
	Lon  string `query:"lon" validate:"omitempty,longitude"`
	Date string `query:"date" validate:"omitempty,datetime=2006-01-02"`
}

type settingsRequest struct {
	Latitude             *float64 `json:"latitude" validate:"omitempty,latitude"`
	Longitude            *float64 `json:"longitude" validate:"omitempty,longitude"`
	City                 *string  `json:"city" validate:"omitempty,max=100"`
	CalculationMethod    *string  `json:"calculation_method" validate:"omitempty,calc_method"`
	Madhab               *string  `json:"madhab" validate:"omitempty,oneof=hanafi shafi maliki hanbali"`
	NotificationsEnabled *bool    `json:"notifications_enabled"`
	BeforeMinutes        *int     `json:"before_minutes" validate:"omitempty,min=0,max=60"`
}

func (s *Server) health(c echo.Context) error {
	return JSON(c, http.StatusOK, map[string]any{
		"status":         "ok",
		"notified_count": s.notified.Count(),
		"time":           s.now().UTC(),
	})
}

func (s *Server) login(c echo.Context) error {
	u, err := s.currentUser(c)
	if err != nil {
		return err
	}
	s.log.Info("mini app login", "user_id", u.TelegramID, "username", u.Username)
	return JSON(c, http.StatusOK, s.toUser(u))
}

func (s *Server) prayerTimes(c echo.Context) error {
	var q timesQuery
	if err := c.Bind(&q); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := c.Validate(&q); err != nil {
		return err
	}
	if (q.Lat == "") != (q.Lon == "") {
		return &ValidationError{Field: "lat", Message: "lat and lon must be given together"}
	}

	var (
		lat, lon       float64
		tz             string
		method, madhab string
	)
	if q.Lat != "" {
		lat, _ = strconv.ParseFloat(q.Lat, 64)
		lon, _ = strconv.ParseFloat(q.Lon, 64)
		tz = prayer.TimezoneFor(lat, lon)
		if u, err := s.currentUser(c); err == nil {
			method, madhab = u.CalculationMethod, u.Madhab
		}
	} else {
		u, err := s.currentUser(c)
		if err != nil {
			if errors.Is(err, ErrUnauthenticated) {
				return ErrLocationRequired
			}
			return err
		}
		if u.Location == nil {
			return ErrLocationRequired
		}
		lat, lon, tz = u.Location.Latitude, u.Location.Longitude, u.Location.Timezone
		if tz == "" {
			tz = prayer.TimezoneFor(lat, lon)
		}
		method, madhab = u.CalculationMethod, u.Madhab
	}

	loc := prayer.LoadLocation(tz, time.UTC)
	now := s.now().In(loc)
	day := now
	if q.Date != "" {
		// Format already checked by the validator.
		day, _ = time.ParseInLocation(time.DateOnly, q.Date, loc)
	}

	params := prayer.ResolveParams(lat, method, madhab, s.cfg.DefaultMethod, s.cfg.DefaultMadhab)
	times, err := prayer.Calculate(lat, lon, day, params)
	if err != nil {
		if errors.Is(err, prayer.ErrInvalidCoordinates) {
			return &ValidationError{Field: "lat", Message: err.Error()}
		}
		return fmt.Errorf("calculate prayer times: %w", err)
	}

	resp := timesResponse{
		Date:     times.Date.Format(time.DateOnly),
		Timezone: loc.String(),
		Method:   string(params.Method),
		Madhab:   string(params.Madhab),
	}
	for _, p := range times.Schedule() {
		resp.Prayers = append(resp.Prayers, toPrayerResponse(p, loc))
	}

	if resp.Date == now.Format(time.DateOnly) {
		current, next := prayer.CurrentAndNext(times.Schedule(), now)
		if now.Before(times.Fajr) {
			yesterday, err := prayer.Calculate(lat, lon, now.AddDate(0, 0, -1), params)
			if err != nil {
				return fmt.Errorf("calculate yesterday: %w", err)
			}
			schedule := yesterday.Schedule()
			current = schedule[len(schedule)-1]
		}
		if !next.Time.After(now) {
			tomorrow, err := prayer.Calculate(lat, lon, now.AddDate(0, 0, 1), params)
			if err != nil {
				return fmt.Errorf("calculate tomorrow: %w", err)
			}
			next = tomorrow.Schedule()[0]
		}
		cur, nxt := toPrayerResponse(current, loc), toPrayerResponse(next, loc)
		resp.Current, resp.Next = &cur, &nxt
	}

	return JSON(c, http.StatusOK, resp)
}

func (s *Server) getSettings(c echo.Context) error {
	u, err := s.currentUser(c)
	if err != nil {
		return err
	}
	return JSON(c, http.StatusOK, s.toSettings(u))
}

func (s *Server) putSettings(c echo.Context) error {
	var req settingsRequest
	if err := c.Bind(&req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		return &ValidationError{Field: "latitude", Message: "latitude and longitude must be given together"}
	}

	u, err := s.currentUser(c)
	if err != nil {
		return err
	}

	if req.Latitude != nil {
		l := model.Location{
			Latitude:  *req.Latitude,
			Longitude: *req.Longitude,
			Timezone:  prayer.TimezoneFor(*req.Latitude, *req.Longitude),
		}
		if u.Location != nil {
			l.City = u.Location.City
		}
		u.Location = &l
	}
	if req.City != nil {
		if u.Location == nil {
			return ErrLocationRequired
		}
		u.Location.City = strings.TrimSpace(*req.City)
	}
	if req.CalculationMethod != nil {
		m, _ := prayer.ParseMethod(*req.CalculationMethod)
		u.CalculationMethod = string(m)
	}
	if req.Madhab != nil {
		md, _ := prayer.ParseMadhab(*req.Madhab)
		u.Madhab = string(md)
	}
	if req.NotificationsEnabled != nil {
		u.NotificationsEnabled = *req.NotificationsEnabled
	}
	if req.BeforeMinutes != nil {
		u.BeforeMinutes = *req.BeforeMinutes
	}

	if err := s.store.UpdateUser(c.Request().Context(), u); err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	s.log.Info("prayer settings updated", "user_id", u.TelegramID)
	return JSON(c, http.StatusOK, s.toSettings(u))
}

// currentUser loads the stored user for the authenticated Telegram user,
// refreshing its profile on every call.
func (s *Server) currentUser(c echo.Context) (*model.User, error) {
	wu, ok := GetUser(c)
	if !ok {
		return nil, ErrUnauthenticated
	}
	u := &model.User{
		TelegramID:   wu.ID,
		Username:     wu.Username,
		FirstName:    wu.FirstName,
		LastName:     wu.LastName,
		LanguageCode: wu.LanguageCode,
	}
	if err := s.store.UpsertUser(c.Request().Context(), u); err != nil {
		return nil, fmt.Errorf("upsert user %d: %w", wu.ID, err)
	}
	return u, nil
}

func (s *Server) toSettings(u *model.User) settingsResponse {
	var lat float64
	if u.Location != nil {
		lat = u.Location.Latitude
	}
	p := prayer.ResolveParams(lat, u.CalculationMethod, u.Madhab, s.cfg.DefaultMethod, s.cfg.DefaultMadhab)

	resp := settingsResponse{
		CalculationMethod:    string(p.Method),
		Madhab:               string(p.Madhab),
		NotificationsEnabled: u.NotificationsEnabled,
		BeforeMinutes:        u.BeforeMinutes,
	}
	if l := u.Location; l != nil {
		resp.Latitude, resp.Longitude = &l.Latitude, &l.Longitude
		resp.Timezone, resp.City = l.Timezone, l.City
	}
	return resp
}

func (s *Server) toUser(u *model.User) userResponse {
	return userResponse{
		TelegramID:   u.TelegramID,
		Username:     u.Username,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		LanguageCode: u.LanguageCode,
		Settings:     s.toSettings(u),
		CreatedAt:    u.CreatedAt,
		LastActiveAt: u.LastActiveAt,
	}
}

func toPrayerResponse(p prayer.Info, loc *time.Location) prayerResponse {
	return prayerResponse{
		Key:  p.Key,
		Name: p.Name,
		Time: prayer.FormatTime(p.Time, loc),
		At:   p.Time,
	}
}
