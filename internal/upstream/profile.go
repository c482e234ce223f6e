package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"mmuni/internal/models"
	"mmuni/internal/observability"
)

const profileTimeout = 15 * time.Second

// ErrNotConfigured means no privileged writer is available.
var ErrNotConfigured = errors.New("profile writer not configured")

// ProfileWriter performs profile writes that bypass row-level security.
type ProfileWriter interface {
	UpdateProfile(ctx context.Context, update models.ProfileUpdate) error
	UserExists(ctx context.Context, id string) (bool, error)
}

// Fields returns the columns to write for u. Absent name, email and
// municipality are left untouched; absent role and premium are written as
// registered and false.
func Fields(u models.ProfileUpdate) map[string]any {
	out := map[string]any{}
	if u.Name != nil {
		out["user_name"] = *u.Name
	}
	if u.Email != nil {
		out["user_email"] = *u.Email
	}
	if u.MunicipalityID != nil {
		out["user_mun"] = *u.MunicipalityID
	}
	role := models.RoleRegistered
	if u.Role != nil {
		role = *u.Role
	}
	out["user_role"] = string(role)
	premium := false
	if u.Premium != nil {
		premium = *u.Premium
	}
	out["user_premium"] = premium
	return out
}

// RESTProfileWriter writes through PostgREST with the service key.
type RESTProfileWriter struct {
	baseURL    string
	serviceKey string
	http       *http.Client
}

// NewRESTProfileWriter creates a RESTProfileWriter for the project at
// baseURL.
func NewRESTProfileWriter(baseURL, serviceKey string, hc *http.Client) *RESTProfileWriter {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &RESTProfileWriter{baseURL: baseURL, serviceKey: serviceKey, http: hc}
}

func (w *RESTProfileWriter) headers() map[string]string {
	return map[string]string{
		"apikey":        w.serviceKey,
		"Authorization": "Bearer " + w.serviceKey,
	}
}

func (w *RESTProfileWriter) UpdateProfile(ctx context.Context, update models.ProfileUpdate) (err error) {
	defer func() { observability.ProfileWrites.WithLabelValues("rest", observability.Outcome(err)).Inc() }()

	if w.baseURL == "" || w.serviceKey == "" {
		return ErrNotConfigured
	}

	h := w.headers()
	h["Prefer"] = "return=minimal"
	_, err = do(ctx, w.http, call{
		upstream: "profile",
		method:   http.MethodPatch,
		url:      w.baseURL + "/rest/v1/user?user_id=eq." + url.QueryEscape(update.UserID),
		headers:  h,
		body:     Fields(update),
		timeout:  profileTimeout,
	})
	return err
}

func (w *RESTProfileWriter) UserExists(ctx context.Context, id string) (bool, error) {
	if w.baseURL == "" || w.serviceKey == "" {
		return false, ErrNotConfigured
	}

	raw, err := do(ctx, w.http, call{
		upstream: "profile",
		method:   http.MethodGet,
		url:      w.baseURL + "/rest/v1/user?select=user_id&user_id=eq." + url.QueryEscape(id),
		headers:  w.headers(),
		timeout:  profileTimeout,
	})
	if err != nil {
		return false, err
	}
	var rows []struct {
		ID string `json:"user_id"`
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return false, models.NewDecodeError("user", err)
	}
	return len(rows) > 0, nil
}

// DBProfileWriter writes straight to Postgres.
type DBProfileWriter struct {
	db *gorm.DB
}

// NewDBProfileWriter creates a DBProfileWriter.
func NewDBProfileWriter(db *gorm.DB) *DBProfileWriter {
	return &DBProfileWriter{db: db}
}

func (w *DBProfileWriter) UpdateProfile(ctx context.Context, update models.ProfileUpdate) (err error) {
	defer func() { observability.ProfileWrites.WithLabelValues("db", observability.Outcome(err)).Inc() }()

	res := w.db.WithContext(ctx).
		Model(&models.AppUser{}).
		Where("user_id = ?", update.UserID).
		Updates(Fields(update))
	if res.Error != nil {
		var pgErr *pgconn.PgError
		if errors.As(res.Error, &pgErr) {
			if status := pgStatus(pgErr.Code); status != 0 {
				return &StatusError{Upstream: "profile", Status: status, Body: pgErr.Message}
			}
		}
		return models.NewRemoteError("profile update failed", res.Error)
	}
	return nil
}

// pgStatus maps a Postgres error code to the status PostgREST would reply
// with, so both writers report rejected rows the same way. Zero means the
// failure is not the caller's fault.
func pgStatus(code string) int {
	switch {
	case code == "23503" || code == "23505":
		return http.StatusConflict
	case code == "42501":
		return http.StatusForbidden
	case strings.HasPrefix(code, "22") || strings.HasPrefix(code, "23"):
		return http.StatusBadRequest
	}
	return 0
}

func (w *DBProfileWriter) UserExists(ctx context.Context, id string) (bool, error) {
	var n int64
	if err := w.db.WithContext(ctx).Model(&models.AppUser{}).Where("user_id = ?", id).Count(&n).Error; err != nil {
		return false, models.NewRemoteError("existence check failed", err)
	}
	return n > 0, nil
}
