package views

import (
	"context"
	"log/slog"

	"mmuni/internal/i18n"
	"mmuni/internal/models"
	"mmuni/internal/observability"
	"mmuni/internal/querycache"
	"mmuni/internal/router"
	"mmuni/internal/service"
)

// ProfileForm is the settings form. With no signed-in user it registers
// a new account.
type ProfileForm struct {
	Name     string
	Email    string
	Password string
	Activist bool
}

// SettingsView is the settings panel: profile, locale, account actions.
type SettingsView struct {
	d *Deps
}

func NewSettingsView(d *Deps) *SettingsView {
	return &SettingsView{d: d}
}

func (v *SettingsView) Profile() *models.AppUser {
	return v.d.user()
}

// Form returns the form pre-filled from the profile.
func (v *SettingsView) Form() ProfileForm {
	u := v.d.user()
	if u == nil {
		return ProfileForm{}
	}
	return ProfileForm{Name: u.Name, Email: u.Email, Activist: u.Role == models.RoleActivist}
}

// Save updates the profile, or registers when nobody is signed in.
func (v *SettingsView) Save(ctx context.Context, f ProfileForm) (*models.AppUser, error) {
	if v.d.user() == nil {
		return v.d.Session.Register(ctx, service.RegisterInput{Name: f.Name, Email: f.Email, Password: f.Password})
	}
	u, mut, err := v.d.ProfileSvc.Save(ctx, service.SaveProfileInput{
		Name:     f.Name,
		Email:    f.Email,
		Activist: f.Activist,
		Password: f.Password,
	})
	if err != nil {
		return u, err
	}
	v.d.Cache.Apply(mut)
	return u, nil
}

func (v *SettingsView) Locale() string {
	return i18n.Match(v.d.Store.Snapshot().Locale)
}

// SetLocale switches the language immediately.
func (v *SettingsView) SetLocale(code string) {
	v.d.Store.SetLocale(i18n.Match(code))
}

func (v *SettingsView) Logout(ctx context.Context) {
	v.d.Session.Logout(ctx)
	v.d.Router.Dismiss(router.PanelSettings)
}

func (v *SettingsView) DeleteAccount(ctx context.Context) error {
	if err := v.d.Session.DeleteAccount(ctx); err != nil {
		return err
	}
	v.d.Router.Dismiss(router.PanelSettings)
	return nil
}

// SupportEmail is the contact address from config, or "" when unset.
func (v *SettingsView) SupportEmail(ctx context.Context) string {
	return v.configValue(ctx, models.ConfigSupportEmail)
}

// LegalURL is the public site linked from the legal section.
func (v *SettingsView) LegalURL(ctx context.Context) string {
	return v.configValue(ctx, models.ConfigAppSiteURL)
}

// VerifyEmail is where mayors send verification requests.
func (v *SettingsView) VerifyEmail(ctx context.Context) string {
	return v.configValue(ctx, models.ConfigVerifyEmail)
}

func (v *SettingsView) configValue(ctx context.Context, key string) string {
	val, err := querycache.Get(ctx, v.d.Cache, querycache.ConfigKey(key), func(ctx context.Context) (string, error) {
		return v.d.Configs.Get(ctx, key)
	})
	if err != nil {
		observability.Logger.DebugContext(ctx, "config value unavailable",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return val
}

func (v *SettingsView) Dismiss() {
	v.d.Router.Dismiss(router.PanelSettings)
}
