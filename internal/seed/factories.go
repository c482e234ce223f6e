// Package seed generates demo municipalities and their content for
// development databases and tests.
package seed

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"mmuni/internal/models"
)

// Factory builds rows with a seeded faker so that runs are reproducible.
type Factory struct {
	faker *gofakeit.Faker
	now   time.Time
	// MaxDays bounds how far back object and document dates are spread.
	MaxDays int
}

// NewFactory creates a Factory. A zero seed picks a random one.
func NewFactory(seed int64) *Factory {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Factory{faker: gofakeit.New(seed), now: time.Now().UTC(), MaxDays: 90}
}

func (f *Factory) id() string {
	// uuid from the faker's stream keeps ids stable for a given seed.
	u, err := uuid.Parse(f.faker.UUID())
	if err != nil {
		return uuid.NewString()
	}
	return u.String()
}

func (f *Factory) pastDate() time.Time {
	days := f.MaxDays
	if days <= 0 {
		days = 90
	}
	back := time.Duration(f.faker.Number(0, days*24*60)) * time.Minute
	return f.now.Add(-back).Truncate(time.Second)
}

// Municipality builds a municipality centred somewhere in the northern
// hemisphere.
func (f *Factory) Municipality(overrides ...func(*models.Municipality)) *models.Municipality {
	m := &models.Municipality{
		ID:      f.id(),
		Country: f.faker.Country(),
		Region:  f.faker.State(),
		Name:    f.faker.City(),
		Coordinates: &models.Coordinates{
			Lat: f.faker.Float64Range(41, 70),
			Lng: f.faker.Float64Range(20, 140),
		},
	}
	for _, o := range overrides {
		o(m)
	}
	return m
}

// User builds a profile row attached to mun.
func (f *Factory) User(mun *models.Municipality, role models.Role, overrides ...func(*models.AppUser)) *models.AppUser {
	munID := mun.ID
	u := &models.AppUser{
		ID:             f.id(),
		Name:           f.faker.Name(),
		Email:          f.faker.Email(),
		MunicipalityID: &munID,
		Role:           role,
		Premium:        f.faker.Number(1, 10) == 1,
	}
	for _, o := range overrides {
		o(u)
	}
	return u
}

// Object builds a content object of type typ inside mun, placed near the
// municipality centre.
func (f *Factory) Object(mun *models.Municipality, typ models.ObjectType, author *models.AppUser, overrides ...func(*models.ContentObject)) *models.ContentObject {
	desc := f.faker.Paragraph(1, 3, 12, "\n")
	photo := fmt.Sprintf("https://picsum.photos/seed/%s/800/600", f.faker.UUID())
	o := &models.ContentObject{
		ID:             f.id(),
		MunicipalityID: mun.ID,
		Type:           typ,
		Sphere:         models.Spheres[f.faker.Number(0, len(models.Spheres)-1)],
		Title:          f.faker.Sentence(f.faker.Number(3, 7)),
		Description:    &desc,
		Photo:          &photo,
		Date:           f.pastDate(),
	}
	if author != nil {
		id := author.ID
		o.AuthorID = &id
	}
	if mun.Coordinates != nil {
		o.Coordinates = &models.Coordinates{
			Lat: clamp(mun.Coordinates.Lat+f.faker.Float64Range(-0.05, 0.05), -90, 90),
			Lng: clamp(mun.Coordinates.Lng+f.faker.Float64Range(-0.05, 0.05), -180, 180),
		}
	}
	for _, ov := range overrides {
		ov(o)
	}
	return o
}

// Comment builds a comment by author on obj, dated after the object.
func (f *Factory) Comment(obj *models.ContentObject, author *models.AppUser) *models.Comment {
	date := obj.Date.Add(time.Duration(f.faker.Number(1, 72*60)) * time.Minute)
	if date.After(f.now) {
		date = f.now
	}
	return &models.Comment{
		ID:       f.id(),
		ObjectID: obj.ID,
		AuthorID: author.ID,
		Text:     f.faker.Sentence(f.faker.Number(4, 16)),
		Date:     date,
	}
}

// Document builds a published document of mun.
func (f *Factory) Document(mun *models.Municipality, author *models.AppUser) *models.Document {
	return &models.Document{
		ID:             f.id(),
		MunicipalityID: mun.ID,
		AuthorID:       author.ID,
		Title:          f.faker.Sentence(f.faker.Number(2, 6)),
		URL:            fmt.Sprintf("https://docs.example.org/%s.pdf", f.faker.UUID()),
		Date:           f.pastDate(),
	}
}

// Configs builds the app-wide config rows for a demo installation.
func (f *Factory) Configs(demo *models.Municipality) []*models.ConfigEntry {
	values := []struct{ key, value string }{
		{models.ConfigDemoMunicipality, demo.ID},
		{models.ConfigStartMessage, "Welcome to " + demo.Name},
		{models.ConfigVerifyEmail, "false"},
		{models.ConfigSupportEmail, "support@" + f.faker.DomainName()},
		{models.ConfigAppSiteURL, "https://" + f.faker.DomainName()},
		{"chat", "on"},
		{"docs", "on"},
	}
	rows := make([]*models.ConfigEntry, 0, len(values))
	for _, v := range values {
		rows = append(rows, &models.ConfigEntry{ID: f.id(), Key: v.key, Value: v.value})
	}
	return rows
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
