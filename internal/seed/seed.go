package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"mmuni/internal/models"
	"mmuni/internal/observability"
)

// Options configure a seeding run.
type Options struct {
	Municipalities int
	// Objects is the number of objects of each type per municipality.
	Objects           int
	CommentsPerObject int
	Documents         int
	UsersPerMun       int
	Clean             bool
	DryRun            bool
	Seed              int64
}

// DefaultOptions is a small but complete demo dataset.
var DefaultOptions = Options{
	Municipalities:    3,
	Objects:           4,
	CommentsPerObject: 2,
	Documents:         3,
	UsersPerMun:       5,
}

// Summary counts the rows a run wrote, or would write in dry-run mode.
type Summary struct {
	Municipalities int
	Users          int
	Objects        int
	Comments       int
	Documents      int
	Configs        int
}

// Dataset is the generated rows of one run.
type Dataset struct {
	Municipalities []*models.Municipality
	Users          []*models.AppUser
	Objects        []*models.ContentObject
	Comments       []*models.Comment
	Documents      []*models.Document
	Configs        []*models.ConfigEntry
}

func (d *Dataset) summary() Summary {
	return Summary{
		Municipalities: len(d.Municipalities),
		Users:          len(d.Users),
		Objects:        len(d.Objects),
		Comments:       len(d.Comments),
		Documents:      len(d.Documents),
		Configs:        len(d.Configs),
	}
}

// Build generates a dataset without touching a database. The first
// municipality becomes the demo municipality.
func Build(f *Factory, opts Options) (*Dataset, error) {
	if opts.Municipalities <= 0 {
		return nil, errors.New("at least one municipality is required")
	}
	users := max(opts.UsersPerMun, 1)

	d := &Dataset{}
	for i := 0; i < opts.Municipalities; i++ {
		mun := f.Municipality()
		d.Municipalities = append(d.Municipalities, mun)

		locals := make([]*models.AppUser, 0, users)
		for j := 0; j < users; j++ {
			role := models.RoleRegistered
			switch j {
			case 0:
				role = models.RoleAdmin
			case 1:
				role = models.RoleActivist
			}
			locals = append(locals, f.User(mun, role))
		}
		d.Users = append(d.Users, locals...)

		for _, typ := range models.ObjectTypes {
			for k := 0; k < opts.Objects; k++ {
				author := locals[f.faker.Number(0, len(locals)-1)]
				obj := f.Object(mun, typ, author, func(o *models.ContentObject) { o.SortOrder = k })
				if err := obj.Validate(); err != nil {
					return nil, fmt.Errorf("generated object is invalid: %w", err)
				}
				d.Objects = append(d.Objects, obj)

				for c := 0; c < opts.CommentsPerObject; c++ {
					d.Comments = append(d.Comments, f.Comment(obj, locals[f.faker.Number(0, len(locals)-1)]))
				}
			}
		}

		for k := 0; k < opts.Documents; k++ {
			d.Documents = append(d.Documents, f.Document(mun, locals[0]))
		}
	}
	d.Configs = f.Configs(d.Municipalities[0])
	return d, nil
}

// Seed generates a dataset and writes it in one transaction.
func Seed(ctx context.Context, db *gorm.DB, opts Options) (Summary, error) {
	log := observability.Logger
	d, err := Build(NewFactory(opts.Seed), opts)
	if err != nil {
		return Summary{}, err
	}
	sum := d.summary()

	if opts.DryRun {
		log.InfoContext(ctx, "dry run, nothing written", slog.Any("summary", sum))
		return sum, nil
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if opts.Clean {
			if err := ClearAll(tx); err != nil {
				return err
			}
		}
		steps := []struct {
			table string
			rows  any
		}{
			{"mun", d.Municipalities},
			{"user", d.Users},
			{"obj", d.Objects},
			{"comm", d.Comments},
			{"doc", d.Documents},
			{"config", d.Configs},
		}
		for _, s := range steps {
			if err := tx.CreateInBatches(s.rows, 100).Error; err != nil {
				return fmt.Errorf("failed to seed %s: %w", s.table, err)
			}
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}

	log.InfoContext(ctx, "database seeded",
		slog.Int("municipalities", sum.Municipalities),
		slog.Int("objects", sum.Objects),
		slog.String("demo_mun", d.Municipalities[0].ID),
	)
	return sum, nil
}

// ClearAll deletes every row the seeder writes, children first.
func ClearAll(db *gorm.DB) error {
	for _, model := range []any{
		&models.ConfigEntry{},
		&models.Comment{},
		&models.Document{},
		&models.ContentObject{},
		&models.AppUser{},
		&models.Municipality{},
	} {
		if err := db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
			return fmt.Errorf("failed to clear %T: %w", model, err)
		}
	}
	return nil
}
