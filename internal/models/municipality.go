// Package models contains data structures for the application's domain models.
package models

import "errors"

// Municipality is immutable reference data from the `mun` table.
type Municipality struct {
	ID          string       `gorm:"column:mun_id;primaryKey" json:"mun_id"`
	Country     string       `gorm:"column:mun_country" json:"mun_country"`
	Region      string       `gorm:"column:mun_region" json:"mun_region"`
	Name        string       `gorm:"column:mun_name" json:"mun_name"`
	Coordinates *Coordinates `gorm:"column:mun_coordinates;type:jsonb" json:"mun_coordinates"`
}

// TableName binds the row to the `mun` table.
func (Municipality) TableName() string { return "mun" }

// Validate enforces the row shape at the decoding boundary.
func (m *Municipality) Validate() error {
	if m.ID == "" {
		return errors.New("mun_id is required")
	}
	if m.Name == "" {
		return errors.New("mun_name is required")
	}
	if m.Coordinates != nil {
		return m.Coordinates.Validate()
	}
	return nil
}
