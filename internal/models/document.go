package models

import (
	"errors"
	"net/url"
	"time"
)

// Document is a row from the `doc` table.
type Document struct {
	ID             string    `gorm:"column:doc_id;primaryKey" json:"doc_id"`
	MunicipalityID string    `gorm:"column:doc_mun;index" json:"doc_mun"`
	AuthorID       string    `gorm:"column:doc_author" json:"doc_author"`
	Title          string    `gorm:"column:doc_title" json:"doc_title"`
	URL            string    `gorm:"column:doc_url" json:"doc_url"`
	Date           time.Time `gorm:"column:doc_date" json:"doc_date"`
}

// TableName binds the row to the `doc` table.
func (Document) TableName() string { return "doc" }

// Validate enforces the row shape at the decoding boundary.
func (d *Document) Validate() error {
	if d.ID == "" {
		return errors.New("doc_id is required")
	}
	if d.MunicipalityID == "" {
		return errors.New("doc_mun is required")
	}
	if _, err := url.ParseRequestURI(d.URL); err != nil {
		return errors.New("doc_url must be a valid URL")
	}
	return nil
}
