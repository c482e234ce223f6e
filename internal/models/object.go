package models

import (
	"errors"
	"fmt"
	"time"
)

// ObjectType classifies a ContentObject.
type ObjectType string

const (
	TypeOrganization ObjectType = "organization"
	TypeNews         ObjectType = "news"
	TypeEvent        ObjectType = "event"
	TypePerson       ObjectType = "person"
	TypeInitiative   ObjectType = "initiative"
)

// ObjectTypes lists every type in display order.
var ObjectTypes = []ObjectType{TypeOrganization, TypeNews, TypeEvent, TypePerson, TypeInitiative}

// Valid reports whether t is a known object type.
func (t ObjectType) Valid() bool {
	for _, known := range ObjectTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Sphere is the civic area an object belongs to.
type Sphere string

const (
	SphereGovernance     Sphere = "governance"
	SphereSocial         Sphere = "social"
	SphereInfrastructure Sphere = "infrastructure"
	SphereEnvironment    Sphere = "environment"
)

// Spheres lists every sphere in display order.
var Spheres = []Sphere{SphereGovernance, SphereSocial, SphereInfrastructure, SphereEnvironment}

// Valid reports whether s is a known sphere.
func (s Sphere) Valid() bool {
	for _, known := range Spheres {
		if s == known {
			return true
		}
	}
	return false
}

// Color is the pin/badge color of the sphere.
func (s Sphere) Color() string {
	switch s {
	case SphereGovernance:
		return "#007AFF"
	case SphereSocial:
		return "#FF3B30"
	case SphereInfrastructure:
		return "#FFCC00"
	case SphereEnvironment:
		return "#34C759"
	}
	return "#8E8E93"
}

// ContentObject is a row from the `obj` table.
type ContentObject struct {
	ID             string       `gorm:"column:obj_id;primaryKey" json:"obj_id"`
	MunicipalityID string       `gorm:"column:obj_mun;index" json:"obj_mun"`
	Type           ObjectType   `gorm:"column:obj_type" json:"obj_type"`
	Sphere         Sphere       `gorm:"column:obj_sphere" json:"obj_sphere"`
	Title          string       `gorm:"column:obj_title" json:"obj_title"`
	Description    *string      `gorm:"column:obj_description" json:"obj_description"`
	Photo          *string      `gorm:"column:obj_photo" json:"obj_photo"`
	Date           time.Time    `gorm:"column:obj_date" json:"obj_date"`
	AuthorID       *string      `gorm:"column:obj_author" json:"obj_author"`
	Coordinates    *Coordinates `gorm:"column:obj_coordinates;type:jsonb" json:"obj_coordinates"`
	Likes          []string     `gorm:"-" json:"obj_likes"`
	Dislikes       []string     `gorm:"-" json:"obj_dislikes"`
	Reports        []string     `gorm:"-" json:"obj_reports"`
	SortOrder      int          `gorm:"column:obj_sort_order" json:"obj_sort_order"`
}

// TableName binds the row to the `obj` table.
func (ContentObject) TableName() string { return "obj" }

// Validate enforces the row shape at the decoding boundary.
func (o *ContentObject) Validate() error {
	if o.ID == "" {
		return errors.New("obj_id is required")
	}
	if o.MunicipalityID == "" {
		return errors.New("obj_mun is required")
	}
	if !o.Type.Valid() {
		return fmt.Errorf("unknown obj_type %q", o.Type)
	}
	if !o.Sphere.Valid() {
		return fmt.Errorf("unknown obj_sphere %q", o.Sphere)
	}
	if o.Coordinates != nil {
		return o.Coordinates.Validate()
	}
	return nil
}

// Reactions returns the object's reaction sets.
func (o *ContentObject) Reactions() Reactions {
	return Reactions{Likes: o.Likes, Dislikes: o.Dislikes, Reports: o.Reports}
}

// ObjectDraft is the create/edit form state.
type ObjectDraft struct {
	Type        ObjectType
	Sphere      Sphere
	Title       string
	Description string
	Photo       string
	Coordinates *Coordinates
}

// DraftFrom pre-populates a draft from an existing object.
func DraftFrom(o *ContentObject) ObjectDraft {
	d := ObjectDraft{
		Type:        o.Type,
		Sphere:      o.Sphere,
		Title:       o.Title,
		Coordinates: o.Coordinates,
	}
	if o.Description != nil {
		d.Description = *o.Description
	}
	if o.Photo != nil {
		d.Photo = *o.Photo
	}
	return d
}

// ListFilter scopes the list panel.
type ListFilter struct {
	Title  string
	Type   *ObjectType
	Sphere *Sphere
}

// MapOptions configures the map panel. With SelectMode set the panel picks
// a single coordinate and reports it through OnSelect.
type MapOptions struct {
	SelectMode bool
	OnSelect   func(Coordinates)
}
