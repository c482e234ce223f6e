package models

import (
	"errors"
	"time"
)

// Comment is a row from the `comm` table.
type Comment struct {
	ID       string    `gorm:"column:comm_id;primaryKey" json:"comm_id"`
	ObjectID string    `gorm:"column:comm_obj;index" json:"comm_obj"`
	AuthorID string    `gorm:"column:comm_author" json:"comm_author"`
	Text     string    `gorm:"column:comm_text" json:"comm_text"`
	Date     time.Time `gorm:"column:comm_date" json:"comm_date"`
	Likes    []string  `gorm:"-" json:"comm_likes"`
	Dislikes []string  `gorm:"-" json:"comm_dislikes"`
	Reports  []string  `gorm:"-" json:"comm_reports"`
}

// TableName binds the row to the `comm` table.
func (Comment) TableName() string { return "comm" }

// Validate enforces the row shape at the decoding boundary.
func (c *Comment) Validate() error {
	if c.ID == "" {
		return errors.New("comm_id is required")
	}
	if c.ObjectID == "" {
		return errors.New("comm_obj is required")
	}
	if c.AuthorID == "" {
		return errors.New("comm_author is required")
	}
	return nil
}

// Reactions returns the comment's reaction sets.
func (c *Comment) Reactions() Reactions {
	return Reactions{Likes: c.Likes, Dislikes: c.Dislikes, Reports: c.Reports}
}
