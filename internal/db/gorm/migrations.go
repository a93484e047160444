// Package gorm provides GORM-based database operations for keeper.
package gorm

import (
	"fmt"

	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"
)

// runMigrations runs all database migrations using gormigrate.
func runMigrations(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		// Migration 001: Prompt lifecycle tables
		{
			ID: "001_prompt_tables",
			Migrate: func(tx *gorm.DB) error {
				if err := tx.AutoMigrate(&ActivePrompt{}); err != nil {
					return err
				}
				if err := tx.AutoMigrate(&PromptHistory{}); err != nil {
					return err
				}
				return tx.AutoMigrate(&UserPrompt{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("active_prompts", "prompt_history", "user_prompts")
			},
		},

		// Migration 002: Stories table
		{
			ID: "002_stories",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Story{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("stories")
			},
		},

		// Migration 003: Chapters table
		{
			ID: "003_chapters",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&Chapter{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable("chapters")
			},
		},
	})

	if err := m.Migrate(); err != nil {
		return fmt.Errorf("run gormigrate migrations: %w", err)
	}

	return nil
}
