package db

import (
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"persona-chat/internal/chat"
	"persona-chat/internal/models"
)

func Connect(dsn string) *gorm.DB {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	return gdb
}

// Migrate brings the schema up to date for all persisted collections.
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.User{},
		&chat.Session{},
		&chat.Message{},
		&chat.AnonymousUsage{},
		&chat.Job{},
	)
}
