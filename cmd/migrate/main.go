// Command migrate applies the database schema explicitly. Development
// environments migrate on connect; production deployments run this once per
// release instead.
package main

import (
	"log"

	"greenroom/internal/config"
	"greenroom/internal/database"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}

	if err := db.AutoMigrate(database.PersistentModels()...); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	log.Println("schema migrated")
}
