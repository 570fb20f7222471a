// Command main runs the database seeder for Greenroom.
package main

import (
	"flag"
	"log"

	"greenroom/internal/config"
	"greenroom/internal/database"
	"greenroom/internal/seed"
)

func main() {
	// Parse command line flags
	numUsers := flag.Int("users", 40, "Number of users to create")
	numSessions := flag.Int("sessions", 5, "Number of conference sessions to create")
	questionsPerSession := flag.Int("questions", 12, "Number of questions per session")
	shouldClean := flag.Bool("clean", true, "Clean database before seeding")
	flag.Parse()

	log.Println("Database Seeder")
	log.Println("===============")
	log.Printf("Target: %d users, %d sessions x %d questions, clean=%v\n",
		*numUsers, *numSessions, *questionsPerSession, *shouldClean)

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	if _, err := database.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run seeder
	s := seed.NewSeeder(database.DB)

	if *shouldClean {
		if err := s.ClearAll(); err != nil {
			log.Fatalf("Cleanup failed: %v", err)
		}
	}

	users, err := s.SeedUsers(*numUsers)
	if err != nil {
		log.Fatalf("User seeding failed: %v", err)
	}

	sessionIDs, err := s.SeedSessions(users, *numSessions, *questionsPerSession)
	if err != nil {
		log.Fatalf("Session seeding failed: %v", err)
	}

	log.Printf("All done! Seeded sessions: %v", sessionIDs)
}
