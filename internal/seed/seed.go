// Package seed provides helpers to create test and demo data for the
// application database. These helpers are intended for development and
// testing only.
package seed

import (
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"greenroom/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Seeder populates the database with demo Q&A data.
type Seeder struct {
	db  *gorm.DB
	rng *rand.Rand
}

// NewSeeder creates a new Seeder bound to the provided Gorm DB.
func NewSeeder(db *gorm.DB) *Seeder {
	gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{
		db:  db,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ClearAll removes all Q&A data. Votes go first so foreign keys never block
// the sweep.
func (s *Seeder) ClearAll() error {
	log.Println("Clearing existing data...")
	if err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.Vote{}).Error; err != nil {
		return fmt.Errorf("clear votes: %w", err)
	}
	if err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(&models.Question{}).Error; err != nil {
		return fmt.Errorf("clear questions: %w", err)
	}
	if err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Unscoped().Delete(&models.User{}).Error; err != nil {
		return fmt.Errorf("clear users: %w", err)
	}
	return nil
}

// SeedUsers creates a mix of verified and anonymous identities.
func (s *Seeder) SeedUsers(count int) ([]*models.User, error) {
	users := make([]*models.User, 0, count)
	for i := 0; i < count; i++ {
		user := &models.User{
			DisplayName: gofakeit.Adjective() + " " + gofakeit.Animal(),
			AuthToken:   strings.ReplaceAll(uuid.NewString(), "-", ""),
		}
		// Roughly two thirds of a conference audience verifies an email.
		if s.rng.Intn(3) < 2 {
			// Index suffix keeps generated emails unique.
			email := strings.ToLower(fmt.Sprintf("%s.%d@%s", gofakeit.Username(), i, gofakeit.DomainName()))
			user.Email = &email
		} else {
			fp := uuid.NewString()
			user.Fingerprint = &fp
		}
		if err := s.db.Create(user).Error; err != nil {
			return nil, fmt.Errorf("seed user: %w", err)
		}
		users = append(users, user)
	}
	log.Printf("Seeded %d users", count)
	return users, nil
}

// SeedSessions fills the given number of sessions with questions and votes
// from the supplied users. Returns the session identifiers.
func (s *Seeder) SeedSessions(users []*models.User, sessions, questionsPerSession int) ([]string, error) {
	if len(users) == 0 {
		return nil, fmt.Errorf("no users to author questions")
	}

	sessionIDs := make([]string, 0, sessions)
	for i := 0; i < sessions; i++ {
		sessionID := fmt.Sprintf("%s-%d", strings.ToLower(gofakeit.BuzzWord()), i+1)
		sessionID = strings.ReplaceAll(sessionID, " ", "-")
		sessionIDs = append(sessionIDs, sessionID)

		for j := 0; j < questionsPerSession; j++ {
			author := users[s.rng.Intn(len(users))]
			question := &models.Question{
				SessionID: sessionID,
				Content:   gofakeit.Question(),
				AuthorID:  author.ID,
			}
			if err := s.db.Create(question).Error; err != nil {
				return nil, fmt.Errorf("seed question: %w", err)
			}

			// A random subset of the audience votes; authors may vote on
			// their own questions too.
			for _, voter := range s.pickVoters(users) {
				vote := &models.Vote{QuestionID: question.ID, UserID: voter.ID}
				if err := s.db.Create(vote).Error; err != nil {
					return nil, fmt.Errorf("seed vote: %w", err)
				}
			}
		}
	}

	log.Printf("Seeded %d sessions with %d questions each", sessions, questionsPerSession)
	return sessionIDs, nil
}

// pickVoters selects a random distinct subset of users, biased small so most
// questions stay low-vote like a real session.
func (s *Seeder) pickVoters(users []*models.User) []*models.User {
	max := len(users) / 3
	if max == 0 {
		max = 1
	}
	count := s.rng.Intn(max + 1)

	shuffled := make([]*models.User, len(users))
	copy(shuffled, users)
	s.rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:count]
}
