package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/openprep/testprep-backend/internal/config"
	"github.com/openprep/testprep-backend/internal/database"
	"github.com/openprep/testprep-backend/internal/logger"
	"github.com/openprep/testprep-backend/internal/model"
	"github.com/openprep/testprep-backend/internal/repository"
)

// Seeds a handful of demo learners plus one published practice test so a
// fresh deployment can be exercised end to end.
func main() {
	var (
		learnerCount int
		password     string
	)
	flag.IntVar(&learnerCount, "learners", 5, "Number of demo learners to create")
	flag.StringVar(&password, "password", "demo1234", "Password for every demo learner")
	flag.Parse()

	cfg := config.Load()
	zlog := logger.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg, zlog)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	learnerRepo := repository.NewLearnerRepository(pool)
	testRepo := repository.NewTestRepository(pool)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cfg.BcryptCost)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	created := 0
	for i := 1; i <= learnerCount; i++ {
		l := &model.Learner{
			Email:        fmt.Sprintf("learner%d@example.com", i),
			Name:         fmt.Sprintf("Demo Learner %d", i),
			PasswordHash: string(hash),
		}
		if err := learnerRepo.Create(ctx, l); err != nil {
			if err == repository.ErrDuplicateEmail {
				continue
			}
			log.Fatalf("create learner %s: %v", l.Email, err)
		}
		created++
	}
	fmt.Printf("Created %d learners (password %q)\n", created, password)

	def := demoTest()
	if err := testRepo.Create(ctx, def); err != nil {
		log.Fatalf("create demo test: %v", err)
	}
	fmt.Printf("Created published test %s (%q, %d questions, %d minutes)\n",
		def.ID, def.Title, def.QuestionCount(), def.DurationMinutes)
}

func demoTest() *model.TestDefinition {
	return &model.TestDefinition{
		ID:              uuid.New(),
		Title:           "General Aptitude Practice Test",
		DurationMinutes: 20,
		Status:          model.TestStatusPublished,
		Sections: []model.TestSection{
			{
				ID:    uuid.New(),
				Title: "Quantitative Reasoning",
				Questions: []model.Question{
					{
						ID:            uuid.New(),
						Text:          "What is 15% of 240?",
						Options:       []string{"30", "36", "42", "48"},
						CorrectOption: 1,
						Marks:         2,
					},
					{
						ID:            uuid.New(),
						Text:          "A train travels 180 km in 2.5 hours. What is its average speed?",
						Options:       []string{"64 km/h", "68 km/h", "72 km/h", "76 km/h"},
						CorrectOption: 2,
						Marks:         2,
					},
					{
						ID:            uuid.New(),
						Text:          "If x + 3 = 11, what is 2x?",
						Options:       []string{"8", "14", "16", "22"},
						CorrectOption: 2,
						Marks:         2,
						PenaltyMarks:  0.5,
					},
				},
			},
			{
				ID:    uuid.New(),
				Title: "Verbal Reasoning",
				Questions: []model.Question{
					{
						ID:            uuid.New(),
						Text:          "Choose the word most nearly opposite to \"scarce\".",
						Options:       []string{"Rare", "Abundant", "Sparse", "Limited"},
						CorrectOption: 1,
						Marks:         1,
					},
					{
						ID:            uuid.New(),
						Text:          "Complete the analogy: book is to reading as fork is to ___.",
						Options:       []string{"Drawing", "Writing", "Eating", "Stirring"},
						CorrectOption: 2,
						Marks:         1,
					},
				},
			},
		},
	}
}
