// seed inserts sample registrations for local testing: go run ./cmd/seed -n 10.
// Skips when registrations already exist.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"rsvp-bot/internal/config"
	"rsvp-bot/internal/db"
	regdomain "rsvp-bot/internal/registration/domain"
	regrepo "rsvp-bot/internal/registration/repository"
	regservice "rsvp-bot/internal/registration/service"
)

// seedChatBase keeps sample chat ids far from real Telegram user ids.
const seedChatBase int64 = 9_000_000_000

var (
	lastNames  = []string{"Иванов", "Петрова", "Сидоров", "Кузнецова", "Смирнов", "Попова", "Волков", "Соколова"}
	firstNames = []string{"Алексей", "Мария", "Дмитрий", "Анна", "Сергей", "Елена", "Никита", "Ольга"}
)

func main() {
	n := flag.Int("n", 10, "number of sample registrations")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cfg, err := config.Load()
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is not set; put it in .env or the environment")
		os.Exit(1)
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	repo := regrepo.NewPostgresRepository(conn)
	svc := regservice.NewService(repo, repo)
	existing, err := svc.Count(ctx)
	if err != nil {
		logger.Error("seed check", "error", err)
		os.Exit(1)
	}
	if existing > 0 {
		logger.Info("seed skipped: registrations already exist", "count", existing)
		return
	}

	for i := 0; i < *n; i++ {
		chatID := seedChatBase + int64(i)
		if err := svc.RecordConsent(ctx, chatID); err != nil {
			logger.Error("seed consent", "chat_id", chatID, "error", err)
			os.Exit(1)
		}
		if _, err := svc.Create(ctx, chatID, sampleFields(i, cfg.AffiliationLabel)); err != nil {
			logger.Error("seed registration", "chat_id", chatID, "error", err)
			os.Exit(1)
		}
	}
	logger.Info("seed applied", "registrations", *n)
}

// sampleFields alternates affiliated and external participants.
func sampleFields(i int, institution string) regdomain.Fields {
	name := fmt.Sprintf("%s %s", lastNames[i%len(lastNames)], firstNames[i%len(firstNames)])
	if i%2 == 0 {
		return regdomain.Fields{
			FullName:    name,
			Affiliation: regdomain.AffiliationAffiliated,
			Study:       &regdomain.StudyProof{Institution: institution, Group: fmt.Sprintf("Б%02d-%03d", 20+i%6, 100+i)},
		}
	}
	workplace := "ООО Пример"
	return regdomain.Fields{
		FullName:    name,
		Affiliation: regdomain.AffiliationExternal,
		Passport:    &regdomain.Passport{Series: fmt.Sprintf("%04d", 4500+i), Number: fmt.Sprintf("%06d", 100000+i)},
		Workplace:   &workplace,
	}
}
