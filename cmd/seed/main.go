// Command seed provisions the test resident and admin and prints their ids
// for use in the X-User-Id header.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/communityconnect/connect/backend/go-services/internal/config"
	"github.com/communityconnect/connect/backend/go-services/internal/database"
	"github.com/communityconnect/connect/backend/go-services/internal/models"
	"github.com/communityconnect/connect/backend/go-services/internal/users"
	"github.com/communityconnect/connect/backend/go-services/pkg/logger"
)

type account struct {
	in   users.SyncInput
	role models.Role
}

var accounts = []account{
	{in: users.SyncInput{ExternalID: "temp_resident_001", Email: "resident@community.com", Name: "Test Resident"}, role: models.RoleResident},
	{in: users.SyncInput{ExternalID: "temp_admin_001", Email: "admin@community.com", Name: "Community Admin"}, role: models.RoleAdmin},
}

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	if cfg.MongoDB.URI == "" {
		logger.Fatalf("MONGODB_URI is required to seed users")
	}

	ctx := context.Background()
	client, err := database.ConnectWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, 3, time.Second)
	if err != nil {
		logger.Fatalf("cannot connect to MongoDB: %v", err)
	}
	defer func() { _ = client.Disconnect(ctx) }()

	repo := users.NewMongoUserRepository(client.Database(cfg.MongoDB.Database).Collection("users"))
	if err := repo.EnsureIndexes(ctx); err != nil {
		logger.Warnf("user indexes: %v", err)
	}
	svc := users.NewService(repo)

	for _, a := range accounts {
		u, err := svc.Provision(ctx, a.in, a.role)
		if err != nil {
			logger.Fatalf("provision %s: %v", a.in.Email, err)
		}
		fmt.Printf("%-8s %s  %s\n", u.Role, u.ID.Hex(), u.Email)
	}
}
