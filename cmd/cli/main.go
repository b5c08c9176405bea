package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/ariefcatur/go-storefront/internal/config"
	"github.com/ariefcatur/go-storefront/internal/postgres"
	"github.com/ariefcatur/go-storefront/internal/users"
)

const usage = "usage: cli <migrate|add-user> [flags]"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "migrate":
		err = migrate(ctx, cfg)
	case "add-user":
		err = addUser(ctx, cfg, os.Args[2:])
	default:
		fmt.Println(usage)
		os.Exit(1)
	}
	if err != nil {
		slog.Error(os.Args[1]+" failed", "error", err)
		os.Exit(1)
	}
}

func migrate(ctx context.Context, cfg config.Config) error {
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	return postgres.Migrate(ctx, db)
}

func addUser(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("add-user", flag.ExitOnError)
	username := fs.String("username", "", "username for the new account")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password (min 8 characters)")
	staff := fs.Bool("staff", false, "grant dashboard access")
	superuser := fs.Bool("superuser", false, "grant superuser")
	_ = fs.Parse(args)

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		return err
	}

	u, err := (&users.Repo{DB: db}).Create(ctx, users.NewUser{
		Username:    *username,
		Email:       *email,
		Password:    *password,
		IsStaff:     *staff || *superuser,
		IsSuperuser: *superuser,
	})
	if err != nil {
		return err
	}
	fmt.Printf("User '%s' created with id %d.\n", u.Username, u.ID)
	return nil
}
