// Command seed creates the first admin account and a starter menu. It is
// safe to run more than once.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/kasirku/kasir/internal/inventory"
	"github.com/kasirku/kasir/internal/platform/db"
	"github.com/kasirku/kasir/internal/shared"
	"github.com/kasirku/kasir/internal/users"
)

type seedConfig struct {
	PGDSN         string `envconfig:"PG_DSN" required:"true"`
	AdminUsername string `envconfig:"SEED_ADMIN_USERNAME" default:"admin"`
	AdminEmail    string `envconfig:"SEED_ADMIN_EMAIL" default:"admin@kasir.local"`
	AdminPassword string `envconfig:"SEED_ADMIN_PASSWORD" required:"true"`
	SampleMenu    bool   `envconfig:"SEED_SAMPLE_MENU" default:"true"`
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}
	var cfg seedConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolConfig{MaxConns: 2})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	fmt.Println("→ Seeding admin...")
	if err := seedAdmin(ctx, pool, cfg); err != nil {
		log.Fatalf("seed admin: %v", err)
	}
	if cfg.SampleMenu {
		fmt.Println("→ Seeding menu...")
		if err := seedMenu(ctx, pool); err != nil {
			log.Fatalf("seed menu: %v", err)
		}
	}
	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func seedAdmin(ctx context.Context, pool *pgxpool.Pool, cfg seedConfig) error {
	svc := users.NewService(users.NewRepository(pool), shared.NewAuditLogger(pool), nil)
	_, err := svc.Create(ctx, users.CreateInput{
		Username: cfg.AdminUsername,
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
		Role:     string(shared.RoleAdmin),
	})
	if errors.Is(err, users.ErrUsernameTaken) || errors.Is(err, users.ErrEmailTaken) {
		fmt.Println("  admin already present")
		return nil
	}
	return err
}

func seedMenu(ctx context.Context, pool *pgxpool.Pool) error {
	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM products`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		fmt.Println("  products already present")
		return nil
	}
	bestBefore := time.Now().UTC().AddDate(0, 3, 0).Truncate(24 * time.Hour)
	menu := []inventory.Product{
		{Name: "Nasi Goreng", Price: 15000, Category: inventory.CategoryFood, Stock: 50, Kind: inventory.KindNonPackaged},
		{Name: "Mie Ayam", Price: 13000, Category: inventory.CategoryFood, Stock: 40, Kind: inventory.KindNonPackaged},
		{Name: "Es Teh Manis", Price: 5000, Category: inventory.CategoryDrink, Stock: 100, Kind: inventory.KindNonPackaged},
		{Name: "Air Mineral 600ml", Price: 4000, Category: inventory.CategoryDrink, Stock: 48, Kind: inventory.KindPackaged, ExpiryDate: &bestBefore},
		{Name: "Keripik Singkong", Price: 8000, Category: inventory.CategoryFood, Stock: 30, Kind: inventory.KindPackaged, ExpiryDate: &bestBefore},
	}
	repo := inventory.NewRepository(pool)
	for _, p := range menu {
		if _, err := repo.Create(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
