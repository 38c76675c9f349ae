package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/comanda-pos/api/internal/auth"
	"github.com/comanda-pos/api/internal/config"
	"github.com/comanda-pos/api/internal/database"
	"github.com/comanda-pos/api/internal/enum"
	"github.com/comanda-pos/api/internal/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	// CLI flags
	email := flag.String("email", "", "Admin email address")
	password := flag.String("password", "", "Admin password")
	name := flag.String("name", "", "Admin full name")
	demo := flag.Bool("demo", false, "Also seed demo staff, tables, stock and a menu item")
	flag.Parse()

	cfg := config.Load()
	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	// Fall back to environment variables, then defaults
	if *email == "" {
		*email = getEnv("SEED_EMAIL", "admin@comanda.local")
	}
	if *password == "" {
		*password = os.Getenv("SEED_PASSWORD")
	}
	if *password == "" {
		*password = "password123"
		log.Warn("using default password 'password123', change it before going live")
	}
	if *name == "" {
		*name = getEnv("SEED_NAME", "Admin")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("unable to connect to database", zap.Error(err))
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatal("unable to ping database", zap.Error(err))
	}
	log.Info("connected to database")

	// All or nothing
	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatal("begin transaction", zap.Error(err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	s := &seeder{tx: tx, q: database.New(tx), log: log}

	admin, err := s.user(ctx, *name, *email, *password, enum.RoleAdmin)
	if err != nil {
		log.Fatal("seed admin", zap.Error(err))
	}
	if *demo {
		if err := s.demo(ctx, *password); err != nil {
			log.Fatal("seed demo data", zap.Error(err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatal("commit", zap.Error(err))
	}

	token, err := auth.GenerateToken(cfg.JWTSecret, admin.ID, admin.Role, cfg.TokenTTL)
	if err != nil {
		log.Fatal("generate token", zap.Error(err))
	}
	log.Info("seed completed", zap.Stringer("admin_id", admin.ID))
	fmt.Println(token)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type seeder struct {
	tx  pgx.Tx
	q   *database.Queries
	log *zap.Logger
}

// user creates the account or updates its name and role. An existing
// password is never overwritten.
func (s *seeder) user(ctx context.Context, name, email, password, role string) (database.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return database.User{}, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.q.UpsertUser(ctx, database.UpsertUserParams{
		Name:         name,
		Email:        email,
		PasswordHash: string(hashed),
		Role:         role,
	})
	if err != nil {
		return database.User{}, fmt.Errorf("upsert user %s: %w", email, err)
	}
	s.log.Info("user ready", zap.String("email", email), zap.String("role", role), zap.Stringer("id", u.ID))
	return u, nil
}

func (s *seeder) demo(ctx context.Context, password string) error {
	staff := []struct{ name, email, role string }{
		{"Mozo Demo", "mozo@comanda.local", enum.RoleWaiter},
		{"Cocina Demo", "cocina@comanda.local", enum.RoleKitchen},
		{"Caja Demo", "caja@comanda.local", enum.RoleCashier},
		{"Encargado Demo", "encargado@comanda.local", enum.RoleManager},
	}
	for _, st := range staff {
		if _, err := s.user(ctx, st.name, st.email, password, st.role); err != nil {
			return err
		}
	}

	areaID, err := s.findOrCreate(ctx,
		`SELECT id FROM areas WHERE name = $1`,
		`INSERT INTO areas (name, sort_order) VALUES ($1, 1) RETURNING id`,
		[]any{"Salón"})
	if err != nil {
		return fmt.Errorf("area: %w", err)
	}
	for i := 1; i <= 8; i++ {
		label := fmt.Sprintf("M%d", i)
		if _, err := s.findOrCreate(ctx,
			`SELECT id FROM dining_tables WHERE label = $1`,
			`INSERT INTO dining_tables (label, area_id) VALUES ($1, $2) RETURNING id`,
			[]any{label}, areaID); err != nil {
			return fmt.Errorf("table %s: %w", label, err)
		}
	}

	ingredients := []struct {
		sku, name, unit string
		stock, min      string
		cost            string
	}{
		{"CARNE-NALGA", "Nalga", "g", "10000", "2000", "0.0120"},
		{"PAN-RALLADO", "Pan rallado", "g", "5000", "1000", "0.0030"},
		{"HUEVO", "Huevo", "unidad", "60", "12", "0.1800"},
		{"PAPA", "Papa", "g", "20000", "5000", "0.0015"},
		{"ACEITE", "Aceite", "ml", "10000", "2000", "0.0025"},
	}
	ids := make(map[string]uuid.UUID, len(ingredients))
	for _, in := range ingredients {
		id, err := s.findOrCreate(ctx,
			`SELECT id FROM ingredients WHERE sku = $1`,
			`INSERT INTO ingredients (sku, name, unit, stock_qty, min_qty, cost_per_unit)
			 VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric) RETURNING id`,
			[]any{in.sku}, in.name, in.unit, in.stock, in.min, in.cost)
		if err != nil {
			return fmt.Errorf("ingredient %s: %w", in.sku, err)
		}
		ids[in.sku] = id
	}

	productID, err := s.findOrCreate(ctx,
		`SELECT id FROM products WHERE name = $1`,
		`INSERT INTO products (name, price, station) VALUES ($1, 9500, $2) RETURNING id`,
		[]any{"Milanesa napolitana"}, enum.StationKitchen)
	if err != nil {
		return fmt.Errorf("product: %w", err)
	}
	groupID, err := s.findOrCreate(ctx,
		`SELECT id FROM modifier_groups WHERE product_id = $1 AND name = $2`,
		`INSERT INTO modifier_groups (product_id, name) VALUES ($1, $2) RETURNING id`,
		[]any{productID, "Guarnición"})
	if err != nil {
		return fmt.Errorf("modifier group: %w", err)
	}
	for _, opt := range []struct{ name, delta string }{{"Papas fritas", "0"}, {"Puré", "0"}, {"Ensalada", "800"}} {
		if _, err := s.findOrCreate(ctx,
			`SELECT id FROM modifier_options WHERE group_id = $1 AND name = $2`,
			`INSERT INTO modifier_options (group_id, name, price_delta) VALUES ($1, $2, $3::numeric) RETURNING id`,
			[]any{groupID, opt.name}, opt.delta); err != nil {
			return fmt.Errorf("modifier option %s: %w", opt.name, err)
		}
	}

	recipe := []struct {
		sku, qty, waste string
	}{
		{"CARNE-NALGA", "250", "0.05"},
		{"PAN-RALLADO", "60", "0"},
		{"HUEVO", "1", "0"},
		{"PAPA", "300", "0.10"},
		{"ACEITE", "80", "0"},
	}
	for _, l := range recipe {
		_, err := s.tx.Exec(ctx,
			`INSERT INTO product_ingredients (product_id, ingredient_id, qty_per_unit, waste_factor)
			 VALUES ($1, $2, $3::numeric, $4::numeric)
			 ON CONFLICT (product_id, ingredient_id) DO NOTHING`,
			productID, ids[l.sku], l.qty, l.waste)
		if err != nil {
			return fmt.Errorf("recipe line %s: %w", l.sku, err)
		}
	}

	s.log.Info("demo data ready", zap.Stringer("product_id", productID))
	return nil
}

// findOrCreate returns the id found by lookup with key, or inserts with key
// followed by extra.
func (s *seeder) findOrCreate(ctx context.Context, lookup, insert string, key []any, extra ...any) (uuid.UUID, error) {
	var id uuid.UUID
	err := s.tx.QueryRow(ctx, lookup, key...).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("lookup: %w", err)
	}
	if err := s.tx.QueryRow(ctx, insert, append(key, extra...)...).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("insert: %w", err)
	}
	return id, nil
}
