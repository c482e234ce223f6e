// Command seed fills a development database with demo municipalities.
package main

import (
	"context"
	"flag"
	"log"

	"mmuni/internal/config"
	"mmuni/internal/database"
	"mmuni/internal/seed"
)

func main() {
	opts := seed.DefaultOptions
	flag.IntVar(&opts.Municipalities, "muns", opts.Municipalities, "Number of municipalities to create")
	flag.IntVar(&opts.Objects, "objects", opts.Objects, "Objects of each type per municipality")
	flag.IntVar(&opts.CommentsPerObject, "comments", opts.CommentsPerObject, "Comments per object")
	flag.IntVar(&opts.Documents, "docs", opts.Documents, "Documents per municipality")
	flag.IntVar(&opts.UsersPerMun, "users", opts.UsersPerMun, "Profiles per municipality")
	flag.BoolVar(&opts.Clean, "clean", true, "Clean database before seeding")
	flag.BoolVar(&opts.DryRun, "dry-run", false, "Generate without writing")
	flag.Int64Var(&opts.Seed, "seed", 0, "Random seed (0 picks one)")
	migrate := flag.Bool("migrate", true, "Create missing tables first")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close(db) }()

	if *migrate {
		if err := database.Migrate(cfg, db); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
	}

	sum, err := seed.Seed(context.Background(), db, opts)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Printf("Seeded %d municipalities, %d profiles, %d objects, %d comments, %d documents, %d config rows",
		sum.Municipalities, sum.Users, sum.Objects, sum.Comments, sum.Documents, sum.Configs)
}
