package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sudo-init-do/agrihub/internal/config"
	"github.com/sudo-init-do/agrihub/internal/db"
	"github.com/sudo-init-do/agrihub/internal/escrow"
	"github.com/sudo-init-do/agrihub/internal/marketplace"
	"github.com/sudo-init-do/agrihub/internal/negotiation"
	"github.com/sudo-init-do/agrihub/internal/store"
	"github.com/sudo-init-do/agrihub/internal/workitem"
)

// report is everything stored about one work item.
type report struct {
	Negotiation *negotiation.View    `json:"negotiation,omitempty"`
	Payment     *escrow.Payment      `json:"payment,omitempty"`
	Dispute     *marketplace.Dispute `json:"dispute,omitempty"`
	Rating      *marketplace.Rating  `json:"rating,omitempty"`
}

func main() {
	cfgFile := flag.String("config", "", "configuration file path")
	categoryName := flag.String("category", "", "labour or machine")
	id := flag.String("id", "", "work item id")
	flag.Parse()

	if *id == "" || *categoryName == "" {
		log.Fatalf("usage: go run cmd/adminutil/negotiation_report/main.go -category labour -id 42")
	}
	category, err := workitem.ParseCategory(*categoryName)
	if err != nil {
		log.Fatalf("%v", err)
	}

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()
	var st store.Store
	switch cfg.Store.Backend {
	case config.StorePostgres:
		pool, err := db.Init(ctx, cfg.Database)
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		defer pool.Close()
		st = store.NewPostgres(pool)
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		defer client.Close()
		st = store.NewRedis(client)
	default:
		log.Fatalf("store backend %q keeps nothing between runs", cfg.Store.Backend)
	}

	policy := negotiation.Policy{
		MaxRounds:    cfg.Negotiation.MaxRounds,
		ExpiryWindow: cfg.Negotiation.ExpiryWindow,
		FairLow:      cfg.Negotiation.FairLow,
		FairHigh:     cfg.Negotiation.FairHigh,
	}

	var r report
	var n negotiation.Negotiation
	if found, err := read(ctx, st, negotiation.Key(category, *id), &n); err != nil {
		log.Fatalf("%v", err)
	} else if found {
		view := policy.View(n, time.Now())
		r.Negotiation = &view
	}
	var p escrow.Payment
	if found, err := read(ctx, st, escrow.Key(escrow.FlowFor(category), *id), &p); err != nil {
		log.Fatalf("%v", err)
	} else if found {
		r.Payment = &p
	}
	var d marketplace.Dispute
	if found, err := read(ctx, st, marketplace.DisputeKey(*id), &d); err != nil {
		log.Fatalf("%v", err)
	} else if found {
		r.Dispute = &d
	}
	var rating marketplace.Rating
	if found, err := read(ctx, st, marketplace.RatingKey(category, *id), &rating); err != nil {
		log.Fatalf("%v", err)
	} else if found {
		r.Rating = &rating
	}

	if r == (report{}) {
		log.Fatalf("nothing stored for %s %s", category, *id)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		log.Fatalf("failed to print report: %v", err)
	}
}

func read(ctx context.Context, st store.Store, key string, out interface{}) (bool, error) {
	rec, err := st.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if err := json.Unmarshal(rec.Data, out); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}
