// Command probe loads one portal result page, live or from a saved HTML
// file, and prints the listing records parsed from it. With -db the records
// are also committed to a local SQLite store.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"emlak-aggregator/internal/config"
	"emlak-aggregator/internal/database"
	"emlak-aggregator/internal/dom"
	"emlak-aggregator/internal/logging"
	"emlak-aggregator/internal/models"
	"emlak-aggregator/internal/parser"
	"emlak-aggregator/internal/scraper"
	"emlak-aggregator/internal/sites"
)

type report struct {
	URL          string          `json:"url"`
	Pages        int             `json:"pages"`
	ListingCount int             `json:"listing_count"`
	Empty        bool            `json:"empty"`
	Districts    []string        `json:"districts,omitempty"`
	Records      []parser.Record `json:"records"`
	Stored       *storeReport    `json:"stored,omitempty"`
}

type storeReport struct {
	SessionID uint `json:"session_id"`
	Created   int  `json:"created"`
	Updated   int  `json:"updated"`
	Unchanged int  `json:"unchanged"`
}

func main() {
	var (
		portal      = flag.String("portal", "hepsiemlak", "portal: hepsiemlak or emlakjet")
		category    = flag.String("category", "residence", "listing category")
		listingType = flag.String("type", "for-sale", "listing type: for-sale or for-rent")
		url         = flag.String("url", "", "result page url (required)")
		file        = flag.String("file", "", "serve the page from this HTML file instead of a browser")
		dbPath      = flag.String("db", "", "commit the records to this SQLite file")
		timeout     = flag.Duration("timeout", 2*time.Minute, "overall timeout")
	)
	flag.Parse()
	if *url == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger, closeLog, err := logging.New(cfg.Logging, os.Stderr)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer closeLog()

	p, err := parser.ParsePortal(*portal)
	if err != nil {
		log.Fatal(err)
	}
	cat, err := parser.ParseCategory(*category)
	if err != nil {
		log.Fatal(err)
	}
	lt, err := parser.ParseListingType(*listingType)
	if err != nil {
		log.Fatal(err)
	}
	adapter, err := sites.ForPortal(p)
	if err != nil {
		log.Fatal(err)
	}
	cardParser, err := adapter.Parser(cat)
	if err != nil {
		log.Fatal(err)
	}

	factory := dom.ChromeFactory(dom.ChromeOptions{
		Headless:        cfg.Scraper.Headless,
		DisableImages:   cfg.Scraper.DisableImages,
		UserAgent:       cfg.Scraper.UserAgent,
		ChromePath:      cfg.Scraper.ChromePath,
		PageLoadTimeout: cfg.Scraper.GetPageLoadTimeout(),
		Logger:          logger,
	})
	if *file != "" {
		replay, err := dom.ReplayFile(*url, *file)
		if err != nil {
			log.Fatal(err)
		}
		factory = func(context.Context) (dom.Driver, error) { return replay, nil }
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	q := sites.Query{ListingType: lt, Category: cat}
	out := report{URL: *url}
	err = dom.WithSession(ctx, factory, func(d dom.Driver) error {
		page, err := dom.Load(ctx, d, *url, adapter.ReadySelector(), cfg.Scraper.GetElementWaitTimeout())
		if err != nil {
			return err
		}
		out.Pages = adapter.DiscoverPagination(page)
		out.ListingCount = adapter.DiscoverListingCount(page)
		out.Empty = adapter.IsEmpty(page)
		out.Districts = adapter.Districts(page)
		out.Records = scraper.Extract(adapter, cardParser, page, q)
		return nil
	})
	if err != nil {
		log.Fatalf("Failed to load %s: %v", *url, err)
	}
	logger.Info("page parsed", "url", *url, "records", len(out.Records), "pages", out.Pages)

	if *dbPath != "" {
		out.Stored, err = store(ctx, *dbPath, p, cat, lt, out.Records)
		if err != nil {
			log.Fatalf("Failed to store records: %v", err)
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		log.Fatal(err)
	}
}

func store(ctx context.Context, path string, p parser.Portal, c parser.Category, lt parser.ListingType, records []parser.Record) (*storeReport, error) {
	s, err := database.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	session, _, err := s.StartSession(ctx, database.SessionParams{
		TaskID:      "probe-" + uuid.NewString(),
		Platform:    string(p),
		Category:    string(c),
		ListingType: string(lt),
	})
	if err != nil {
		return nil, err
	}
	stats, err := s.CommitPage(ctx, session.ID, records)
	if err != nil {
		s.FinalizeSession(ctx, session.ID, models.SessionStatusFailed, err.Error())
		return nil, err
	}
	if _, err := s.FinalizeSession(ctx, session.ID, models.SessionStatusCompleted, ""); err != nil {
		return nil, fmt.Errorf("failed to finalize session: %w", err)
	}
	return &storeReport{
		SessionID: session.ID,
		Created:   stats.Created,
		Updated:   stats.Updated,
		Unchanged: stats.Unchanged,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
