package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/raine/tradefeed/internal/config"
	"github.com/raine/tradefeed/internal/storage"
)

func main() {
	config.LoadEnvFile()

	query := flag.String("q", "", "Search term (brand, size, product type, description or vendor name)")
	page := flag.Int("page", 1, "Page number (1-indexed)")
	limit := flag.Int("limit", storage.DefaultSearchLimit, "Results per page")
	dbPath := flag.String("db", os.Getenv("DATABASE_PATH"), "Path to the tradefeed database")
	rawJSON := flag.Bool("json", false, "Output raw JSON only")
	flag.Parse()

	if *dbPath == "" {
		*dbPath = "tradefeed.db"
	}

	store, err := storage.NewSQLiteStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	results, err := store.SearchListings(ctx, storage.SearchQuery{Term: *query, Page: *page, Limit: *limit})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *rawJSON {
		jsonBytes, _ := json.MarshalIndent(results, "", "  ")
		fmt.Println(string(jsonBytes))
		return
	}

	fmt.Printf("Found %d results (page %d, total: %d)\n\n", len(results.Listings), results.Page, results.Total)

	for i, l := range results.Listings {
		intent := "WTS"
		if l.IsWTB {
			intent = "WTB"
		}
		price := "N/A"
		if l.Price > 0 {
			price = fmt.Sprintf("%.2f %s", l.Price, l.Currency)
		}
		fmt.Printf("%d. [%s] %s %s (size %s) - %s\n", (results.Page-1)*results.Limit+i+1, intent, l.Brand, l.ProductType, l.Size, price)
		fmt.Printf("   %s\n", l.Description)
		fmt.Printf("   %s in %s, %s, %d images\n", l.VendorName, l.GroupName, l.CreatedAt.Format(time.DateTime), len(l.ImageURLs))
	}
}
