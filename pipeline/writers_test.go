package pipeline

import (
	"bufio"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-chocolate/models"
)

func sampleProducts() []*models.Product {
	name := "Dark Chocolate Bar"
	scrapedAt := time.Date(2025, 11, 4, 13, 9, 13, 0, time.UTC)
	return []*models.Product{
		{
			Name:      &name,
			Price:     "4.50",
			URL:       "/products/dark-bar",
			PageURL:   "https://www.chocolate.co.uk/collections/all",
			ScrapedAt: scrapedAt,
		},
		{
			Price:     "2.00",
			URL:       "/products/mystery",
			PageURL:   "https://www.chocolate.co.uk/collections/all",
			ScrapedAt: scrapedAt,
		},
	}
}

func TestCSVWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Validate(); err == nil {
		t.Fatalf("header-only csv should not validate")
	}
	if err := writer.Write(sampleProducts()); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records=%d, want 3", len(records))
	}
	if strings.Join(records[0], ",") != "name,price,url,page_url,scraped_at" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[1][0] != "Dark Chocolate Bar" || records[1][1] != "4.50" || records[1][2] != "/products/dark-bar" {
		t.Fatalf("unexpected first row: %v", records[1])
	}
	if records[2][0] != "" {
		t.Fatalf("absent name should be an empty field, got %q", records[2][0])
	}
}

func TestJSONWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := writer.Write(sampleProducts()); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var decoded map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		lines = append(lines, decoded)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan json: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("json lines=%d, want 2", len(lines))
	}
	if lines[0]["name"] != "Dark Chocolate Bar" {
		t.Fatalf("name = %v", lines[0]["name"])
	}
	if name, ok := lines[1]["name"]; !ok || name != nil {
		t.Fatalf("absent name should encode as null, got %v (present=%v)", name, ok)
	}
}

func TestDualWriterWrite(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "products.csv")
	jsonPath := filepath.Join(dir, "products.jsonl")

	writer, err := NewDualWriter(csvPath, jsonPath)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}
	if err := writer.Write(sampleProducts()); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate dual: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}

	if info, err := os.Stat(csvPath); err != nil || info.Size() == 0 {
		t.Fatalf("csv file missing or empty")
	}
	if info, err := os.Stat(jsonPath); err != nil || info.Size() == 0 {
		t.Fatalf("json file missing or empty")
	}
}

func TestNewMultiWriterMismatchedNames(t *testing.T) {
	if _, err := NewMultiWriter([]string{"a"}); err == nil {
		t.Fatalf("expected error for names without writers")
	}
}

func TestSQLiteWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db", "products.db")

	writer, err := NewSQLiteWriter(path)
	if err != nil {
		t.Fatalf("create sqlite writer: %v", err)
	}
	if err := writer.Validate(); err == nil {
		t.Fatalf("empty database should not validate")
	}
	if err := writer.Write(sampleProducts()); err != nil {
		t.Fatalf("write sqlite: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate sqlite: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close sqlite: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen sqlite: %v", err)
	}
	defer db.Close()

	rows, err := db.Query("SELECT name, price, url FROM products ORDER BY id")
	if err != nil {
		t.Fatalf("query products: %v", err)
	}
	defer rows.Close()

	var got []string
	var names []sql.NullString
	for rows.Next() {
		var name sql.NullString
		var price, url string
		if err := rows.Scan(&name, &price, &url); err != nil {
			t.Fatalf("scan: %v", err)
		}
		names = append(names, name)
		got = append(got, price+" "+url)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}

	if len(got) != 2 || got[0] != "4.50 /products/dark-bar" || got[1] != "2.00 /products/mystery" {
		t.Fatalf("rows = %v", got)
	}
	if !names[0].Valid || names[0].String != "Dark Chocolate Bar" {
		t.Fatalf("first name = %+v", names[0])
	}
	if names[1].Valid {
		t.Fatalf("absent name should be NULL, got %q", names[1].String)
	}
}

func TestSQLiteWriterStoresIncompleteRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.db")
	writer, err := NewSQLiteWriter(path)
	if err != nil {
		t.Fatalf("create sqlite writer: %v", err)
	}
	incomplete := &models.Product{PageURL: "https://www.chocolate.co.uk/collections/all", ScrapedAt: time.Now()}
	if err := writer.Write([]*models.Product{incomplete}); err != nil {
		t.Fatalf("write incomplete record: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
