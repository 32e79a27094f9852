package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/KaramelBytes/crimescope-cli/internal/dataset"
)

func sample() *dataset.Dataset {
	return dataset.New("store-test", []dataset.Record{
		{Year: 2005, Region: "Alameda", Category: "Violent crime total", Count: 800, Rate: dataset.Float(150)},
		{Year: 2005, Region: "Alameda", Category: "Robbery", Count: 90},
	})
}

func TestRowsRoundTripKeepsNullRate(t *testing.T) {
	at := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	rows := ToRows("x", sample().Records(), at)
	if len(rows) != 2 || rows[0].Dataset != "x" || !rows[0].LoadedAt.Equal(at) {
		t.Fatalf("unexpected rows %+v", rows)
	}
	if rows[1].Rate != nil {
		t.Fatalf("missing rate must stay NULL")
	}
	ds := FromRows("x", rows)
	r, err := ds.Lookup(2005, "Alameda", "Violent crime total")
	if err != nil || r.RateValue() != 150 || r.Count != 800 {
		t.Fatalf("unexpected lookup %+v %v", r, err)
	}
}

func TestPostgresImportAndLoad(t *testing.T) {
	dsn := os.Getenv("CRIMESCOPE_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("CRIMESCOPE_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := Connect(dsn, false)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	ds := sample()
	for i := 0; i < 2; i++ {
		n, err := Import(ctx, db, ds, true)
		if err != nil || n != 2 {
			t.Fatalf("import: %d %v", n, err)
		}
	}
	back, err := Load(ctx, db, ds.Name())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if back.Len() != 2 {
		t.Fatalf("replace import duplicated rows: %d", back.Len())
	}
	names, err := Datasets(ctx, db)
	if err != nil || names[ds.Name()] != 2 {
		t.Fatalf("unexpected dataset listing %v %v", names, err)
	}
	if _, err := Load(ctx, db, "does-not-exist"); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}
