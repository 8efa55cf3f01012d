package repository

import (
	"context"
	"math/rand"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"netfinder/internal/dataset"
	"netfinder/internal/model"
)

// newTestPostgres connects to the database named by NETFINDER_TEST_POSTGRES_URL.
// The network_ranges table in that database is overwritten.
func newTestPostgres(t *testing.T) *PostgresRepository {
	t.Helper()

	url := os.Getenv("NETFINDER_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("NETFINDER_TEST_POSTGRES_URL not set")
	}

	db, err := sqlx.Connect("postgres", url)
	if err != nil {
		t.Fatal(err)
	}
	repo := NewPostgresRepository(db, zap.NewNop())
	t.Cleanup(func() { repo.Close() })

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	return repo
}

func TestPostgresRepository_FindRange(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()

	ranges := []model.NetworkRange{
		{Seq: 0, Network: "size-65536", MinIP: 0x01000000, MaxIP: 0x0100FFFF, ASN: "AS1", Organization: "Wide", Country: "US"},
		{Seq: 1, Network: "size-256", MinIP: 0x01000000, MaxIP: 0x010000FF, ASN: "AS2", Organization: "Narrow", Country: "US"},
		{Seq: 2, Network: "first", MinIP: 100, MaxIP: 199, ASN: "AS3", Organization: "First", Country: "IT"},
		{Seq: 3, Network: "second", MinIP: 150, MaxIP: 249, ASN: "AS4", Organization: "Second", Country: "IT"},
	}
	if err := repo.SaveRanges(ctx, ranges); err != nil {
		t.Fatal(err)
	}

	count, err := repo.GetRangesCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != int64(len(ranges)) {
		t.Errorf("expected %d ranges, got %d", len(ranges), count)
	}

	tests := []struct {
		name     string
		ip       uint32
		expected string
	}{
		{name: "nested prefers narrow", ip: 0x01000001, expected: "size-256"},
		{name: "outside narrow", ip: 0x01000100, expected: "size-65536"},
		{name: "equal size tie goes to earlier row", ip: 150, expected: "first"},
		{name: "after first", ip: 200, expected: "second"},
		{name: "no match", ip: 99},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.FindRange(ctx, tt.ip)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.expected == "" {
				if got != nil {
					t.Errorf("expected no match, got %+v", got)
				}
				return
			}
			if got == nil || got.Network != tt.expected {
				t.Errorf("expected %s, got %+v", tt.expected, got)
			}
		})
	}
}

func TestPostgresRepository_MatchesIndex(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()

	rnd := rand.New(rand.NewSource(1))
	var ranges []model.NetworkRange
	for i := 0; i < 200; i++ {
		minIP := uint64(rnd.Intn(5000))
		ranges = append(ranges, model.NetworkRange{
			Seq:     int64(i),
			Network: "r",
			MinIP:   minIP,
			MaxIP:   minIP + uint64(rnd.Intn(300)),
			Country: "XX",
		})
	}
	if err := repo.SaveRanges(ctx, ranges); err != nil {
		t.Fatal(err)
	}
	index := dataset.NewIndex(ranges)

	for ip := uint32(0); ip < 5400; ip += 7 {
		expected, ok := index.Find(uint64(ip))
		got, err := repo.FindRange(ctx, ip)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			if got != nil {
				t.Errorf("ip %d: expected no match, got seq %d", ip, got.Seq)
			}
			continue
		}
		if got == nil || got.Seq != expected.Seq {
			t.Errorf("ip %d: expected seq %d, got %+v", ip, expected.Seq, got)
		}
	}
}

func TestPostgresRepository_Version(t *testing.T) {
	repo := newTestPostgres(t)
	ctx := context.Background()

	ranges := []model.NetworkRange{
		{Seq: 0, Network: "1.0.0.0/24", MinIP: 16777216, MaxIP: 16777471, ASN: "AS13335", Organization: "Cloudflare", Country: "US"},
	}
	if err := repo.SaveRanges(ctx, ranges); err != nil {
		t.Fatal(err)
	}
	first, err := repo.Version(ctx)
	if err != nil {
		t.Fatal(err)
	}

	ranges[0].Organization = "Cloudflare Inc"
	if err := repo.SaveRanges(ctx, ranges); err != nil {
		t.Fatal(err)
	}
	second, err := repo.Version(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if first == second {
		t.Errorf("expected version to change with the table content, both were %s", first)
	}
}
