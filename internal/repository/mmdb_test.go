package repository

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/maxmind/mmdbwriter"
	"github.com/maxmind/mmdbwriter/mmdbtype"
	"go.uber.org/zap"

	"netfinder/internal/model"
)

type asnFixture struct {
	network      string
	asn          uint32
	organization string
}

func writeMMDB(t *testing.T, dbType string, records []asnFixture) string {
	t.Helper()

	tree, err := mmdbwriter.New(mmdbwriter.Options{
		DatabaseType: dbType,
		IPVersion:    4,
		RecordSize:   24,
	})
	if err != nil {
		t.Fatal(err)
	}

	for _, r := range records {
		_, network, err := net.ParseCIDR(r.network)
		if err != nil {
			t.Fatal(err)
		}
		err = tree.Insert(network, mmdbtype.Map{
			"autonomous_system_number":       mmdbtype.Uint32(r.asn),
			"autonomous_system_organization": mmdbtype.String(r.organization),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	path := filepath.Join(t.TempDir(), "asn.mmdb")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := tree.WriteTo(f); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMMDBRepository_FindRange(t *testing.T) {
	path := writeMMDB(t, "GeoLite2-ASN", []asnFixture{
		{network: "1.0.0.0/24", asn: 13335, organization: "Cloudflare"},
		{network: "8.8.8.0/24", asn: 15169, organization: "Google LLC"},
	})

	repo, err := OpenMMDB(path, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer repo.Close()

	if !repo.ConcurrentSafe() {
		t.Error("expected mmdb reader to be safe for concurrent use")
	}

	tests := []struct {
		name     string
		ip       uint32
		expected *model.NetworkRange
	}{
		{
			name: "cloudflare",
			ip:   16777217, // 1.0.0.1
			expected: &model.NetworkRange{
				Network: "1.0.0.0/24", MinIP: 16777216, MaxIP: 16777471,
				ASN: "AS13335", Organization: "Cloudflare", Country: model.UnknownCountry,
			},
		},
		{
			name: "google",
			ip:   134744072, // 8.8.8.8
			expected: &model.NetworkRange{
				Network: "8.8.8.0/24", MinIP: 134744064, MaxIP: 134744319,
				ASN: "AS15169", Organization: "Google LLC", Country: model.UnknownCountry,
			},
		},
		{
			name: "not found",
			ip:   151587081, // 9.9.9.9
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.FindRange(context.Background(), tt.ip)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.expected == nil {
				if got != nil {
					t.Errorf("expected no match, got %+v", got)
				}
				return
			}
			if got == nil || *got != *tt.expected {
				t.Errorf("expected %+v, got %+v", tt.expected, got)
			}
		})
	}
}

func TestOpenMMDB_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{
			name: "missing file",
			path: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "missing.mmdb")
			},
		},
		{
			name: "wrong database type",
			path: func(t *testing.T) string {
				return writeMMDB(t, "GeoIP2-City", []asnFixture{
					{network: "1.0.0.0/24", asn: 13335, organization: "Cloudflare"},
				})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OpenMMDB(tt.path(t), zap.NewNop())
			if !errors.Is(err, model.ErrConfiguration) {
				t.Errorf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}
