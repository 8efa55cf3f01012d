package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestFetchService_FetchDataset(t *testing.T) {
	tests := []struct {
		name          string
		response      string
		responseCode  int
		expectedLines int
		expectedError bool
	}{
		{
			name: "valid response",
			response: `network,min_ip,max_ip,asn,organization,country
1.0.0.0/24,16777216,16777471,AS13335,Cloudflare,US`,
			responseCode:  http.StatusOK,
			expectedLines: 2,
		},
		{
			name:          "server error",
			responseCode:  http.StatusInternalServerError,
			expectedError: true,
		},
		{
			name:          "not a dataset",
			response:      "<html>maintenance</html>",
			responseCode:  http.StatusOK,
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var requests int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&requests, 1)
				w.WriteHeader(tt.responseCode)
				w.Write([]byte(tt.response))
			}))
			defer server.Close()

			logger, _ := zap.NewDevelopment()
			service := NewFetchService(logger)
			service.retryDelay = time.Millisecond

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			dest := filepath.Join(t.TempDir(), "data", "networks.csv")
			stats, err := service.FetchDataset(ctx, server.URL, dest)

			if tt.expectedError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				if got := atomic.LoadInt32(&requests); got != 3 {
					t.Errorf("expected 3 attempts, got %d", got)
				}
				if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
					t.Errorf("expected no dataset file after failure, got %v", statErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if stats.Lines != tt.expectedLines {
				t.Errorf("expected %d lines, got %d", tt.expectedLines, stats.Lines)
			}

			data, err := os.ReadFile(dest)
			if err != nil {
				t.Fatal(err)
			}
			if string(data) != tt.response+"\n" {
				t.Errorf("unexpected file content %q", data)
			}
		})
	}
}
