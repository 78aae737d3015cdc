package config

import (
	"testing"
	"time"

	"github.com/recircle/rewards/internal/policy"
)

func TestParseSplit(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    policy.Config
		wantErr bool
	}{
		{
			name: "default pair",
			raw:  "user:70,app:30",
			want: policy.Config{{Role: "user", Percent: 70}, {Role: "app", Percent: 30}},
		},
		{
			name: "three way with spaces",
			raw:  " user:70 , app:15 , creator:15 ",
			want: policy.Config{
				{Role: "user", Percent: 70},
				{Role: "app", Percent: 15},
				{Role: "creator", Percent: 15},
			},
		},
		{
			name:    "missing percent",
			raw:     "user:70,app",
			wantErr: true,
		},
		{
			name:    "non-numeric percent",
			raw:     "user:seventy",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSplit(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseSplit() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d shares, want %d", len(got), len(tt.want))
			}
			for i, share := range got {
				if share != tt.want[i] {
					t.Errorf("share[%d] = %+v, want %+v", i, share, tt.want[i])
				}
			}
		})
	}
}

func TestParseFunds(t *testing.T) {
	funds, err := parseFunds("app=0x1111111111111111111111111111111111111111, creator=0x2222222222222222222222222222222222222222")
	if err != nil {
		t.Fatalf("parseFunds() error = %v", err)
	}
	if len(funds) != 2 {
		t.Fatalf("got %d funds, want 2", len(funds))
	}
	if funds["creator"] != "0x2222222222222222222222222222222222222222" {
		t.Errorf("creator address = %s", funds["creator"])
	}

	if _, err := parseFunds("app:0x1111111111111111111111111111111111111111"); err == nil {
		t.Error("expected error for missing = separator")
	}

	empty, err := parseFunds("")
	if err != nil {
		t.Fatalf("parseFunds(\"\") error = %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty map, got %v", empty)
	}
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:       "8080",
			AuthSecret: "secret",
			TokenTTL:   time.Hour,
		},
		Distributor: DistributorConfig{PrivateKey: "aa"},
		Rewards: RewardsConfig{
			Split: policy.Config{{Role: "user", Percent: 70}, {Role: "app", Percent: 30}},
			FundAddresses: map[string]string{
				"app": "0x1111111111111111111111111111111111111111",
			},
			TokenDecimals: 18,
		},
		Database: DatabaseConfig{Path: "./test.db"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "missing auth secret",
			mutate:  func(c *Config) { c.Server.AuthSecret = "" },
			wantErr: true,
		},
		{
			name:    "missing distributor key",
			mutate:  func(c *Config) { c.Distributor.PrivateKey = "" },
			wantErr: true,
		},
		{
			name:    "decimals out of range",
			mutate:  func(c *Config) { c.Rewards.TokenDecimals = 31 },
			wantErr: true,
		},
		{
			name:    "split does not sum to 100",
			mutate:  func(c *Config) { c.Rewards.Split[1].Percent = 40 },
			wantErr: true,
		},
		{
			name:    "missing fund address for role",
			mutate:  func(c *Config) { delete(c.Rewards.FundAddresses, "app") },
			wantErr: true,
		},
		{
			name:    "malformed fund address",
			mutate:  func(c *Config) { c.Rewards.FundAddresses["app"] = "not-an-address" },
			wantErr: true,
		},
		{
			name: "duplicate fund addresses",
			mutate: func(c *Config) {
				c.Rewards.Split = policy.Config{
					{Role: "user", Percent: 70},
					{Role: "app", Percent: 15},
					{Role: "creator", Percent: 15},
				}
				c.Rewards.FundAddresses["creator"] = "0x1111111111111111111111111111111111111111"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}
