package config

import "testing"

func validConfig() Config {
	return Config{
		DataDir:      "/tmp/data",
		ChainIDHex:   "aa11",
		LogLevel:     "info",
		BaseOpsPrice: 1,
		OpsBudget:    1000,
	}
}

func TestValidate_AcceptsDefaultConfigWithChainID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChainIDHex = "deadbeef"
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_RejectsEmptyDataDir(t *testing.T) {
	cfg := validConfig()
	cfg.DataDir = "   "
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for empty data_dir")
	}
}

func TestValidate_RejectsEmptyChainID(t *testing.T) {
	cfg := validConfig()
	cfg.ChainIDHex = ""
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for empty chain_id_hex")
	}
}

func TestValidate_RejectsInvalidLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.LogLevel = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for invalid log_level")
	}
}

func TestValidate_AcceptsUppercaseLogLevel(t *testing.T) {
	cfg := validConfig()
	cfg.LogLevel = "WARN"
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_RejectsZeroBaseOpsPrice(t *testing.T) {
	cfg := validConfig()
	cfg.BaseOpsPrice = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for zero base_ops_price")
	}
}

func TestValidate_RejectsZeroOpsBudget(t *testing.T) {
	cfg := validConfig()
	cfg.OpsBudget = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for zero external_ops_budget")
	}
}

func TestDefaultDataDir_NonEmpty(t *testing.T) {
	if DefaultDataDir() == "" {
		t.Fatalf("expected non-empty default data dir")
	}
}
