package tradeadapter

import "testing"

func TestParseAccount(t *testing.T) {
	t.Parallel()

	acct, err := ParseAccount(map[string]any{
		"platform":    "binance",
		"api_key":     "k",
		"secret_key":  "s",
		"passphrase":  "p",
	})
	if err != nil {
		t.Fatalf("ParseAccount: %v", err)
	}
	if acct.Platform != "binance" || acct.APIKey != "k" || acct.SecretKey != "s" || acct.Passphrase != "p" {
		t.Errorf("ParseAccount() = %+v", acct)
	}
}

func TestBinanceSignerDeterministic(t *testing.T) {
	t.Parallel()

	s := binanceSigner{apiKey: "key", secretKey: "secret"}
	sig1 := s.sign("symbol=BTCUSDT&timestamp=1")
	sig2 := s.sign("symbol=BTCUSDT&timestamp=1")
	if sig1 != sig2 {
		t.Error("expected deterministic signature for identical input")
	}
	if sig1 == "" {
		t.Error("expected non-empty signature")
	}

	sig3 := s.sign("symbol=BTCUSDT&timestamp=2")
	if sig1 == sig3 {
		t.Error("expected different signatures for different input")
	}
}

func TestOKExSignerDeterministic(t *testing.T) {
	t.Parallel()

	s := okexSigner{apiKey: "key", secretKey: "secret", passphrase: "pass"}
	sig1 := s.sign("2024-01-01T00:00:00.000Z", "GET", "/users/self/verify", "")
	sig2 := s.sign("2024-01-01T00:00:00.000Z", "GET", "/users/self/verify", "")
	if sig1 != sig2 {
		t.Error("expected deterministic signature for identical input")
	}
	if sig1 == "" {
		t.Error("expected non-empty signature")
	}
}

func TestNormalizeBinanceStatus(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"NEW":              "SUBMITTED",
		"PARTIALLY_FILLED": "PARTIAL_FILLED",
		"FILLED":           "FILLED",
		"CANCELED":         "CANCELED",
		"REJECTED":         "FAILED",
		"UNKNOWN_STATE":    "NONE",
	}
	for in, want := range cases {
		if got := string(normalizeBinanceStatus(in)); got != want {
			t.Errorf("normalizeBinanceStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeOKExStatus(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"live":             "SUBMITTED",
		"partially_filled": "PARTIAL_FILLED",
		"filled":           "FILLED",
		"canceled":         "CANCELED",
		"mmp_canceled":     "FAILED",
		"unknown":          "NONE",
	}
	for in, want := range cases {
		if got := string(normalizeOKExStatus(in)); got != want {
			t.Errorf("normalizeOKExStatus(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRateLimiterBurstForMinimumOne(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(0.5, 10, 20)
	if rl.Order.Burst() < 1 {
		t.Error("expected minimum burst of 1")
	}
}
