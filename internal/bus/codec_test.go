package bus

import "testing"

func TestPayloadCodecRoundTrip(t *testing.T) {
	t.Parallel()

	compact := []byte(`{"p":"binance","s":"BTC/USDT"}`)
	data, err := encodePayload("EventOrderbook", compact)
	if err != nil {
		t.Fatalf("encodePayload: %v", err)
	}

	name, d, err := decodePayload(data)
	if err != nil {
		t.Fatalf("decodePayload: %v", err)
	}
	if name != "EventOrderbook" {
		t.Errorf("name = %q, want EventOrderbook", name)
	}
	if string(d) != string(compact) {
		t.Errorf("data = %s, want %s", d, compact)
	}
}

func TestDecodePayloadRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, _, err := decodePayload([]byte("not zlib data")); err == nil {
		t.Fatal("expected error decoding garbage")
	}
}
