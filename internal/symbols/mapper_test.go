package symbols

import "testing"

func TestToBinance(t *testing.T) {
	cases := map[string]string{
		"BTC-USD":  "BTCUSDT",
		"btcusdt":  "BTCUSDT",
		"XBT/USD":  "BTCUSDT",
		"ETHUSDT":  "ETHUSDT",
		"sol-usdt": "SOLUSDT",
	}
	for in, want := range cases {
		if got := ToBinance(in); got != want {
			t.Errorf("ToBinance(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestToYahoo(t *testing.T) {
	if got := ToYahoo("SPX"); got != "^GSPC" {
		t.Errorf("ToYahoo(SPX) = %q", got)
	}
	if got := ToYahoo("RELIANCE.NS"); got != "RELIANCE.NS" {
		t.Errorf("ToYahoo(RELIANCE.NS) = %q", got)
	}
}

func TestFilename(t *testing.T) {
	if got := Filename("RELIANCE.NS"); got != "RELIANCE_NS" {
		t.Errorf("Filename(RELIANCE.NS) = %q", got)
	}
	if got := Filename("BTC-USD"); got != "BTC_USD" {
		t.Errorf("Filename(BTC-USD) = %q", got)
	}
}
