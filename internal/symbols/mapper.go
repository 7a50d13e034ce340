package symbols

import "strings"

// ToBinance converts common ticker spellings to the Binance spot format.
// Tickers are uppercased, separators removed, XBT becomes BTC and a bare
// USD quote is widened to USDT.
func ToBinance(sym string) string {
	s := strings.ToUpper(strings.TrimSpace(sym))
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "/", "")
	if strings.HasPrefix(s, "XBT") {
		s = "BTC" + s[3:]
	}
	if strings.HasSuffix(s, "USD") && !strings.HasSuffix(s, "USDT") {
		s += "T"
	}
	return s
}

// ToYahoo maps a ticker to its Yahoo Finance spelling. Exchange-suffixed
// tickers such as RELIANCE.NS already use Yahoo's format; only a few
// index aliases need translation.
func ToYahoo(sym string) string {
	switch strings.ToUpper(strings.TrimSpace(sym)) {
	case "SPX", "SP500", "SPX500":
		return "^GSPC"
	case "NDX", "NASDAQ100":
		return "^NDX"
	}
	return strings.TrimSpace(sym)
}

// Filename renders a symbol safe for use in file names, mirroring the
// forecast CSV naming convention (dots and separators become underscores).
func Filename(sym string) string {
	r := strings.NewReplacer(".", "_", "-", "_", "/", "_", "^", "")
	return r.Replace(strings.TrimSpace(sym))
}
