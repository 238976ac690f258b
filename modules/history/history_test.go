package history

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"p2pcalc/modules/state"
)

func sampleItems() []state.HistoryItem {
	sell := 77.5
	return []state.HistoryItem{
		{ID: "c", Timestamp: 3000, FiatAmount: 5000, CryptoAmount: 65.91, ProfitTarget: 100, CalculatedRate: 77.38, SellPrice: &sell},
		{ID: "b", Timestamp: 2000, FiatAmount: 1000, CryptoAmount: 12.5, ProfitTarget: 0, CalculatedRate: 80},
		{ID: "a", Timestamp: 1000, FiatAmount: 2000, CryptoAmount: 25, ProfitTarget: -50, CalculatedRate: 78},
	}
}

func TestCompute(t *testing.T) {
	s, ok := Compute(sampleItems())
	if !ok {
		t.Fatal("Compute() ok = false for non-empty log")
	}
	if s.Count != 3 {
		t.Errorf("Count = %d, want 3", s.Count)
	}
	if s.TotalProfit != 50 {
		t.Errorf("TotalProfit = %v, want 50", s.TotalProfit)
	}
	if s.TotalFiat != 8000 {
		t.Errorf("TotalFiat = %v, want 8000", s.TotalFiat)
	}
	if s.ProfitableCount != 1 {
		t.Errorf("ProfitableCount = %d, want 1", s.ProfitableCount)
	}
	wantAvg := (77.38 + 80 + 78) / 3
	if math.Abs(s.AverageRate-wantAvg) > 1e-9 {
		t.Errorf("AverageRate = %v, want %v", s.AverageRate, wantAvg)
	}
	if math.Abs(s.ProfitPercent-0.625) > 1e-9 {
		t.Errorf("ProfitPercent = %v, want 0.625", s.ProfitPercent)
	}
	if math.Abs(s.SuccessRatio-1.0/3) > 1e-9 {
		t.Errorf("SuccessRatio = %v, want 1/3", s.SuccessRatio)
	}
}

func TestComputeEmpty(t *testing.T) {
	s, ok := Compute(nil)
	if ok {
		t.Error("Compute(nil) ok = true, want false")
	}
	if s != (Stats{}) {
		t.Errorf("Compute(nil) = %+v, want zero", s)
	}
}

func TestComputeStaysFinite(t *testing.T) {
	items := []state.HistoryItem{
		{ID: "a", FiatAmount: 1e308, CryptoAmount: 1e308, ProfitTarget: 1e308, CalculatedRate: 1e308},
		{ID: "b", FiatAmount: 1e308, CryptoAmount: 1e308, ProfitTarget: 1e308, CalculatedRate: 1e308},
	}
	s, ok := Compute(items)
	if !ok {
		t.Fatal("Compute() ok = false")
	}
	for name, v := range map[string]float64{
		"totalProfit":   s.TotalProfit,
		"totalFiat":     s.TotalFiat,
		"totalCrypto":   s.TotalCrypto,
		"averageRate":   s.AverageRate,
		"profitPercent": s.ProfitPercent,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("%s = %v", name, v)
		}
	}
	if _, err := json.Marshal(s); err != nil {
		t.Errorf("stats do not encode: %v", err)
	}
}

func TestFilter(t *testing.T) {
	items := sampleItems()
	tests := []struct {
		name  string
		query string
		kind  Kind
		want  []string
	}{
		{"all", "", KindAll, []string{"c", "b", "a"}},
		{"profit only", "", KindProfit, []string{"c"}},
		{"loss includes zero", "", KindLoss, []string{"b", "a"}},
		{"grouped query", "5 000", KindAll, []string{"c"}},
		{"plain query", "5000", KindAll, []string{"c"}},
		{"rate", "77.38", KindAll, []string{"c"}},
		{"display form", "12,50", KindAll, []string{"b"}},
		{"no match", "99999", KindAll, nil},
		{"query and kind", "1000", KindProfit, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Filter(items, tt.query, tt.kind))
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Filter(%q, %s) = %v, want %v", tt.query, tt.kind, got, tt.want)
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	tests := map[string]Kind{"": KindAll, "profit": KindProfit, " LOSS ": KindLoss, "other": KindAll}
	for in, want := range tests {
		if got := ParseKind(in); got != want {
			t.Errorf("ParseKind(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestNewItem(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	a := NewItem(5000, 65.91, 100, 77.38, 0, now)
	b := NewItem(5000, 65.91, 100, 77.38, 78, now)
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("ids not unique: %q, %q", a.ID, b.ID)
	}
	if a.Timestamp != now.UnixMilli() {
		t.Errorf("Timestamp = %d, want %d", a.Timestamp, now.UnixMilli())
	}
	if a.SellPrice != nil {
		t.Error("SellPrice set for zero sell price")
	}
	if b.SellPrice == nil || *b.SellPrice != 78 {
		t.Errorf("SellPrice = %v, want 78", b.SellPrice)
	}
}

func TestCSVRoundTrip(t *testing.T) {
	items := sampleItems()
	var buf bytes.Buffer
	if err := ExportCSV(&buf, items); err != nil {
		t.Fatalf("ExportCSV() error = %v", err)
	}
	if !strings.HasPrefix(buf.String(), "id,timestamp,fiat_amount,crypto_amount,rate,profit,sell_price\n") {
		t.Errorf("unexpected header: %q", strings.SplitN(buf.String(), "\n", 2)[0])
	}

	got, err := ParseCSV(&buf)
	if err != nil {
		t.Fatalf("ParseCSV() error = %v", err)
	}
	assertSameItems(t, got, items)
}

func TestJSONRoundTrip(t *testing.T) {
	items := sampleItems()
	var buf bytes.Buffer
	if err := ExportJSON(&buf, items, time.Unix(0, 0)); err != nil {
		t.Fatalf("ExportJSON() error = %v", err)
	}
	got, err := ParseJSON(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseJSON() error = %v", err)
	}
	assertSameItems(t, got, items)
}

func TestParseJSONShapes(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLen int
		wantErr bool
	}{
		{"bare array", `[{"id":"x","fiatAmount":1,"cryptoAmount":2}]`, 1, false},
		{"items key", `{"items":[{"id":"x","fiatAmount":1,"cryptoAmount":2}]}`, 1, false},
		{"empty list", `[]`, 0, false},
		{"empty", ``, 0, true},
		{"scalar", `42`, 0, true},
		{"no list", `{"foo":[]}`, 0, true},
		{"history not list", `{"history":"nope"}`, 0, true},
		{"missing id", `[{"fiatAmount":1,"cryptoAmount":2}]`, 0, true},
		{"blank id", `[{"id":" ","fiatAmount":1,"cryptoAmount":2}]`, 0, true},
		{"numeric id", `[{"id":7,"fiatAmount":1,"cryptoAmount":2}]`, 0, true},
		{"string amount", `[{"id":"x","fiatAmount":"1","cryptoAmount":2}]`, 0, true},
		{"null amount", `[{"id":"x","fiatAmount":1,"cryptoAmount":null}]`, 0, true},
		{"one bad entry rejects all", `[{"id":"x","fiatAmount":1,"cryptoAmount":2},{"id":"y"}]`, 0, true},
		{"malformed", `[{"id":`, 0, true},
		{"markup id", `[{"id":"<b>x</b>","fiatAmount":1,"cryptoAmount":2}]`, 0, true},
		{"quoted id", `[{"id":"x'y","fiatAmount":1,"cryptoAmount":2}]`, 0, true},
		{"long id", `[{"id":"` + strings.Repeat("x", 65) + `","fiatAmount":1,"cryptoAmount":2}]`, 0, true},
		{"overflowing amount", `[{"id":"x","fiatAmount":1e400,"cryptoAmount":2}]`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJSON([]byte(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidImport) {
					t.Fatalf("ParseJSON() error = %v, want ErrInvalidImport", err)
				}
				if got != nil {
					t.Errorf("ParseJSON() returned %d items on error", len(got))
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseJSON() error = %v", err)
			}
			if len(got) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestParseCSVInvalid(t *testing.T) {
	tests := map[string]string{
		"empty":          "",
		"missing column": "id,timestamp\nx,2024-01-01T00:00:00Z\n",
		"bad number":     "id,fiat_amount,crypto_amount\nx,abc,1\n",
		"missing id":     "id,fiat_amount,crypto_amount\n,1,1\n",
		"bad timestamp":  "id,timestamp,fiat_amount,crypto_amount\nx,yesterday,1,1\n",
		"nan amount":     "id,fiat_amount,crypto_amount\nx,NaN,1\n",
		"infinite rate":  "id,fiat_amount,crypto_amount,rate,profit\nx,1,1,Inf,2\n",
		"infinite sell":  "id,fiat_amount,crypto_amount,sell_price\nx,1,1,-Infinity\n",
		"overflow":       "id,fiat_amount,crypto_amount\nx,1e400,1\n",
		"markup id":      "id,fiat_amount,crypto_amount\n<script>x</script>,1,1\n",
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseCSV(strings.NewReader(input)); !errors.Is(err, ErrInvalidImport) {
				t.Errorf("ParseCSV() error = %v, want ErrInvalidImport", err)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	existing := sampleItems()
	imported := []state.HistoryItem{
		{ID: "b", Timestamp: 9999, FiatAmount: 1},
		{ID: "d", Timestamp: 2500, FiatAmount: 4},
		{ID: "d", Timestamp: 2600, FiatAmount: 5},
	}

	got := Merge(existing, imported)
	if want := "c,d,b,a"; strings.Join(ids(got), ",") != want {
		t.Errorf("Merge() = %v, want %s", ids(got), want)
	}
	for _, item := range got {
		if item.ID == "b" && item.FiatAmount != 1000 {
			t.Errorf("existing entry replaced by import: %+v", item)
		}
	}
}

func TestMergeCap(t *testing.T) {
	var imported []state.HistoryItem
	for i := 0; i < state.MaxHistory+10; i++ {
		imported = append(imported, state.HistoryItem{ID: string(rune('A' + i)), Timestamp: int64(i)})
	}
	got := Merge(nil, imported)
	if len(got) != state.MaxHistory {
		t.Fatalf("len = %d, want %d", len(got), state.MaxHistory)
	}
	if got[0].Timestamp != int64(state.MaxHistory+9) {
		t.Errorf("newest entry dropped: first timestamp %d", got[0].Timestamp)
	}
}

func TestExportFilename(t *testing.T) {
	now := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
	if got := ExportFilename("csv", now); got != "p2p-history-2024-03-09.csv" {
		t.Errorf("ExportFilename() = %q", got)
	}
}

func ids(items []state.HistoryItem) []string {
	var out []string
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func assertSameItems(t *testing.T, got, want []state.HistoryItem) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d items, want %d", len(got), len(want))
	}
	for i := range want {
		g, w := got[i], want[i]
		if g.ID != w.ID || g.Timestamp != w.Timestamp || g.FiatAmount != w.FiatAmount ||
			g.CryptoAmount != w.CryptoAmount || g.ProfitTarget != w.ProfitTarget || g.CalculatedRate != w.CalculatedRate {
			t.Errorf("item %d = %+v, want %+v", i, g, w)
		}
		if (g.SellPrice == nil) != (w.SellPrice == nil) || (g.SellPrice != nil && *g.SellPrice != *w.SellPrice) {
			t.Errorf("item %d sell price = %v, want %v", i, g.SellPrice, w.SellPrice)
		}
	}
}
