package fx

import "testing"

func TestParseFormatRoundTrip(t *testing.T) {
	cases := map[string]string{
		"0":            "0.00000000",
		"1":            "1.00000000",
		"123.456":      "123.45600000",
		"-123.456":     "-123.45600000",
		"0.00000001":   "0.00000001",
		"100.33333333": "100.33333333",
	}
	for in, want := range cases {
		v, err := Parse(in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", in, err)
		}
		if got := v.String(); got != want {
			t.Errorf("Parse(%q).String() = %q, want %q", in, got, want)
		}
	}
}

func TestParseEmpty(t *testing.T) {
	v, err := Parse("")
	if err != nil || v != 0 {
		t.Fatalf("Parse(\"\") = %v, %v; want 0, nil", v, err)
	}
}

func TestParseTruncatesExtraFraction(t *testing.T) {
	v, err := Parse("1.123456789")
	if err != nil {
		t.Fatal(err)
	}
	if got := v.String(); got != "1.12345678" {
		t.Errorf("got %q, want truncation not rounding", got)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("abc"); err == nil {
		t.Error("expected error for non-numeric literal")
	}
}

func TestMul(t *testing.T) {
	price := MustParse("100.5")
	size := MustParse("2")
	got := Mul(price, size)
	want := MustParse("201")
	if got != want {
		t.Errorf("Mul(100.5, 2) = %s, want %s", got.String(), want.String())
	}
}

func TestDiv(t *testing.T) {
	got := Div(MustParse("10"), MustParse("4"))
	want := MustParse("2.5")
	if got != want {
		t.Errorf("Div(10, 4) = %s, want %s", got.String(), want.String())
	}
}

func TestDivByZero(t *testing.T) {
	if got := Div(MustParse("10"), 0); got != 0 {
		t.Errorf("Div by zero = %s, want 0", got.String())
	}
}

func TestMulVWAPThreeEqualTrades(t *testing.T) {
	// 3 trades of 1 unit each at 101, 101, and 102 -> vwap = 101.33333333
	price1, size1 := MustParse("101"), MustParse("1")
	price2, size2 := MustParse("101"), MustParse("1")
	price3, size3 := MustParse("102"), MustParse("1")

	pv := Mul(price1, size1) + Mul(price2, size2) + Mul(price3, size3)
	v := size1 + size2 + size3
	vwap := Div(pv, v)

	if got := vwap.String(); got != "101.33333333" {
		t.Errorf("vwap = %s, want 101.33333333", got)
	}
}
