package domain

import "testing"

func TestParseDecimal_RejectsNonFinite(t *testing.T) {
	for _, s := range []string{"NaN", "Infinity", "-Infinity", "inf", "nan"} {
		if _, err := ParseDecimal(s); err == nil {
			t.Errorf("expected error parsing %q, got none", s)
		}
	}
}

func TestParseDecimal_ValueEquality(t *testing.T) {
	a := MustDecimal("1.50")
	b := MustDecimal("1.5")
	if !a.Equal(b) {
		t.Errorf("expected 1.50 to equal 1.5 by value")
	}
	if a.String() == b.String() && a.String() != "1.5" {
		t.Errorf("unexpected canonical form %q", a.String())
	}
}

func TestDecimal_Arithmetic(t *testing.T) {
	a := MustDecimal("0.5")
	b := MustDecimal("96500")
	got := a.Mul(b)
	want := MustDecimal("48250")
	if !got.Equal(want) {
		t.Errorf("0.5 * 96500 = %s, want %s", got, want)
	}
}

func TestAssetID_Schemes(t *testing.T) {
	native := NativeAssetID("bitcoin")
	if native.String() != "blockchain:bitcoin:native" {
		t.Errorf("unexpected native asset id: %s", native)
	}
	token := TokenAssetID("ethereum", "0xABCDEF")
	if token.String() != "blockchain:ethereum:0xabcdef" {
		t.Errorf("unexpected token asset id: %s", token)
	}
	if token.Contract() != "0xabcdef" {
		t.Errorf("unexpected contract: %s", token.Contract())
	}
	fiat := FiatAssetID("usd")
	if fiat.String() != "fiat:USD" {
		t.Errorf("unexpected fiat asset id: %s", fiat)
	}
	if !fiat.IsFiat() {
		t.Errorf("expected fiat asset to report IsFiat")
	}
}

func TestCurrency_Predicates(t *testing.T) {
	if !Currency("USD").IsFiat() {
		t.Errorf("expected USD to be fiat")
	}
	if Currency("USDC").IsFiat() {
		t.Errorf("expected USDC to not be fiat")
	}
	if !Currency("USDC").IsFiatOrStablecoin() {
		t.Errorf("expected USDC to be fiat-or-stablecoin")
	}
	if Currency("BTC").IsFiatOrStablecoin() {
		t.Errorf("expected BTC to not be fiat-or-stablecoin")
	}
}

func TestDedupRing_EvictsOldest(t *testing.T) {
	r := NewDedupRing(2)
	if r.SeenOrAdd("a") {
		t.Fatal("a should not be seen yet")
	}
	if r.SeenOrAdd("b") {
		t.Fatal("b should not be seen yet")
	}
	if !r.SeenOrAdd("a") {
		t.Fatal("a should now be seen")
	}
	r.SeenOrAdd("c") // evicts "a" (oldest is "a" again after re-add? order unaffected by re-seen)
	if r.Len() > 2 {
		t.Fatalf("expected capacity bound of 2, got %d", r.Len())
	}
}
