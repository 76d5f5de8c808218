package reftable

import "testing"

func TestFormatAndParseTableName(t *testing.T) {
	name := formatTableName(1, 0xabc, "suffix-with-dashes")
	lo, hi, ok := parseTableName(name)
	if !ok {
		t.Fatalf("parseTableName(%q) failed", name)
	}
	if lo != 1 || hi != 0xabc {
		t.Fatalf("got lo=%d hi=%d, want lo=1 hi=2748", lo, hi)
	}
}

func TestParseTableNameRejectsMalformed(t *testing.T) {
	if _, _, ok := parseTableName("not-a-table-name-at-all-but-has-dashes"); ok {
		t.Fatalf("expected parse failure for non-hex bounds")
	}
	if _, _, ok := parseTableName("onlyonepart"); ok {
		t.Fatalf("expected parse failure for missing parts")
	}
}
