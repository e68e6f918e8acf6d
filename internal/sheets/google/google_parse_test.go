package google

import "testing"

func TestIndexRows(t *testing.T) {
	values := [][]interface{}{
		{"Site ID", "Site", "Supervisor", "Funds received", "Funds from supervisor", "Expenses", "Advances", "Invoices", "Advance paid to supervisor", "Balance", "Revision"},
		{"site-a", "Alpha", "sup-1", "10.00", "0.00", "2.00", "0.50", "0.00", "0.00", "7.50", "4"},
		{},
		{"site-b", "Beta", "sup-2", "0.00", "1.00", "0.00", "0.00", "0.00", "0.00", "1.00", 2.0},
		{"site-c", "Gamma"},
	}

	got := indexRows(values)
	if len(got) != 3 {
		t.Fatalf("indexRows() found %d sites, want 3: %+v", len(got), got)
	}
	if loc := got["site-a"]; loc.row != 2 || loc.revision != 4 {
		t.Errorf("site-a = %+v, want row 2 revision 4", loc)
	}
	if loc := got["site-b"]; loc.row != 4 {
		t.Errorf("site-b = %+v, want row 4", loc)
	}
	if loc := got["site-c"]; loc.row != 5 || loc.revision != 0 {
		t.Errorf("site-c = %+v, want row 5 revision 0", loc)
	}
}

func TestColumnLetter(t *testing.T) {
	tests := []struct {
		idx  int
		want string
	}{
		{0, "A"},
		{10, "K"},
		{11, "L"},
		{25, "Z"},
		{26, "AA"},
		{27, "AB"},
	}
	for _, tt := range tests {
		if got := columnLetter(tt.idx); got != tt.want {
			t.Errorf("columnLetter(%d) = %q, want %q", tt.idx, got, tt.want)
		}
	}
}
