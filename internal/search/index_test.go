package search

import (
	"reflect"
	"sync"
	"testing"

	"golang.org/x/text/cases"
)

var names = []string{"Rem", "Ram", "Emilia", "Megumin", "Asuna Yuuki", "ÉMILIE"}

func TestMatch_Substring(t *testing.T) {
	idx := NewIndex(names)
	cases := []struct {
		q    string
		want []int
	}{
		{"rem", []int{0}},
		{"R", []int{0, 1, 4}},
		{"EMI", []int{2}},
		{"mi", []int{2, 3, 5}},
		{"asuna   yuu", []int{4}},
		{"  meg  ", []int{3}},
		{"émilie", []int{5}},
		{"zzz", nil},
	}
	for _, tc := range cases {
		if got := idx.Match(tc.q); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("Match(%q) = %v; want %v", tc.q, got, tc.want)
		}
	}
}

func TestMatch_BlankQuery(t *testing.T) {
	idx := NewIndex(names)
	for _, q := range []string{"", "   ", "\t\n"} {
		if got := idx.Match(q); got != nil {
			t.Errorf("Match(%q) = %v; want nil", q, got)
		}
	}
}

func TestMatch_MaxResults(t *testing.T) {
	idx := NewIndex(names, WithMaxResults(2))
	if got := idx.Match("m"); !reflect.DeepEqual(got, []int{0, 1}) {
		t.Fatalf("got %v", got)
	}

	idx = NewIndex(names, WithMaxResults(-1))
	if idx.cfg.maxResults != 0 {
		t.Fatalf("negative cap should be ignored")
	}
}

func TestIndex_EmptyAndLen(t *testing.T) {
	idx := NewIndex(nil)
	if idx.Len() != 0 || idx.Match("a") != nil {
		t.Fatalf("empty index should match nothing")
	}
	if NewIndex(names).Len() != len(names) {
		t.Fatalf("Len mismatch")
	}
}

func TestKey_FoldsAndCollapses(t *testing.T) {
	got := Key(cases.Fold(), "  STRASSE\t\tTwo ")
	if got != "strasse two" {
		t.Fatalf("Key = %q", got)
	}
	// Full-width Latin letters normalize to ASCII.
	if got := Key(cases.Fold(), "ＲＥＭ"); got != "rem" {
		t.Fatalf("Key fullwidth = %q", got)
	}
}

func TestMatch_ConcurrentUse(t *testing.T) {
	idx := NewIndex(names)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := idx.Match("ra"); !reflect.DeepEqual(got, []int{1}) {
				t.Errorf("got %v", got)
			}
		}()
	}
	wg.Wait()
}
