package utils_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/matchreview_backend/utils"
)

func TestStringify(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"plain", "plain"},
		{float64(77), "77"},
		{87.5, "87.5"},
		{1, "1"},
		{int64(0), "0"},
		{true, "1"},
		{false, "0"},
	}
	for _, c := range cases {
		if got := utils.Stringify(c.in); got != c.want {
			t.Fatalf("Stringify(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestUniqueSlice(t *testing.T) {
	got := utils.UniqueSlice([]int{3, 1, 3, 2, 1})
	want := []int{3, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("UniqueSlice = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("UniqueSlice = %v, want %v (order preserved)", got, want)
		}
	}
}

func TestSplitAndTrim(t *testing.T) {
	got := utils.SplitAndTrim(" MATCH , NO MATCH ,, ")
	if len(got) != 2 || got[0] != "MATCH" || got[1] != "NO MATCH" {
		t.Fatalf("SplitAndTrim = %v", got)
	}
	if utils.SplitAndTrim("  ") != nil {
		t.Fatalf("blank input should return nil")
	}
}

func TestContainsFold(t *testing.T) {
	if !utils.ContainsFold("HOUSTON OFFICE", "houston") {
		t.Fatalf("case-insensitive match failed")
	}
	if utils.ContainsFold("DALLAS", "houston") {
		t.Fatalf("false positive")
	}
}
