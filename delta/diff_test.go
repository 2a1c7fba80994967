package delta_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/brunokim/woot/delta"
)

func TestDiff(t *testing.T) {
	tests := []struct {
		s1, s2 string
		want   []delta.Edit
	}{
		{
			s1:   "",
			s2:   "",
			want: nil,
		},
		{
			s1: "a",
			s2: "a",
			want: []delta.Edit{
				{Op: delta.Keep, Char: 'a'},
			},
		},
		{
			s1: "",
			s2: "a",
			want: []delta.Edit{
				{Op: delta.Add, Char: 'a'},
			},
		},
		{
			s1: "a",
			s2: "",
			want: []delta.Edit{
				{Op: delta.Remove, Char: 'a'},
			},
		},
		{
			s1: "ac",
			s2: "abc",
			want: []delta.Edit{
				{Op: delta.Keep, Char: 'a'},
				{Op: delta.Add, Char: 'b'},
				{Op: delta.Keep, Char: 'c'},
			},
		},
		{
			s1: "abc",
			s2: "axc",
			want: []delta.Edit{
				{Op: delta.Keep, Char: 'a'},
				{Op: delta.Add, Char: 'x'},
				{Op: delta.Remove, Char: 'b'},
				{Op: delta.Keep, Char: 'c'},
			},
		},
		{
			s1: "abcd",
			s2: "xabdy",
			want: []delta.Edit{
				{Op: delta.Add, Char: 'x'},
				{Op: delta.Keep, Char: 'a'},
				{Op: delta.Keep, Char: 'b'},
				{Op: delta.Remove, Char: 'c'},
				{Op: delta.Keep, Char: 'd'},
				{Op: delta.Add, Char: 'y'},
			},
		},
		{
			s1: "xabdyefg",
			s2: "E",
			want: []delta.Edit{
				{Op: delta.Add, Char: 'E'},
				{Op: delta.Remove, Char: 'x'},
				{Op: delta.Remove, Char: 'a'},
				{Op: delta.Remove, Char: 'b'},
				{Op: delta.Remove, Char: 'd'},
				{Op: delta.Remove, Char: 'y'},
				{Op: delta.Remove, Char: 'e'},
				{Op: delta.Remove, Char: 'f'},
				{Op: delta.Remove, Char: 'g'},
			},
		},
		{
			s1: "ñandú",
			s2: "andú!",
			want: []delta.Edit{
				{Op: delta.Remove, Char: 'ñ'},
				{Op: delta.Keep, Char: 'a'},
				{Op: delta.Keep, Char: 'n'},
				{Op: delta.Keep, Char: 'd'},
				{Op: delta.Keep, Char: 'ú'},
				{Op: delta.Add, Char: '!'},
			},
		},
	}
	ignoreDist := cmpopts.IgnoreFields(delta.Edit{}, "Dist")
	for _, test := range tests {
		got, err := delta.Diff(test.s1, test.s2)
		if err != nil {
			t.Fatalf("delta.Diff(%q, %q): %v", test.s1, test.s2, err)
		}
		if msg := cmp.Diff(test.want, got, ignoreDist); msg != "" {
			t.Errorf("delta.Diff(%q, %q): (-want, +got)\n%s", test.s1, test.s2, msg)
		}
	}
}

func TestDiffInvalidUTF8(t *testing.T) {
	if _, err := delta.Diff("\xff", "a"); err == nil {
		t.Errorf("delta.Diff with invalid s1: want error")
	}
	if _, err := delta.Diff("a", "\xff"); err == nil {
		t.Errorf("delta.Diff with invalid s2: want error")
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		s1, s2 string
		want   int
	}{
		{"", "", 0},
		{"", "a", 1},
		{"a", "", 1},
		{"a", "a", 0},
		{"abc", "abc", 0},
		{"ac", "abc", 1},
		{"abc", "ac", 1},
		{"abc", "axc", 2},
		{"abcd", "xabdy", 3},
	}
	for _, test := range tests {
		got, err := delta.Distance(test.s1, test.s2)
		if err != nil {
			t.Fatalf("delta.Distance(%q, %q): %v", test.s1, test.s2, err)
		}
		if got != test.want {
			t.Errorf("delta.Distance(%q, %q): want %d, got %d", test.s1, test.s2, test.want, got)
		}
	}
}

func TestFromDiff(t *testing.T) {
	tests := []struct {
		s1, s2 string
		want   delta.Delta
	}{
		{"abc", "abc", nil},
		{"abc", "axc", delta.Delta{{Retain: 1}, {Insert: "x"}, {Delete: 1}}},
		{"abcd", "xabdy", delta.Delta{{Insert: "x"}, {Retain: 2}, {Delete: 1}, {Retain: 1}, {Insert: "y"}}},
		{"hello", "", delta.Delta{{Delete: 5}}},
		{"", "hello", delta.Delta{{Insert: "hello"}}},
	}
	for _, test := range tests {
		edits, err := delta.Diff(test.s1, test.s2)
		if err != nil {
			t.Fatalf("delta.Diff(%q, %q): %v", test.s1, test.s2, err)
		}
		got := delta.FromDiff(edits)
		if msg := cmp.Diff(test.want, got); msg != "" {
			t.Errorf("delta.FromDiff(%q, %q): (-want, +got)\n%s", test.s1, test.s2, msg)
		}
		text, err := delta.ApplyText(test.s1, got)
		if err != nil {
			t.Fatalf("delta.ApplyText(%q, %v): %v", test.s1, got, err)
		}
		if text != test.s2 {
			t.Errorf("delta.ApplyText(%q, %v): want %q, got %q", test.s1, got, test.s2, text)
		}
	}
}
