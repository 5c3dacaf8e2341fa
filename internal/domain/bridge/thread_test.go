package bridge

import (
	"reflect"
	"testing"
)

func TestCanTransitionThread(t *testing.T) {
	cases := []struct {
		from ThreadStatus
		to   ThreadStatus
		want bool
	}{
		{ThreadActive, ThreadResolved, true},
		{ThreadActive, ThreadArchived, true},
		{ThreadResolved, ThreadActive, true},
		{ThreadResolved, ThreadArchived, true},
		{ThreadArchived, ThreadActive, false},
		{ThreadArchived, ThreadResolved, false},
		{ThreadActive, ThreadActive, false},
	}

	for _, tc := range cases {
		if got := CanTransitionThread(tc.from, tc.to); got != tc.want {
			t.Fatalf("CanTransitionThread(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestDeriveThreadTags(t *testing.T) {
	review := Review{
		ID:         "r1",
		Rating:     1,
		Device:     "Pixel 9",
		AppVersion: "2.4.1",
	}
	got := DeriveThreadTags(review)
	want := []string{"negative", "device-info", "version-2_4_1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("DeriveThreadTags() = %v, want %v", got, want)
	}
}

func TestDeriveThreadTagsNeutralAndPositive(t *testing.T) {
	if got := DeriveThreadTags(Review{Rating: 3}); !reflect.DeepEqual(got, []string{"neutral"}) {
		t.Fatalf("rating 3 tags = %v", got)
	}
	if got := DeriveThreadTags(Review{Rating: 5}); !reflect.DeepEqual(got, []string{"positive"}) {
		t.Fatalf("rating 5 tags = %v", got)
	}
}

func TestParseThreadRef(t *testing.T) {
	for _, ref := range []string{"#12", "12", " #12 "} {
		id, err := ParseThreadRef(ref)
		if err != nil {
			t.Fatalf("ParseThreadRef(%q) error = %v", ref, err)
		}
		if id != 12 {
			t.Fatalf("ParseThreadRef(%q) = %d", ref, id)
		}
	}

	for _, ref := range []string{"", "#", "abc", "#0"} {
		if _, err := ParseThreadRef(ref); err == nil {
			t.Fatalf("ParseThreadRef(%q) expected error", ref)
		}
	}
}
