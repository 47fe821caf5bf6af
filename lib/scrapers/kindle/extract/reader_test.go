package extract

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	cases := []struct {
		name   string
		text   string
		expect Progress
		ok     bool
	}{
		{
			name:   "page pattern",
			text:   "Page 12 of 340",
			expect: Progress{Current: 12, Total: 340, Percent: 4},
			ok:     true,
		},
		{
			name:   "page pattern beats percent in same fragment",
			text:   "Page 12 of 340 45%",
			expect: Progress{Current: 12, Total: 340, Percent: 4},
			ok:     true,
		},
		{
			name:   "location long form",
			text:   "Location 1520 of 4890",
			expect: Progress{Current: 1520, Total: 4890, Percent: 31},
			ok:     true,
		},
		{
			name:   "location short form",
			text:   "Loc 100 of 200",
			expect: Progress{Current: 100, Total: 200, Percent: 50},
			ok:     true,
		},
		{
			name:   "generic x of y",
			text:   "37 of 52",
			expect: Progress{Current: 37, Total: 52, Percent: 71},
			ok:     true,
		},
		{
			name: "generic must span the whole fragment",
			text: "chapter 3 of 12 in this volume",
			ok:   false,
		},
		{
			name:   "percent only normalizes to total 100",
			text:   "45%",
			expect: Progress{Current: 45, Total: 100, Percent: 45},
			ok:     true,
		},
		{
			name:   "rounding",
			text:   "Page 1 of 3",
			expect: Progress{Current: 1, Total: 3, Percent: 33},
			ok:     true,
		},
		{
			name: "no signal",
			text: "Chapter Twelve",
			ok:   false,
		},
		{
			name: "empty",
			text: "   ",
			ok:   false,
		},
	}

	for _, test := range cases {
		t.Run(test.name, func(t *testing.T) {
			got, ok := Match(test.text)
			require.Equal(t, test.ok, ok)
			if !ok {
				return
			}
			if diff := cmp.Diff(test.expect, got); diff != "" {
				t.Fatalf("unexpected progress (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFromFragments(t *testing.T) {
	// earlier fragments win even when later ones also match
	progress, ok := FromFragments([]string{
		"Settings",
		"Loc 100 of 200",
		"Page 5 of 10",
	})
	require.True(t, ok)
	require.Equal(t, Progress{Current: 100, Total: 200, Percent: 50}, progress)

	// oversized fragments are skipped entirely
	long := "Page 1 of 2 " + strings.Repeat("x", maxFragmentLen)
	progress, ok = FromFragments([]string{long, "88%"})
	require.True(t, ok)
	require.Equal(t, Progress{Current: 88, Total: 100, Percent: 88}, progress)

	_, ok = FromFragments(nil)
	require.False(t, ok)
}

func TestLicenseLimited(t *testing.T) {
	require.True(t, LicenseLimited("Oops. License Limit Reached, sorry."))
	require.True(t, LicenseLimited("You have exceeded the limit on the number of devices for this title"))
	require.False(t, LicenseLimited("Page 12 of 340"))
	require.False(t, LicenseLimited(""))
}
