package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAvailableDedupsAndSorts(t *testing.T) {
	t.Parallel()

	forward := []string{"app-misc/foo-1.0", "app-misc/bar-2.1"}
	reversed := []string{"app-misc/bar-2.1", "app-misc/foo-1.0", "app-misc/bar-2.1"}

	for _, input := range [][]string{forward, reversed} {
		got, err := ParseAvailable(input)
		require.NoError(t, err)
		require.Equal(t, []string{"app-misc/bar-2.1", "app-misc/foo-1.0"}, got)
	}
}

func TestParseAvailableSkipsNoise(t *testing.T) {
	t.Parallel()

	got, err := ParseAvailable([]string{"", "  dev-lang/go  ", "Found 2 matches", "sys-apps/portage"})
	require.NoError(t, err)
	require.Equal(t, []string{"dev-lang/go", "sys-apps/portage"}, got)

	empty, err := ParseAvailable(nil)
	require.NoError(t, err)
	require.Equal(t, []string{}, empty)

	_, err = ParseAvailable([]string{"No matches found"})
	require.ErrorIs(t, err, ErrUnrecognisedOutput)
}

func TestParseInstalled(t *testing.T) {
	t.Parallel()

	got, err := ParseInstalled([]string{
		"[ Searching for all packages in all categories among: ]",
		" * installed packages",
		"sys-libs/zlib-1.3",
		"app-shells/bash-5.2_p26",
		"",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"app-shells/bash-5.2_p26", "sys-libs/zlib-1.3"}, got)

	_, err = ParseInstalled([]string{"!!! broken database"})
	require.ErrorIs(t, err, ErrUnrecognisedOutput)
}

func TestParseUpdates(t *testing.T) {
	t.Parallel()

	lines := []string{
		"These are the packages that would be merged, in order:",
		"",
		"Calculating dependencies... done!",
		"[ebuild     U  ] app-misc/foo-1.2 [1.1]",
		`[ebuild  N     ] dev-libs/bar-2.0  USE="ssl"`,
		"[ebuild   R    ] sys-apps/baz-1.0-r1",
		"[ebuild     U  ] x11-libs/gtk+-3.24.41 -> x11-libs/gtk+-3.24.42",
		"[ebuild      D ] net-misc/qux-0.9",
		"[blocks B      ] app-misc/blocked",
		"Total: 5 packages",
	}

	got, err := ParseUpdates(lines)
	require.NoError(t, err)
	updates := got.(Updates)

	require.Equal(t, []string{"app-misc/foo", "dev-libs/bar", "net-misc/qux", "sys-apps/baz", "x11-libs/gtk+"}, updates.Atoms)
	require.Equal(t, 5, updates.Len())
	assert.Equal(t, []string{
		"app-misc/foo (1.2 [1.1]) [Update]",
		"dev-libs/bar (2.0) [New]",
		"net-misc/qux (0.9) [Downgrade]",
		"sys-apps/baz (1.0-r1) [Rebuild]",
		"x11-libs/gtk+ (3.24.41 -> x11-libs/gtk+-3.24.42) [Update]",
	}, updates.Display)
	assert.Equal(t, "x11-libs/gtk+-3.24.42", updates.Records[4].Target)
}

func TestParseUpdatesLastLineWinsPerAtom(t *testing.T) {
	t.Parallel()

	got, err := ParseUpdates([]string{
		"[ebuild  N     ] app-misc/foo-1.0",
		"[ebuild     U  ] app-misc/foo-1.1",
	})
	require.NoError(t, err)
	updates := got.(Updates)
	require.Equal(t, []string{"app-misc/foo"}, updates.Atoms)
	require.Equal(t, []string{"app-misc/foo (1.1) [Update]"}, updates.Display)
}

func TestParseUpdatesEmptyAndUnparseable(t *testing.T) {
	t.Parallel()

	got, err := ParseUpdates([]string{"Nothing to merge; quitting."})
	require.NoError(t, err)
	require.Zero(t, got.(Updates).Len())

	_, err = ParseUpdates([]string{"[ebuild mangled"})
	require.ErrorContains(t, err, "none of 1 ebuild lines")
}

func TestPrimaryFlagPriority(t *testing.T) {
	t.Parallel()

	cases := map[string]Flag{
		"UD": FlagUpdate,
		"NR": FlagNew,
		"R ": FlagRebuild,
		"D":  FlagDowngrade,
		"u":  FlagUpdate,
		"  ": FlagOther,
	}
	for flags, want := range cases {
		require.Equal(t, want, primaryFlag(flags), flags)
	}
}

func TestSelectAtoms(t *testing.T) {
	t.Parallel()

	atoms, skipped := SelectAtoms([]string{
		"app-misc/foo (1.2 -> 1.3) [Update]",
		"dev-lang/go-1.25.1",
		"app-misc/foo",
		"@sets/custom",
		"@odd set/with space",
		"Loading...",
	})
	require.Equal(t, []string{"@sets/custom", "app-misc/foo", "dev-lang/go-1.25.1"}, atoms)
	require.Equal(t, []string{"@odd set/with space", "Loading..."}, skipped)
}

func TestFilter(t *testing.T) {
	t.Parallel()

	items := []string{"dev-lang/Go", "sys-apps/portage", "dev-lang/rust"}
	require.Equal(t, []string{"dev-lang/Go", "dev-lang/rust"}, Filter(items, " DEV-lang "))
	require.Equal(t, items, Filter(items, ""))
	require.Empty(t, Filter(items, "python"))
}

func TestStripANSI(t *testing.T) {
	t.Parallel()

	require.Equal(t, ">>> Emerging app-misc/foo", StripANSI("\x1b[32;01m>>>\x1b[0m Emerging \x1b[1mapp-misc/foo\x1b[0m"))
}
