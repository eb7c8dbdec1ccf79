package format

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestHTML(t *testing.T) {
	cases := []struct {
		tag, text, url, want string
	}{
		{TagNone, "a < b & c", "", "a &lt; b &amp; c"},
		{TagBold, "YouTube:", "", "<b>YouTube:</b>"},
		{TagLink, "Tom & Jerry", `https://x.test/?a="1"&b=2`, `<a href="https://x.test/?a=&quot;1&quot;&amp;b=2">Tom &amp; Jerry</a>`},
		{TagCode, "<x>", "", "<code>&lt;x&gt;</code>"},
	}
	for _, tc := range cases {
		got, err := HTML(tc.tag, tc.text, tc.url)
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}

	_, err := HTML("u", "x")
	require.Error(t, err)
}

func TestSplitPagesShortText(t *testing.T) {
	require.Equal(t, []string{"one\ntwo"}, SplitPages("one\ntwo", 0))
}

func TestSplitPagesOnLineBoundaries(t *testing.T) {
	text := "aaaa\nbbbb\ncccc\ndd"
	pages := SplitPages(text, 9)
	require.Equal(t, []string{"aaaa\nbbbb", "cccc\ndd"}, pages)
	require.Equal(t, text, strings.Join(pages, "\n"))
}

func TestSplitPagesCutsLongLines(t *testing.T) {
	long := strings.Repeat("я", 25)
	pages := SplitPages("x\n"+long, 10)
	require.Equal(t, "x", pages[0])
	for _, p := range pages {
		require.LessOrEqual(t, utf8.RuneCountInString(p), 10)
	}
	require.Equal(t, "x"+long, strings.Join(pages, ""))
}
