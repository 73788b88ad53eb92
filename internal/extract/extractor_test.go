package extract

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/bookmarks/internal/bookmark"
)

const base = "https://example.com/page"

func TestExtract(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 300)

	tests := []struct {
		name string
		html string
		want bookmark.Metadata
	}{
		{
			name: "empty document",
			html: "",
			want: bookmark.Metadata{},
		},
		{
			name: "whitespace only",
			html: " \n\t ",
			want: bookmark.Metadata{},
		},
		{
			name: "no head or meta",
			html: "<p>just a paragraph</p>",
			want: bookmark.Metadata{},
		},
		{
			name: "title only falls back for description",
			html: "<title>Foo</title>",
			want: bookmark.Metadata{Title: "Foo", Description: "Foo"},
		},
		{
			name: "svg title is not the page title",
			html: `<html><head></head><body><svg><title>icon</title></svg></body></html>`,
			want: bookmark.Metadata{},
		},
		{
			name: "svg title before body title",
			html: `<html><head></head><body><svg><title>icon</title></svg><title>Real</title></body></html>`,
			want: bookmark.Metadata{Title: "Real", Description: "Real"},
		},
		{
			name: "head title preferred over inline svg",
			html: `<html><head><title>Real</title></head><body><svg><title>icon</title></svg></body></html>`,
			want: bookmark.Metadata{Title: "Real", Description: "Real"},
		},
		{
			name: "relative image with stray percent is resolved",
			html: `<meta property="og:image" content="/img%zz.png">`,
			want: bookmark.Metadata{Image: "https://example.com/img%25zz.png"},
		},
		{
			name: "open graph wins over everything",
			html: `<html><head>
				<title>Page Title</title>
				<meta name="twitter:title" content="Twitter Title">
				<meta property="og:title" content="OG Title">
				<meta name="description" content="Plain description">
				<meta property="og:description" content="OG description">
				<meta name="twitter:image" content="https://cdn.example.com/tw.png">
				<meta property="og:image" content="https://cdn.example.com/og.png">
			</head></html>`,
			want: bookmark.Metadata{
				Title:       "OG Title",
				Image:       "https://cdn.example.com/og.png",
				Description: "OG description",
			},
		},
		{
			name: "twitter card fallbacks",
			html: `<head>
				<title>Page Title</title>
				<meta name="twitter:title" content="Twitter Title">
				<meta name="twitter:image" content="https://cdn.example.com/tw.png">
				<meta name="twitter:description" content="Twitter description">
			</head>`,
			want: bookmark.Metadata{
				Title:       "Twitter Title",
				Image:       "https://cdn.example.com/tw.png",
				Description: "Twitter description",
			},
		},
		{
			name: "meta description preferred over twitter description",
			html: `<meta name="twitter:description" content="tw"><meta name="description" content="plain">`,
			want: bookmark.Metadata{Description: "plain"},
		},
		{
			name: "og:image declared with name attribute",
			html: `<meta name="og:image" content="https://cdn.example.com/named.png">`,
			want: bookmark.Metadata{Image: "https://cdn.example.com/named.png"},
		},
		{
			name: "empty og:image falls through to favicon",
			html: `<head><meta property="og:image" content=""><link rel="icon" href="/favicon.ico"></head>`,
			want: bookmark.Metadata{Image: "https://example.com/favicon.ico"},
		},
		{
			name: "empty og:image with nothing else",
			html: `<meta property="og:image" content="">`,
			want: bookmark.Metadata{},
		},
		{
			name: "whitespace-only content is absent",
			html: `<title>T</title><meta property="og:title" content="   ">`,
			want: bookmark.Metadata{Title: "T", Description: "T"},
		},
		{
			name: "shortcut icon",
			html: `<link rel="Shortcut Icon" href="static/fav.png">`,
			want: bookmark.Metadata{Image: "https://example.com/static/fav.png"},
		},
		{
			name: "apple touch icon",
			html: `<link rel="stylesheet" href="/site.css"><link rel="apple-touch-icon" href="/touch.png">`,
			want: bookmark.Metadata{Image: "https://example.com/touch.png"},
		},
		{
			name: "relative og:image resolved",
			html: `<meta property="og:image" content="/img.png">`,
			want: bookmark.Metadata{Image: "https://example.com/img.png"},
		},
		{
			name: "protocol relative og:image",
			html: `<meta property="og:image" content="//cdn.example.net/a.png">`,
			want: bookmark.Metadata{Image: "https://cdn.example.net/a.png"},
		},
		{
			name: "image and title trimmed",
			html: `<meta property="og:image" content="  https://cdn.example.com/x.png  "><title>
				Spaced Title
			</title>`,
			want: bookmark.Metadata{
				Title:       "Spaced Title",
				Image:       "https://cdn.example.com/x.png",
				Description: "Spaced Title",
			},
		},
		{
			name: "uppercase tags and attribute values",
			html: `<HEAD><META PROPERTY="OG:TITLE" CONTENT="Shouty"></HEAD>`,
			want: bookmark.Metadata{Title: "Shouty"},
		},
		{
			name: "malformed markup",
			html: `<html><head><meta property="og:title" content="Unclosed"><body><div><p>text<span`,
			want: bookmark.Metadata{Title: "Unclosed"},
		},
		{
			name: "long description truncated",
			html: `<meta property="og:description" content="` + long + `">`,
			want: bookmark.Metadata{Description: strings.Repeat("a", MaxDescriptionLength)},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := New().Extract(tc.html, base)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestExtractAttributeOrderInvariance(t *testing.T) {
	t.Parallel()

	propertyFirst := New().Extract(`<meta property="og:image" content="X">`, "")
	contentFirst := New().Extract(`<meta content="X" property="og:image">`, "")

	require.Equal(t, "X", propertyFirst.Image)
	require.Equal(t, propertyFirst, contentFirst)

	titleA := New().Extract(`<meta name="twitter:title" content="Card">`, base)
	titleB := New().Extract(`<meta content="Card" name="twitter:title">`, base)
	require.Equal(t, "Card", titleA.Title)
	require.Equal(t, titleA, titleB)
}

func TestExtractTruncatesByCharacter(t *testing.T) {
	t.Parallel()

	desc := strings.Repeat("日本語", 100)
	got := New().Extract(`<meta name="description" content="`+desc+`">`, base)

	require.Equal(t, MaxDescriptionLength, utf8.RuneCountInString(got.Description))
	require.True(t, utf8.ValidString(got.Description))
}

func TestExtractKeepsSchemeQualifiedImages(t *testing.T) {
	t.Parallel()

	got := New().Extract(`<meta property="og:image" content="data:image/png;base64,AAAA">`, base)
	require.Equal(t, "data:image/png;base64,AAAA", got.Image)
}

func TestResolve(t *testing.T) {
	t.Parallel()

	require.Equal(t, "https://example.com/img.png", resolve("/img.png", "https://example.com/page"))
	require.Equal(t, "https://example.com/a/b.png", resolve("b.png", "https://example.com/a/page"))
	require.Equal(t, "/img.png", resolve("/img.png", ""))
	require.Equal(t, "/img.png", resolve("/img.png", "not a url"))
	require.Equal(t, "http://other.test/x.png", resolve("http://other.test/x.png", base))
	require.Empty(t, resolve("  ", base))
	require.Equal(t, "https://example.com/img%25zz.png", resolve("/img%zz.png", base))
	require.Equal(t, "https://example.com/a%20b%25.png", resolve("/a%20b%.png", base))
	require.Equal(t, "http://other.test/x%25zz.png", resolve("http://other.test/x%zz.png", base))
}

func TestEscapeStrayPercent(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/plain.png", escapeStrayPercent("/plain.png"))
	require.Equal(t, "/a%20b.png", escapeStrayPercent("/a%20b.png"))
	require.Equal(t, "/img%25zz.png", escapeStrayPercent("/img%zz.png"))
	require.Equal(t, "100%25", escapeStrayPercent("100%"))
	require.Equal(t, "%25a", escapeStrayPercent("%a"))
}

func TestIsIconRel(t *testing.T) {
	t.Parallel()

	require.True(t, isIconRel("icon"))
	require.True(t, isIconRel("shortcut icon"))
	require.True(t, isIconRel("APPLE-TOUCH-ICON"))
	require.False(t, isIconRel("stylesheet"))
	require.False(t, isIconRel("mask-icon"))
}

// FuzzExtract checks extraction never panics and respects the length bound.
func FuzzExtract(f *testing.F) {
	seeds := []string{
		"",
		"<title>Foo</title>",
		`<meta property="og:image" content="/x.png">`,
		`<meta content="y" property="og:title"`,
		"<<<>>>",
	}
	for _, s := range seeds {
		f.Add(s)
	}
	f.Fuzz(func(t *testing.T, html string) {
		got := New().Extract(html, base)
		if utf8.RuneCountInString(got.Description) > MaxDescriptionLength {
			t.Fatalf("description too long: %d", utf8.RuneCountInString(got.Description))
		}
	})
}
