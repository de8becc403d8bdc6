package parser

import "testing"

func TestFindFeedLinks(t *testing.T) {
	page := `<!DOCTYPE html>
<html>
<head>
  <title>ブログ</title>
  <link rel="stylesheet" href="/style.css">
  <link rel="alternate" type="application/rss+xml" title="RSS" href="/feed.xml">
  <link rel="alternate" type="application/atom+xml" href="https://cdn.example.com/atom.xml">
  <link rel="alternate" type="text/html" href="/en/">
</head>
<body>
  <link rel="alternate" type="application/rss+xml" href="/ignored.xml">
</body>
</html>`

	links := FindFeedLinks([]byte(page), "https://example.com/blog/")
	if len(links) != 2 {
		t.Fatalf("links = %+v, want 2", links)
	}
	if links[0].URL != "https://example.com/feed.xml" || links[0].Title != "RSS" {
		t.Errorf("links[0] = %+v", links[0])
	}
	if links[1].URL != "https://cdn.example.com/atom.xml" || links[1].Type != "application/atom+xml" {
		t.Errorf("links[1] = %+v", links[1])
	}
}

func TestFindFeedLinks_NoHead(t *testing.T) {
	if links := FindFeedLinks([]byte("<p>本文のみ</p>"), "https://example.com/"); len(links) != 0 {
		t.Errorf("links = %+v, want none", links)
	}
}

func TestIsHTML(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		want        bool
	}{
		{name: "text/html", contentType: "text/html; charset=utf-8", body: "<html></html>", want: true},
		{name: "text/htmlでも本文がRSS", contentType: "text/html", body: `<?xml version="1.0"?><rss version="2.0"></rss>`, want: false},
		{name: "Content-Typeなしのdoctype", contentType: "", body: "  <!DOCTYPE html><html>", want: true},
		{name: "XML", contentType: "application/xml", body: "<rss></rss>", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isHTML(tt.contentType, []byte(tt.body)); got != tt.want {
				t.Errorf("isHTML = %v, want %v", got, tt.want)
			}
		})
	}
}
