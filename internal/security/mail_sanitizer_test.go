package security

import (
	"strings"
	"testing"
)

func TestMailSanitizer_RemovesScript(t *testing.T) {
	s := NewMailSanitizer()

	out := s.Sanitize(`<p>本文</p><script>alert("xss")</script>`)
	if strings.Contains(out, "script") || strings.Contains(out, "alert") {
		t.Errorf("scriptタグが除去されていない: %s", out)
	}
	if !strings.Contains(out, "<p>本文</p>") {
		t.Errorf("許可タグが保持されていない: %s", out)
	}
}

func TestMailSanitizer_RemovesImg(t *testing.T) {
	s := NewMailSanitizer()

	out := s.Sanitize(`<p>記事</p><img src="https://example.com/track.png">`)
	if strings.Contains(out, "img") {
		t.Errorf("imgタグが除去されていない: %s", out)
	}
}

func TestMailSanitizer_KeepsLinks(t *testing.T) {
	s := NewMailSanitizer()

	out := s.Sanitize(`<a href="https://example.com/post">リンク</a>`)
	if !strings.Contains(out, `href="https://example.com/post"`) {
		t.Errorf("hrefが保持されていない: %s", out)
	}
}

func TestMailSanitizer_RemovesEventAttrs(t *testing.T) {
	s := NewMailSanitizer()

	out := s.Sanitize(`<p onclick="alert(1)">本文</p>`)
	if strings.Contains(out, "onclick") {
		t.Errorf("onclick属性が除去されていない: %s", out)
	}
}

func TestMailSanitizer_EmptyInput(t *testing.T) {
	s := NewMailSanitizer()

	if out := s.Sanitize(""); out != "" {
		t.Errorf("空入力には空文字列を返すべき: %q", out)
	}
}
