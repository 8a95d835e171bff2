package display

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFilterText(t *testing.T) {
	f := Filter{}
	assert.Equal(t, "", f.FilterText(""))
	assert.Equal(t, "what a nice day", f.FilterText("what a nice day"))

	censored := f.FilterText("this is shit")
	assert.NotEqual(t, "this is shit", censored)
	assert.Contains(t, censored, "this is ")

	assert.Equal(t, "this is shit", Filter{ShowProfanity: true}.FilterText("this is shit"))
	assert.True(t, IsProfane("shit"))
	assert.False(t, IsProfane("sunshine"))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "hello world", Sanitize("<b>hello</b> <script>x()</script>world"))
	assert.Equal(t, "Tom & Jerry", Sanitize("Tom &amp; Jerry"))
	assert.Equal(t, "5 > 3", Sanitize("5 > 3"))

	assert.Equal(t, "a[2Jb", Sanitize("a&#27;[2Jb"))
	assert.Equal(t, "a[31mred", Sanitize("a\x1b[31mred"))
	assert.Equal(t, "ab", Sanitize("a\u009bb"))
	assert.Equal(t, "line one\n\tline two", Sanitize("line one\r\n\tline two"))
}

func TestTimeAgo(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		at   time.Time
		want string
	}{
		{now.Add(-2 * time.Second), "just now"},
		{now.Add(-3 * time.Minute), "3 minutes ago"},
		{now.Add(-2 * time.Hour), "2 hours ago"},
		{time.Time{}, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TimeAgo(tt.at, now))
	}
}

func TestIndent(t *testing.T) {
	assert.Equal(t, "a\nb", Indent("a\nb", 0))
	assert.Equal(t, "    a\n    b", Indent("a\nb", 2))
}
