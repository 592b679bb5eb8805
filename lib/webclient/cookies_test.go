package webclient

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCookieString(t *testing.T) {
	cookies := ParseCookieString("remember_web=abc123; XSRF-TOKEN=t0k=en==; session=xyz")
	require.Len(t, cookies, 3)

	require.Equal(t, "remember_web", cookies[0].Name)
	require.Equal(t, "abc123", cookies[0].Value)

	// only the first '=' separates name from value
	require.Equal(t, "XSRF-TOKEN", cookies[1].Name)
	require.Equal(t, "t0k=en==", cookies[1].Value)

	require.Equal(t, "session", cookies[2].Name)
	require.Equal(t, "xyz", cookies[2].Value)
}

func TestParseCookieStringMalformed(t *testing.T) {
	require.Empty(t, ParseCookieString(""))
	require.Empty(t, ParseCookieString(";;;"))
	require.Empty(t, ParseCookieString("novalue; =orphan"))

	cookies := ParseCookieString(" a=1 ;; b=2 ")
	require.Len(t, cookies, 2)
	require.Equal(t, "a", cookies[0].Name)
	require.Equal(t, "1", cookies[0].Value)
	require.Equal(t, "b", cookies[1].Name)
	require.Equal(t, "2", cookies[1].Value)
}
