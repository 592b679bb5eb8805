package browser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCaptureWantsMethodFilter(t *testing.T) {
	capture := &ResponseCapture{urlSubstring: "/renew", methods: []string{"POST"}}

	require.True(t, capture.wants("POST", "https://hub.example.com/api/client/servers/abc/renew"))
	require.True(t, capture.wants("post", "https://hub.example.com/api/client/servers/abc/renew"))
	// the SPA reads the same resource while rendering, those must not
	// count as the submit's answer
	require.False(t, capture.wants("GET", "https://hub.example.com/api/client/servers/abc/renew"))
	require.False(t, capture.wants("POST", "https://hub.example.com/api/client/servers/abc"))
}

func TestCaptureWantsAnyMethod(t *testing.T) {
	capture := &ResponseCapture{urlSubstring: "/buy_months/"}

	require.True(t, capture.wants("GET", "https://panel.example.com/servers/buy_months/42"))
	require.True(t, capture.wants("POST", "https://panel.example.com/servers/buy_months/42"))
	require.False(t, capture.wants("GET", "https://panel.example.com/servers/pay/42"))
}

func TestCaptureLast(t *testing.T) {
	capture := &ResponseCapture{}
	_, ok := capture.Last()
	require.False(t, ok)

	capture.bodies = append(capture.bodies,
		CapturedResponse{Status: 200, Body: "first"},
		CapturedResponse{Status: 400, Body: "second"},
	)
	last, ok := capture.Last()
	require.True(t, ok)
	require.Equal(t, "second", last.Body)
	require.Len(t, capture.Responses(), 2)
}
