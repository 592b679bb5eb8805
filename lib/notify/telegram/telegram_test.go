package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uzx-v/renewbot/lib/notify"
)

func TestSendMessage(t *testing.T) {
	var gotPath string
	var gotChatId string
	var gotText string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseForm())
		gotChatId = r.FormValue("chat_id")
		gotText = r.FormValue("text")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := NewClient(Options{
		Token:   "123:abc",
		ChatId:  "42",
		BaseUrl: server.URL,
	})
	err := client.SendMessage(context.Background(), "server renewed")
	require.NoError(t, err)

	require.Equal(t, "/bot123:abc/sendMessage", gotPath)
	require.Equal(t, "42", gotChatId)
	require.Equal(t, "server renewed", gotText)
}

func TestSendMessageRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer server.Close()

	client := NewClient(Options{Token: "123:abc", ChatId: "42", BaseUrl: server.URL})
	err := client.SendMessage(context.Background(), "hello")
	require.Error(t, err)
	require.Contains(t, err.Error(), "chat not found")
}

func TestNotifierSendsPhotoForScreenshots(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseMultipartForm(1<<20))
		_, header, err := r.FormFile("photo")
		require.NoError(t, err)
		require.Equal(t, "screenshot.png", header.Filename)
		require.NotEmpty(t, r.FormValue("caption"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	n := Notifier{Client: NewClient(Options{Token: "t", ChatId: "42", BaseUrl: server.URL})}
	err := n.Notify(context.Background(), notify.Event{
		Provider:   "castlehost",
		Target:     "srv-1",
		Status:     "failed",
		Subject:    "renewal failed",
		Message:    "login form rejected cookies",
		Screenshot: []byte{0x89, 0x50, 0x4e, 0x47},
		At:         time.Now(),
	})
	require.NoError(t, err)
	require.Equal(t, "/bott/sendPhoto", gotPath)
}
