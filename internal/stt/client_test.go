package stt

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recognizerStub upgrades connections, verifies the config frame, echoes
// scripted hypotheses for each received audio frame, and answers eof with a
// final.
func recognizerStub(t *testing.T, hypotheses []string, final string) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		_, configFrame, err := conn.ReadMessage()
		require.NoError(t, err)
		var config struct {
			Config struct {
				SampleRate int `json:"sample_rate"`
			} `json:"config"`
		}
		require.NoError(t, json.Unmarshal(configFrame, &config))
		require.Equal(t, 16000, config.Config.SampleRate)

		sent := 0
		for {
			msgType, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if msgType == websocket.TextMessage && strings.Contains(string(payload), "eof") {
				_ = conn.WriteJSON(map[string]string{"text": final})
				return
			}
			if sent < len(hypotheses) {
				_ = conn.WriteJSON(map[string]string{"partial": hypotheses[sent]})
				sent++
			}
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestClientStreamsDeltasAndFinal(t *testing.T) {
	server := recognizerStub(t, []string{"hello", "hello world"}, "hello world.")
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := Dial(ctx, wsURL(server), 16000, newTestLogger())
	require.NoError(t, err)

	require.NoError(t, client.Send(ctx, []byte{0, 1}))
	require.NoError(t, client.Send(ctx, []byte{2, 3}))

	first := <-client.Deltas()
	require.Equal(t, Delta{Text: "hello"}, first)

	second := <-client.Deltas()
	require.Equal(t, Delta{Text: " world"}, second)

	require.NoError(t, client.Close(ctx))

	final := <-client.Deltas()
	require.True(t, final.Final)
	require.Equal(t, ".", final.Text)
}

func TestClientSendAfterCloseFails(t *testing.T) {
	server := recognizerStub(t, nil, "")
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := Dial(ctx, wsURL(server), 16000, newTestLogger())
	require.NoError(t, err)
	require.NoError(t, client.Close(ctx))

	err = client.Send(ctx, []byte{0, 1})
	require.Error(t, err)
	require.Contains(t, err.Error(), "closed")
}

func TestClientSendSkipsEmptyChunks(t *testing.T) {
	server := recognizerStub(t, nil, "")
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	client, err := Dial(ctx, wsURL(server), 16000, newTestLogger())
	require.NoError(t, err)
	defer func() { _ = client.Close(ctx) }()

	require.NoError(t, client.Send(ctx, nil))
}

func TestDialFailsWhenServerUnavailable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err := Dial(ctx, "ws://127.0.0.1:1/ws", 16000, newTestLogger())
	require.Error(t, err)
}
