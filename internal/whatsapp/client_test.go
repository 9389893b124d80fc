package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spigell/worky/internal/conversation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorded struct {
	path string
	auth string
	body map[string]any
}

func newTestClient(t *testing.T, status int, reply string) (*Client, *[]recorded) {
	t.Helper()
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{path: r.URL.Path, auth: r.Header.Get("Authorization")}
		if r.Method == http.MethodPost {
			data, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(data, &rec.body)
		}
		calls = append(calls, rec)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL, PhoneNumberID: "123", Token: "secret"}, zap.NewNop())
	require.NoError(t, err)
	return c, &calls
}

func TestSendText(t *testing.T) {
	c, calls := newTestClient(t, http.StatusOK, `{"messages":[{"id":"wamid.1"}]}`)

	require.NoError(t, c.Send(context.Background(), "51999", conversation.Say("hola")))
	require.Len(t, *calls, 1)

	call := (*calls)[0]
	assert.Equal(t, "/v21.0/123/messages", call.path)
	assert.Equal(t, "Bearer secret", call.auth)
	assert.Equal(t, "text", call.body["type"])
	assert.Equal(t, "51999", call.body["to"])
	assert.Equal(t, "hola", call.body["text"].(map[string]any)["body"])
}

func TestSendButtonsAndList(t *testing.T) {
	c, calls := newTestClient(t, http.StatusOK, `{}`)
	ctx := context.Background()

	require.NoError(t, c.Send(ctx, "51999", conversation.Buttons{
		Body:   "¿Continuar?",
		Labels: []string{"✅ Sí, continuar", "⏹️ Detener"},
	}))
	require.NoError(t, c.Send(ctx, "51999", conversation.List{
		Header: "Trabajos",
		Body:   "Elige uno",
		Button: "Ver",
		Sections: []conversation.Section{{
			Title: "Resultados",
			Rows:  []conversation.Row{{ID: "trabajo_1", Title: strings.Repeat("x", 40), Description: "d"}},
		}},
	}))

	buttons := (*calls)[0].body["interactive"].(map[string]any)
	assert.Equal(t, "button", buttons["type"])
	list := buttons["action"].(map[string]any)["buttons"].([]any)
	assert.Len(t, list, 2)
	assert.Equal(t, "⏹️ Detener", list[1].(map[string]any)["reply"].(map[string]any)["title"])

	interactive := (*calls)[1].body["interactive"].(map[string]any)
	assert.Equal(t, "list", interactive["type"])
	sections := interactive["action"].(map[string]any)["sections"].([]any)
	row := sections[0].(map[string]any)["rows"].([]any)[0].(map[string]any)
	assert.Equal(t, "trabajo_1", row["id"])
	assert.Len(t, []rune(row["title"].(string)), maxRowTitle)
}

func TestSendMediaKinds(t *testing.T) {
	c, calls := newTestClient(t, http.StatusOK, `{}`)
	ctx := context.Background()

	require.NoError(t, c.Send(ctx, "51999", conversation.Media{URL: "https://files/report.pdf?x=1", Caption: "Tu reporte"}))
	require.NoError(t, c.Send(ctx, "51999", conversation.Media{URL: "https://files/a.png"}))

	doc := (*calls)[0].body
	assert.Equal(t, "document", doc["type"])
	assert.Equal(t, "report.pdf", doc["document"].(map[string]any)["filename"])
	assert.Equal(t, "image", (*calls)[1].body["type"])
}

func TestSendRejectsTooManyButtons(t *testing.T) {
	c, calls := newTestClient(t, http.StatusOK, `{}`)
	err := c.Send(context.Background(), "51999", conversation.Buttons{Body: "x", Labels: []string{"a", "b", "c", "d"}})
	require.Error(t, err)
	assert.Empty(t, *calls)
}

func TestSendAPIError(t *testing.T) {
	c, _ := newTestClient(t, http.StatusBadRequest, `{"error":{"message":"invalid recipient","code":131030}}`)

	err := c.Send(context.Background(), "1", conversation.Say("x"))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 131030, apiErr.Code)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
}

func TestResolveMedia(t *testing.T) {
	c, calls := newTestClient(t, http.StatusOK, `{"url":"https://lookaside/media/1","mime_type":"application/pdf"}`)

	ev := &conversation.Event{File: &conversation.File{ID: "media-1"}}
	require.NoError(t, c.Resolve(context.Background(), ev))

	assert.Equal(t, "/v21.0/media-1", (*calls)[0].path)
	assert.Equal(t, "https://lookaside/media/1", ev.URL)
	assert.Equal(t, "application/pdf", ev.File.MimeType)
	assert.True(t, ev.HasMedia())

	require.NoError(t, c.Resolve(context.Background(), &conversation.Event{Body: "text"}))
	assert.Len(t, *calls, 1)
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{Token: "x"}, nil)
	assert.Error(t, err)
	_, err = New(Config{PhoneNumberID: "1"}, nil)
	assert.Error(t, err)
}
