package email

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudrent/api/internal/config"
)

func TestRedisSender_StoresEmail(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cfg := &config.Config{SmtpFromAddress: "noreply@cloudrent.example.com"}
	sender := NewRedisSender(client, cfg)

	raw := ComposeMessage(cfg.SmtpFromAddress, []string{"alice@example.com"}, "New message", "You have mail.")
	err := sender.Send(context.Background(), []string{"alice@example.com"}, "New message", raw)
	require.NoError(t, err)

	stored, err := mr.Get("mockemail:alice@example.com")
	require.NoError(t, err)

	var data map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(stored), &data))
	assert.Equal(t, "alice@example.com", data["to"])
	assert.Equal(t, "noreply@cloudrent.example.com", data["from"])
	assert.Equal(t, "New message", data["subject"])
	assert.Contains(t, data["body"], "You have mail.")
}

func TestComposeMessage(t *testing.T) {
	raw := ComposeMessage("from@example.com", []string{"a@example.com", "b@example.com"}, "Subject line", "Body text")
	msg := string(raw)
	assert.Contains(t, msg, "From: from@example.com\r\n")
	assert.Contains(t, msg, "To: a@example.com, b@example.com\r\n")
	assert.Contains(t, msg, "Subject: Subject line\r\n")
	assert.Contains(t, msg, "\r\n\r\nBody text")
}
