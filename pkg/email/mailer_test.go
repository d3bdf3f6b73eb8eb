package email_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/email"
)

func TestSendEmailParams_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		params  email.SendEmailParams
		wantErr string
	}{
		{
			name:   "html body",
			params: email.SendEmailParams{SendTo: "user@example.com", Subject: "Hi", BodyHTML: "<p>x</p>"},
		},
		{
			name:   "text body only",
			params: email.SendEmailParams{SendTo: "user@example.com", Subject: "Hi", BodyText: "x"},
		},
		{
			name:   "plus addressing",
			params: email.SendEmailParams{SendTo: "test.user+tag@sub.example.com", Subject: "Hi", BodyText: "x"},
		},
		{
			name:    "empty recipient",
			params:  email.SendEmailParams{SendTo: "  ", Subject: "Hi", BodyText: "x"},
			wantErr: "SendTo is required",
		},
		{
			name:    "invalid recipient",
			params:  email.SendEmailParams{SendTo: "user@", Subject: "Hi", BodyText: "x"},
			wantErr: "SendTo must be a valid email address",
		},
		{
			name:    "empty subject",
			params:  email.SendEmailParams{SendTo: "user@example.com", Subject: " ", BodyText: "x"},
			wantErr: "Subject is required",
		},
		{
			name:    "no body",
			params:  email.SendEmailParams{SendTo: "user@example.com", Subject: "Hi"},
			wantErr: "BodyHTML or BodyText is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.params.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, email.ErrInvalidParams)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDevSender_SendEmail(t *testing.T) {
	t.Parallel()

	t.Run("writes bodies and metadata", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		sender := email.NewDevSender(dir)

		err := sender.SendEmail(context.Background(), email.SendEmailParams{
			SendTo:   "user@example.com",
			Subject:  "Order shipped",
			BodyHTML: "<p>shipped</p>",
			BodyText: "shipped",
			Tag:      "order.shipped",
		})
		require.NoError(t, err)

		files, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, files, 3)

		var metaFile string
		for _, f := range files {
			assert.Contains(t, f.Name(), "order.shipped")
			if strings.HasSuffix(f.Name(), ".json") {
				metaFile = f.Name()
			}
		}
		require.NotEmpty(t, metaFile)

		data, err := os.ReadFile(filepath.Join(dir, metaFile))
		require.NoError(t, err)
		var meta map[string]any
		require.NoError(t, json.Unmarshal(data, &meta))
		assert.Equal(t, "user@example.com", meta["send_to"])
		assert.Equal(t, "Order shipped", meta["subject"])
	})

	t.Run("text only skips html file", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		sender := email.NewDevSender(dir)

		err := sender.SendEmail(context.Background(), email.SendEmailParams{
			SendTo:   "user@example.com",
			Subject:  "Digest",
			BodyText: "3 updates",
		})
		require.NoError(t, err)

		files, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, files, 2)
		for _, f := range files {
			assert.False(t, strings.HasSuffix(f.Name(), ".html"))
		}
	})

	t.Run("invalid params write nothing", func(t *testing.T) {
		t.Parallel()

		dir := filepath.Join(t.TempDir(), "out")
		sender := email.NewDevSender(dir)

		err := sender.SendEmail(context.Background(), email.SendEmailParams{SendTo: "nope"})
		assert.ErrorIs(t, err, email.ErrInvalidParams)
		_, statErr := os.Stat(dir)
		assert.True(t, os.IsNotExist(statErr))
	})
}

func TestNewSender(t *testing.T) {
	t.Parallel()

	t.Run("dev sender without tokens", func(t *testing.T) {
		t.Parallel()
		s, err := email.NewSender(email.Config{DevOutputDir: t.TempDir()})
		require.NoError(t, err)
		assert.IsType(t, &email.DevSender{}, s)
	})

	t.Run("postmark with tokens", func(t *testing.T) {
		t.Parallel()
		s, err := email.NewSender(email.Config{
			PostmarkServerToken:  "server",
			PostmarkAccountToken: "account",
			SenderEmail:          "noreply@example.com",
			SupportEmail:         "support@example.com",
		})
		require.NoError(t, err)
		assert.NotNil(t, s)
	})
}

func TestNewPostmarkClient_InvalidConfig(t *testing.T) {
	t.Parallel()

	valid := email.Config{
		PostmarkServerToken:  "server",
		PostmarkAccountToken: "account",
		SenderEmail:          "noreply@example.com",
		SupportEmail:         "support@example.com",
	}

	tests := []struct {
		name   string
		mutate func(*email.Config)
		msg    string
	}{
		{"server token", func(c *email.Config) { c.PostmarkServerToken = "" }, "PostmarkServerToken is required"},
		{"account token", func(c *email.Config) { c.PostmarkAccountToken = "" }, "PostmarkAccountToken is required"},
		{"sender email", func(c *email.Config) { c.SenderEmail = "bad" }, "SenderEmail must be a valid email address"},
		{"support email", func(c *email.Config) { c.SupportEmail = "" }, "SupportEmail is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid
			tt.mutate(&cfg)
			client, err := email.NewPostmarkClient(cfg)
			assert.Nil(t, client)
			assert.ErrorIs(t, err, email.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
