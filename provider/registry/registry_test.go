package registry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ineyio/chatstream"
	"github.com/ineyio/chatstream/provider/gemini"
	"github.com/ineyio/chatstream/provider/gonka"
	"github.com/ineyio/chatstream/provider/mock"
	"github.com/ineyio/chatstream/provider/ollama"
	"github.com/ineyio/chatstream/provider/openaicompat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gonkaKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestNew_BuildsEveryProvider(t *testing.T) {
	cases := []struct {
		cfg      chatstream.Config
		wantName string
		check    func(t *testing.T, p chatstream.Provider)
	}{
		{
			cfg:      chatstream.Config{Provider: "mistral", APIKey: "k", Model: "mistral-large-latest"},
			wantName: "mistral",
			check: func(t *testing.T, p chatstream.Provider) {
				assert.IsType(t, &openaicompat.Provider{}, p)
				assert.Equal(t, "mistral-large-latest", p.Model().ID)
			},
		},
		{cfg: chatstream.Config{Provider: "openai", APIKey: "k"}, wantName: "openai"},
		{cfg: chatstream.Config{Provider: "openrouter", APIKey: "k", Name: "router"}, wantName: "router"},
		{
			cfg:      chatstream.Config{Provider: "lmstudio", Model: "qwen2.5-7b-instruct"},
			wantName: "lmstudio",
			check: func(t *testing.T, p chatstream.Provider) {
				assert.Equal(t, "qwen2.5-7b-instruct", p.Model().ID)
			},
		},
		{
			cfg:      chatstream.Config{Provider: "openai-compatible", Name: "together", BaseURL: "https://api.together.xyz/v1", Model: "llama"},
			wantName: "together",
			check: func(t *testing.T, p chatstream.Provider) {
				assert.Equal(t, "llama", p.Model().ID)
			},
		},
		{
			cfg:      chatstream.Config{Provider: "gemini", APIKey: "k"},
			wantName: "gemini",
			check: func(t *testing.T, p chatstream.Provider) {
				assert.IsType(t, &gemini.Provider{}, p)
			},
		},
		{
			cfg:      chatstream.Config{Provider: "ollama", Model: "phi4"},
			wantName: "ollama",
			check: func(t *testing.T, p chatstream.Provider) {
				assert.IsType(t, &ollama.Provider{}, p)
				assert.Equal(t, "phi4", p.Model().ID)
			},
		},
		{
			cfg: chatstream.Config{
				Provider: "gonka",
				APIKey:   gonkaKey,
				BaseURL:  "https://node.test/v1",
				Gonka:    chatstream.GonkaConfig{Address: "gonka1node"},
			},
			wantName: "gonka",
			check: func(t *testing.T, p chatstream.Provider) {
				assert.IsType(t, &gonka.Provider{}, p)
			},
		},
		{cfg: chatstream.Config{Provider: "mock", Name: "offline"}, wantName: "offline"},
	}

	for _, tc := range cases {
		t.Run(tc.cfg.Provider, func(t *testing.T) {
			p, err := New(tc.cfg, Deps{})
			require.NoError(t, err)
			require.NotNil(t, p)
			assert.Equal(t, tc.wantName, p.Name())
			if tc.check != nil {
				tc.check(t, p)
			}
		})
	}
}

func TestNew_Errors(t *testing.T) {
	p, err := New(chatstream.Config{Provider: "anthropic"}, Deps{})
	assert.Nil(t, p)
	assert.ErrorIs(t, err, chatstream.ErrUnknownProvider)

	p, err = New(chatstream.Config{Provider: "mistral"}, Deps{})
	assert.Nil(t, p, "typed nil must not leak through the interface")
	assert.ErrorIs(t, err, chatstream.ErrMissingAPIKey)

	_, err = New(chatstream.Config{Provider: "gonka", APIKey: gonkaKey}, Deps{})
	assert.ErrorIs(t, err, chatstream.ErrConfiguration)

	_, err = New(chatstream.Config{Provider: "mock", EmptySystemPrompt: "never"}, Deps{})
	assert.ErrorIs(t, err, chatstream.ErrConfiguration)
}

func TestNew_AppliesOverrides(t *testing.T) {
	p, err := New(chatstream.Config{Provider: "mock", EmptySystemPrompt: "omit"}, Deps{})
	require.NoError(t, err)

	m := p.(*mock.Provider)
	_, err = m.CreateMessage(context.Background(), "", []chatstream.Message{
		chatstream.TextMessage(chatstream.RoleUser, "hi"),
	})
	require.NoError(t, err)
	assert.Len(t, m.LastTranslation().Messages, 1)
}

func TestProviders_AllKnown(t *testing.T) {
	for _, name := range Providers {
		_, err := New(chatstream.Config{Provider: name}, Deps{})
		assert.NotErrorIs(t, err, chatstream.ErrUnknownProvider, name)
	}
}

func TestNew_MaxTokensReachesRequest(t *testing.T) {
	bodies := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		bodies <- body
		_, _ = io.WriteString(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	cases := []struct {
		cfg  chatstream.Config
		read func(map[string]any) any
	}{
		{
			cfg:  chatstream.Config{Provider: "mistral", APIKey: "k", BaseURL: srv.URL, MaxTokens: 100},
			read: func(b map[string]any) any { return b["max_tokens"] },
		},
		{
			cfg:  chatstream.Config{Provider: "openai-compatible", BaseURL: srv.URL, MaxTokens: 100},
			read: func(b map[string]any) any { return b["max_tokens"] },
		},
		{
			cfg: chatstream.Config{
				Provider: "gonka", APIKey: gonkaKey, BaseURL: srv.URL, MaxTokens: 100,
				Gonka: chatstream.GonkaConfig{Address: "gonka1node"},
			},
			read: func(b map[string]any) any { return b["max_tokens"] },
		},
		{
			cfg: chatstream.Config{Provider: "gemini", APIKey: "k", BaseURL: srv.URL, MaxTokens: 100},
			read: func(b map[string]any) any {
				return b["generationConfig"].(map[string]any)["maxOutputTokens"]
			},
		},
		{
			cfg:  chatstream.Config{Provider: "ollama", BaseURL: srv.URL, MaxTokens: 100},
			read: func(b map[string]any) any { return b["options"].(map[string]any)["num_predict"] },
		},
	}

	for _, tc := range cases {
		t.Run(tc.cfg.Provider, func(t *testing.T) {
			p, err := New(tc.cfg, Deps{})
			require.NoError(t, err)

			s, err := p.CreateMessage(context.Background(), "", []chatstream.Message{
				chatstream.TextMessage(chatstream.RoleUser, "hi"),
			})
			require.NoError(t, err)
			_, _, err = s.Collect()
			require.NoError(t, err)

			assert.Equal(t, float64(100), tc.read(<-bodies))
		})
	}
}
