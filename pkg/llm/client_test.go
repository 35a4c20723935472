package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chatbot-rag-go/internal/config"
)

func testClient(serverURL string) Client {
	return NewClient(config.LLMConfig{
		APIKey:  "test-key",
		BaseURL: serverURL,
		Model:   "test-model",
	})
}

func TestChatCompletion(t *testing.T) {
	var gotBody chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("解析请求体失败: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"hello there"}}]}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	reply, err := client.ChatCompletion(context.Background(), []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hi"},
	}, nil)
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}
	if reply != "hello there" {
		t.Fatalf("reply = %q", reply)
	}
	if gotBody.Model != "test-model" || gotBody.Stream {
		t.Fatalf("请求体异常: %+v", gotBody)
	}
	if len(gotBody.Messages) != 2 || gotBody.Messages[1].Content != "hi" {
		t.Fatalf("消息透传异常: %+v", gotBody.Messages)
	}
}

func TestChatCompletionModelOverride(t *testing.T) {
	var gotBody chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer server.Close()

	temperature := 0.3
	client := testClient(server.URL)
	_, err := client.ChatCompletion(context.Background(), []Message{{Role: "user", Content: "hi"}}, &GenerationParams{
		Model:       "summary-model",
		Temperature: &temperature,
	})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}
	if gotBody.Model != "summary-model" {
		t.Fatalf("Model = %q, want 覆盖后的 summary-model", gotBody.Model)
	}
	if gotBody.Temperature == nil || *gotBody.Temperature != 0.3 {
		t.Fatalf("Temperature 透传异常: %+v", gotBody.Temperature)
	}
}

func TestChatCompletionNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	_, err := client.ChatCompletion(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil)
	if err == nil {
		t.Fatal("非 200 响应应返回错误")
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("错误应包含响应体: %v", err)
	}
}

func TestStreamChatCompletion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body chatRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		if !body.Stream {
			t.Error("流式调用应设置 stream: true")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		lines := []string{
			`data: {"choices":[{"delta":{"content":"Hel"}}]}`,
			`: heartbeat comment`,
			`data: {"choices":[{"delta":{"content":"lo"}}]}`,
			`data: not-valid-json`,
			`data: {"choices":[{"delta":{}}]}`,
			`data: [DONE]`,
		}
		for _, line := range lines {
			_, _ = w.Write([]byte(line + "\n\n"))
		}
	}))
	defer server.Close()

	client := testClient(server.URL)
	var deltas []string
	err := client.StreamChatCompletion(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil, func(delta string) error {
		deltas = append(deltas, delta)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamChatCompletion: %v", err)
	}
	// 心跳与坏行被跳过；空 delta 原样回调，由上层决定忽略
	if strings.Join(deltas, "") != "Hello" {
		t.Fatalf("deltas = %v", deltas)
	}
}

func TestStreamChatCompletionCallbackErrorAborts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for i := 0; i < 100; i++ {
			_, _ = w.Write([]byte(`data: {"choices":[{"delta":{"content":"x"}}]}` + "\n"))
		}
		_, _ = w.Write([]byte("data: [DONE]\n"))
	}))
	defer server.Close()

	client := testClient(server.URL)
	calls := 0
	err := client.StreamChatCompletion(context.Background(), []Message{{Role: "user", Content: "hi"}}, nil, func(delta string) error {
		calls++
		if calls == 3 {
			return context.Canceled
		}
		return nil
	})
	if err == nil {
		t.Fatal("回调错误应中断流并返回")
	}
	if calls != 3 {
		t.Fatalf("回调被调用 %d 次, want 3", calls)
	}
}
