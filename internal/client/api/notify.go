package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/coder/websocket"

	"github.com/iudanet/coursesync/pkg/api"
)

// Subscribe открывает websocket канал уведомлений и вызывает fn на каждое
// сообщение. Возвращается при отмене ctx или закрытии соединения.
func (c *Client) Subscribe(ctx context.Context, fn func(api.Notification)) error {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := websocket.Dial(ctx, websocketURL(c.baseURL+NotifyPath), &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return fmt.Errorf("failed to open notification stream: %w", err)
	}
	defer func() {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("notification stream closed: %w", err)
		}

		var n api.Notification
		if err := json.Unmarshal(data, &n); err != nil {
			// битое сообщение не рвет подписку
			continue
		}
		fn(n)
	}
}

func websocketURL(url string) string {
	switch {
	case strings.HasPrefix(url, "https://"):
		return "wss://" + strings.TrimPrefix(url, "https://")
	case strings.HasPrefix(url, "http://"):
		return "ws://" + strings.TrimPrefix(url, "http://")
	default:
		return url
	}
}
