// Command ws_smoke joins a room over the raw websocket protocol, sends one
// message and waits for the server to echo it back as new_message.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/spf13/cobra"

	applog "github.com/vovakirdan/bookchat/internal/log"
	"github.com/vovakirdan/bookchat/internal/proto"
)

type options struct {
	addr    string
	user    string
	token   string
	room    string
	text    string
	timeout time.Duration
}

func main() {
	opts := options{}
	cmd := &cobra.Command{
		Use:           "ws_smoke",
		Short:         "Send one message over the realtime websocket and wait for its echo",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "ws://localhost:8090/ws", "WebSocket address")
	cmd.Flags().StringVar(&opts.user, "user", "cust-1", "user id sent with the handshake")
	cmd.Flags().StringVar(&opts.token, "token", "", "bearer token, optional")
	cmd.Flags().StringVar(&opts.room, "room", "room-court", "room id")
	cmd.Flags().StringVar(&opts.text, "text", "hello from smoke test", "message text to send")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "total timeout for the run")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "ws_smoke: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	logger := applog.New("debug")

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	u, err := url.Parse(opts.addr)
	if err != nil {
		return fmt.Errorf("parse addr: %w", err)
	}
	q := u.Query()
	q.Set("userId", opts.user)
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("X-User-ID", opts.user)
	if opts.token != "" {
		header.Set("Authorization", "Bearer "+opts.token)
	}

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(event string, data any) error {
		env, err := proto.NewEnvelope(event, data)
		if err != nil {
			return fmt.Errorf("encode %s: %w", event, err)
		}
		if err := wsjson.Write(ctx, conn, env); err != nil {
			return fmt.Errorf("send %s: %w", event, err)
		}
		return nil
	}

	if err := send(proto.IntentJoinChat, proto.RoomData{ChatRoomID: opts.room}); err != nil {
		return err
	}
	if err := send(proto.IntentSendMessage, proto.SendMessageData{ChatRoomID: opts.room, Content: opts.text, Type: "text"}); err != nil {
		return err
	}

	for {
		var env proto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		logger.Debug().Str("event", env.Event).RawJSON("data", env.Data).Msg("received")

		switch env.Event {
		case proto.EventError:
			var data proto.ErrorData
			if err := json.Unmarshal(env.Data, &data); err != nil {
				return fmt.Errorf("decode error event: %w", err)
			}
			return fmt.Errorf("server error %s: %s", data.Code, data.Msg)
		case proto.EventNewMessage:
			var data proto.NewMessageData
			if err := json.Unmarshal(env.Data, &data); err != nil {
				return fmt.Errorf("decode new_message: %w", err)
			}
			msg, ok := data.Message.ToMessage(data.ChatRoomID)
			if !ok {
				return fmt.Errorf("new_message without content")
			}
			logger.Info().
				Str("chat_room_id", msg.RoomID).
				Str("sender_id", msg.SenderID).
				Str("message_id", msg.ID).
				Msg(msg.Content)
			return nil
		}
	}
}
