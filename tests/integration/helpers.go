package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/heroiclabs/nakama-common/rtapi"
	"github.com/heroiclabs/nakama-go/v2"
)

const (
	ServerKey = "defaultkey"
	Host      = "127.0.0.1"
	Port      = 7350
)

// requireServer skips the test when no Nakama server is listening locally.
func requireServer(t *testing.T) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", Host, Port), time.Second)
	if err != nil {
		t.Skipf("no server at %s:%d: %v", Host, Port, err)
	}
	conn.Close()
}

type TestClient struct {
	Client  *nakama.Client
	Session *nakama.Session
	Socket  *nakama.Socket
	UserID  string
}

func NewTestClient(t *testing.T) *TestClient {
	t.Helper()
	client := nakama.NewClient(ServerKey, Host, Port, false)

	deviceID := "test_device_" + uuid.NewString()

	session, err := client.AuthenticateDevice(context.Background(), deviceID, true, "")
	if err != nil {
		t.Fatalf("Failed to authenticate: %v", err)
	}

	socket := client.NewSocket()
	if err := socket.Connect(context.Background(), session, true); err != nil {
		t.Fatalf("Failed to connect socket: %v", err)
	}

	return &TestClient{
		Client:  client,
		Session: session,
		Socket:  socket,
		UserID:  session.UserId,
	}
}

func (tc *TestClient) Close() {
	if tc.Socket != nil {
		tc.Socket.Close()
	}
}

type roomAck struct {
	OK      bool   `json:"ok"`
	Code    string `json:"code"`
	MatchID string `json:"match_id"`
	Error   string `json:"error"`
}

// CreateRoom calls the room_create RPC and joins the returned match.
func (tc *TestClient) CreateRoom(t *testing.T, displayName string) (code, matchID string) {
	t.Helper()
	payload := fmt.Sprintf("{\"display_name\": %q}", displayName)
	rpc, err := tc.Client.RpcFunc(context.Background(), tc.Session, "room_create", payload)
	if err != nil {
		t.Fatalf("RPC room_create failed: %v", err)
	}

	var ack roomAck
	if err := json.Unmarshal([]byte(rpc.Payload), &ack); err != nil {
		t.Fatalf("RPC room_create returned bad payload %q: %v", rpc.Payload, err)
	}
	if !ack.OK || ack.MatchID == "" {
		t.Fatalf("RPC room_create rejected: %+v", ack)
	}

	tc.JoinRoom(t, ack.MatchID, displayName)
	return ack.Code, ack.MatchID
}

// ResolveRoom calls the room_join RPC for a code without joining the match.
func (tc *TestClient) ResolveRoom(t *testing.T, code string) roomAck {
	t.Helper()
	payload := fmt.Sprintf("{\"code\": %q}", code)
	rpc, err := tc.Client.RpcFunc(context.Background(), tc.Session, "room_join", payload)
	if err != nil {
		t.Fatalf("RPC room_join failed: %v", err)
	}

	var ack roomAck
	if err := json.Unmarshal([]byte(rpc.Payload), &ack); err != nil {
		t.Fatalf("RPC room_join returned bad payload %q: %v", rpc.Payload, err)
	}
	return ack
}

// JoinRoom joins the match carrying the display name in the join metadata.
func (tc *TestClient) JoinRoom(t *testing.T, matchID, displayName string) {
	t.Helper()
	metadata := map[string]string{"display_name": displayName}
	if _, err := tc.Socket.JoinMatch(context.Background(), nil, matchID, metadata); err != nil {
		t.Fatalf("Failed to join match %s: %v", matchID, err)
	}
}

// SendOp sends one opcode message into the match.
func (tc *TestClient) SendOp(t *testing.T, matchID string, opCode int64, data []byte) {
	t.Helper()
	if _, err := tc.Socket.SendMatchState(context.Background(), matchID, opCode, data, nil); err != nil {
		t.Fatalf("Failed to send op %d: %v", opCode, err)
	}
}

// WaitForMatchState waits for a specific opcode from the socket.
func (tc *TestClient) WaitForMatchState(t *testing.T, opCode int64, timeout time.Duration) *rtapi.MatchData {
	t.Helper()
	ch := make(chan *rtapi.MatchData, 1)

	originalHandler := tc.Socket.OnMatchData
	tc.Socket.OnMatchData = func(data *rtapi.MatchData) {
		if data.OpCode == opCode {
			select {
			case ch <- data:
			default:
			}
		}
		if originalHandler != nil {
			originalHandler(data)
		}
	}

	select {
	case data := <-ch:
		return data
	case <-time.After(timeout):
		t.Fatalf("Timeout waiting for OpCode %d", opCode)
		return nil
	}
}
