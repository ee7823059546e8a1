package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"dating_platform/internal/db"
	"dating_platform/internal/domain"
	"dating_platform/internal/logger"
	"dating_platform/internal/repository"
	"dating_platform/internal/service"
)

// Against a running server: connects user B to /ws, has user A send B a
// gift over HTTP and waits for the gift_received push.
func main() {
	itemID := flag.Int64("item", 0, "gift item id to send (0 only checks the ready handshake)")
	flag.Parse()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Fatal("DATABASE_URL not set")
	}
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	pool := db.Connect(dsn)
	defer pool.Close()
	conn := db.NewPool(pool)

	ur := repository.NewUserRepository()
	ctx := context.Background()

	ensure := func(email, name string) *domain.User {
		u, err := ur.GetByEmail(ctx, conn, email)
		if err != nil {
			logger.Fatal("get user", "email", email, "error", err)
		}
		if u == nil {
			u = &domain.User{Email: email, Username: name}
			if err := ur.Create(ctx, conn, u); err != nil {
				logger.Fatal("create user", "email", email, "error", err)
			}
		}
		return u
	}
	uA := ensure("smoke-a@example.com", "smokeA")
	uB := ensure("smoke-b@example.com", "smokeB")

	service.InitJWT()
	tokenA, err := service.GenerateJWT(uA.ID)
	if err != nil {
		logger.Fatal("gen token A", "error", err)
	}
	tokenB, err := service.GenerateJWT(uB.ID)
	if err != nil {
		logger.Fatal("gen token B", "error", err)
	}

	// use 127.0.0.1 to prefer IPv4 (avoid resolving to [::1])
	base := "127.0.0.1:" + port
	wsConn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/ws?token=%s", base, tokenB), nil)
	if err != nil {
		logger.Fatal("dial", "error", err)
	}
	defer wsConn.Close()

	waitFor := func(msgType string, timeout time.Duration) bool {
		deadline := time.Now().Add(timeout)
		for time.Now().Before(deadline) {
			wsConn.SetReadDeadline(deadline)
			_, msg, err := wsConn.ReadMessage()
			if err != nil {
				return false
			}
			var obj map[string]any
			_ = json.Unmarshal(msg, &obj)
			logger.Info("push received", "message", string(msg))
			if t, ok := obj["type"].(string); ok && t == msgType {
				return true
			}
		}
		return false
	}

	if !waitFor("ready", 2*time.Second) {
		logger.Fatal("no ready handshake")
	}
	if *itemID == 0 {
		logger.Info("smoke test finished")
		return
	}

	body, _ := json.Marshal(map[string]any{"recipient_id": uB.ID, "gift_item_id": *itemID, "message": "smoke"})
	req, _ := http.NewRequest(http.MethodPost, "http://"+base+"/api/v1/gifts/send", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+tokenA)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		logger.Fatal("send gift", "error", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		logger.Fatal("send gift failed", "status", resp.StatusCode)
	}

	if !waitFor(service.MsgGiftReceived, 3*time.Second) {
		logger.Fatal("gift_received push not seen")
	}
	logger.Info("smoke test finished")
}
