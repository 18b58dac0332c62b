// Package main 提供游戏服务器测试客户端
package main

import (
	"flag"
	"log"
	"time"

	"github.com/qiminjie89/gameserver/internal/protocol"
)

var (
	serverAddr = flag.String("addr", "localhost:5000", "game server UDP address")
	playerName = flag.String("name", "tester", "player name")
	token      = flag.String("token", "dev_tester", "auth token (dev_xxx for dev mode)")
	version    = flag.String("version", "1.0", "client version")
	mode       = flag.String("mode", "interactive", "mode: interactive | load")
	verbose    = flag.Bool("v", false, "verbose output")
)

func main() {
	flag.Parse()

	log.SetFlags(log.Ltime | log.Lmicroseconds)

	switch *mode {
	case "interactive":
		runInteractive()
	case "load":
		runLoadTest()
	default:
		log.Fatalf("unknown mode: %s", *mode)
	}
}

// connect 建连并完成握手
func connect(name string) (*Client, *protocol.ConnectResponse) {
	c, err := DialClient(*serverAddr, *verbose)
	if err != nil {
		log.Fatalf("dial failed: %v", err)
	}

	resp, err := c.Connect(name, *token, *version, 5*time.Second)
	if err != nil {
		log.Fatalf("connect failed: %v", err)
	}
	if !resp.Success {
		log.Fatalf("connect rejected: %s", resp.Message)
	}
	return c, resp
}
