package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/qiminjie89/gameserver/internal/protocol"
)

var (
	loadClients  = flag.Int("clients", 10, "number of concurrent clients")
	loadRate     = flag.Int("rate", 20, "moves per second per client")
	loadDuration = flag.Duration("duration", 30*time.Second, "test duration")
)

// runLoadTest 压力测试：N 个客户端按固定频率发送移动
func runLoadTest() {
	log.Printf("Load test: %d clients, %d moves/s each, %v",
		*loadClients, *loadRate, *loadDuration)

	var (
		sent     atomic.Int64
		received atomic.Int64
		errors   atomic.Int64
	)

	stop := make(chan struct{})
	var wg sync.WaitGroup

	for i := 0; i < *loadClients; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			c, err := DialClient(*serverAddr, false)
			if err != nil {
				log.Printf("client %d dial failed: %v", idx, err)
				errors.Add(1)
				return
			}
			defer c.Close()

			c.OnMessage = func(protocol.Message) {
				received.Add(1)
			}

			name := fmt.Sprintf("load-%d", idx)
			resp, err := c.Connect(name, fmt.Sprintf("dev_load_%d", idx), *version, 5*time.Second)
			if err != nil || !resp.Success {
				log.Printf("client %d connect failed: %v", idx, err)
				errors.Add(1)
				return
			}

			rng := rand.New(rand.NewSource(int64(idx)))
			pos := resp.Spawn
			interval := time.Second / time.Duration(*loadRate)
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-stop:
					return
				case <-ticker.C:
					pos.X += rng.Float32()*2 - 1
					pos.Z += rng.Float32()*2 - 1
					err := c.SendUnreliable(&protocol.Move{
						PlayerID:    c.PlayerID(),
						Position:    pos,
						TimestampMs: uint64(time.Now().UnixMilli()),
					})
					if err != nil {
						errors.Add(1)
					} else {
						sent.Add(1)
					}
				}
			}
		}(i)
	}

	// 每秒打一次进度
	statsTicker := time.NewTicker(time.Second)
	defer statsTicker.Stop()
	deadline := time.After(*loadDuration)

	var lastSent, lastReceived int64
	for {
		select {
		case <-statsTicker.C:
			s, r := sent.Load(), received.Load()
			log.Printf("sent=%d (+%d/s) received=%d (+%d/s) errors=%d",
				s, s-lastSent, r, r-lastReceived, errors.Load())
			lastSent, lastReceived = s, r
		case <-deadline:
			close(stop)
			wg.Wait()
			log.Printf("done: sent=%d received=%d errors=%d",
				sent.Load(), received.Load(), errors.Load())
			return
		}
	}
}
