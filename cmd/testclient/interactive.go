package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/qiminjie89/gameserver/internal/protocol"
)

// runInteractive 交互式测试客户端
func runInteractive() {
	log.Printf("Interactive test client")
	log.Printf("  Server: %s", *serverAddr)

	c, resp := connect(*playerName)
	defer c.Close()

	log.Printf("Connected. player_id=%d spawn=(%.1f, %.1f, %.1f)",
		resp.PlayerID, resp.Spawn.X, resp.Spawn.Y, resp.Spawn.Z)
	log.Printf("Type 'help' for commands.")

	pos := resp.Spawn

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Print("> ")
			continue
		}

		parts := strings.Fields(line)
		cmd := parts[0]

		switch cmd {
		case "help":
			printHelp()

		case "move":
			// move <x> <y> <z>
			if len(parts) < 4 {
				log.Printf("Usage: move <x> <y> <z>")
				break
			}
			x := parseFloat(parts[1])
			y := parseFloat(parts[2])
			z := parseFloat(parts[3])
			pos = protocol.Position{X: x, Y: y, Z: z}
			err := c.SendUnreliable(&protocol.Move{
				PlayerID:    c.PlayerID(),
				Position:    pos,
				TimestampMs: uint64(time.Now().UnixMilli()),
			})
			logSend("move", err)

		case "attack":
			// attack <player_id>
			if len(parts) < 2 {
				log.Printf("Usage: attack <player_id>")
				break
			}
			err := c.SendReliable(&protocol.Attack{
				AttackerID: c.PlayerID(),
				Target: protocol.AttackTarget{
					Kind:     protocol.TargetPlayer,
					PlayerID: uint32(parseInt(parts[1])),
				},
				AttackType: protocol.AttackNormal,
			})
			logSend("attack", err)

		case "skill":
			// skill <skill_id> [player_id]
			if len(parts) < 2 {
				log.Printf("Usage: skill <skill_id> [player_id]")
				break
			}
			target := protocol.AttackTarget{
				Kind:     protocol.TargetPlayer,
				PlayerID: c.PlayerID(),
			}
			if len(parts) > 2 {
				target.PlayerID = uint32(parseInt(parts[2]))
			}
			err := c.SendReliable(&protocol.Skill{
				CasterID: c.PlayerID(),
				SkillID:  uint32(parseInt(parts[1])),
				Target:   target,
			})
			logSend("skill", err)

		case "respawn":
			err := c.SendReliable(&protocol.Respawn{PlayerID: c.PlayerID()})
			logSend("respawn", err)

		case "quit", "exit":
			log.Printf("Bye.")
			return

		default:
			log.Printf("Unknown command: %s (try 'help')", cmd)
		}

		fmt.Print("> ")
	}
}

func printHelp() {
	fmt.Println(`Commands:
  move <x> <y> <z>        move to position
  attack <player_id>      basic attack on a player
  skill <id> [player_id]  cast skill (default target: self)
  respawn                 request respawn after death
  quit                    disconnect and exit`)
}

func logSend(what string, err error) {
	if err != nil {
		log.Printf("send %s failed: %v", what, err)
	}
}

func parseFloat(s string) float32 {
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		log.Printf("bad number %q, using 0", s)
		return 0
	}
	return float32(v)
}

func parseInt(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		log.Printf("bad number %q, using 0", s)
		return 0
	}
	return v
}
