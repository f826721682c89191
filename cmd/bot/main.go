// Command bot drives the command socket: it spawns a few actors and keeps
// trading their gear around until interrupted. Useful as a soak client.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"d20rules.io/internal/logging"
	"d20rules.io/internal/protocol"
)

type snapshot struct {
	ID        uint64            `json:"id"`
	Ref       string            `json:"ref"`
	Equipment map[string]uint64 `json:"equipment"`
}

type result struct {
	ID     string              `json:"id"`
	OK     bool                `json:"ok"`
	Entity *snapshot           `json:"entity"`
	Slot   string              `json:"slot"`
	Error  *protocol.ErrorBody `json:"error"`
}

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name     = flag.String("name", "bot", "client name")
		ref      = flag.String("ref", "npc-bandit", "actor blueprint to spawn")
		actors   = flag.Int("actors", 3, "actors to spawn")
		interval = flag.Duration("interval", 500*time.Millisecond, "delay between moves")
	)
	flag.Parse()

	logger := logging.New("info", "text", os.Stdout).WithField("client", *name)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
		MaxQueue:        8,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}
	var w protocol.WelcomeMsg
	if err := conn.ReadJSON(&w); err != nil {
		logger.Fatalf("read WELCOME: %v", err)
	}
	logger.Infof("WELCOME session=%s blueprints=%d", w.SessionID, w.Blueprints)

	n := 0
	call := func(cmd protocol.CmdMsg) (result, error) {
		n++
		cmd.Type = protocol.TypeCmd
		cmd.ProtocolVersion = protocol.Version
		cmd.ID = fmt.Sprintf("C%d", n)
		var r result
		if err := conn.WriteJSON(cmd); err != nil {
			return r, err
		}
		err := conn.ReadJSON(&r)
		return r, err
	}

	var (
		ids   []uint64
		items []uint64
	)
	for i := 0; i < *actors; i++ {
		r, err := call(protocol.CmdMsg{Op: protocol.OpCreate, Ref: *ref})
		if err != nil {
			logger.Fatalf("create: %v", err)
		}
		if !r.OK {
			logger.Fatalf("create %s: %s %s", *ref, r.Error.Code, r.Error.Message)
		}
		ids = append(ids, r.Entity.ID)
		for _, item := range r.Entity.Equipment {
			if item != 0 {
				items = append(items, item)
			}
		}
	}
	if len(items) == 0 {
		logger.Fatalf("%s carries no gear to move", *ref)
	}
	logger.Infof("spawned %d actors holding %d items", len(ids), len(items))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	tick := time.NewTicker(*interval)
	defer tick.Stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for {
		select {
		case <-stop:
			for _, id := range ids {
				_, _ = call(protocol.CmdMsg{Op: protocol.OpDestroy, EntityID: id})
			}
			return
		case <-tick.C:
		}

		actor := ids[rng.Intn(len(ids))]
		item := items[rng.Intn(len(items))]
		r, err := call(protocol.CmdMsg{Op: protocol.OpEquip, EntityID: actor, ItemID: item})
		if err != nil {
			logger.Errorf("equip: %v", err)
			return
		}
		if !r.OK {
			logger.Debugf("equip %d on %d: %s", item, actor, r.Error.Code)
			continue
		}
		b, _ := json.Marshal(r.Entity.Equipment)
		logger.Infof("%d -> %d %s %s", item, actor, r.Slot, b)
	}
}
