//go:build ignore

package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/nats-io/nats.go"
)

type presenceEvent struct {
	CameraID       string    `json:"camera_id"`
	Present        bool      `json:"present"`
	Transition     string    `json:"transition"`
	At             time.Time `json:"at"`
	DetectionCount int       `json:"detection_count"`
	SessionSeconds float64   `json:"session_seconds"`
	Evidence       string    `json:"evidence"`
}

// Prints presence events published by camwatch.
func main() {
	natsURL := flag.String("nats", nats.DefaultURL, "NATS server")
	subject := flag.String("subject", "camwatch.presence.>", "subject to watch")
	flag.Parse()

	nc, err := nats.Connect(*natsURL)
	if err != nil {
		log.Fatalf("NATS connect error: %v", err)
	}
	defer nc.Close()

	_, err = nc.Subscribe(*subject, func(m *nats.Msg) {
		var ev presenceEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			log.Printf("%s: undecodable payload: %v", m.Subject, err)
			return
		}
		if ev.Present {
			log.Printf("%s: person appeared (session #%d) evidence=%s", ev.CameraID, ev.DetectionCount, ev.Evidence)
		} else {
			log.Printf("%s: person left after %.0fs", ev.CameraID, ev.SessionSeconds)
		}
	})
	if err != nil {
		log.Fatalf("subscribe error: %v", err)
	}
	log.Printf("watching %s on %s", *subject, *natsURL)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
}
