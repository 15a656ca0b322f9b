package config

import (
	"log"
	"os"
	"time"

	"github.com/nats-io/nats.go"
)

// ConnectNats dials NATS_URL (default nats://127.0.0.1:4222) with reconnects enabled.
func ConnectNats() (*nats.Conn, error) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		url = nats.DefaultURL
	}
	opts := []nats.Option{
		nats.Name("rfid-reconcile"),
		nats.MaxReconnects(IntFromEnv("NATS_MAX_RECONNECTS", 10)),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Printf("disconnected from nats: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("reconnected to nats (url=%s)", nc.ConnectedUrl())
		}),
	}
	return nats.Connect(url, opts...)
}
