package client_test

import (
	"context"
	"testing"

	"winerp/client"
	"winerp/codec"
	"winerp/message"
	"winerp/server"
)

// ---- Setup ----

func setupPair(b *testing.B, ct codec.CodecType) *client.Client {
	b.Helper()
	_, addr := startBroker(b, server.Options{Codec: ct})

	worker, err := client.NewClient(client.Options{Name: "worker", Addr: addr, Codec: ct})
	if err != nil {
		b.Fatal(err)
	}
	if err := worker.HandleFunc("", echo); err != nil {
		b.Fatal(err)
	}
	if err := worker.Start(context.Background()); err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { worker.Close() })

	caller, err := client.NewClient(client.Options{Name: "caller", Addr: addr, Codec: ct})
	if err != nil {
		b.Fatal(err)
	}
	if err := caller.Start(context.Background()); err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { caller.Close() })
	return caller
}

// ---- Benchmark ----

// One goroutine, one request at a time: full round trip through the broker.
func BenchmarkSerialRequest(b *testing.B) {
	for _, ct := range []codec.CodecType{codec.CodecTypeJSON, codec.CodecTypeMsgpack} {
		b.Run(ct.String(), func(b *testing.B) {
			caller := setupPair(b, ct)
			payload := message.Payload{"a": 1, "b": 2}
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := caller.Request(context.Background(), "echo", "worker", 0, payload); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// Many goroutines sharing one connection.
func BenchmarkConcurrentRequest(b *testing.B) {
	caller := setupPair(b, codec.CodecTypeMsgpack)
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		payload := message.Payload{"a": 1, "b": 2}
		for pb.Next() {
			if _, err := caller.Request(context.Background(), "echo", "worker", 0, payload); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
