//go:build ignore

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
)

// Answers OpenAI-style chat completions with "yes" for `on` requests,
// then "no" for `off` requests, repeating. Point camwatch at it with
// AI_MODEL_TYPE=local_gemma3 LOCAL_GEMMA3_URL=http://localhost:8000.
func main() {
	addr := flag.String("addr", ":8000", "listen address")
	on := flag.Int("on", 3, "consecutive yes answers")
	off := flag.Int("off", 3, "consecutive no answers")
	flag.Parse()

	var calls atomic.Int64
	http.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		n := calls.Add(1) - 1
		answer := "no"
		if int(n)%(*on+*off) < *on {
			answer = "yes"
		}
		log.Printf("request #%d -> %s", n+1, answer)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     fmt.Sprintf("mock-%d", n),
			"object": "chat.completion",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": answer},
				"finish_reason": "stop",
			}},
		})
	})

	log.Printf("mock detector listening on %s", *addr)
	log.Fatal(http.ListenAndServe(*addr, nil))
}
